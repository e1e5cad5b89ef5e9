// Package tenant resolves the bounded set of tenants a reconciliation
// run processes. Tenants are sourced read-only from the tenantadm
// store; this package never creates, mutates, or deletes them.
package tenant

import (
	"context"
	"log/slog"
	"sort"
)

// Filter narrows tenant enumeration. A non-empty IDs set takes
// precedence and selects exactly the matching tenants; otherwise a
// non-empty UpTo selects every tenant whose id is lexicographically
// less than or equal to the bound (inclusive); otherwise all tenants.
type Filter struct {
	IDs  []string
	UpTo string
}

// Normalize drops the upper bound when an explicit id set is present,
// so sources only ever see one of the two constraints.
func (f Filter) Normalize() Filter {
	if len(f.IDs) > 0 {
		f.UpTo = ""
	}
	return f
}

// Source enumerates tenant identifiers matching a filter. A failing
// enumeration yields an error and no tenants, never a partial sequence.
type Source interface {
	Tenants(ctx context.Context, f Filter) ([]string, error)
}

// Selector resolves the ordered tenant sequence for one run.
type Selector struct {
	source Source
	log    *slog.Logger
}

// NewSelector creates a Selector over a tenant source.
func NewSelector(source Source, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{source: source, log: log}
}

// Resolve returns the tenants matching the filter in descending id
// order. Descending order is what makes repeated runs over an unbounded
// tenant set monotonic: pair it with --tenant-limit set to the last
// tenant a previous run reached to resume below it.
//
// The sort is enforced here even when the source already sorts, so the
// ordering contract does not depend on any particular backend.
func (s *Selector) Resolve(ctx context.Context, f Filter) ([]string, error) {
	f = f.Normalize()
	ids, err := s.source.Tenants(ctx, f)
	if err != nil {
		return nil, err
	}
	SortDescending(ids)
	s.log.Debug("tenants resolved",
		"count", len(ids),
		"explicit_ids", len(f.IDs),
		"up_to", f.UpTo,
	)
	return ids, nil
}

// SortDescending orders tenant ids descending, in place.
func SortDescending(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
}
