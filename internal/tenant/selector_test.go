package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource serves tenants from a fixed slice, applying the filter
// the way a real backend would (unordered result, selector must sort).
type sliceSource struct {
	ids []string
	err error

	gotFilter Filter
}

func (s *sliceSource) Tenants(_ context.Context, f Filter) ([]string, error) {
	s.gotFilter = f
	if s.err != nil {
		return nil, s.err
	}
	var out []string
	for _, id := range s.ids {
		switch {
		case len(f.IDs) > 0:
			for _, want := range f.IDs {
				if id == want {
					out = append(out, id)
				}
			}
		case f.UpTo != "":
			if id <= f.UpTo {
				out = append(out, id)
			}
		default:
			out = append(out, id)
		}
	}
	return out, nil
}

func TestResolve_AllTenantsDescending(t *testing.T) {
	src := &sliceSource{ids: []string{"t-alpha", "t-charlie", "t-bravo"}}
	sel := NewSelector(src, nil)

	got, err := sel.Resolve(context.Background(), Filter{})
	require.NoError(t, err)

	assert.Equal(t, []string{"t-charlie", "t-bravo", "t-alpha"}, got)
}

func TestResolve_ExplicitIDs(t *testing.T) {
	src := &sliceSource{ids: []string{"t-alpha", "t-charlie", "t-bravo"}}
	sel := NewSelector(src, nil)

	got, err := sel.Resolve(context.Background(), Filter{IDs: []string{"t-alpha", "t-charlie"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"t-charlie", "t-alpha"}, got)
}

// TestResolve_ExplicitIDsOverrideUpTo: the id set takes precedence and
// the bound is dropped before it reaches the source.
func TestResolve_ExplicitIDsOverrideUpTo(t *testing.T) {
	src := &sliceSource{ids: []string{"t-alpha", "t-charlie"}}
	sel := NewSelector(src, nil)

	got, err := sel.Resolve(context.Background(), Filter{
		IDs:  []string{"t-charlie"},
		UpTo: "t-alpha",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"t-charlie"}, got)
	assert.Empty(t, src.gotFilter.UpTo)
}

// TestResolve_UpperBoundInclusive: the bound itself is included.
func TestResolve_UpperBoundInclusive(t *testing.T) {
	src := &sliceSource{ids: []string{"t-alpha", "t-bravo", "t-charlie"}}
	sel := NewSelector(src, nil)

	got, err := sel.Resolve(context.Background(), Filter{UpTo: "t-bravo"})
	require.NoError(t, err)

	assert.Equal(t, []string{"t-bravo", "t-alpha"}, got)
}

// TestResolve_SourceFailure propagates the error verbatim and yields
// nothing.
func TestResolve_SourceFailure(t *testing.T) {
	boom := errors.New("tenantadm unreachable")
	sel := NewSelector(&sliceSource{err: boom}, nil)

	got, err := sel.Resolve(context.Background(), Filter{})

	require.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

func TestSortDescending(t *testing.T) {
	ids := []string{"b", "c", "a"}
	SortDescending(ids)
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}
