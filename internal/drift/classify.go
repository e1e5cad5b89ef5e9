// Package drift holds the pure decision logic of the reconciler: the
// drift classifier, the projection translator, and the orphan-scan
// predicate. Nothing in this package performs I/O, which is what makes
// the engine's per-record behavior independently testable.
package drift

import "github.com/roach88/devsync/internal/device"

// Kind identifies one class of drift between a deviceauth record and
// its inventory projection.
type Kind string

const (
	// KindMissingProjection: no inventory document exists for an active
	// deviceauth device.
	KindMissingProjection Kind = "missing_projection"

	// KindMissingStatus: the inventory document has no readable
	// identity-status attribute.
	KindMissingStatus Kind = "missing_status"

	// KindStatusMismatch: identity-status differs from the deviceauth
	// status.
	KindStatusMismatch Kind = "status_mismatch"

	// KindStaleRevision: the inventory revision is ahead of the
	// deviceauth revision and must be clamped down.
	KindStaleRevision Kind = "stale_revision"

	// KindOrphanedProjection: an inventory document whose id has no
	// non-preauthorized deviceauth counterpart. Detected by the reverse
	// pass, never by Classify.
	KindOrphanedProjection Kind = "orphaned_projection"
)

// Classify maps a deviceauth record and its inventory projection to the
// set of drift kinds present, in a fixed order. A nil inventory record
// short-circuits to missing_projection: no other check applies to a
// document that does not exist.
//
// Total over its domain, deterministic, and free of side effects.
func Classify(auth *device.AuthDevice, inv *device.InventoryDevice) []Kind {
	if inv == nil {
		return []Kind{KindMissingProjection}
	}

	var kinds []Kind
	status, ok := inv.StatusValue()
	if !ok {
		kinds = append(kinds, KindMissingStatus)
	} else if status != auth.Status {
		kinds = append(kinds, KindStatusMismatch)
	}
	if inv.Revision > auth.Revision {
		kinds = append(kinds, KindStaleRevision)
	}
	return kinds
}

// NeedsOrphanScan decides whether the reverse (inventory → deviceauth)
// pass must run. Equal counts after a clean forward pass imply no
// orphans, so the O(N) reverse scan is skipped in the aligned case.
func NeedsOrphanScan(identityCount, inventoryCount int64) bool {
	return identityCount != inventoryCount
}
