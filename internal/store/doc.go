// Package store provides MongoDB-backed access to the three stores the
// reconciler touches:
//
//   - tenantadm.tenants: read-only tenant enumeration
//   - deviceauth-<tenant>.devices: authoritative identity records, read-only
//   - inventory-<tenant>.devices: derived projections, the only store
//     this tool writes, and only via targeted field updates or
//     single-document deletes
//
// # Scan discipline
//
// Device streams open server-side cursors sorted ascending by _id with
// NoCursorTimeout, so long scans are not aborted by server idle limits
// and memory stays O(1) records in flight. Streams are exposed as
// callbacks rather than raw cursors: the cursor is closed on every exit
// path (completion, early return, propagated failure).
//
// # Write discipline
//
// Every write is scoped to a single document by _id. Updates use $set
// on the narrowest path in question; there are no multi-document
// transactions because each document's corrections are independent and
// idempotent.
package store
