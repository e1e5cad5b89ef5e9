// Package engine implements the per-tenant reconciliation pass between
// the deviceauth store (authoritative) and the inventory store (derived
// projection).
//
// ARCHITECTURE:
//
// Single logical thread of control:
// Tenants are processed strictly sequentially, and within a tenant the
// forward pass then (conditionally) the reverse pass run sequentially.
// No two passes ever run against the same tenant concurrently, so the
// engine needs no locking against the inventory store. The owning
// subsystems may mutate both stores while a scan is running; the engine
// tolerates this by re-reading each document by _id immediately before
// deciding to write, bounding staleness to one document's processing
// time.
//
// Pass structure:
//  1. Forward (deviceauth → inventory): stream active identity records
//     ascending by _id, classify each against its projection, issue one
//     targeted correction per drift immediately. No batching: a failure
//     mid-scan leaves earlier corrections durable.
//  2. Reverse (inventory → deviceauth), only when the post-exclusion
//     identity count and the inventory count disagree: stream inventory
//     ascending by _id, delete documents with no active identity
//     counterpart.
//
// ERROR HANDLING: Query and decode failures abort the tenant and
// propagate; a partial scan cannot be trusted. A failed corrective
// write is logged and counted, and processing continues: corrections
// are independent and idempotent, so the run converges further each
// time it is repeated.
package engine
