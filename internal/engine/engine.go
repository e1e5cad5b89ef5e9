package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/devsync/internal/device"
	"github.com/roach88/devsync/internal/drift"
)

// Mode selects how the engine handles the two historically divergent
// corrective behaviors. Conservative mode logs missing projections
// without creating them; backfill mode materializes them via the
// projection translator. Orphan deletion applies in both modes.
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeBackfill     Mode = "backfill"
)

// ParseMode validates a mode string from flags or config.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeConservative, ModeBackfill:
		return Mode(s), nil
	case "":
		return ModeConservative, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be %q or %q", s, ModeConservative, ModeBackfill)
	}
}

// DeviceStore is the engine's view of the database boundary. Two
// logical operations suffice: stream documents matching a filter
// ordered by _id, and apply a targeted update or deletion by _id.
// Implemented by store.DataStore (MongoDB) and testutil.MemStore.
type DeviceStore interface {
	CountAuthDevices(ctx context.Context, tenantID string) (int64, error)
	CountInventoryDevices(ctx context.Context, tenantID string) (int64, error)
	EachAuthDevice(ctx context.Context, tenantID string, fn func(device.AuthDevice) error) error
	EachInventoryDevice(ctx context.Context, tenantID string, fn func(device.InventoryDevice) error) error
	InventoryDevice(ctx context.Context, tenantID, deviceID string) (*device.InventoryDevice, error)
	HasActiveAuthDevice(ctx context.Context, tenantID, deviceID string) (bool, error)
	InsertInventoryDevice(ctx context.Context, tenantID string, dev device.InventoryDevice) error
	SetStatusAttribute(ctx context.Context, tenantID, deviceID, status string) error
	SetStatusValue(ctx context.Context, tenantID, deviceID, status string) error
	ClampRevision(ctx context.Context, tenantID, deviceID string, revision int64) error
	DeleteInventoryDevice(ctx context.Context, tenantID, deviceID string) error
}

// Finding is one detected drift, as handed to a Recorder.
type Finding struct {
	RunID     string
	TenantID  string
	DeviceID  string
	Kind      drift.Kind
	Detail    string
	Corrected bool
}

// Recorder persists findings for later inspection. Implemented by
// journal.Journal. Recording failures are logged and never affect the
// reconciliation outcome.
type Recorder interface {
	Record(ctx context.Context, f Finding) error
}

// Reconciler runs the two-pass drift detection and correction
// algorithm for one tenant at a time.
type Reconciler struct {
	store    DeviceStore
	log      *slog.Logger
	mode     Mode
	recorder Recorder
	runID    string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMode sets the operating mode. Default is conservative.
func WithMode(m Mode) Option {
	return func(r *Reconciler) { r.mode = m }
}

// WithRecorder attaches a drift recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) { r.recorder = rec }
}

// WithRunID overrides the generated run correlation token. Used by
// tests that need deterministic output.
func WithRunID(id string) Option {
	return func(r *Reconciler) { r.runID = id }
}

// New creates a Reconciler over a device store. A fresh run token is
// generated unless WithRunID overrides it; every log line and recorded
// finding carries it.
func New(store DeviceStore, log *slog.Logger, opts ...Option) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	r := &Reconciler{
		store: store,
		mode:  ModeConservative,
		runID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = log.With("run_id", r.runID)
	return r
}

// RunID returns the run correlation token.
func (r *Reconciler) RunID() string { return r.runID }

// Mode returns the operating mode.
func (r *Reconciler) Mode() Mode { return r.mode }

// ReconcileTenant runs the forward pass and, when the counts disagree,
// the reverse pass against one tenant. The returned stats are valid
// even when an error is returned: they describe the work done before
// the failure.
func (r *Reconciler) ReconcileTenant(ctx context.Context, tenantID string) (TenantStats, error) {
	stats := TenantStats{Tenant: tenantID}

	identityCount, err := r.store.CountAuthDevices(ctx, tenantID)
	if err != nil {
		return stats, fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	inventoryCount, err := r.store.CountInventoryDevices(ctx, tenantID)
	if err != nil {
		return stats, fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	stats.IdentityDevices = identityCount
	stats.InventoryDevices = inventoryCount

	if err := r.forwardPass(ctx, tenantID, identityCount, &stats); err != nil {
		return stats, fmt.Errorf("tenant %s forward pass: %w", tenantID, err)
	}

	// Backfilled projections count toward inventory before deciding
	// whether the reverse scan is needed.
	effective := inventoryCount + int64(stats.CreatedProjections)
	if !drift.NeedsOrphanScan(identityCount, effective) {
		return stats, nil
	}
	stats.OrphanScan = true

	if err := r.reversePass(ctx, tenantID, effective, &stats); err != nil {
		return stats, fmt.Errorf("tenant %s reverse pass: %w", tenantID, err)
	}
	return stats, nil
}

// forwardPass streams active deviceauth records and corrects each
// drifted projection with the smallest targeted update.
func (r *Reconciler) forwardPass(ctx context.Context, tenantID string, total int64, stats *TenantStats) error {
	var n int64
	return r.store.EachAuthDevice(ctx, tenantID, func(auth device.AuthDevice) error {
		n++
		r.log.Debug("processing device",
			"tenant", tenantID,
			"device", auth.ID,
			"n", n,
			"total", total,
		)

		// Re-read the projection by _id right before deciding to write;
		// values captured earlier in a long scan cannot be trusted.
		inv, err := r.store.InventoryDevice(ctx, tenantID, auth.ID)
		if err != nil {
			return err
		}

		for _, kind := range drift.Classify(&auth, inv) {
			r.correct(ctx, tenantID, kind, &auth, inv, stats)
		}
		return nil
	})
}

// correct applies the corrective write for one drift kind. Write
// failures are logged and counted, never propagated: corrections are
// independent and the next record must still be processed.
func (r *Reconciler) correct(ctx context.Context, tenantID string, kind drift.Kind, auth *device.AuthDevice, inv *device.InventoryDevice, stats *TenantStats) {
	switch kind {
	case drift.KindMissingProjection:
		stats.MissingProjections++
		r.log.Error("device not found in inventory",
			"tenant", tenantID,
			"device", auth.ID,
			"status", auth.Status,
		)
		if r.mode != ModeBackfill {
			r.record(ctx, tenantID, auth.ID, kind, "no inventory document", false)
			return
		}
		if err := r.store.InsertInventoryDevice(ctx, tenantID, drift.ToInventory(auth)); err != nil {
			r.writeFailed(ctx, tenantID, auth.ID, kind, err, stats)
			return
		}
		stats.CreatedProjections++
		r.record(ctx, tenantID, auth.ID, kind, "projection created", true)

	case drift.KindMissingStatus:
		stats.MissingStatus++
		r.log.Error("device status not found in inventory",
			"tenant", tenantID,
			"device", auth.ID,
			"status", auth.Status,
		)
		if err := r.store.SetStatusAttribute(ctx, tenantID, auth.ID, auth.Status); err != nil {
			r.writeFailed(ctx, tenantID, auth.ID, kind, err, stats)
			return
		}
		r.record(ctx, tenantID, auth.ID, kind, "absent vs. "+auth.Status, true)

	case drift.KindStatusMismatch:
		stats.StatusMismatches++
		invStatus, _ := inv.StatusValue()
		r.log.Error("device status mismatch",
			"tenant", tenantID,
			"device", auth.ID,
			"inventory", invStatus,
			"deviceauth", auth.Status,
		)
		if err := r.store.SetStatusValue(ctx, tenantID, auth.ID, auth.Status); err != nil {
			r.writeFailed(ctx, tenantID, auth.ID, kind, err, stats)
			return
		}
		r.record(ctx, tenantID, auth.ID, kind, invStatus+" vs. "+auth.Status, true)

	case drift.KindStaleRevision:
		stats.StaleRevisions++
		r.log.Error("device revision mismatch",
			"tenant", tenantID,
			"device", auth.ID,
			"inventory", inv.Revision,
			"deviceauth", auth.Revision,
		)
		if err := r.store.ClampRevision(ctx, tenantID, auth.ID, auth.Revision); err != nil {
			r.writeFailed(ctx, tenantID, auth.ID, kind, err, stats)
			return
		}
		r.record(ctx, tenantID, auth.ID, kind,
			fmt.Sprintf("%d vs. %d", inv.Revision, auth.Revision), true)
	}
}

// reversePass streams inventory documents and deletes those with no
// active deviceauth counterpart.
func (r *Reconciler) reversePass(ctx context.Context, tenantID string, total int64, stats *TenantStats) error {
	var n int64
	return r.store.EachInventoryDevice(ctx, tenantID, func(inv device.InventoryDevice) error {
		n++
		r.log.Debug("post-processing device",
			"tenant", tenantID,
			"device", inv.ID,
			"n", n,
			"total", total,
		)

		ok, err := r.store.HasActiveAuthDevice(ctx, tenantID, inv.ID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		stats.Orphans++
		r.log.Error("device not found in deviceauth",
			"tenant", tenantID,
			"device", inv.ID,
		)
		if err := r.store.DeleteInventoryDevice(ctx, tenantID, inv.ID); err != nil {
			r.writeFailed(ctx, tenantID, inv.ID, drift.KindOrphanedProjection, err, stats)
			return nil
		}
		stats.OrphansDeleted++
		r.record(ctx, tenantID, inv.ID, drift.KindOrphanedProjection, "projection deleted", true)
		return nil
	})
}

func (r *Reconciler) writeFailed(ctx context.Context, tenantID, deviceID string, kind drift.Kind, err error, stats *TenantStats) {
	stats.WriteFailures++
	r.log.Error("corrective write failed",
		"tenant", tenantID,
		"device", deviceID,
		"kind", kind,
		"error", err,
	)
	r.record(ctx, tenantID, deviceID, kind, "write failed: "+err.Error(), false)
}

func (r *Reconciler) record(ctx context.Context, tenantID, deviceID string, kind drift.Kind, detail string, corrected bool) {
	if r.recorder == nil {
		return
	}
	f := Finding{
		RunID:     r.runID,
		TenantID:  tenantID,
		DeviceID:  deviceID,
		Kind:      kind,
		Detail:    detail,
		Corrected: corrected,
	}
	if err := r.recorder.Record(ctx, f); err != nil {
		r.log.Warn("journal record failed",
			"tenant", tenantID,
			"device", deviceID,
			"kind", kind,
			"error", err,
		)
	}
}
