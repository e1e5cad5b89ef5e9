package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/devsync/internal/device"
	"github.com/roach88/devsync/internal/drift"
	"github.com/roach88/devsync/internal/engine"
	"github.com/roach88/devsync/internal/testutil"
)

const tid = "t1"

func newStore() *testutil.MemStore {
	s := testutil.NewMemStore()
	s.AddTenant(tid)
	return s
}

func invWithStatus(id string, rev int64, status string) device.InventoryDevice {
	return device.InventoryDevice{
		ID:       id,
		Revision: rev,
		Attributes: map[string]device.Attribute{
			device.KeyIdentityStatus: device.StatusAttribute(status),
		},
	}
}

func TestReconcileTenant_InSync(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusAccepted, Revision: 2})
	s.AddInventoryDevice(tid, invWithStatus("d1", 2, device.StatusAccepted))

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Zero(t, stats.Drifts())
	assert.False(t, stats.OrphanScan)
	assert.Empty(t, s.Ops)
}

// Scenario A, conservative mode: a missing projection is logged but
// never created.
func TestReconcileTenant_MissingProjectionConservative(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusAccepted, Revision: 2})

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MissingProjections)
	assert.Zero(t, stats.CreatedProjections)
	assert.Empty(t, s.Inv[tid])
	assert.NotContains(t, s.Ops, "insert t1/d1")
}

// Backfill mode materializes the projection via the translator, and the
// created document counts toward inventory before the orphan-scan
// predicate fires.
func TestReconcileTenant_MissingProjectionBackfill(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{
		ID:       "d1",
		Status:   device.StatusAccepted,
		Revision: 2,
		IDData:   map[string]string{"mac": "aa:bb"},
	})

	r := engine.New(s, nil, engine.WithMode(engine.ModeBackfill))
	stats, err := r.ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MissingProjections)
	assert.Equal(t, 1, stats.CreatedProjections)
	assert.False(t, stats.OrphanScan)

	created, ok := s.Inv[tid]["d1"]
	require.True(t, ok)
	v, ok := created.StatusValue()
	require.True(t, ok)
	assert.Equal(t, device.StatusAccepted, v)
	assert.Equal(t, int64(2), created.Revision)
	assert.Contains(t, created.Attributes, "identity-mac")
}

// Scenario B: a projection with no identity-status attribute gets the
// whole attribute object set.
func TestReconcileTenant_MissingStatusAttribute(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusAccepted, Revision: 2})
	s.AddInventoryDevice(tid, device.InventoryDevice{ID: "d1", Revision: 0, Attributes: map[string]device.Attribute{}})

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MissingStatus)
	assert.Equal(t, []string{"set_status_attribute t1/d1 accepted"}, s.Ops)
	assert.Equal(t, device.StatusAttribute(device.StatusAccepted),
		s.Inv[tid]["d1"].Attributes[device.KeyIdentityStatus])
}

// Scenario C plus the minimality property: a status mismatch mutates
// only the value field and leaves every other attribute and the
// revision untouched.
func TestReconcileTenant_StatusMismatchMinimal(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusRejected})
	inv := invWithStatus("d1", 0, device.StatusAccepted)
	inv.Attributes["identity-mac"] = device.Attribute{Name: "mac", Scope: device.ScopeIdentity, Value: "aa:bb"}
	inv.Attributes["custom-tag"] = device.Attribute{Name: "tag", Scope: "custom", Value: "rack-7"}
	s.AddInventoryDevice(tid, inv)

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.StatusMismatches)
	assert.Equal(t, []string{"set_status_value t1/d1 rejected"}, s.Ops)

	got := s.Inv[tid]["d1"]
	v, _ := got.StatusValue()
	assert.Equal(t, device.StatusRejected, v)
	assert.Equal(t, "status", got.Attributes[device.KeyIdentityStatus].Name)
	assert.Equal(t, device.ScopeIdentity, got.Attributes[device.KeyIdentityStatus].Scope)
	assert.Equal(t, "aa:bb", got.Attributes["identity-mac"].Value)
	assert.Equal(t, "rack-7", got.Attributes["custom-tag"].Value)
	assert.Equal(t, int64(0), got.Revision)
}

// Scenario D: an inventory revision ahead of deviceauth is clamped
// down.
func TestReconcileTenant_StaleRevisionClamped(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusAccepted, Revision: 1})
	s.AddInventoryDevice(tid, invWithStatus("d1", 5, device.StatusAccepted))

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.StaleRevisions)
	assert.Equal(t, []string{"clamp_revision t1/d1 1"}, s.Ops)
	assert.Equal(t, int64(1), s.Inv[tid]["d1"].Revision)
}

// Scenario E: an inventory document with no non-preauthorized identity
// counterpart is deleted when the counts trigger the reverse pass.
func TestReconcileTenant_OrphanDeleted(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusAccepted, Revision: 2})
	s.AddInventoryDevice(tid, invWithStatus("d1", 2, device.StatusAccepted))
	s.AddInventoryDevice(tid, invWithStatus("d9", 0, device.StatusAccepted))

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.True(t, stats.OrphanScan)
	assert.Equal(t, 1, stats.Orphans)
	assert.Equal(t, 1, stats.OrphansDeleted)
	assert.NotContains(t, s.Inv[tid], "d9")
	assert.Contains(t, s.Inv[tid], "d1")
}

// The reverse pass is skipped entirely when the counts agree, even if a
// missing projection and an orphan mask each other. Documented
// trade-off of the counting optimization; the next run after either
// side changes converges.
func TestReconcileTenant_OrphanScanSkippedOnEqualCounts(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusAccepted})
	s.AddInventoryDevice(tid, invWithStatus("d9", 0, device.StatusAccepted))

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.False(t, stats.OrphanScan)
	assert.Contains(t, s.Inv[tid], "d9")
	assert.Equal(t, 1, stats.MissingProjections)
}

// Preauthorized devices are invisible on both sides: they produce no
// missing-projection classification and do not protect an orphaned
// projection from deletion.
func TestReconcileTenant_PreauthorizedExcluded(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusPreauthorized})
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d2", Status: device.StatusAccepted})
	s.AddInventoryDevice(tid, invWithStatus("d1", 0, device.StatusPreauthorized))
	s.AddInventoryDevice(tid, invWithStatus("d2", 0, device.StatusAccepted))

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	// identity count excludes d1, so 1 vs. 2 triggers the reverse pass
	// and d1's projection is removed as an orphan.
	assert.Equal(t, int64(1), stats.IdentityDevices)
	assert.Zero(t, stats.MissingProjections)
	assert.True(t, stats.OrphanScan)
	assert.Equal(t, 1, stats.OrphansDeleted)
	assert.NotContains(t, s.Inv[tid], "d1")
	assert.Contains(t, s.Inv[tid], "d2")
}

// Idempotence: a second pass over converged state classifies nothing
// and writes nothing.
func TestReconcileTenant_Idempotent(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusRejected, Revision: 3})
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d2", Status: device.StatusAccepted, Revision: 1})
	s.AddInventoryDevice(tid, invWithStatus("d1", 9, device.StatusAccepted))
	s.AddInventoryDevice(tid, device.InventoryDevice{ID: "d2", Attributes: map[string]device.Attribute{}})
	s.AddInventoryDevice(tid, invWithStatus("d9", 0, device.StatusAccepted))

	r := engine.New(s, nil, engine.WithMode(engine.ModeBackfill))

	first, err := r.ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)
	assert.Positive(t, first.Drifts())

	s.Ops = nil
	second, err := r.ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Zero(t, second.Drifts())
	assert.Zero(t, second.WriteFailures)
	assert.Empty(t, s.Ops)
}

// Convergence: after one pass, every matched projection carries the
// source status and a revision no greater than the source's.
func TestReconcileTenant_Converges(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusRejected, Revision: 2})
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d2", Status: device.StatusPending, Revision: 0})
	s.AddInventoryDevice(tid, invWithStatus("d1", 7, device.StatusAccepted))
	s.AddInventoryDevice(tid, device.InventoryDevice{ID: "d2", Revision: 4, Attributes: map[string]device.Attribute{}})

	_, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	for id, auth := range s.Auth[tid] {
		got := s.Inv[tid][id]
		v, ok := got.StatusValue()
		require.True(t, ok, "device %s has no status", id)
		assert.Equal(t, auth.Status, v)
		assert.LessOrEqual(t, got.Revision, auth.Revision)
	}
}

// A failed corrective write must not abort processing of subsequent
// records.
func TestReconcileTenant_WriteFailureContinues(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusRejected})
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d2", Status: device.StatusRejected})
	s.AddInventoryDevice(tid, invWithStatus("d1", 0, device.StatusAccepted))
	s.AddInventoryDevice(tid, invWithStatus("d2", 0, device.StatusAccepted))
	s.FailWrites["d1"] = errors.New("write concern failed")

	stats, err := engine.New(s, nil).ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.StatusMismatches)
	assert.Equal(t, 1, stats.WriteFailures)
	d2 := s.Inv[tid]["d2"]
	v, _ := d2.StatusValue()
	assert.Equal(t, device.StatusRejected, v)
}

// Findings flow to the recorder with the run token attached; recorder
// failures never affect the outcome.
func TestReconcileTenant_RecordsFindings(t *testing.T) {
	s := newStore()
	s.AddAuthDevice(tid, device.AuthDevice{ID: "d1", Status: device.StatusRejected})
	s.AddInventoryDevice(tid, invWithStatus("d1", 0, device.StatusAccepted))
	s.AddInventoryDevice(tid, invWithStatus("d9", 0, device.StatusAccepted))

	rec := &testutil.MemRecorder{}
	r := engine.New(s, nil, engine.WithRunID("run-1"), engine.WithRecorder(rec))

	_, err := r.ReconcileTenant(context.Background(), tid)
	require.NoError(t, err)

	require.Len(t, rec.Findings, 2)
	assert.Equal(t, engine.Finding{
		RunID:     "run-1",
		TenantID:  tid,
		DeviceID:  "d1",
		Kind:      drift.KindStatusMismatch,
		Detail:    "accepted vs. rejected",
		Corrected: true,
	}, rec.Findings[0])
	assert.Equal(t, drift.KindOrphanedProjection, rec.Findings[1].Kind)
}

func TestParseMode(t *testing.T) {
	m, err := engine.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, engine.ModeConservative, m)

	m, err = engine.ParseMode("backfill")
	require.NoError(t, err)
	assert.Equal(t, engine.ModeBackfill, m)

	_, err = engine.ParseMode("aggressive")
	assert.Error(t, err)
}
