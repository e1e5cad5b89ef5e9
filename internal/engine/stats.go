package engine

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TenantStats accumulates what one tenant's reconciliation pass found
// and did. Detection counters count classified drifts; Created,
// Deleted, and WriteFailures track the corrective-write outcomes.
type TenantStats struct {
	Tenant             string `json:"tenant"`
	IdentityDevices    int64  `json:"identity_devices"`
	InventoryDevices   int64  `json:"inventory_devices"`
	MissingProjections int    `json:"missing_projections"`
	CreatedProjections int    `json:"created_projections"`
	MissingStatus      int    `json:"missing_status"`
	StatusMismatches   int    `json:"status_mismatches"`
	StaleRevisions     int    `json:"stale_revisions"`
	Orphans            int    `json:"orphans"`
	OrphansDeleted     int    `json:"orphans_deleted"`
	WriteFailures      int    `json:"write_failures"`
	OrphanScan         bool   `json:"orphan_scan"`
}

// Drifts is the total number of drift classifications for the tenant.
func (t TenantStats) Drifts() int {
	return t.MissingProjections + t.MissingStatus + t.StatusMismatches +
		t.StaleRevisions + t.Orphans
}

// RunStats aggregates one full run across all resolved tenants.
type RunStats struct {
	RunID   string        `json:"run_id"`
	Mode    Mode          `json:"mode"`
	Tenants []TenantStats `json:"tenants"`
}

// Add appends one tenant's stats to the run.
func (r *RunStats) Add(t TenantStats) {
	r.Tenants = append(r.Tenants, t)
}

// TotalDrifts sums drift classifications across all tenants.
func (r RunStats) TotalDrifts() int {
	var n int
	for _, t := range r.Tenants {
		n += t.Drifts()
	}
	return n
}

// TotalWriteFailures sums failed corrective writes across all tenants.
func (r RunStats) TotalWriteFailures() int {
	var n int
	for _, t := range r.Tenants {
		n += t.WriteFailures
	}
	return n
}

// Render writes the human-readable run summary. Integer counts are
// grouped for readability (1,234) since production tenants carry device
// populations well past the thousands.
func (r RunStats) Render(w io.Writer) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "reconciliation run %s mode=%s tenants=%d\n", r.RunID, r.Mode, len(r.Tenants))
	for _, t := range r.Tenants {
		p.Fprintf(w, "tenant %s: identity=%d inventory=%d drifts=%d\n",
			t.Tenant, t.IdentityDevices, t.InventoryDevices, t.Drifts())
		p.Fprintf(w, "  missing_projection=%d created=%d missing_status=%d status_mismatch=%d stale_revision=%d\n",
			t.MissingProjections, t.CreatedProjections, t.MissingStatus, t.StatusMismatches, t.StaleRevisions)
		orphanScan := "no"
		if t.OrphanScan {
			orphanScan = "yes"
		}
		p.Fprintf(w, "  orphan_scan=%s orphans=%d deleted=%d write_failures=%d\n",
			orphanScan, t.Orphans, t.OrphansDeleted, t.WriteFailures)
	}
	p.Fprintf(w, "total: drifts=%d write_failures=%d\n", r.TotalDrifts(), r.TotalWriteFailures())
}
