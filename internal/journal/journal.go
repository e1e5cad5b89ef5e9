// Package journal provides an optional SQLite-backed audit trail of
// reconciliation findings. The batch tool itself only logs; the journal
// keeps findings queryable across runs so operators can track which
// devices keep drifting and what was corrected when.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/devsync/internal/drift"
	"github.com/roach88/devsync/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// Journal records findings durably. Implements engine.Recorder.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite only supports one writer at a time, and the reconciler is
	// single-threaded anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends one finding.
func (j *Journal) Record(ctx context.Context, f engine.Finding) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO findings (run_id, tenant_id, device_id, kind, detail, corrected, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.TenantID, f.DeviceID, string(f.Kind), f.Detail, f.Corrected,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record finding: %w", err)
	}
	return nil
}

// ByRun returns all findings recorded for a run, in insertion order.
func (j *Journal) ByRun(ctx context.Context, runID string) ([]engine.Finding, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, tenant_id, device_id, kind, detail, corrected
		FROM findings WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var out []engine.Finding
	for rows.Next() {
		var f engine.Finding
		var kind string
		if err := rows.Scan(&f.RunID, &f.TenantID, &f.DeviceID, &kind, &f.Detail, &f.Corrected); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Kind = drift.Kind(kind)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	return out, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
