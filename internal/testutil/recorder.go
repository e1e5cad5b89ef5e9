package testutil

import (
	"context"

	"github.com/roach88/devsync/internal/engine"
)

// MemRecorder captures findings in memory. Implements engine.Recorder.
type MemRecorder struct {
	Findings []engine.Finding

	// Err, when set, is returned from every Record call.
	Err error
}

// Record appends the finding.
func (r *MemRecorder) Record(_ context.Context, f engine.Finding) error {
	if r.Err != nil {
		return r.Err
	}
	r.Findings = append(r.Findings, f)
	return nil
}
