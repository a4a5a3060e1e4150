package policy

import (
	"context"

	"github.com/pithecene-io/assay/types"
)

// NoopPolicy accepts all records but persists none.
// Used when no trace destination is configured.
//
// Stats keep droppable vs non-droppable semantics: droppable kinds are
// counted as dropped, everything else as persisted.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// Record accepts the record but does not persist it.
func (p *NoopPolicy) Record(_ context.Context, rec *types.TraceRecord) error {
	p.stats.incTotal()
	if IsDroppable(rec.Kind) {
		p.stats.incDropped(rec.Kind)
	} else {
		p.stats.incPersisted(1)
	}
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
