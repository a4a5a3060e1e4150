// Package policy defines how execution trace records reach their sinks.
package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/assay/types"
)

// Policy controls buffering, dropping, and persistence of trace records.
//
//   - May drop: message, parse_error
//   - Must NOT drop: phase, launch, outcome, metrics
//   - Policy must not alter record shapes
//
// Recording failures never fail an execution; callers log and continue.
type Policy interface {
	// Record handles one trace record.
	Record(ctx context.Context, rec *types.TraceRecord) error

	// Flush flushes any buffered records.
	// Called once the outcome record has been recorded.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns an atomic snapshot of policy counters.
	Stats() Stats
}

// Stats represents policy observability counters.
type Stats struct {
	// TotalRecords is the total number of records received.
	TotalRecords int64
	// RecordsPersisted is the number of records written to the sink.
	RecordsPersisted int64
	// RecordsDropped is the total number of records dropped.
	RecordsDropped int64
	// DroppedByKind maps record kinds to drop counts.
	DroppedByKind map[types.TraceKind]int64
	// BufferedRecords is the number of records currently buffered.
	BufferedRecords int64
	// BufferSize is the estimated buffer size in bytes (if buffered).
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of sink errors encountered.
	Errors int64
}

// DroppedByKindStrings returns DroppedByKind keyed by plain strings,
// the form metrics.Collector absorbs.
func (s Stats) DroppedByKindStrings() map[string]int64 {
	out := make(map[string]int64, len(s.DroppedByKind))
	for k, v := range s.DroppedByKind {
		out[string(k)] = v
	}
	return out
}

var droppableKinds = map[types.TraceKind]bool{
	types.TraceKindMessage:    true,
	types.TraceKindParseError: true,
}

// IsDroppable returns true if the record kind may be dropped by policy.
func IsDroppable(kind types.TraceKind) bool {
	return droppableKinds[kind]
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy and NoopPolicy use the locking methods
//   - BufferedPolicy uses the Locked methods only while holding BufferedPolicy.mu
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			DroppedByKind: make(map[types.TraceKind]int64),
		},
	}
}

func (r *statsRecorder) incTotal() {
	r.mu.Lock()
	r.stats.TotalRecords++
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(n int64) {
	r.mu.Lock()
	r.stats.RecordsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incDropped(kind types.TraceKind) {
	r.mu.Lock()
	r.incDroppedLocked(kind)
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// --- Locked methods for BufferedPolicy ---
// Caller must hold BufferedPolicy.mu.

func (r *statsRecorder) incTotalLocked()            { r.stats.TotalRecords++ }
func (r *statsRecorder) incPersistedLocked(n int64) { r.stats.RecordsPersisted += n }
func (r *statsRecorder) incErrorsLocked()           { r.stats.Errors++ }
func (r *statsRecorder) incFlushLocked()            { r.stats.FlushCount++ }

func (r *statsRecorder) incDroppedLocked(kind types.TraceKind) {
	r.stats.RecordsDropped++
	r.stats.DroppedByKind[kind]++
}

func (r *statsRecorder) snapshotLocked(buffered, bufferSize int64) Stats {
	s := r.copyLocked()
	s.BufferedRecords = buffered
	s.BufferSize = bufferSize
	return s
}

func (r *statsRecorder) copyLocked() Stats {
	s := r.stats
	s.DroppedByKind = make(map[types.TraceKind]int64, len(r.stats.DroppedByKind))
	for k, v := range r.stats.DroppedByKind {
		s.DroppedByKind[k] = v
	}
	return s
}
