package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRecords is the maximum number of records to buffer.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferRecords int

	// MaxBufferBytes is the maximum buffer size in bytes (estimated).
	// Zero means no limit (use MaxBufferRecords instead).
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for drop and flush observability.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferRecords: 256,
		MaxBufferBytes:   4 * 1024 * 1024,
	}
}

// ErrBufferFull is returned when the buffer is full, a flush did not free
// space, and the incoming record is non-droppable.
var ErrBufferFull = errors.New("buffer full: cannot accept non-droppable record")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferRecords or MaxBufferBytes must be set")

// BufferedPolicy batches records and writes them on Flush or when full.
//
// When the buffer is full the policy first flushes. If the flush fails:
//   - an incoming droppable record is dropped
//   - otherwise the oldest buffered droppable record is evicted
//   - with nothing to evict, Record returns ErrBufferFull
//
// A failed flush keeps the buffer intact; records are written in order.
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex
	buffer      []*types.TraceRecord
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRecords <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.TraceRecord, 0, max(config.MaxBufferRecords, 16)),
		stats:  newStatsRecorder(),
	}, nil
}

// Record buffers the record, flushing or applying drop rules when full.
func (p *BufferedPolicy) Record(ctx context.Context, rec *types.TraceRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalLocked()
	size := estimateRecordSize(rec)

	if p.hasRoom(size) {
		p.append(rec, size)
		return nil
	}

	// Full: try to make room by writing the batch out.
	if err := p.flushLocked(ctx); err == nil && p.hasRoom(size) {
		p.append(rec, size)
		return nil
	}

	if IsDroppable(rec.Kind) {
		p.stats.incDroppedLocked(rec.Kind)
		p.logDrop(rec.Kind, "buffer_full")
		return nil
	}

	if p.dropOldestDroppable() && p.hasRoom(size) {
		p.append(rec, size)
		return nil
	}

	p.stats.incErrorsLocked()
	if p.logger != nil {
		p.logger.Error("trace buffer overflow", map[string]any{
			"kind":   string(rec.Kind),
			"policy": "buffered",
		})
	}
	return ErrBufferFull
}

// Flush writes all buffered records to the sink in one batch.
// On failure the buffer is preserved.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

func (p *BufferedPolicy) flushLocked(ctx context.Context) error {
	p.stats.incFlushLocked()
	if len(p.buffer) == 0 {
		return nil
	}

	batch := p.buffer
	if err := p.sink.WriteRecords(ctx, batch); err != nil {
		p.stats.incErrorsLocked()
		if p.logger != nil {
			p.logger.Error("trace flush failed", map[string]any{
				"records": len(batch),
				"error":   err.Error(),
				"policy":  "buffered",
			})
		}
		return err
	}

	p.stats.incPersistedLocked(int64(len(batch)))
	p.buffer = make([]*types.TraceRecord, 0, max(p.config.MaxBufferRecords, 16))
	p.bufferBytes = 0
	return nil
}

// Close flushes remaining records (best effort) and closes the sink.
func (p *BufferedPolicy) Close() error {
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(int64(len(p.buffer)), p.bufferBytes)
}

func (p *BufferedPolicy) hasRoom(size int64) bool {
	if p.config.MaxBufferRecords > 0 && len(p.buffer) >= p.config.MaxBufferRecords {
		return false
	}
	if p.config.MaxBufferBytes > 0 && p.bufferBytes+size > p.config.MaxBufferBytes {
		return false
	}
	return true
}

func (p *BufferedPolicy) append(rec *types.TraceRecord, size int64) {
	p.buffer = append(p.buffer, rec)
	p.bufferBytes += size
}

// dropOldestDroppable evicts the oldest droppable record. Caller must hold mu.
func (p *BufferedPolicy) dropOldestDroppable() bool {
	for i, rec := range p.buffer {
		if IsDroppable(rec.Kind) {
			p.buffer = append(p.buffer[:i], p.buffer[i+1:]...)
			p.bufferBytes -= estimateRecordSize(rec)
			p.stats.incDroppedLocked(rec.Kind)
			p.logDrop(rec.Kind, "evicted_for_non_droppable")
			return true
		}
	}
	return false
}

// estimateRecordSize is a rough size estimate for buffer accounting.
func estimateRecordSize(rec *types.TraceRecord) int64 {
	size := int64(128 + len(rec.ExecutionID) + len(rec.MsgType))
	size += int64(len(rec.Payload) * 64)
	return size
}

func (p *BufferedPolicy) logDrop(kind types.TraceKind, reason string) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("trace record dropped", map[string]any{
		"kind":   string(kind),
		"reason": reason,
		"policy": "buffered",
	})
}
