package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/assay/types"
)

// Sink abstracts trace persistence for policies.
// Batch-oriented so strict (batch of 1) and buffered policies share it.
type Sink interface {
	// WriteRecords persists a batch of records, preserving order.
	WriteRecords(ctx context.Context, records []*types.TraceRecord) error

	// Close releases any resources held by the sink.
	Close() error
}

// MultiSink fans every batch out to several sinks in order.
// A failing sink does not stop the others; errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink writing to all of sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept}
}

// WriteRecords writes the batch to every sink.
func (m *MultiSink) WriteRecords(ctx context.Context, records []*types.TraceRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.WriteRecords(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StubSink is a test sink that accepts writes without persisting.
type StubSink struct {
	mu sync.Mutex

	// RecordsWritten is the total count of records written.
	RecordsWritten int64
	// Batches is the number of WriteRecords calls that succeeded.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool
	// Written stores all written records for inspection.
	Written []*types.TraceRecord
	// ErrorOnWrite, if non-nil, is returned by WriteRecords.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{Written: make([]*types.TraceRecord, 0)}
}

// WriteRecords records the batch without persisting.
func (s *StubSink) WriteRecords(_ context.Context, records []*types.TraceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.Batches++
	s.RecordsWritten += int64(len(records))
	s.Written = append(s.Written, records...)
	return nil
}

// SetError sets or clears the write error.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	s.ErrorOnWrite = err
	s.mu.Unlock()
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Kinds returns the kinds of all written records, in write order.
func (s *StubSink) Kinds() []types.TraceKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]types.TraceKind, len(s.Written))
	for i, r := range s.Written {
		kinds[i] = r.Kind
	}
	return kinds
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StubSinkStats{
		RecordsWritten: s.RecordsWritten,
		Batches:        s.Batches,
		Closed:         s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	RecordsWritten int64
	Batches        int64
	Closed         bool
}
