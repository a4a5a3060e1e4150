package policy_test

import (
	"errors"
	"testing"

	"github.com/pithecene-io/assay/policy"
	"github.com/pithecene-io/assay/types"
)

func mustNewBufferedPolicy(t *testing.T, sink policy.Sink, config policy.BufferedConfig) *policy.BufferedPolicy {
	t.Helper()
	pol, err := policy.NewBufferedPolicy(sink, config)
	if err != nil {
		t.Fatalf("NewBufferedPolicy failed: %v", err)
	}
	return pol
}

func TestNewBufferedPolicy_InvalidConfig(t *testing.T) {
	_, err := policy.NewBufferedPolicy(policy.NewStubSink(), policy.BufferedConfig{})
	if !errors.Is(err, policy.ErrInvalidConfig) {
		t.Fatalf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestBufferedPolicy_BuffersUntilFlush(t *testing.T) {
	sink := policy.NewStubSink()
	pol := mustNewBufferedPolicy(t, sink, policy.BufferedConfig{MaxBufferRecords: 10})

	for i := int64(1); i <= 3; i++ {
		if err := pol.Record(t.Context(), rec(types.TraceKindPhase, i)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if sink.Stats().RecordsWritten != 0 {
		t.Errorf("expected no writes before flush, got %d", sink.Stats().RecordsWritten)
	}
	if got := pol.Stats().BufferedRecords; got != 3 {
		t.Errorf("BufferedRecords = %d, want 3", got)
	}

	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	sinkStats := sink.Stats()
	if sinkStats.RecordsWritten != 3 {
		t.Errorf("RecordsWritten = %d, want 3", sinkStats.RecordsWritten)
	}
	if sinkStats.Batches != 1 {
		t.Errorf("Batches = %d, want 1", sinkStats.Batches)
	}
	for i, r := range sink.Written {
		if r.Seq != int64(i+1) {
			t.Errorf("Written[%d].Seq = %d, want %d", i, r.Seq, i+1)
		}
	}
	if got := pol.Stats().RecordsPersisted; got != 3 {
		t.Errorf("RecordsPersisted = %d, want 3", got)
	}
}

func TestBufferedPolicy_FlushesWhenFull(t *testing.T) {
	sink := policy.NewStubSink()
	pol := mustNewBufferedPolicy(t, sink, policy.BufferedConfig{MaxBufferRecords: 2})

	for i := int64(1); i <= 3; i++ {
		if err := pol.Record(t.Context(), rec(types.TraceKindPhase, i)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	if got := sink.Stats().RecordsWritten; got != 2 {
		t.Errorf("RecordsWritten = %d, want 2 (auto flush on full)", got)
	}
	if got := pol.Stats().BufferedRecords; got != 1 {
		t.Errorf("BufferedRecords = %d, want 1", got)
	}
}

func TestBufferedPolicy_DropsDroppableWhenSinkFails(t *testing.T) {
	sink := policy.NewStubSink()
	sink.SetError(errors.New("unavailable"))
	pol := mustNewBufferedPolicy(t, sink, policy.BufferedConfig{MaxBufferRecords: 2})

	_ = pol.Record(t.Context(), rec(types.TraceKindPhase, 1))
	_ = pol.Record(t.Context(), rec(types.TraceKindMessage, 2))

	// Full and unflushable: incoming droppable is dropped.
	if err := pol.Record(t.Context(), rec(types.TraceKindMessage, 3)); err != nil {
		t.Fatalf("droppable Record: %v", err)
	}
	// Non-droppable evicts the buffered message.
	if err := pol.Record(t.Context(), rec(types.TraceKindOutcome, 4)); err != nil {
		t.Fatalf("non-droppable Record: %v", err)
	}

	stats := pol.Stats()
	if stats.RecordsDropped != 2 {
		t.Errorf("RecordsDropped = %d, want 2", stats.RecordsDropped)
	}
	if stats.DroppedByKind[types.TraceKindMessage] != 2 {
		t.Errorf("DroppedByKind[message] = %d, want 2", stats.DroppedByKind[types.TraceKindMessage])
	}

	// Now nothing droppable is left.
	err := pol.Record(t.Context(), rec(types.TraceKindMetrics, 5))
	if !errors.Is(err, policy.ErrBufferFull) {
		t.Fatalf("error = %v, want ErrBufferFull", err)
	}

	// Sink recovers: the buffered phase and outcome survive in order.
	sink.SetError(nil)
	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := sink.Kinds()
	want := []types.TraceKind{types.TraceKindPhase, types.TraceKindOutcome}
	if len(got) != len(want) {
		t.Fatalf("written kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("written[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBufferedPolicy_FlushFailurePreservesBuffer(t *testing.T) {
	sink := policy.NewStubSink()
	pol := mustNewBufferedPolicy(t, sink, policy.BufferedConfig{MaxBufferRecords: 10})

	_ = pol.Record(t.Context(), rec(types.TraceKindPhase, 1))
	sink.SetError(errors.New("timeout"))

	if err := pol.Flush(t.Context()); err == nil {
		t.Fatal("expected flush error")
	}
	if got := pol.Stats().BufferedRecords; got != 1 {
		t.Errorf("BufferedRecords = %d, want 1 after failed flush", got)
	}

	sink.SetError(nil)
	if err := pol.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.Stats().RecordsWritten != 1 {
		t.Errorf("Close should flush remaining records, wrote %d", sink.Stats().RecordsWritten)
	}
	if !sink.Stats().Closed {
		t.Error("sink not closed")
	}
}
