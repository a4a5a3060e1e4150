package policy_test

import (
	"testing"

	"github.com/pithecene-io/assay/policy"
	"github.com/pithecene-io/assay/types"
)

func TestNoopPolicy_Stats(t *testing.T) {
	pol := policy.NewNoopPolicy()

	records := []*types.TraceRecord{
		rec(types.TraceKindPhase, 1),
		rec(types.TraceKindMessage, 2),
		rec(types.TraceKindMessage, 3),
		rec(types.TraceKindParseError, 4),
		rec(types.TraceKindOutcome, 5),
	}
	for _, r := range records {
		if err := pol.Record(t.Context(), r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	stats := pol.Stats()
	if stats.TotalRecords != 5 {
		t.Errorf("TotalRecords = %d, want 5", stats.TotalRecords)
	}
	if stats.RecordsPersisted != 2 {
		t.Errorf("RecordsPersisted = %d, want 2", stats.RecordsPersisted)
	}
	if stats.RecordsDropped != 3 {
		t.Errorf("RecordsDropped = %d, want 3", stats.RecordsDropped)
	}
	if stats.DroppedByKind[types.TraceKindMessage] != 2 {
		t.Errorf("DroppedByKind[message] = %d, want 2", stats.DroppedByKind[types.TraceKindMessage])
	}

	strs := stats.DroppedByKindStrings()
	if strs["parse_error"] != 1 {
		t.Errorf("DroppedByKindStrings()[parse_error] = %d, want 1", strs["parse_error"])
	}
}

func TestNoopPolicy_FlushAndClose(t *testing.T) {
	pol := policy.NewNoopPolicy()
	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := pol.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pol.Stats().FlushCount != 1 {
		t.Errorf("FlushCount = %d, want 1", pol.Stats().FlushCount)
	}
}

func TestIsDroppable(t *testing.T) {
	tests := []struct {
		kind types.TraceKind
		want bool
	}{
		{types.TraceKindMessage, true},
		{types.TraceKindParseError, true},
		{types.TraceKindPhase, false},
		{types.TraceKindLaunch, false},
		{types.TraceKindOutcome, false},
		{types.TraceKindMetrics, false},
	}
	for _, tt := range tests {
		if got := policy.IsDroppable(tt.kind); got != tt.want {
			t.Errorf("IsDroppable(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
