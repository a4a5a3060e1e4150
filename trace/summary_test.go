package trace

import (
	"strings"
	"testing"

	"github.com/pithecene-io/assay/types"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		rec  *types.TraceRecord
		want string
	}{
		{
			name: "phase with message",
			rec: &types.TraceRecord{Kind: types.TraceKindPhase, Phase: types.PhaseBuilding,
				Payload: map[string]any{"message": "Step 1/4\n"}},
			want: "building: Step 1/4",
		},
		{
			name: "phase without message",
			rec:  &types.TraceRecord{Kind: types.TraceKindPhase, Phase: types.PhaseReady},
			want: "ready",
		},
		{
			name: "parse error",
			rec: &types.TraceRecord{Kind: types.TraceKindParseError,
				Payload: map[string]any{"line_no": int64(3), "error": "record has no phase"}},
			want: "line 3: record has no phase",
		},
		{
			name: "launch",
			rec: &types.TraceRecord{Kind: types.TraceKindLaunch,
				Payload: map[string]any{"kernel_id": "k-1", "kernel_name": "python3"}},
			want: "kernel k-1 (python3)",
		},
		{
			name: "sent request",
			rec: &types.TraceRecord{Kind: types.TraceKindMessage, MsgType: "execute_request", Direction: "sent",
				Payload: map[string]any{"code": "2 + 2"}},
			want: "-> execute_request 2 + 2",
		},
		{
			name: "received status",
			rec: &types.TraceRecord{Kind: types.TraceKindMessage, MsgType: "status", Direction: "received",
				Payload: map[string]any{"execution_state": "busy"}},
			want: "<- status busy",
		},
		{
			name: "received result",
			rec: &types.TraceRecord{Kind: types.TraceKindMessage, MsgType: "execute_result", Direction: "received",
				Payload: map[string]any{"data": map[string]any{"text/plain": "4"}}},
			want: "<- execute_result 4",
		},
		{
			name: "unknown message",
			rec:  &types.TraceRecord{Kind: types.TraceKindMessage, MsgType: "comm_open", Direction: "received"},
			want: "<- comm_open",
		},
		{
			name: "outcome",
			rec: &types.TraceRecord{Kind: types.TraceKindOutcome,
				Payload: map[string]any{"status": "success", "message": "execute result received"}},
			want: "success: execute result received",
		},
		{
			name: "metrics",
			rec: &types.TraceRecord{Kind: types.TraceKindMetrics,
				Payload: map[string]any{"a": int64(1), "b": int64(2)}},
			want: "2 values",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(tt.rec); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummary_ClipsLongText(t *testing.T) {
	rec := &types.TraceRecord{Kind: types.TraceKindPhase, Phase: types.PhaseBuilding,
		Payload: map[string]any{"message": strings.Repeat("x", 200)}}
	got := Summary(rec)
	if n := len([]rune(got)); n != len("building: ")+maxSummaryText {
		t.Errorf("unexpected summary length %d", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
}

func TestRows(t *testing.T) {
	rows := Rows([]*types.TraceRecord{
		{Seq: 1, Ts: "2026-10-18T00:00:00Z", Kind: types.TraceKindPhase, Phase: types.PhaseWaiting},
		{Seq: 2, Ts: "2026-10-18T00:00:01Z", Kind: types.TraceKindOutcome, Payload: map[string]any{"status": "timeout"}},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1].Kind != "outcome" || rows[1].Summary != "timeout" {
		t.Errorf("unexpected row: %+v", rows[1])
	}
}
