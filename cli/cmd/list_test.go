package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pithecene-io/assay/lode"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/types"
)

// seedStore writes one execution's metrics and outcome records under root.
func seedStore(t *testing.T, root, executionID, day string, status types.OutcomeStatus) {
	t.Helper()
	client, err := lode.NewLodeClient(lode.Config{
		Dataset:     lode.DefaultDataset,
		Source:      lode.PartitionSource("gh/owner/repo/HEAD"),
		Day:         day,
		ExecutionID: executionID,
	}, root)
	if err != nil {
		t.Fatalf("NewLodeClient: %v", err)
	}
	records := []*types.TraceRecord{
		{FormatVersion: types.TraceFormatVersion, ExecutionID: executionID, Seq: 1, Kind: types.TraceKindMetrics,
			Ts: day + "T10:00:00Z", Payload: metrics.Snapshot{ExecutionsStarted: 1, KernelName: "python"}.Map()},
		{FormatVersion: types.TraceFormatVersion, ExecutionID: executionID, Seq: 2, Kind: types.TraceKindOutcome,
			Ts: day + "T10:00:01Z", Payload: map[string]any{"status": string(status), "message": "done", "duration_ms": int64(900)}},
	}
	if err := lode.NewSink(client).WriteRecords(t.Context(), records); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}
}

func TestListOutcomes(t *testing.T) {
	root := t.TempDir()
	seedStore(t, root, "exec-a", "2026-03-01", types.OutcomeSuccess)
	seedStore(t, root, "exec-b", "2026-03-02", types.OutcomeTimeout)

	out, err := runApp(t, "list", "outcomes", "--format", "json", "--storage-path", root)
	if err != nil {
		t.Fatalf("list outcomes: %v", err)
	}
	var got []lode.OutcomeSummary
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got) != 2 || got[0].ExecutionID != "exec-b" || got[0].Status != types.OutcomeTimeout {
		t.Fatalf("outcomes = %+v", got)
	}

	out, err = runApp(t, "list", "outcomes", "--format", "json", "--storage-path", root,
		"--source", "gh/owner/repo/HEAD", "--day", "2026-03-01")
	if err != nil {
		t.Fatalf("filtered: %v", err)
	}
	got = nil
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got) != 1 || got[0].ExecutionID != "exec-a" || got[0].DurationMs != 900 {
		t.Errorf("filtered outcomes = %+v", got)
	}

	out, err = runApp(t, "list", "outcomes", "--format", "json", "--storage-path", root, "--limit", "1")
	if err != nil {
		t.Fatalf("limited: %v", err)
	}
	got = nil
	if err := json.Unmarshal([]byte(out), &got); err != nil || len(got) != 1 {
		t.Errorf("limit 1 returned %q (%v)", out, err)
	}
}

func TestListOutcomes_RequiresStoragePath(t *testing.T) {
	_, err := runApp(t, "list", "outcomes", "--format", "json")
	if exitCode(err) != 1 || !strings.Contains(err.Error(), "--storage-path") {
		t.Errorf("err = %v", err)
	}
}

func TestListMetrics(t *testing.T) {
	root := t.TempDir()
	seedStore(t, root, "exec-a", "2026-03-01", types.OutcomeSuccess)

	out, err := runApp(t, "list", "metrics", "--format", "json", "--storage-path", root, "--execution-id", "exec-a")
	if err != nil {
		t.Fatalf("list metrics: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["kernel_name"] != "python" || got["executions_started"] != float64(1) {
		t.Errorf("metrics = %v", got)
	}

	_, err = runApp(t, "list", "metrics", "--format", "json", "--storage-path", root, "--execution-id", "missing")
	if exitCode(err) != 1 {
		t.Errorf("missing execution: err = %v", err)
	}

	_, err = runApp(t, "list", "metrics", "--storage-path", root, "--tui")
	if exitCode(err) != 1 {
		t.Errorf("--tui: err = %v", err)
	}
}
