package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/runtime"
	"github.com/pithecene-io/assay/types"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	_, err := ParseFormat("csv")
	if err == nil || !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error should list valid formats, got: %v", err)
	}
}

func TestRenderer_JSONAndYAML(t *testing.T) {
	data := map[string]string{"outcome": "success"}

	var jsonBuf bytes.Buffer
	if err := NewRendererWithWriter(FormatJSON, false, &jsonBuf).Render(data); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(jsonBuf.String(), `"outcome": "success"`) {
		t.Errorf("unexpected json: %s", jsonBuf.String())
	}

	var yamlBuf bytes.Buffer
	if err := NewRendererWithWriter(FormatYAML, false, &yamlBuf).Render(data); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if strings.TrimSpace(yamlBuf.String()) != "outcome: success" {
		t.Errorf("unexpected yaml: %q", yamlBuf.String())
	}
}

func TestRenderer_TableStruct(t *testing.T) {
	type report struct {
		ExecutionID string  `json:"execution_id"`
		ExitCode    int     `json:"exit_code"`
		Text        *string `json:"text,omitempty"`
	}

	var buf bytes.Buffer
	text := "4"
	if err := NewRendererWithWriter(FormatTable, true, &buf).Render(&report{ExecutionID: "exec-1", ExitCode: 0, Text: &text}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"execution_id:", "exec-1", "exit_code:", "text:"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q: %s", want, got)
		}
	}
}

func TestRenderer_TableSlice(t *testing.T) {
	type item struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	var buf bytes.Buffer
	data := []item{{ID: "1", Status: "success"}, {ID: "2", Status: "timeout"}}
	if err := NewRendererWithWriter(FormatTable, true, &buf).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "id") || !strings.Contains(lines[0], "status") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[2], "timeout") {
		t.Errorf("unexpected row: %q", lines[2])
	}
}

func TestRenderer_TableMapSorted(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]int64{"zeta": 1, "alpha": 2}
	if err := NewRendererWithWriter(FormatTable, true, &buf).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()
	if strings.Index(got, "alpha") > strings.Index(got, "zeta") {
		t.Errorf("keys not sorted: %s", got)
	}
}

func TestRenderer_TableEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatTable, false, &buf).Render([]string{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("expected (no results), got: %s", buf.String())
	}
}

func TestRenderer_NoColorDoesNotAffectJSON(t *testing.T) {
	var a, b bytes.Buffer
	data := map[string]string{"key": "value"}
	if err := NewRendererWithWriter(FormatJSON, false, &a).Render(data); err != nil {
		t.Fatal(err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &b).Render(data); err != nil {
		t.Fatal(err)
	}
	if a.String() != b.String() {
		t.Error("--no-color should not affect JSON output")
	}
}

func TestRenderTUI_Unsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, false, &bytes.Buffer{})
	if err := r.RenderTUI("version", nil); err == nil {
		t.Error("expected error for unsupported view")
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	p.start = base
	p.now = func() time.Time { return base.Add(1500 * time.Millisecond) }

	p.Phase(types.PhaseEvent{Phase: types.PhaseWaiting})
	p.Phase(types.PhaseEvent{Phase: types.PhaseWaiting})
	p.Phase(types.PhaseEvent{Phase: types.PhaseBuilding, Message: "Step 1/3\nmore"})
	p.Phase(types.PhaseEvent{Phase: types.PhaseReady, URL: "https://hub.example.org/user/x/"})
	p.KernelLaunched(types.KernelHandle{ID: "k-1", Name: "python3"})
	p.KernelStatus(kernel.StateBusy)
	p.KernelStatus(kernel.StateBusy)
	p.KernelStatus(kernel.StateIdle)
	p.Outcome(&runtime.Result{
		Outcome: &types.Outcome{Status: types.OutcomeSuccess, Message: "execute result received"},
		Text:    "4",
		HasText: true,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("expected 8 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "1.5s") || !strings.Contains(lines[0], "waiting") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "Step 1/3") {
		t.Errorf("expected first message line only: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "https://hub.example.org/user/x/") {
		t.Errorf("ready line should carry url: %q", lines[2])
	}
	if !strings.Contains(lines[3], "launched k-1 (python3)") {
		t.Errorf("unexpected launch line: %q", lines[3])
	}
	if !strings.Contains(lines[6], "success execute result received") {
		t.Errorf("unexpected outcome line: %q", lines[6])
	}
	if lines[7] != "4" {
		t.Errorf("expected result text last, got %q", lines[7])
	}
}
