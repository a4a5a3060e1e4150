package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/types"
)

// ExecutionReport is the structured JSON report written by --report.
type ExecutionReport struct {
	ExecutionID    string              `json:"execution_id"`
	Source         string              `json:"source,omitempty"`
	Outcome        types.OutcomeStatus `json:"outcome"`
	Message        string              `json:"message"`
	ExitCode       int                 `json:"exit_code"`
	DurationMs     int64               `json:"duration_ms"`
	EnvironmentURL string              `json:"environment_url,omitempty"`
	KernelID       string              `json:"kernel_id,omitempty"`
	RequestID      string              `json:"request_id,omitempty"`
	ExecutionCount int                 `json:"execution_count,omitempty"`
	Text           *string             `json:"text,omitempty"`
	Data           map[string]any      `json:"data,omitempty"`

	Trace   *ReportTrace      `json:"trace"`
	Metrics *metrics.Snapshot `json:"metrics"`

	ProxyUsed *types.ProxyEndpointRedacted `json:"proxy_used,omitempty"`
}

// ReportTrace holds trace recording stats in the report.
type ReportTrace struct {
	Policy           string           `json:"policy"`
	RecordsReceived  int64            `json:"records_received"`
	RecordsPersisted int64            `json:"records_persisted"`
	RecordsDropped   int64            `json:"records_dropped"`
	DroppedByKind    map[string]int64 `json:"dropped_by_kind,omitempty"`
	RecordFailures   int64            `json:"record_failures"`
}

// BuildExecutionReport composes a report from a Result and metrics snapshot.
// exitCode is the process exit code that will be returned to the caller.
func BuildExecutionReport(result *Result, snap metrics.Snapshot, policyName string, exitCode int) *ExecutionReport {
	report := &ExecutionReport{
		Outcome:        result.Outcome.Status,
		Message:        result.Outcome.Message,
		ExitCode:       exitCode,
		DurationMs:     result.Duration.Milliseconds(),
		EnvironmentURL: result.Environment.BaseURL,
		KernelID:       result.Kernel.ID,
		RequestID:      result.RequestID,
		ExecutionCount: result.ExecutionCount,
		Trace: &ReportTrace{
			Policy:           policyName,
			RecordsReceived:  result.PolicyStats.TotalRecords,
			RecordsPersisted: result.PolicyStats.RecordsPersisted,
			RecordsDropped:   result.PolicyStats.RecordsDropped,
			DroppedByKind:    result.PolicyStats.DroppedByKindStrings(),
			RecordFailures:   result.RecordFailures,
		},
		Metrics:   &snap,
		ProxyUsed: result.ProxyUsed,
	}
	if result.Meta != nil {
		report.ExecutionID = result.Meta.ExecutionID
		report.Source = result.Meta.Source
	}
	if result.HasText {
		text := result.Text
		report.Text = &text
	}
	if result.Data != nil {
		report.Data = map[string]any(result.Data)
	}
	return report
}

// WriteExecutionReport writes the report as JSON to path.
// If path is "-", writes to stderr.
func WriteExecutionReport(report *ExecutionReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeExecutionReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report %s: %w", path, err)
	}
	if err := writeExecutionReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeExecutionReportTo(report *ExecutionReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
