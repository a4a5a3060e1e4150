package trace

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/assay/types"
)

// maxSummaryText bounds free text copied into a summary line.
const maxSummaryText = 60

// RecordRow is the flattened view of a trace record used by table output.
type RecordRow struct {
	Seq     int64  `json:"seq" yaml:"seq"`
	Ts      string `json:"ts" yaml:"ts"`
	Kind    string `json:"kind" yaml:"kind"`
	Summary string `json:"summary" yaml:"summary"`
}

// Rows flattens records for tabular rendering.
func Rows(records []*types.TraceRecord) []RecordRow {
	rows := make([]RecordRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RecordRow{
			Seq:     rec.Seq,
			Ts:      rec.Ts,
			Kind:    string(rec.Kind),
			Summary: Summary(rec),
		})
	}
	return rows
}

// Summary renders a one-line description of a record.
func Summary(rec *types.TraceRecord) string {
	p := rec.Payload
	switch rec.Kind {
	case types.TraceKindPhase:
		if msg := payloadString(p, "message"); msg != "" {
			return fmt.Sprintf("%s: %s", rec.Phase, clip(msg))
		}
		return string(rec.Phase)
	case types.TraceKindParseError:
		return fmt.Sprintf("line %v: %s", p["line_no"], clip(payloadString(p, "error")))
	case types.TraceKindLaunch:
		return fmt.Sprintf("kernel %s (%s)", payloadString(p, "kernel_id"), payloadString(p, "kernel_name"))
	case types.TraceKindMessage:
		arrow := "<-"
		if rec.Direction == "sent" {
			arrow = "->"
		}
		detail := messageDetail(rec.MsgType, p)
		if detail == "" {
			return fmt.Sprintf("%s %s", arrow, rec.MsgType)
		}
		return fmt.Sprintf("%s %s %s", arrow, rec.MsgType, detail)
	case types.TraceKindMetrics:
		return fmt.Sprintf("%d values", len(p))
	case types.TraceKindOutcome:
		if msg := payloadString(p, "message"); msg != "" {
			return fmt.Sprintf("%s: %s", payloadString(p, "status"), clip(msg))
		}
		return payloadString(p, "status")
	default:
		return ""
	}
}

func messageDetail(msgType string, p map[string]any) string {
	switch msgType {
	case "execute_request":
		return clip(payloadString(p, "code"))
	case "status":
		return payloadString(p, "execution_state")
	case "stream":
		return payloadString(p, "name") + ": " + clip(payloadString(p, "text"))
	case "error":
		return payloadString(p, "ename") + ": " + clip(payloadString(p, "evalue"))
	case "execute_reply":
		return payloadString(p, "status")
	case "execute_result":
		data, _ := p["data"].(map[string]any)
		if text, ok := data["text/plain"].(string); ok {
			return clip(text)
		}
		return fmt.Sprintf("[%d mime types]", len(data))
	default:
		return ""
	}
}

func payloadString(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// clip flattens newlines and truncates to maxSummaryText runes.
func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxSummaryText {
		return s
	}
	return string(r[:maxSummaryText-1]) + "…"
}
