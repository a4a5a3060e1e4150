package types

// TraceKind discriminates trace records.
type TraceKind string

// Trace record kinds.
const (
	// TraceKindPhase records an accepted build phase event.
	TraceKindPhase TraceKind = "phase"
	// TraceKindParseError records a build stream line that failed to decode.
	TraceKindParseError TraceKind = "parse_error"
	// TraceKindLaunch records a launched kernel.
	TraceKindLaunch TraceKind = "launch"
	// TraceKindMessage records a session message sent or received on the kernel channel.
	TraceKindMessage TraceKind = "message"
	// TraceKindOutcome records the final outcome. Always the last record of an execution.
	TraceKindOutcome TraceKind = "outcome"
	// TraceKindMetrics records the metrics snapshot taken at completion.
	TraceKindMetrics TraceKind = "metrics"
)

// TraceRecord is one entry in an execution trace.
// Field tags serve both the msgpack trace file and JSON storage records.
type TraceRecord struct {
	// FormatVersion is TraceFormatVersion at write time.
	FormatVersion string `msgpack:"format_version" json:"format_version"`
	// ExecutionID is the owning execution.
	ExecutionID string `msgpack:"execution_id" json:"execution_id"`
	// Seq is monotonic within an execution, starting at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Kind is the record discriminator.
	Kind TraceKind `msgpack:"kind" json:"kind"`
	// Ts is the record timestamp in RFC 3339 UTC.
	Ts string `msgpack:"ts" json:"ts"`
	// Phase is set for phase records.
	Phase Phase `msgpack:"phase,omitempty" json:"phase,omitempty"`
	// MsgType is the session message type for message records.
	MsgType string `msgpack:"msg_type,omitempty" json:"msg_type,omitempty"`
	// Direction is "sent" or "received" for message records.
	Direction string `msgpack:"direction,omitempty" json:"direction,omitempty"`
	// Payload is the kind-specific payload.
	Payload map[string]any `msgpack:"payload,omitempty" json:"payload,omitempty"`
}

// IsTerminal returns true for the outcome record.
func (r *TraceRecord) IsTerminal() bool {
	return r.Kind == TraceKindOutcome
}
