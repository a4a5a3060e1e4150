package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/policy"
	"github.com/pithecene-io/assay/types"
)

// Message directions recorded in trace records.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Recorder turns execution events into trace records and hands them to a
// policy. Sequence numbers are assigned in call order starting at 1.
//
// Recording is best effort: a policy error is logged and counted, never
// returned. Safe for concurrent use by the coordinator and the receive loop.
type Recorder struct {
	mu       sync.Mutex
	policy   policy.Policy
	meta     *types.ExecutionMeta
	logger   *log.Logger
	seq      int64
	failures int64
	now      func() time.Time
}

// NewRecorder creates a recorder. A nil policy records nothing.
func NewRecorder(pol policy.Policy, meta *types.ExecutionMeta, logger *log.Logger) *Recorder {
	if pol == nil {
		pol = policy.NewNoopPolicy()
	}
	return &Recorder{
		policy: pol,
		meta:   meta,
		logger: log.OrNop(logger),
		now:    time.Now,
	}
}

// Record stamps rec with identity, sequence and timestamp and records it.
func (r *Recorder) Record(ctx context.Context, rec *types.TraceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	rec.FormatVersion = types.TraceFormatVersion
	rec.ExecutionID = r.meta.ExecutionID
	rec.Seq = r.seq
	rec.Ts = r.now().UTC().Format(time.RFC3339Nano)

	if err := r.policy.Record(ctx, rec); err != nil {
		r.failures++
		r.logger.Warn("trace record not persisted", map[string]any{
			"kind":  string(rec.Kind),
			"seq":   rec.Seq,
			"error": err.Error(),
		})
	}
}

// RecordPhase records an accepted build phase event. The token is never recorded.
func (r *Recorder) RecordPhase(ctx context.Context, ev types.PhaseEvent) {
	payload := map[string]any{}
	if ev.Message != "" {
		payload["message"] = ev.Message
	}
	if ev.URL != "" {
		payload["url"] = ev.URL
	}
	if ev.Image != "" {
		payload["image"] = ev.Image
	}
	if ev.ImageName != "" {
		payload["image_name"] = ev.ImageName
	}
	r.Record(ctx, &types.TraceRecord{Kind: types.TraceKindPhase, Phase: ev.Phase, Payload: payload})
}

// RecordParseError records a build stream line that failed to decode.
func (r *Recorder) RecordParseError(ctx context.Context, pe *build.ParseError) {
	r.Record(ctx, &types.TraceRecord{
		Kind: types.TraceKindParseError,
		Payload: map[string]any{
			"line_no": int64(pe.LineNo),
			"line":    pe.Line,
			"error":   pe.Err.Error(),
		},
	})
}

// RecordLaunch records a launched kernel.
func (r *Recorder) RecordLaunch(ctx context.Context, env types.EnvironmentHandle, k types.KernelHandle) {
	r.Record(ctx, &types.TraceRecord{
		Kind: types.TraceKindLaunch,
		Payload: map[string]any{
			"base_url":    env.BaseURL,
			"kernel_id":   k.ID,
			"kernel_name": k.Name,
		},
	})
}

// RecordMessage records a session message in the given direction.
func (r *Recorder) RecordMessage(ctx context.Context, direction string, m *kernel.Message) {
	payload := map[string]any{"msg_id": m.Header.MsgID}
	if parent := m.ParentMsgID(); parent != "" {
		payload["parent_msg_id"] = parent
	}
	if m.Channel != "" {
		payload["channel"] = m.Channel
	}
	for k, v := range contentSummary(m.Content) {
		payload[k] = v
	}
	r.Record(ctx, &types.TraceRecord{
		Kind:      types.TraceKindMessage,
		MsgType:   m.Header.MsgType,
		Direction: direction,
		Payload:   payload,
	})
}

// RecordMetrics records a metrics snapshot.
func (r *Recorder) RecordMetrics(ctx context.Context, snapshot map[string]any) {
	r.Record(ctx, &types.TraceRecord{Kind: types.TraceKindMetrics, Payload: snapshot})
}

// RecordOutcome records the final outcome. Must be the last record.
func (r *Recorder) RecordOutcome(ctx context.Context, outcome *types.Outcome, extra map[string]any) {
	payload := map[string]any{
		"status":  string(outcome.Status),
		"message": outcome.Message,
	}
	for k, v := range extra {
		payload[k] = v
	}
	r.Record(ctx, &types.TraceRecord{Kind: types.TraceKindOutcome, Payload: payload})
}

// Seq returns the last assigned sequence number.
func (r *Recorder) Seq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Failures returns the number of records the policy rejected.
func (r *Recorder) Failures() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func contentSummary(c kernel.Content) map[string]any {
	switch c := c.(type) {
	case *kernel.ExecuteRequest:
		return map[string]any{"code": c.Code}
	case *kernel.ExecuteResult:
		return map[string]any{
			"execution_count": int64(c.ExecutionCount),
			"data":            map[string]any(c.Data),
		}
	case *kernel.Status:
		return map[string]any{"execution_state": string(c.ExecutionState)}
	case *kernel.Stream:
		return map[string]any{"name": c.Name, "text": c.Text}
	case *kernel.ErrorContent:
		return map[string]any{"ename": c.EName, "evalue": c.EValue}
	case *kernel.ExecuteReply:
		return map[string]any{"status": c.Status, "execution_count": int64(c.ExecutionCount)}
	default:
		return nil
	}
}
