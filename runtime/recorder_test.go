package runtime

import (
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/policy"
	"github.com/pithecene-io/assay/types"
)

func newTestRecorder(sink policy.Sink) *Recorder {
	r := NewRecorder(policy.NewStrictPolicy(sink), &types.ExecutionMeta{ExecutionID: "exec-7"}, log.NewNop())
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func TestRecorder_StampsRecords(t *testing.T) {
	sink := policy.NewStubSink()
	r := newTestRecorder(sink)
	ctx := t.Context()

	r.RecordPhase(ctx, types.PhaseEvent{Phase: types.PhaseReady, URL: "https://env.example/x", Token: "abc"})
	r.RecordParseError(ctx, &build.ParseError{Line: "nope", LineNo: 3, Err: errors.New("invalid character")})
	r.RecordMessage(ctx, DirectionSent, kernel.NewExecuteRequest("s", "2 + 2"))
	r.RecordOutcome(ctx, &types.Outcome{Status: types.OutcomeSuccess, Message: "ok"}, map[string]any{"text": "4"})

	if r.Seq() != 4 || len(sink.Written) != 4 {
		t.Fatalf("seq=%d written=%d, want 4", r.Seq(), len(sink.Written))
	}
	for i, rec := range sink.Written {
		if rec.Seq != int64(i+1) {
			t.Errorf("record %d seq = %d", i, rec.Seq)
		}
		if rec.ExecutionID != "exec-7" || rec.FormatVersion != types.TraceFormatVersion {
			t.Errorf("record %d identity = %q/%q", i, rec.ExecutionID, rec.FormatVersion)
		}
		if rec.Ts != "2026-03-01T12:00:00Z" {
			t.Errorf("record %d ts = %q", i, rec.Ts)
		}
	}

	phase := sink.Written[0]
	if phase.Phase != types.PhaseReady || phase.Payload["url"] != "https://env.example/x" {
		t.Errorf("phase record = %+v", phase)
	}
	for k, v := range phase.Payload {
		if v == "abc" {
			t.Errorf("payload %q leaks the token", k)
		}
	}

	msg := sink.Written[2]
	if msg.MsgType != kernel.MsgTypeExecuteRequest || msg.Direction != DirectionSent || msg.Payload["code"] != "2 + 2" {
		t.Errorf("message record = %+v", msg)
	}

	outcome := sink.Written[3]
	if !outcome.IsTerminal() || outcome.Payload["status"] != "success" || outcome.Payload["text"] != "4" {
		t.Errorf("outcome record = %+v", outcome)
	}
}

func TestRecorder_FailuresAreNotFatal(t *testing.T) {
	sink := policy.NewStubSink()
	sink.SetError(errors.New("disk full"))
	r := newTestRecorder(sink)

	r.RecordPhase(t.Context(), types.PhaseEvent{Phase: types.PhaseBuilding})
	r.RecordMetrics(t.Context(), map[string]any{"phase_events": int64(1)})

	if r.Failures() != 2 {
		t.Errorf("Failures = %d, want 2", r.Failures())
	}
	if r.Seq() != 2 {
		t.Errorf("Seq = %d, want 2", r.Seq())
	}
}

func TestRecorder_NilPolicy(t *testing.T) {
	r := NewRecorder(nil, &types.ExecutionMeta{ExecutionID: "e"}, nil)
	r.RecordLaunch(t.Context(), types.EnvironmentHandle{BaseURL: "https://x"}, types.KernelHandle{ID: "k"})
	if r.Seq() != 1 || r.Failures() != 0 {
		t.Errorf("seq=%d failures=%d", r.Seq(), r.Failures())
	}
}
