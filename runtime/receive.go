package runtime

import (
	"context"
	"errors"

	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
)

// loopOutcome is the terminal disposition of a receive loop.
// Exactly one of result or err is set, or neither when the channel
// closed without a result.
type loopOutcome struct {
	result   *kernel.ExecuteResult
	message  *kernel.Message
	err      error
	received int64
}

// receiveLoop watches inbound session messages for the result of one request.
//   - execute_result parented on the request (or unparented) ends the loop
//   - status is reported and otherwise ignored
//   - every other kind is logged and ignored
//   - undecodable frames are skipped
//   - a read error ends the loop without a result
type receiveLoop struct {
	receiver  *kernel.Receiver
	requestID string
	logger    *log.Logger
	collector *metrics.Collector
	recorder  *Recorder
	reporter  Reporter
}

func (l *receiveLoop) run(ctx context.Context) loopOutcome {
	var out loopOutcome
	for m, err := range l.receiver.All() {
		if err != nil {
			var de *kernel.DecodeError
			if errors.As(err, &de) {
				l.logger.Warn("skipping undecodable session message", map[string]any{
					"msg_type": de.MsgType,
					"error":    de.Err.Error(),
				})
				continue
			}
			out.err = err
			return out
		}

		out.received++
		l.recorder.RecordMessage(ctx, DirectionReceived, m)

		switch c := m.Content.(type) {
		case *kernel.ExecuteResult:
			if parent := m.ParentMsgID(); parent != "" && parent != l.requestID {
				l.collector.IncMessageIgnored()
				l.logger.Debug("ignoring result for another request", map[string]any{
					"parent_msg_id": parent,
				})
				continue
			}
			out.result = c
			out.message = m
			return out

		case *kernel.Status:
			l.logger.Debug("kernel status", map[string]any{
				"execution_state": string(c.ExecutionState),
			})
			l.reporter.KernelStatus(c.ExecutionState)

		case *kernel.ErrorContent:
			l.collector.IncMessageIgnored()
			l.logger.Warn("ignoring kernel error", map[string]any{
				"ename":  c.EName,
				"evalue": c.EValue,
			})

		case *kernel.ExecuteReply:
			l.collector.IncMessageIgnored()
			fields := map[string]any{"status": c.Status, "execution_count": c.ExecutionCount}
			if c.Status == "error" {
				fields["ename"] = c.EName
				fields["evalue"] = c.EValue
				l.logger.Warn("ignoring execute reply", fields)
			} else {
				l.logger.Debug("ignoring execute reply", fields)
			}

		default:
			l.collector.IncMessageIgnored()
			l.logger.Debug("ignoring session message", map[string]any{
				"msg_type": m.Header.MsgType,
			})
		}
	}
	return out
}
