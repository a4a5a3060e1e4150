// Package runtime drives one execution end to end: wait for the
// environment, launch a kernel, run one snippet, observe its result.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/policy"
	"github.com/pithecene-io/assay/transport"
	"github.com/pithecene-io/assay/types"
)

// DefaultTimeout bounds the wait for the execute result.
const DefaultTimeout = 30 * time.Second

// flushTimeout bounds the final policy flush.
const flushTimeout = 30 * time.Second

// Reporter receives progress notifications. Phase and KernelLaunched are
// called from the coordinating goroutine, KernelStatus from the receive loop.
type Reporter interface {
	Phase(ev types.PhaseEvent)
	KernelLaunched(k types.KernelHandle)
	KernelStatus(state kernel.ExecutionState)
}

type nopReporter struct{}

func (nopReporter) Phase(types.PhaseEvent)             {}
func (nopReporter) KernelLaunched(types.KernelHandle)  {}
func (nopReporter) KernelStatus(kernel.ExecutionState) {}

// Config configures a single execution.
type Config struct {
	// Meta is the execution identity.
	Meta *types.ExecutionMeta
	// Build addresses the environment to provision.
	Build build.Request
	// Code is the snippet to execute.
	Code string
	// KernelName is the kernel type. Empty uses kernel.DefaultKernelName.
	KernelName string
	// Timeout bounds the wait for the result. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Client issues the build GET and the kernel launch POST. Required.
	Client transport.Doer
	// Dialer opens the kernel channel. Required.
	Dialer kernel.Dialer
	// Header carries extra channel handshake headers. May be nil.
	Header http.Header
	// Proxy is the endpoint installed in Client and Dialer, reported redacted.
	Proxy *types.ProxyEndpoint
	// Policy records the execution trace. Nil records nothing.
	Policy policy.Policy
	// Reporter receives progress. May be nil.
	Reporter Reporter
	// Logger overrides the default execution logger.
	Logger *log.Logger
	// Collector is the metrics collector for this execution. May be nil.
	Collector *metrics.Collector
}

// Result is the result of an execution.
type Result struct {
	// Meta is the execution identity.
	Meta *types.ExecutionMeta
	// Outcome is the final classification. Always set.
	Outcome *types.Outcome
	// Environment is the provisioned environment, zero if the build did not finish.
	Environment types.EnvironmentHandle
	// Kernel is the launched kernel, zero if launch did not happen.
	Kernel types.KernelHandle
	// RequestID is the msg_id of the execute request.
	RequestID string
	// Data is the execute_result MIME bundle.
	Data kernel.MimeBundle
	// Text is the text/plain representation, if HasText.
	Text    string
	HasText bool
	// ExecutionCount is the kernel's execution counter for the result.
	ExecutionCount int
	// MessagesReceived counts decoded inbound session messages.
	MessagesReceived int64
	// Duration is the total execution duration.
	Duration time.Duration
	// PolicyStats is the trace policy statistics.
	PolicyStats policy.Stats
	// RecordFailures counts trace records the policy rejected.
	RecordFailures int64
	// ProxyUsed is the proxy endpoint used (redacted). Nil without a proxy.
	ProxyUsed *types.ProxyEndpointRedacted
}

// Coordinator drives a single execution.
type Coordinator struct {
	config   *Config
	logger   *log.Logger
	recorder *Recorder
	reporter Reporter
	timeout  time.Duration
	start    time.Time
}

// NewCoordinator creates a coordinator. Returns an error if the
// configuration cannot produce an execution.
func NewCoordinator(config *Config) (*Coordinator, error) {
	if config.Meta == nil {
		return nil, errors.New("execution metadata is required")
	}
	if err := config.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution metadata: %w", err)
	}
	if err := config.Build.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build request: %w", err)
	}
	if config.Client == nil {
		return nil, errors.New("transport client is required")
	}
	if config.Dialer == nil {
		return nil, errors.New("channel dialer is required")
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.Meta)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var reporter Reporter = nopReporter{}
	if config.Reporter != nil {
		reporter = config.Reporter
	}

	return &Coordinator{
		config:   config,
		logger:   logger,
		recorder: NewRecorder(config.Policy, config.Meta, logger),
		reporter: reporter,
		timeout:  timeout,
	}, nil
}

// Execute runs the execution end to end.
//
// Execution flow:
//  1. Watch the build stream until ready, failed, or exhausted
//  2. Launch the kernel
//  3. Open the kernel channel
//  4. Start the receive loop
//  5. Send the execute request
//  6. Wait for the result or the deadline
//  7. Close the channel, record the outcome, flush the trace
//
// The returned Result is never nil and always carries an Outcome. The error
// is nil on success; otherwise it is the cause, classified by ClassifyError.
func (c *Coordinator) Execute(ctx context.Context) (*Result, error) {
	c.start = time.Now()
	c.config.Collector.IncExecutionStarted()

	kernelName := c.config.KernelName
	if kernelName == "" {
		kernelName = kernel.DefaultKernelName
	}

	c.logger.Info("starting execution", map[string]any{
		"build":   c.config.Build.Source(),
		"kernel":  kernelName,
		"timeout": c.timeout.String(),
	})

	result := &Result{Meta: c.config.Meta}
	err := c.execute(ctx, kernelName, result)
	c.finish(ctx, result, err)
	return result, err
}

func (c *Coordinator) execute(ctx context.Context, kernelName string, result *Result) error {
	watcher := &build.Watcher{
		Client:    c.config.Client,
		Logger:    c.logger,
		Collector: c.config.Collector,
		Observer:  &buildObserver{ctx: ctx, recorder: c.recorder, reporter: c.reporter},
	}
	env, err := watcher.Watch(ctx, c.config.Build)
	if err != nil {
		return err
	}
	result.Environment = env

	launcher := kernel.NewLauncher(c.config.Client, c.logger, c.config.Collector)
	k, err := launcher.Launch(ctx, env, kernelName)
	if err != nil {
		return err
	}
	result.Kernel = k
	c.recorder.RecordLaunch(ctx, env, k)
	c.reporter.KernelLaunched(k)

	sessionID := kernel.NewSessionID()
	connector := kernel.NewConnector(c.config.Dialer, c.config.Header, c.logger, c.config.Collector)
	sender, receiver, err := connector.Connect(ctx, env, k, sessionID)
	if err != nil {
		return err
	}

	return c.converse(ctx, sender, receiver, sessionID, result)
}

// converse sends the execute request and waits for its result. The channel
// is closed and the receive loop joined before it returns, on every path.
func (c *Coordinator) converse(ctx context.Context, sender *kernel.Sender, receiver *kernel.Receiver, sessionID string, result *Result) error {
	req := kernel.NewExecuteRequest(sessionID, c.config.Code)
	result.RequestID = req.Header.MsgID

	loop := &receiveLoop{
		receiver:  receiver,
		requestID: req.Header.MsgID,
		logger:    c.logger,
		collector: c.config.Collector,
		recorder:  c.recorder,
		reporter:  c.reporter,
	}

	// The loop is running before the request goes out.
	done := make(chan loopOutcome, 1)
	go func() {
		done <- loop.run(ctx)
	}()

	var out loopOutcome
	joined := false
	defer func() {
		if err := sender.Close(); err != nil {
			c.logger.Debug("kernel channel close", map[string]any{"error": err.Error()})
		}
		if !joined {
			out = <-done
		}
		result.MessagesReceived = out.received
	}()

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.recorder.RecordMessage(ctx, DirectionSent, req)
	if err := sender.Send(waitCtx, req); err != nil {
		if ctx.Err() == nil && waitCtx.Err() != nil {
			return ErrTimeout
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("send execute request: %w", err)
	}

	c.logger.Info("execute request sent", map[string]any{
		"msg_id": req.Header.MsgID,
	})

	select {
	case out = <-done:
		joined = true
	case <-waitCtx.Done():
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("execute result deadline elapsed", map[string]any{
			"timeout": c.timeout.String(),
		})
		return ErrTimeout
	}

	if out.result == nil {
		if out.err != nil {
			return fmt.Errorf("%w: %w", ErrNoResult, out.err)
		}
		return ErrNoResult
	}

	result.Data = out.result.Data
	result.ExecutionCount = out.result.ExecutionCount
	result.Text, result.HasText = out.result.Data.PlainText()
	return nil
}

// finish classifies the outcome, records it, and flushes the trace.
func (c *Coordinator) finish(ctx context.Context, result *Result, err error) {
	outcome := OutcomeFor(err)
	result.Outcome = outcome

	switch outcome.Status {
	case types.OutcomeSuccess:
		c.config.Collector.IncExecutionSucceeded()
	case types.OutcomeTimeout:
		c.config.Collector.IncExecutionTimedOut()
	default:
		c.config.Collector.IncExecutionFailed()
	}

	if c.config.Proxy != nil {
		redacted := c.config.Proxy.Redact()
		result.ProxyUsed = &redacted
	}

	// Recording continues past caller cancellation so the trace ends with
	// its outcome.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	if c.config.Collector != nil {
		c.recorder.RecordMetrics(recordCtx, c.config.Collector.Snapshot().Map())
	}

	extra := map[string]any{
		"duration_ms": time.Since(c.start).Milliseconds(),
	}
	if result.Kernel.ID != "" {
		extra["kernel_id"] = result.Kernel.ID
	}
	if result.HasText {
		extra["text"] = result.Text
	}
	c.recorder.RecordOutcome(recordCtx, outcome, extra)

	if c.config.Policy != nil {
		if flushErr := c.config.Policy.Flush(recordCtx); flushErr != nil {
			c.logger.Warn("trace flush failed (best effort)", map[string]any{
				"error": flushErr.Error(),
			})
		}
		result.PolicyStats = c.config.Policy.Stats()
		ps := result.PolicyStats
		c.config.Collector.AbsorbPolicyStats(ps.TotalRecords, ps.RecordsPersisted, ps.RecordsDropped, ps.DroppedByKindStrings())
	}
	result.RecordFailures = c.recorder.Failures()
	result.Duration = time.Since(c.start)

	fields := map[string]any{
		"outcome":  string(outcome.Status),
		"duration": result.Duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Error("execution failed", fields)
		return
	}
	fields["execution_count"] = result.ExecutionCount
	c.logger.Info("execution completed", fields)
}

// buildObserver forwards build stream events to the recorder and reporter.
type buildObserver struct {
	ctx      context.Context
	recorder *Recorder
	reporter Reporter
}

func (o *buildObserver) ObservePhase(ev types.PhaseEvent) {
	o.recorder.RecordPhase(o.ctx, ev)
	o.reporter.Phase(ev)
}

func (o *buildObserver) ObserveParseError(pe *build.ParseError) {
	o.recorder.RecordParseError(o.ctx, pe)
}
