// Package metrics provides per-execution metrics collection.
//
// The Collector accumulates counters during a single execution. It is a leaf
// package with no internal dependencies. Trace recording counters are absorbed
// from policy.Stats at completion rather than recorded live.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
type Snapshot struct {
	// Build watch
	BuildsStarted int64
	PhaseEvents   int64
	ParseErrors   int64
	BuildFailures int64
	BuildNotReady int64

	// Kernel
	KernelLaunchSuccess int64
	KernelLaunchFailure int64
	ChannelsOpened      int64
	MessagesSent        int64
	MessagesReceived    int64
	MessagesIgnored     int64
	MessageDecodeErrors int64

	// Execution lifecycle
	ExecutionsStarted   int64
	ExecutionsSucceeded int64
	ExecutionsFailed    int64
	ExecutionsTimedOut  int64

	// Trace recording (absorbed from policy.Stats at completion)
	RecordsReceived  int64
	RecordsPersisted int64
	RecordsDropped   int64
	DroppedByKind    map[string]int64

	// Lode / Storage
	LodeWriteSuccess int64
	LodeWriteFailure int64

	// Dimensions (informational, set at construction)
	Policy         string
	StorageBackend string
	KernelName     string
	ExecutionID    string
}

// Collector accumulates metrics during a single execution.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	buildsStarted int64
	phaseEvents   int64
	parseErrors   int64
	buildFailures int64
	buildNotReady int64

	kernelLaunchSuccess int64
	kernelLaunchFailure int64
	channelsOpened      int64
	messagesSent        int64
	messagesReceived    int64
	messagesIgnored     int64
	messageDecodeErrors int64

	executionsStarted   int64
	executionsSucceeded int64
	executionsFailed    int64
	executionsTimedOut  int64

	recordsReceived  int64
	recordsPersisted int64
	recordsDropped   int64
	droppedByKind    map[string]int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	policy         string
	storageBackend string
	kernelName     string
	executionID    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, storageBackend, kernelName, executionID string) *Collector {
	return &Collector{
		droppedByKind:  make(map[string]int64),
		policy:         policy,
		storageBackend: storageBackend,
		kernelName:     kernelName,
		executionID:    executionID,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Build watch ---

// IncBuildStarted records the start of a build watch.
func (c *Collector) IncBuildStarted() {
	if c == nil {
		return
	}
	c.inc(&c.buildsStarted)
}

// IncPhaseEvent records an accepted phase event.
func (c *Collector) IncPhaseEvent() {
	if c == nil {
		return
	}
	c.inc(&c.phaseEvents)
}

// IncParseError records a build stream line that failed to decode.
func (c *Collector) IncParseError() {
	if c == nil {
		return
	}
	c.inc(&c.parseErrors)
}

// IncBuildFailure records a failed phase.
func (c *Collector) IncBuildFailure() {
	if c == nil {
		return
	}
	c.inc(&c.buildFailures)
}

// IncBuildNotReady records a build stream that ended without a terminal phase.
func (c *Collector) IncBuildNotReady() {
	if c == nil {
		return
	}
	c.inc(&c.buildNotReady)
}

// --- Kernel ---

// IncKernelLaunchSuccess records a successful kernel launch.
func (c *Collector) IncKernelLaunchSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.kernelLaunchSuccess)
}

// IncKernelLaunchFailure records a failed kernel launch.
func (c *Collector) IncKernelLaunchFailure() {
	if c == nil {
		return
	}
	c.inc(&c.kernelLaunchFailure)
}

// IncChannelOpened records an established kernel channel.
func (c *Collector) IncChannelOpened() {
	if c == nil {
		return
	}
	c.inc(&c.channelsOpened)
}

// IncMessageSent records a session message written to the channel.
func (c *Collector) IncMessageSent() {
	if c == nil {
		return
	}
	c.inc(&c.messagesSent)
}

// IncMessageReceived records an inbound session message.
func (c *Collector) IncMessageReceived() {
	if c == nil {
		return
	}
	c.inc(&c.messagesReceived)
}

// IncMessageIgnored records an inbound message that had no effect on control flow.
func (c *Collector) IncMessageIgnored() {
	if c == nil {
		return
	}
	c.inc(&c.messagesIgnored)
}

// IncMessageDecodeError records an inbound frame that could not be decoded.
func (c *Collector) IncMessageDecodeError() {
	if c == nil {
		return
	}
	c.inc(&c.messageDecodeErrors)
}

// --- Execution lifecycle ---

// IncExecutionStarted records an execution start.
func (c *Collector) IncExecutionStarted() {
	if c == nil {
		return
	}
	c.inc(&c.executionsStarted)
}

// IncExecutionSucceeded records an execution that produced a result.
func (c *Collector) IncExecutionSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.executionsSucceeded)
}

// IncExecutionFailed records an execution that ended in a protocol or transport error.
func (c *Collector) IncExecutionFailed() {
	if c == nil {
		return
	}
	c.inc(&c.executionsFailed)
}

// IncExecutionTimedOut records an execution whose deadline elapsed.
func (c *Collector) IncExecutionTimedOut() {
	if c == nil {
		return
	}
	c.inc(&c.executionsTimedOut)
}

// --- Lode / Storage ---
// Lode counters are per-call, not per-record.

// IncLodeWriteSuccess records a successful Lode write operation.
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.lodeWriteSuccess)
}

// IncLodeWriteFailure records a failed Lode write operation.
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.lodeWriteFailure)
}

// AbsorbPolicyStats copies trace recording counters into the collector.
// Called once after completion with the final policy stats snapshot.
// droppedByKind keys are string-typed to keep this package free of
// dependencies on the types package.
func (c *Collector) AbsorbPolicyStats(total, persisted, dropped int64, droppedByKind map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsReceived = total
	c.recordsPersisted = persisted
	c.recordsDropped = dropped
	c.droppedByKind = make(map[string]int64, len(droppedByKind))
	for k, v := range droppedByKind {
		c.droppedByKind[k] = v
	}
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := make(map[string]int64, len(c.droppedByKind))
	for k, v := range c.droppedByKind {
		dropped[k] = v
	}

	return Snapshot{
		BuildsStarted: c.buildsStarted,
		PhaseEvents:   c.phaseEvents,
		ParseErrors:   c.parseErrors,
		BuildFailures: c.buildFailures,
		BuildNotReady: c.buildNotReady,

		KernelLaunchSuccess: c.kernelLaunchSuccess,
		KernelLaunchFailure: c.kernelLaunchFailure,
		ChannelsOpened:      c.channelsOpened,
		MessagesSent:        c.messagesSent,
		MessagesReceived:    c.messagesReceived,
		MessagesIgnored:     c.messagesIgnored,
		MessageDecodeErrors: c.messageDecodeErrors,

		ExecutionsStarted:   c.executionsStarted,
		ExecutionsSucceeded: c.executionsSucceeded,
		ExecutionsFailed:    c.executionsFailed,
		ExecutionsTimedOut:  c.executionsTimedOut,

		RecordsReceived:  c.recordsReceived,
		RecordsPersisted: c.recordsPersisted,
		RecordsDropped:   c.recordsDropped,
		DroppedByKind:    dropped,

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		Policy:         c.policy,
		StorageBackend: c.storageBackend,
		KernelName:     c.kernelName,
		ExecutionID:    c.executionID,
	}
}

// Map flattens the snapshot into a payload suitable for a metrics trace record.
func (s Snapshot) Map() map[string]any {
	return map[string]any{
		"builds_started":        s.BuildsStarted,
		"phase_events":          s.PhaseEvents,
		"parse_errors":          s.ParseErrors,
		"build_failures":        s.BuildFailures,
		"build_not_ready":       s.BuildNotReady,
		"kernel_launch_success": s.KernelLaunchSuccess,
		"kernel_launch_failure": s.KernelLaunchFailure,
		"channels_opened":       s.ChannelsOpened,
		"messages_sent":         s.MessagesSent,
		"messages_received":     s.MessagesReceived,
		"messages_ignored":      s.MessagesIgnored,
		"message_decode_errors": s.MessageDecodeErrors,
		"executions_started":    s.ExecutionsStarted,
		"executions_succeeded":  s.ExecutionsSucceeded,
		"executions_failed":     s.ExecutionsFailed,
		"executions_timed_out":  s.ExecutionsTimedOut,
		"records_received":      s.RecordsReceived,
		"records_persisted":     s.RecordsPersisted,
		"records_dropped":       s.RecordsDropped,
		"dropped_by_kind":       s.DroppedByKind,
		"lode_write_success":    s.LodeWriteSuccess,
		"lode_write_failure":    s.LodeWriteFailure,
		"policy":                s.Policy,
		"storage_backend":       s.StorageBackend,
		"kernel_name":           s.KernelName,
	}
}
