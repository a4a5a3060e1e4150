package types

import "errors"

// ExecutionMeta carries the identity of a single execution attempt.
type ExecutionMeta struct {
	// ExecutionID is the execution identifier. Must be unique.
	ExecutionID string
	// Source labels what is being executed against, typically provider/repo.
	Source string
}

// Validate checks that the execution identity is usable.
func (m *ExecutionMeta) Validate() error {
	if m.ExecutionID == "" {
		return errors.New("execution_id must be non-empty")
	}
	return nil
}

// OutcomeStatus is the final classification of an execution.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates an execute_result was received in time.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeBuildFailed indicates the build service reported a failed phase.
	OutcomeBuildFailed OutcomeStatus = "build_failed"
	// OutcomeNotReady indicates the build stream ended without a terminal phase.
	OutcomeNotReady OutcomeStatus = "not_ready"
	// OutcomeLaunchFailed indicates the kernel launch request was rejected or unparsable.
	OutcomeLaunchFailed OutcomeStatus = "launch_failed"
	// OutcomeTransportError indicates a connection, read or write failure.
	OutcomeTransportError OutcomeStatus = "transport_error"
	// OutcomeNoResult indicates the channel closed before an execute_result arrived.
	OutcomeNoResult OutcomeStatus = "no_result"
	// OutcomeTimeout indicates the execute deadline elapsed.
	OutcomeTimeout OutcomeStatus = "timeout"
	// OutcomeCanceled indicates the caller canceled the execution.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// IsSuccess returns true for OutcomeSuccess.
func (s OutcomeStatus) IsSuccess() bool {
	return s == OutcomeSuccess
}

// Outcome is the final outcome of an execution.
type Outcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus `json:"status" msgpack:"status"`
	// Message is a human-readable description.
	Message string `json:"message" msgpack:"message"`
}
