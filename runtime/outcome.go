package runtime

import (
	"context"
	"errors"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/types"
)

// ErrTimeout is returned when no execute_result arrives before the deadline.
var ErrTimeout = errors.New("timed out waiting for execute result")

// ErrNoResult is returned when the receive loop ends without an execute_result.
var ErrNoResult = errors.New("kernel channel ended without an execute result")

// Process exit codes for an execution.
const (
	ExitCodeSuccess     = 0 // execute_result received
	ExitCodeBuildFailed = 1 // build failed or never became ready
	ExitCodeKernelError = 2 // launch, transport or channel failure
	ExitCodeTimeout     = 3 // deadline elapsed
	ExitCodeCanceled    = 4 // caller canceled
)

// ClassifyError maps an Execute error to an outcome status.
// A nil error is success.
func ClassifyError(err error) types.OutcomeStatus {
	if err == nil {
		return types.OutcomeSuccess
	}

	var failed *build.FailedError
	var status *build.StatusError
	var launch *kernel.LaunchError

	switch {
	case errors.Is(err, ErrTimeout):
		return types.OutcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller's own deadline is a cancellation, not our timeout.
		return types.OutcomeCanceled
	case errors.As(err, &failed), errors.As(err, &status):
		return types.OutcomeBuildFailed
	case errors.Is(err, build.ErrNotReady):
		return types.OutcomeNotReady
	case errors.As(err, &launch):
		if launch.Kind == kernel.LaunchErrorTransport {
			return types.OutcomeTransportError
		}
		return types.OutcomeLaunchFailed
	case errors.Is(err, ErrNoResult):
		return types.OutcomeNoResult
	default:
		return types.OutcomeTransportError
	}
}

// OutcomeFor builds the outcome reported for err.
func OutcomeFor(err error) *types.Outcome {
	status := ClassifyError(err)
	if err == nil {
		return &types.Outcome{Status: status, Message: "execute result received"}
	}
	return &types.Outcome{Status: status, Message: err.Error()}
}

// ExitCode returns the process exit code for an outcome status.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitCodeSuccess
	case types.OutcomeBuildFailed, types.OutcomeNotReady:
		return ExitCodeBuildFailed
	case types.OutcomeTimeout:
		return ExitCodeTimeout
	case types.OutcomeCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeKernelError
	}
}
