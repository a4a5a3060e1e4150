package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/types"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.OutcomeStatus
	}{
		{"nil", nil, types.OutcomeSuccess},
		{"timeout", ErrTimeout, types.OutcomeTimeout},
		{"canceled", context.Canceled, types.OutcomeCanceled},
		{"caller deadline", context.DeadlineExceeded, types.OutcomeCanceled},
		{"build failed", &build.FailedError{Message: "boom"}, types.OutcomeBuildFailed},
		{"build status", &build.StatusError{Code: 404, Body: "no such repo"}, types.OutcomeBuildFailed},
		{"not ready", build.ErrNotReady, types.OutcomeNotReady},
		{"launch status", &kernel.LaunchError{Kind: kernel.LaunchErrorStatus, StatusCode: 500}, types.OutcomeLaunchFailed},
		{"launch decode", &kernel.LaunchError{Kind: kernel.LaunchErrorDecode}, types.OutcomeLaunchFailed},
		{"launch transport", &kernel.LaunchError{Kind: kernel.LaunchErrorTransport, Err: io.ErrUnexpectedEOF}, types.OutcomeTransportError},
		{"launch canceled", &kernel.LaunchError{Kind: kernel.LaunchErrorTransport, Err: context.Canceled}, types.OutcomeCanceled},
		{"no result", ErrNoResult, types.OutcomeNoResult},
		{"no result after read error", fmt.Errorf("%w: %w", ErrNoResult, io.ErrUnexpectedEOF), types.OutcomeNoResult},
		{"dial failure", errors.New("connect kernel channel: dial tcp: refused"), types.OutcomeTransportError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		status types.OutcomeStatus
		want   int
	}{
		{types.OutcomeSuccess, ExitCodeSuccess},
		{types.OutcomeBuildFailed, ExitCodeBuildFailed},
		{types.OutcomeNotReady, ExitCodeBuildFailed},
		{types.OutcomeLaunchFailed, ExitCodeKernelError},
		{types.OutcomeTransportError, ExitCodeKernelError},
		{types.OutcomeNoResult, ExitCodeKernelError},
		{types.OutcomeTimeout, ExitCodeTimeout},
		{types.OutcomeCanceled, ExitCodeCanceled},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.status); got != tt.want {
			t.Errorf("ExitCode(%s) = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestOutcomeFor(t *testing.T) {
	if o := OutcomeFor(nil); o.Status != types.OutcomeSuccess || o.Message == "" {
		t.Errorf("OutcomeFor(nil) = %+v", o)
	}
	o := OutcomeFor(&build.FailedError{Message: "bad ref"})
	if o.Status != types.OutcomeBuildFailed || o.Message != "build failed: bad ref" {
		t.Errorf("OutcomeFor(failed) = %+v", o)
	}
}
