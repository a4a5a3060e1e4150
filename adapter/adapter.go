// Package adapter defines the notification surface for completed executions.
//
// After an execution finishes, the CLI publishes an ExecutionCompletedEvent
// to a configured adapter. Publishing is best-effort: failures are logged by
// the caller and never change the execution's exit code.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventFormatVersion is the version of the event payload shape.
const EventFormatVersion = "1"

// EventTypeExecutionCompleted is the event_type of ExecutionCompletedEvent.
const EventTypeExecutionCompleted = "execution_completed"

// ExecutionCompletedEvent is published once per execution.
type ExecutionCompletedEvent struct {
	FormatVersion string `json:"format_version"`
	EventType     string `json:"event_type"`
	ExecutionID   string `json:"execution_id"`
	Source        string `json:"source"`
	Day           string `json:"day,omitempty"`
	Outcome       string `json:"outcome"`
	Message       string `json:"message,omitempty"`
	ExitCode      int    `json:"exit_code"`
	// StoragePath is the storage location of the execution trace, if any.
	StoragePath string `json:"storage_path,omitempty"`
	// Timestamp is RFC3339 UTC.
	Timestamp  string `json:"timestamp"`
	DurationMs int64  `json:"duration_ms"`
	KernelID   string `json:"kernel_id,omitempty"`
	// Text is the text/plain result, present only on success.
	Text string `json:"text,omitempty"`
}

// Validate checks the fields every consumer relies on.
func (e *ExecutionCompletedEvent) Validate() error {
	if e.ExecutionID == "" {
		return errors.New("event requires an execution_id")
	}
	if e.EventType != EventTypeExecutionCompleted {
		return fmt.Errorf("unexpected event_type %q", e.EventType)
	}
	if e.Outcome == "" {
		return errors.New("event requires an outcome")
	}
	return nil
}

// Adapter publishes completion events to an external system.
type Adapter interface {
	// Publish delivers the event. Implementations retry transient failures.
	Publish(ctx context.Context, event *ExecutionCompletedEvent) error
	// Close releases adapter resources.
	Close() error
}

// baseBackoff is the delay before the first retry. It doubles per attempt.
const baseBackoff = 500 * time.Millisecond

// Permanent marks an error as non-retriable for Retry.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }

func (p *Permanent) Unwrap() error { return p.Err }

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early on context cancellation or a *Permanent error.
// The name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(context.Context) error) error {
	return retry(ctx, name, retries, baseBackoff, fn)
}

func retry(ctx context.Context, name string, retries int, base time.Duration, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * base
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
