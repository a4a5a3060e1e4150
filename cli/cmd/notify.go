package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/assay/adapter"
	"github.com/pithecene-io/assay/adapter/redis"
	"github.com/pithecene-io/assay/adapter/webhook"
	"github.com/pithecene-io/assay/lode"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/runtime"
)

// publishTimeout bounds the whole publish, retries included.
const publishTimeout = 2 * time.Minute

// buildAdapter creates the configured adapter. Returns nil when none is set.
func buildAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if choice.retries != nil {
			retries = *choice.retries
		}
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: retries,
		})
	case "redis":
		retries := redis.DefaultRetries
		if choice.retries != nil {
			retries = *choice.retries
		}
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s", choice.kind)
	}
}

// eventFromResult builds the completion event for a finished execution.
func eventFromResult(result *runtime.Result, opts *runOptions, start time.Time, exitCode int, storagePath string) *adapter.ExecutionCompletedEvent {
	ev := &adapter.ExecutionCompletedEvent{
		FormatVersion: adapter.EventFormatVersion,
		EventType:     adapter.EventTypeExecutionCompleted,
		ExecutionID:   opts.executionID,
		Source:        opts.source(),
		Day:           lode.DeriveDay(start),
		Outcome:       string(result.Outcome.Status),
		Message:       result.Outcome.Message,
		ExitCode:      exitCode,
		StoragePath:   storagePath,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DurationMs:    result.Duration.Milliseconds(),
		KernelID:      result.Kernel.ID,
	}
	if result.HasText && result.Outcome.Status.IsSuccess() {
		ev.Text = result.Text
	}
	return ev
}

// notify publishes ev through the configured adapter. Failures are logged
// and never change the execution's exit code.
func notify(ctx context.Context, choice adapterChoice, ev *adapter.ExecutionCompletedEvent, logger *log.Logger) {
	a, err := buildAdapter(choice)
	if err != nil {
		logger.Error("failed to create adapter", map[string]any{"adapter": choice.kind, "error": err.Error()})
		return
	}
	if a == nil {
		return
	}
	defer func() { _ = a.Close() }()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := a.Publish(pubCtx, ev); err != nil {
		logger.Error("failed to publish completion event", map[string]any{
			"adapter": choice.kind,
			"error":   err.Error(),
		})
		return
	}
	logger.Info("published completion event", map[string]any{"adapter": choice.kind})
}
