package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pithecene-io/assay/iox"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/transport"
	"github.com/pithecene-io/assay/types"
)

// Request defaults.
const (
	DefaultServiceURL = "https://mybinder.org"
	DefaultProvider   = "gh"
	DefaultRepo       = "binder-examples/conda_environment"
	DefaultRef        = "HEAD"
)

// maxErrorBody bounds the body captured from a non-2xx build response.
const maxErrorBody = 64 * 1024

// ErrNotReady is returned when the stream ends without a terminal phase.
var ErrNotReady = errors.New("environment did not become ready")

// FailedError is returned when the build service reports a failed phase.
type FailedError struct {
	// Message is the service-supplied reason, possibly empty.
	Message string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return "build failed"
	}
	return "build failed: " + e.Message
}

// StatusError is returned when the build endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("build service returned status %d: %s", e.Code, e.Body)
}

// Request addresses a build: {ServiceURL}/build/{Provider}/{Repo}/{Ref}.
type Request struct {
	ServiceURL string
	Provider   string
	Repo       string
	Ref        string
}

// DefaultRequest returns the request for the default example repository.
func DefaultRequest() Request {
	return Request{
		ServiceURL: DefaultServiceURL,
		Provider:   DefaultProvider,
		Repo:       DefaultRepo,
		Ref:        DefaultRef,
	}
}

// Validate checks that every component is present.
func (r Request) Validate() error {
	switch {
	case r.ServiceURL == "":
		return errors.New("build service_url is required")
	case r.Provider == "":
		return errors.New("build provider is required")
	case r.Repo == "":
		return errors.New("build repo is required")
	case r.Ref == "":
		return errors.New("build ref is required")
	}
	return nil
}

// URL resolves the build endpoint.
func (r Request) URL() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	base, err := url.Parse(r.ServiceURL)
	if err != nil {
		return "", fmt.Errorf("invalid build service_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("invalid build service_url scheme %q", base.Scheme)
	}
	return base.JoinPath("build", r.Provider, strings.Trim(r.Repo, "/"), r.Ref).String(), nil
}

// Source returns the provider/repo/ref label used for logs and storage partitioning.
func (r Request) Source() string {
	return r.Provider + "/" + r.Repo + "/" + r.Ref
}

// Observer receives every accepted event and parse error, in stream order.
// Called synchronously from the watching goroutine.
type Observer interface {
	ObservePhase(ev types.PhaseEvent)
	ObserveParseError(err *ParseError)
}

// Watcher issues the build request and folds its stream into an environment.
type Watcher struct {
	// Client issues the GET. Required.
	Client transport.Doer
	// Logger receives phase progress. Nil discards.
	Logger *log.Logger
	// Collector records build counters. Nil is allowed.
	Collector *metrics.Collector
	// Observer, if set, sees every event.
	Observer Observer
}

// Watch requests the build and blocks until the environment is ready,
// the build fails, the stream ends, or ctx is done.
//
// Errors:
//   - *StatusError: non-2xx response
//   - *FailedError: failed phase
//   - ErrNotReady: stream ended without a terminal phase
//   - anything else: transport failure or ctx error
func (w *Watcher) Watch(ctx context.Context, req Request) (types.EnvironmentHandle, error) {
	endpoint, err := req.URL()
	if err != nil {
		return types.EnvironmentHandle{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return types.EnvironmentHandle{}, fmt.Errorf("create build request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	logger := log.OrNop(w.Logger)
	logger.Info("requesting build", map[string]any{"url": endpoint})

	resp, err := w.Client.Do(httpReq)
	if err != nil {
		return types.EnvironmentHandle{}, fmt.Errorf("build request: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := iox.ReadAllLimit(resp.Body, maxErrorBody)
		logger.Error("build request rejected", map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		})
		return types.EnvironmentHandle{}, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	return w.WatchStream(ctx, resp.Body)
}

// WatchStream folds an already-open stream into an environment.
// The caller owns body.
func (w *Watcher) WatchStream(ctx context.Context, body io.Reader) (types.EnvironmentHandle, error) {
	logger := log.OrNop(w.Logger)
	w.Collector.IncBuildStarted()

	machine := NewMachine()
	for ev, err := range NewReader(body).All() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return types.EnvironmentHandle{}, ctxErr
		}

		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				// A read error after cancellation is the cancellation.
				if ctxErr := ctx.Err(); ctxErr != nil {
					return types.EnvironmentHandle{}, ctxErr
				}
				return types.EnvironmentHandle{}, err
			}
			w.Collector.IncParseError()
			logger.Warn("unparsable build stream line", map[string]any{
				"line_no": pe.LineNo,
				"line":    pe.Line,
				"error":   pe.Err.Error(),
			})
			if w.Observer != nil {
				w.Observer.ObserveParseError(pe)
			}
			machine.AcceptError(pe)
			continue
		}

		w.Collector.IncPhaseEvent()
		if w.Observer != nil {
			w.Observer.ObservePhase(ev)
		}

		t := machine.Accept(ev)
		switch t.Kind {
		case Success:
			logger.Info("environment ready", map[string]any{
				"url":   t.Environment.BaseURL,
				"token": t.Environment.RedactedToken(),
				"image": ev.Image,
			})
			return t.Environment, nil
		case Failure:
			w.Collector.IncBuildFailure()
			logger.Error("build failed", map[string]any{"message": t.Reason})
			return types.EnvironmentHandle{}, &FailedError{Message: t.Reason}
		default:
			logger.Info("build phase", map[string]any{
				"phase":   string(ev.Phase),
				"message": strings.TrimSpace(ev.Message),
			})
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return types.EnvironmentHandle{}, ctxErr
	}
	w.Collector.IncBuildNotReady()
	logger.Error("build stream ended without a terminal phase", map[string]any{
		"last_phase":   string(machine.Current()),
		"events":       machine.Events(),
		"parse_errors": machine.ParseErrors(),
	})
	return types.EnvironmentHandle{}, ErrNotReady
}
