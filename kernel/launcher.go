package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pithecene-io/assay/iox"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/transport"
	"github.com/pithecene-io/assay/types"
)

// DefaultKernelName is the kernel type launched when none is given.
const DefaultKernelName = "python"

// maxResponseBody bounds launch response bodies.
const maxResponseBody = 1024 * 1024

// LaunchErrorKind classifies launch failures.
type LaunchErrorKind int

const (
	// LaunchErrorStatus means the server answered with a non-2xx status.
	LaunchErrorStatus LaunchErrorKind = iota
	// LaunchErrorDecode means a 2xx response could not be parsed.
	LaunchErrorDecode
	// LaunchErrorTransport means the request never produced a response.
	LaunchErrorTransport
)

// String returns the kind name.
func (k LaunchErrorKind) String() string {
	switch k {
	case LaunchErrorStatus:
		return "status"
	case LaunchErrorDecode:
		return "decode"
	case LaunchErrorTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// LaunchError reports a failed kernel launch. Never retried.
type LaunchError struct {
	Kind LaunchErrorKind
	// StatusCode is the response status, zero for transport failures.
	StatusCode int
	// Body is the full response body for status and decode failures.
	Body string
	// Err is the underlying error, if any.
	Err error
}

func (e *LaunchError) Error() string {
	switch e.Kind {
	case LaunchErrorStatus:
		return fmt.Sprintf("kernel launch rejected with status %d: %s", e.StatusCode, e.Body)
	case LaunchErrorDecode:
		return fmt.Sprintf("kernel launch response unparsable: %v", e.Err)
	default:
		return fmt.Sprintf("kernel launch request failed: %v", e.Err)
	}
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// KernelsURL returns the kernel collection endpoint of an environment.
func KernelsURL(env types.EnvironmentHandle) (string, error) {
	base, err := url.Parse(env.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid environment url: %w", err)
	}
	return base.JoinPath("api", "kernels").String(), nil
}

// AuthorizationHeader returns the header value for env's token.
func AuthorizationHeader(env types.EnvironmentHandle) string {
	return "token " + env.Token
}

type launchRequest struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

type launchResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Launcher starts kernels inside an environment.
type Launcher struct {
	client    transport.Doer
	logger    *log.Logger
	collector *metrics.Collector
}

// NewLauncher creates a launcher issuing requests through client.
// logger and collector may be nil.
func NewLauncher(client transport.Doer, logger *log.Logger, collector *metrics.Collector) *Launcher {
	return &Launcher{client: client, logger: log.OrNop(logger), collector: collector}
}

// Launch issues one authenticated POST creating a kernel named kernelName.
// An empty kernelName launches DefaultKernelName. Errors are *LaunchError
// unless env is unusable.
func (l *Launcher) Launch(ctx context.Context, env types.EnvironmentHandle, kernelName string) (types.KernelHandle, error) {
	if kernelName == "" {
		kernelName = DefaultKernelName
	}
	if err := env.Validate(); err != nil {
		return types.KernelHandle{}, err
	}

	endpoint, err := KernelsURL(env)
	if err != nil {
		return types.KernelHandle{}, err
	}

	body, err := json.Marshal(launchRequest{Name: kernelName})
	if err != nil {
		return types.KernelHandle{}, fmt.Errorf("encode launch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return types.KernelHandle{}, fmt.Errorf("create launch request: %w", err)
	}
	req.Header.Set("Authorization", AuthorizationHeader(env))
	req.Header.Set("Content-Type", "application/json")

	l.logger.Info("launching kernel", map[string]any{
		"url":    endpoint,
		"kernel": kernelName,
	})

	resp, err := l.client.Do(req)
	if err != nil {
		l.collector.IncKernelLaunchFailure()
		return types.KernelHandle{}, &LaunchError{Kind: LaunchErrorTransport, Err: err}
	}
	defer iox.DiscardClose(resp.Body)

	respBody, err := iox.ReadAllLimit(resp.Body, maxResponseBody)
	if err != nil {
		l.collector.IncKernelLaunchFailure()
		return types.KernelHandle{}, &LaunchError{Kind: LaunchErrorTransport, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.collector.IncKernelLaunchFailure()
		l.logger.Error("kernel launch rejected", map[string]any{
			"status": resp.StatusCode,
			"body":   string(respBody),
		})
		return types.KernelHandle{}, &LaunchError{
			Kind:       LaunchErrorStatus,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	var decoded launchResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		l.collector.IncKernelLaunchFailure()
		return types.KernelHandle{}, &LaunchError{
			Kind:       LaunchErrorDecode,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        err,
		}
	}
	if strings.TrimSpace(decoded.ID) == "" {
		l.collector.IncKernelLaunchFailure()
		return types.KernelHandle{}, &LaunchError{
			Kind:       LaunchErrorDecode,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        errors.New("response has no kernel id"),
		}
	}

	l.collector.IncKernelLaunchSuccess()
	l.logger.Info("kernel launched", map[string]any{
		"kernel_id": decoded.ID,
		"kernel":    decoded.Name,
	})
	return types.KernelHandle{ID: decoded.ID, Name: decoded.Name}, nil
}
