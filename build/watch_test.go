package build

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/types"
)

type recordingObserver struct {
	phases      []types.Phase
	parseErrors int
}

func (o *recordingObserver) ObservePhase(ev types.PhaseEvent)  { o.phases = append(o.phases, ev.Phase) }
func (o *recordingObserver) ObserveParseError(_ *ParseError) { o.parseErrors++ }

type seenRequest struct {
	path   string
	header http.Header
}

func streamServer(t *testing.T, status int, body string) (*httptest.Server, *seenRequest) {
	t.Helper()
	got := &seenRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.header = r.Header.Clone()
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func requestFor(srv *httptest.Server) Request {
	return Request{ServiceURL: srv.URL, Provider: "gh", Repo: "binder-examples/conda_environment", Ref: "HEAD"}
}

func TestRequest_URL(t *testing.T) {
	got, err := DefaultRequest().URL()
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	want := "https://mybinder.org/build/gh/binder-examples/conda_environment/HEAD"
	if got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}

	if _, err := (Request{ServiceURL: "ftp://x", Provider: "gh", Repo: "a/b", Ref: "HEAD"}).URL(); err == nil {
		t.Error("expected scheme error")
	}
	if _, err := (Request{ServiceURL: "https://x", Provider: "gh", Ref: "HEAD"}).URL(); err == nil {
		t.Error("expected missing repo error")
	}
	if got := DefaultRequest().Source(); got != "gh/binder-examples/conda_environment/HEAD" {
		t.Errorf("Source = %q", got)
	}
}

func TestWatcher_WaitingBuildingReady(t *testing.T) {
	body := strings.Join([]string{
		`data: {"phase":"waiting","message":"Waiting for build to start"}`,
		"",
		":keepalive",
		`data: {"phase":"building","message":"Step 1/3"}`,
		"",
		`data: {"phase":"ready","url":"https://env.example/x","token":"abc"}`,
		"",
		`data: {"phase":"failed","message":"never read"}`,
	}, "\n")
	srv, got := streamServer(t, http.StatusOK, body)

	obs := &recordingObserver{}
	collector := metrics.NewCollector("noop", "none", "python", "exec-1")
	w := &Watcher{Client: srv.Client(), Collector: collector, Observer: obs}

	env, err := w.Watch(t.Context(), requestFor(srv))
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	want := types.EnvironmentHandle{BaseURL: "https://env.example/x", Token: "abc"}
	if env != want {
		t.Errorf("env = %+v, want %+v", env, want)
	}

	if got.path != "/build/gh/binder-examples/conda_environment/HEAD" {
		t.Errorf("path = %q", got.path)
	}
	if got.header.Get("Accept") != "text/event-stream" {
		t.Errorf("Accept = %q", got.header.Get("Accept"))
	}

	wantPhases := []types.Phase{types.PhaseWaiting, types.PhaseBuilding, types.PhaseReady}
	if fmt.Sprint(obs.phases) != fmt.Sprint(wantPhases) {
		t.Errorf("observed phases = %v, want %v", obs.phases, wantPhases)
	}
	if s := collector.Snapshot(); s.PhaseEvents != 3 || s.BuildsStarted != 1 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestWatcher_Failed(t *testing.T) {
	body := "{\"phase\":\"building\"}\n{\"phase\":\"failed\",\"message\":\"repo not found\"}\n"
	srv, _ := streamServer(t, http.StatusOK, body)

	_, err := (&Watcher{Client: srv.Client()}).Watch(t.Context(), requestFor(srv))

	var fe *FailedError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FailedError", err)
	}
	if fe.Message != "repo not found" {
		t.Errorf("Message = %q", fe.Message)
	}
}

func TestWatcher_NotReady(t *testing.T) {
	body := "{\"phase\":\"waiting\"}\n{\"phase\":\"building\"}\nnot json\n"
	srv, _ := streamServer(t, http.StatusOK, body)

	obs := &recordingObserver{}
	collector := metrics.NewCollector("noop", "none", "python", "exec-1")
	_, err := (&Watcher{Client: srv.Client(), Collector: collector, Observer: obs}).Watch(t.Context(), requestFor(srv))

	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if obs.parseErrors != 1 {
		t.Errorf("parse errors observed = %d, want 1", obs.parseErrors)
	}
	if s := collector.Snapshot(); s.BuildNotReady != 1 || s.ParseErrors != 1 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestWatcher_EmptyStream(t *testing.T) {
	srv, _ := streamServer(t, http.StatusOK, "")
	_, err := (&Watcher{Client: srv.Client()}).Watch(t.Context(), requestFor(srv))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestWatcher_StatusError(t *testing.T) {
	srv, _ := streamServer(t, http.StatusNotFound, "no such repository")
	_, err := (&Watcher{Client: srv.Client()}).Watch(t.Context(), requestFor(srv))

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound || se.Body != "no such repository" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestWatcher_ParseErrorsDoNotAbort(t *testing.T) {
	body := "{bad\n{\"phase\":\"ready\"}\n{\"phase\":\"ready\",\"url\":\"https://env.example/y\",\"token\":\"t\"}\n"
	srv, _ := streamServer(t, http.StatusOK, body)

	env, err := (&Watcher{Client: srv.Client()}).Watch(t.Context(), requestFor(srv))
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if env.BaseURL != "https://env.example/y" {
		t.Errorf("env = %+v", env)
	}
}

func TestWatchStream_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := (&Watcher{}).WatchStream(ctx, strings.NewReader("{\"phase\":\"waiting\"}\n"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
