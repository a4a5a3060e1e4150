package runtime

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/kernel"
)

// kernelBehavior decides what the fake kernel sends after an execute request.
type kernelBehavior int

const (
	// answer sends busy status, a stream, then the matching result.
	answer kernelBehavior = iota
	// answerAfterNoise first sends a result for a different request and an error.
	answerAfterNoise
	// silent never answers.
	silent
	// hangUp closes the channel without answering.
	hangUp
)

// fakeService serves a build stream, the kernel REST API and the kernel
// channel from one httptest server. The ready phase points back at it.
type fakeService struct {
	t   *testing.T
	srv *httptest.Server

	// buildLines are the stream lines after the ready URL is substituted
	// for {{url}}.
	buildLines   []string
	launchStatus int
	launchBody   string
	behavior     kernelBehavior

	mu         sync.Mutex
	launches   int
	launchAuth string
	dialAuth   string
	requests   []*kernel.Message
	closed     chan struct{}
}

func newFakeService(t *testing.T, behavior kernelBehavior) *fakeService {
	t.Helper()
	f := &fakeService{
		t: t,
		buildLines: []string{
			`data: {"phase":"waiting","message":"Waiting for build to start"}`,
			":keepalive",
			`data: {"phase":"building","message":"Step 1/3 : FROM docker.io/library/buildpack-deps:jammy"}`,
			`not json`,
			`data: {"phase":"ready","url":"{{url}}","token":"abc","image":"r2d-example"}`,
		},
		launchStatus: http.StatusCreated,
		launchBody:   `{"id":"k-1","name":"python3","execution_state":"starting"}`,
		behavior:     behavior,
		closed:       make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /build/", f.serveBuild)
	mux.HandleFunc("POST /user/x/api/kernels", f.serveLaunch)
	mux.HandleFunc("GET /user/x/api/kernels/{id}/channels", f.serveChannel)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeService) buildRequest() build.Request {
	return build.Request{ServiceURL: f.srv.URL, Provider: "gh", Repo: "binder-examples/conda_environment", Ref: "HEAD"}
}

func (f *fakeService) envURL() string {
	return f.srv.URL + "/user/x/"
}

func (f *fakeService) serveBuild(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, line := range f.buildLines {
		_, _ = fmt.Fprintf(w, "%s\n\n", strings.ReplaceAll(line, "{{url}}", f.envURL()))
	}
}

func (f *fakeService) serveLaunch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.launches++
	f.launchAuth = r.Header.Get("Authorization")
	f.mu.Unlock()
	w.WriteHeader(f.launchStatus)
	_, _ = fmt.Fprint(w, f.launchBody)
}

func (f *fakeService) serveChannel(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.dialAuth = r.Header.Get("Authorization")
	f.mu.Unlock()

	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer close(f.closed)
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			// client closed the channel
			return
		}
		req, err := kernel.DecodeMessage(data)
		if err != nil {
			f.t.Errorf("fake kernel got undecodable frame: %v", err)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		switch f.behavior {
		case silent:
			continue
		case hangUp:
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			continue
		case answerAfterNoise:
			stray := f.reply(&kernel.ExecuteResult{ExecutionCount: 9, Data: kernel.MimeBundle{"text/plain": "stale"}})
			stray.ParentHeader = kernel.Header{MsgID: "some-other-request", MsgType: kernel.MsgTypeExecuteRequest}
			f.send(ws, stray)
			errMsg := f.reply(&kernel.ErrorContent{EName: "Warning", EValue: "noise"})
			errMsg.ParentHeader = req.Header
			f.send(ws, errMsg)
		}

		for _, content := range []kernel.Content{
			&kernel.Status{ExecutionState: kernel.StateBusy},
			&kernel.Stream{Name: "stdout", Text: "computing\n"},
			&kernel.ExecuteResult{ExecutionCount: 1, Data: kernel.MimeBundle{"text/plain": "4"}},
			&kernel.Status{ExecutionState: kernel.StateIdle},
		} {
			m := f.reply(content)
			m.ParentHeader = req.Header
			f.send(ws, m)
		}
	}
}

func (f *fakeService) reply(c kernel.Content) *kernel.Message {
	return kernel.NewMessage("kernel-session", kernel.ChannelIOPub, c)
}

func (f *fakeService) send(ws *websocket.Conn, m *kernel.Message) {
	data, err := kernel.EncodeMessage(m)
	if err != nil {
		f.t.Errorf("encode: %v", err)
		return
	}
	_ = ws.WriteMessage(websocket.TextMessage, data)
}

func (f *fakeService) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}
