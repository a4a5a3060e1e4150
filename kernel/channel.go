package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/assay/iox"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/types"
)

// ErrChannelClosed is returned by Send and Recv once the channel has been closed locally.
var ErrChannelClosed = errors.New("kernel channel closed")

// closeGrace bounds the close handshake write.
const closeGrace = time.Second

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// ChannelURL returns the websocket address of a kernel's channel.
// sessionID is added as the session_id query parameter when non-empty.
func ChannelURL(env types.EnvironmentHandle, kernelID, sessionID string) (string, error) {
	base, err := url.Parse(env.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid environment url: %w", err)
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	case "http":
		base.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported environment url scheme %q", base.Scheme)
	}
	u := base.JoinPath("api", "kernels", kernelID, "channels")
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// conn is the connection shared by a Sender/Receiver pair.
type conn struct {
	ws        *websocket.Conn
	logger    *log.Logger
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// close sends a close frame (best effort) and releases the connection.
// Safe to call from either half and more than once.
func (c *conn) close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.ws.Close()
		c.logger.Debug("kernel channel closed", nil)
	})
	return c.closeErr
}

// Sender is the send half of a kernel channel. Owned by one goroutine.
type Sender struct {
	c         *conn
	collector *metrics.Collector
}

// Send writes one message. It blocks until the frame is handed to the
// transport or ctx's deadline passes.
func (s *Sender) Send(ctx context.Context, m *Message) error {
	if s.c.isClosed() {
		return ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := s.c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if s.c.isClosed() {
			return ErrChannelClosed
		}
		return fmt.Errorf("send %s: %w", m.Header.MsgType, err)
	}
	s.collector.IncMessageSent()
	return nil
}

// Close closes the whole channel.
func (s *Sender) Close() error {
	return s.c.close()
}

// Done is closed once the channel has been closed locally.
func (s *Sender) Done() <-chan struct{} {
	return s.c.closed
}

// Receiver is the receive half of a kernel channel. Owned by one goroutine.
type Receiver struct {
	c         *conn
	collector *metrics.Collector
}

// Recv blocks for the next inbound message.
//
// Errors:
//   - *DecodeError: one frame was malformed; call Recv again
//   - ErrChannelClosed: the channel was closed locally
//   - io.EOF: the peer closed the channel normally
//   - anything else: transport failure
func (r *Receiver) Recv() (*Message, error) {
	if r.c.isClosed() {
		return nil, ErrChannelClosed
	}

	kind, data, err := r.c.ws.ReadMessage()
	if err != nil {
		switch {
		case r.c.isClosed():
			return nil, ErrChannelClosed
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("receive: %w", err)
		}
	}

	var m *Message
	switch kind {
	case websocket.TextMessage:
		m, err = DecodeMessage(data)
	case websocket.BinaryMessage:
		m, err = DecodeBinaryFrame(data)
	default:
		err = &DecodeError{Err: fmt.Errorf("unexpected frame kind %d", kind)}
	}
	if err != nil {
		r.collector.IncMessageDecodeError()
		return nil, err
	}
	r.collector.IncMessageReceived()
	return m, nil
}

// All returns a lazy sequence of inbound messages. Decode errors are
// yielded and the sequence continues. It ends silently on a local or
// normal remote close, and after yielding any other error.
func (r *Receiver) All() iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for {
			m, err := r.Recv()
			if errors.Is(err, io.EOF) || errors.Is(err, ErrChannelClosed) {
				return
			}
			if !yield(m, err) {
				return
			}
			var de *DecodeError
			if err != nil && !errors.As(err, &de) {
				return
			}
		}
	}
}

// Close closes the whole channel.
func (r *Receiver) Close() error {
	return r.c.close()
}

// Connector opens kernel channels.
type Connector struct {
	dialer    Dialer
	header    http.Header
	logger    *log.Logger
	collector *metrics.Collector
}

// NewConnector creates a connector. header carries extra handshake headers
// (e.g. User-Agent) and may be nil. logger and collector may be nil.
func NewConnector(dialer Dialer, header http.Header, logger *log.Logger, collector *metrics.Collector) *Connector {
	return &Connector{
		dialer:    dialer,
		header:    header,
		logger:    log.OrNop(logger),
		collector: collector,
	}
}

// Connect opens the channel to kernel and splits it into send and receive
// halves sharing one connection. Closing either half closes both.
func (c *Connector) Connect(ctx context.Context, env types.EnvironmentHandle, kernel types.KernelHandle, sessionID string) (*Sender, *Receiver, error) {
	endpoint, err := ChannelURL(env, kernel.ID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	header := c.header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", AuthorizationHeader(env))

	ws, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			body, _ := iox.ReadAllLimit(resp.Body, maxResponseBody)
			iox.DiscardClose(resp.Body)
			return nil, nil, fmt.Errorf("connect kernel channel: status %d: %s: %w", resp.StatusCode, body, err)
		}
		return nil, nil, fmt.Errorf("connect kernel channel: %w", err)
	}

	c.collector.IncChannelOpened()
	c.logger.Info("kernel channel open", map[string]any{
		"kernel_id":  kernel.ID,
		"session_id": sessionID,
	})

	shared := &conn{ws: ws, logger: c.logger, closed: make(chan struct{})}
	return &Sender{c: shared, collector: c.collector}, &Receiver{c: shared, collector: c.collector}, nil
}
