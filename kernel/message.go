// Package kernel launches a compute kernel inside a ready environment and
// talks to it over the kernel session channel.
//
// Messages follow the Jupyter messaging protocol (v5.3) carried as JSON
// websocket frames. Only the content kinds the execution flow inspects are
// decoded into typed values; every other kind is kept as Unknown.
package kernel

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the messaging protocol version sent in every header.
const ProtocolVersion = "5.3"

// DefaultUsername is the header username for requests we originate.
const DefaultUsername = "assay"

// Message types.
const (
	MsgTypeExecuteRequest = "execute_request"
	MsgTypeExecuteResult  = "execute_result"
	MsgTypeExecuteReply   = "execute_reply"
	MsgTypeStatus         = "status"
	MsgTypeStream         = "stream"
	MsgTypeError          = "error"
)

// Channel names.
const (
	ChannelShell = "shell"
	ChannelIOPub = "iopub"
)

// Header identifies a message.
type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

// Content is the typed payload of a message.
// Implementations: *ExecuteRequest, *ExecuteResult, *Status, *Stream,
// *ErrorContent, *ExecuteReply, *Unknown.
type Content interface {
	MsgType() string
}

// Message is one session protocol envelope.
type Message struct {
	Header       Header
	ParentHeader Header
	Metadata     map[string]any
	Content      Content
	Channel      string
}

// ParentMsgID returns the msg_id of the request this message answers, if any.
func (m *Message) ParentMsgID() string {
	return m.ParentHeader.MsgID
}

// ExecuteRequest asks the kernel to run code.
type ExecuteRequest struct {
	Code         string `json:"code"`
	Silent       bool   `json:"silent"`
	StoreHistory bool   `json:"store_history"`
	// UserExpressions is omitted when nil.
	UserExpressions map[string]string `json:"user_expressions,omitempty"`
	AllowStdin      bool              `json:"allow_stdin"`
	StopOnError     bool              `json:"stop_on_error"`
}

func (*ExecuteRequest) MsgType() string { return MsgTypeExecuteRequest }

// MimeBundle maps MIME types to representations.
type MimeBundle map[string]any

// PlainText returns the text/plain representation.
// Multi-line values sent as string arrays are joined.
func (b MimeBundle) PlainText() (string, bool) {
	switch v := b["text/plain"].(type) {
	case string:
		return v, true
	case []any:
		var sb strings.Builder
		for _, part := range v {
			s, ok := part.(string)
			if !ok {
				return "", false
			}
			sb.WriteString(s)
		}
		return sb.String(), true
	default:
		return "", false
	}
}

// ExecuteResult carries the value of the last expression.
type ExecuteResult struct {
	ExecutionCount int            `json:"execution_count"`
	Data           MimeBundle     `json:"data"`
	Metadata       map[string]any `json:"metadata"`
}

func (*ExecuteResult) MsgType() string { return MsgTypeExecuteResult }

// ExecutionState is the kernel's reported state.
type ExecutionState string

const (
	StateIdle     ExecutionState = "idle"
	StateBusy     ExecutionState = "busy"
	StateStarting ExecutionState = "starting"
)

// Status reports a kernel state change.
type Status struct {
	ExecutionState ExecutionState `json:"execution_state"`
}

func (*Status) MsgType() string { return MsgTypeStatus }

// Stream carries stdout/stderr output.
type Stream struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (*Stream) MsgType() string { return MsgTypeStream }

// ErrorContent reports an exception raised by executed code.
type ErrorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

func (*ErrorContent) MsgType() string { return MsgTypeError }

// ExecuteReply acknowledges an execute request.
type ExecuteReply struct {
	Status         string `json:"status"`
	ExecutionCount int    `json:"execution_count"`
	EName          string `json:"ename,omitempty"`
	EValue         string `json:"evalue,omitempty"`
}

func (*ExecuteReply) MsgType() string { return MsgTypeExecuteReply }

// Unknown holds any content kind not decoded above.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (u *Unknown) MsgType() string { return u.Type }

// DecodeError reports an inbound frame that could not be decoded.
// Recoverable: the channel stays usable.
type DecodeError struct {
	MsgType string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.MsgType == "" {
		return fmt.Sprintf("decode session message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s content: %v", e.MsgType, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type wireMessage struct {
	Header       Header          `json:"header"`
	ParentHeader json.RawMessage `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Buffers      []any           `json:"buffers"`
	Channel      string          `json:"channel,omitempty"`
}

// EncodeMessage serializes m as a JSON text frame.
func EncodeMessage(m *Message) ([]byte, error) {
	if m.Content == nil {
		return nil, errors.New("message has no content")
	}

	var content []byte
	var err error
	if u, ok := m.Content.(*Unknown); ok {
		content = u.Raw
	} else if content, err = json.Marshal(m.Content); err != nil {
		return nil, fmt.Errorf("encode %s content: %w", m.Content.MsgType(), err)
	}

	parent := json.RawMessage("{}")
	if m.ParentHeader != (Header{}) {
		if parent, err = json.Marshal(m.ParentHeader); err != nil {
			return nil, err
		}
	}

	metadata := m.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return json.Marshal(wireMessage{
		Header:       m.Header,
		ParentHeader: parent,
		Metadata:     metadata,
		Content:      content,
		Buffers:      []any{},
		Channel:      m.Channel,
	})
}

// DecodeMessage parses a JSON text frame.
func DecodeMessage(data []byte) (*Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if w.Header.MsgType == "" {
		return nil, &DecodeError{Err: errors.New("header has no msg_type")}
	}

	m := &Message{
		Header:   w.Header,
		Metadata: w.Metadata,
		Channel:  w.Channel,
	}
	if len(w.ParentHeader) > 0 && string(w.ParentHeader) != "null" {
		if err := json.Unmarshal(w.ParentHeader, &m.ParentHeader); err != nil {
			return nil, &DecodeError{MsgType: w.Header.MsgType, Err: fmt.Errorf("parent_header: %w", err)}
		}
	}

	content, err := decodeContent(w.Header.MsgType, w.Content)
	if err != nil {
		return nil, &DecodeError{MsgType: w.Header.MsgType, Err: err}
	}
	m.Content = content
	return m, nil
}

func decodeContent(msgType string, raw json.RawMessage) (Content, error) {
	var c Content
	switch msgType {
	case MsgTypeExecuteRequest:
		c = &ExecuteRequest{}
	case MsgTypeExecuteResult:
		c = &ExecuteResult{}
	case MsgTypeStatus:
		c = &Status{}
	case MsgTypeStream:
		c = &Stream{}
	case MsgTypeError:
		c = &ErrorContent{}
	case MsgTypeExecuteReply:
		c = &ExecuteReply{}
	default:
		return &Unknown{Type: msgType, Raw: raw}, nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return c, nil
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeBinaryFrame parses a binary frame: a big-endian uint32 part count,
// that many uint32 offsets, then the parts. The first part is the JSON
// message; the rest are attached buffers, which are discarded.
func DecodeBinaryFrame(data []byte) (*Message, error) {
	if len(data) < 8 {
		return nil, &DecodeError{Err: errors.New("binary frame too short")}
	}
	n := int(binary.BigEndian.Uint32(data[:4]))
	if n < 1 || 4+4*n > len(data) {
		return nil, &DecodeError{Err: fmt.Errorf("binary frame has invalid part count %d", n)}
	}
	start := int(binary.BigEndian.Uint32(data[4:8]))
	end := len(data)
	if n > 1 {
		end = int(binary.BigEndian.Uint32(data[8:12]))
	}
	if start < 4+4*n || start > end || end > len(data) {
		return nil, &DecodeError{Err: errors.New("binary frame has invalid offsets")}
	}
	return DecodeMessage(data[start:end])
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewMessage builds an outbound message with a fresh msg_id.
func NewMessage(session string, channel string, content Content) *Message {
	return &Message{
		Header: Header{
			MsgID:    uuid.NewString(),
			MsgType:  content.MsgType(),
			Session:  session,
			Username: DefaultUsername,
			Date:     time.Now().UTC().Format(time.RFC3339Nano),
			Version:  ProtocolVersion,
		},
		Metadata: map[string]any{},
		Content:  content,
		Channel:  channel,
	}
}

// NewExecuteRequest builds the single execute request the flow sends:
// no history, no stdin, no stop-on-error, not silent, no user expressions.
func NewExecuteRequest(session, code string) *Message {
	return NewMessage(session, ChannelShell, &ExecuteRequest{
		Code:         code,
		Silent:       false,
		StoreHistory: false,
		AllowStdin:   false,
		StopOnError:  false,
	})
}
