// Package build watches a build service event stream until the environment
// is ready or the build fails.
//
// The stream is line oriented. Each line is one of:
//   - empty, the keepalive sentinel, or a comment (":" prefix): skipped
//   - an optional "data:" field prefix followed by a JSON phase record
//
// Reader turns lines into types.PhaseEvent values, Machine folds events into
// a terminal outcome, and Watcher drives both over an HTTP response body.
package build

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/pithecene-io/assay/types"
)

const (
	// KeepaliveSentinel is the literal line the build service sends to hold the connection open.
	KeepaliveSentinel = ":keepalive"
	// CommentPrefix marks event-stream comment lines.
	CommentPrefix = ":"
	// DataPrefix is the event-stream field name stripped before decoding.
	DataPrefix = "data:"
	// MaxLineSize bounds a single stream line (1 MiB).
	MaxLineSize = 1024 * 1024
)

// ErrMissingPhase is wrapped by ParseError when a record has no phase field.
var ErrMissingPhase = errors.New("record has no phase")

// ErrReadyWithoutURL is wrapped by ParseError when a ready record carries no url.
var ErrReadyWithoutURL = errors.New("ready record has no url")

// ParseError reports a stream line that could not be decoded.
// It is informational: the stream continues past it.
type ParseError struct {
	// Line is the offending line as received.
	Line string
	// LineNo is the 1-based line number within the stream.
	LineNo int
	// Err is the underlying decode error.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.LineNo, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// record is the wire shape of one phase line.
type record struct {
	Phase     *string `json:"phase"`
	Message   string  `json:"message"`
	URL       string  `json:"url"`
	Token     string  `json:"token"`
	Image     string  `json:"image"`
	ImageName string  `json:"imageName"`
}

// ParseLine decodes one stream line.
// skip is true for lines that carry no event (empty, keepalive, comment).
// Decode failures return a *ParseError with LineNo 0.
func ParseLine(line string) (ev types.PhaseEvent, skip bool, err error) {
	trimmed := strings.TrimRight(line, "\r")
	if strings.TrimSpace(trimmed) == "" ||
		trimmed == KeepaliveSentinel ||
		strings.HasPrefix(trimmed, CommentPrefix) {
		return types.PhaseEvent{}, true, nil
	}

	payload := trimmed
	if rest, ok := strings.CutPrefix(payload, DataPrefix); ok {
		payload = strings.TrimPrefix(rest, " ")
	}

	var rec record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return types.PhaseEvent{}, false, &ParseError{Line: line, Err: err}
	}
	if rec.Phase == nil {
		return types.PhaseEvent{}, false, &ParseError{Line: line, Err: ErrMissingPhase}
	}

	ev = types.PhaseEvent{
		Phase:   types.ParsePhase(*rec.Phase),
		Message: rec.Message,
	}
	switch ev.Phase {
	case types.PhaseReady:
		if rec.URL == "" {
			return types.PhaseEvent{}, false, &ParseError{Line: line, Err: ErrReadyWithoutURL}
		}
		ev.URL = rec.URL
		ev.Token = rec.Token
		ev.Image = rec.Image
	case types.PhaseBuilt:
		ev.ImageName = rec.ImageName
	}
	return ev, false, nil
}

// Reader produces phase events from a line-oriented stream.
// Not safe for concurrent use.
type Reader struct {
	scanner *bufio.Scanner
	lineNo  int
}

// NewReader creates a reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next event.
//
// Errors:
//   - *ParseError: the line was malformed; call Next again to continue
//   - io.EOF: the stream ended
//   - anything else: the underlying read failed (transport error)
func (r *Reader) Next() (types.PhaseEvent, error) {
	for r.scanner.Scan() {
		r.lineNo++
		ev, skip, err := ParseLine(r.scanner.Text())
		if skip {
			continue
		}
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.LineNo = r.lineNo
			}
			return types.PhaseEvent{}, err
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return types.PhaseEvent{}, fmt.Errorf("read build stream: %w", err)
	}
	return types.PhaseEvent{}, io.EOF
}

// LineNo returns the number of lines consumed so far.
func (r *Reader) LineNo() int {
	return r.lineNo
}

// All returns a lazy sequence of events and parse errors.
// The sequence continues past a *ParseError, ends at EOF, and ends after
// yielding a read error.
func (r *Reader) All() iter.Seq2[types.PhaseEvent, error] {
	return func(yield func(types.PhaseEvent, error) bool) {
		for {
			ev, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(ev, err) {
				return
			}
			if err != nil && !IsParseError(err) {
				return
			}
		}
	}
}

// IsParseError returns true if err is a recoverable line decode error.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
