package trace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pithecene-io/assay/iox"
	"github.com/pithecene-io/assay/types"
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("trace sink closed")

// FileSink appends trace records to a msgpack trace file.
// It satisfies policy.Sink.
type FileSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	enc    *FrameEncoder
	closed bool
}

// NewFileSink creates (or truncates) the trace file at path.
// Missing parent directories are created.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create trace directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &FileSink{path: path, file: f, buf: buf, enc: NewFrameEncoder(buf)}, nil
}

// Path returns the trace file path.
func (s *FileSink) Path() string {
	return s.path
}

// WriteRecords appends the batch and flushes it to the file.
func (s *FileSink) WriteRecords(_ context.Context, records []*types.TraceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	for _, rec := range records {
		if err := s.enc.WriteRecord(rec); err != nil {
			return fmt.Errorf("write trace record seq=%d: %w", rec.Seq, err)
		}
	}
	return s.buf.Flush()
}

// Close flushes and closes the file. Safe to call more than once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.buf.Flush(); err != nil {
		iox.DiscardClose(s.file)
		return err
	}
	return s.file.Close()
}

// ReadAll decodes every record from r until EOF.
// A trailing partial frame is reported along with the records read so far.
func ReadAll(r io.Reader) ([]*types.TraceRecord, error) {
	dec := NewFrameDecoder(r)
	var records []*types.TraceRecord
	for {
		rec, err := dec.ReadRecord()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// ReadFile decodes every record in the trace file at path.
func ReadFile(path string) ([]*types.TraceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)
	return ReadAll(bufio.NewReader(f))
}
