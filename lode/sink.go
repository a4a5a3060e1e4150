// Package lode persists execution traces to a Lode dataset.
//
// Records are Hive-partitioned by source/day/execution_id/record_kind and
// stored as JSONL segments on the filesystem or S3. The trace file of an
// execution can be uploaded next to its records as a sidecar.
package lode

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/assay/policy"
	"github.com/pithecene-io/assay/types"
)

// DefaultDataset is the Lode dataset ID.
const DefaultDataset = "assay"

// DeriveDay computes the partition day from the execution start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds Lode sink configuration. All partition keys are required.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source is the partition value for what was executed (see PartitionSource).
	Source string
	// Day is the partition key derived from start time (YYYY-MM-DD UTC).
	Day string
	// ExecutionID is the partition key for the execution.
	ExecutionID string
}

// Validate checks that every partition key is set.
func (c Config) Validate() error {
	switch {
	case c.Dataset == "":
		return errors.New("lode dataset is required")
	case c.Source == "":
		return errors.New("lode source is required")
	case c.Day == "":
		return errors.New("lode day is required")
	case c.ExecutionID == "":
		return errors.New("lode execution_id is required")
	}
	return nil
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteRecords writes a batch of trace records.
	// Must preserve ordering within the batch.
	WriteRecords(ctx context.Context, records []*types.TraceRecord) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a new Lode sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteRecords implements policy.Sink.
func (s *Sink) WriteRecords(ctx context.Context, records []*types.TraceRecord) error {
	return s.client.WriteRecords(ctx, records)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ policy.Sink = (*Sink)(nil)

// StubClient is a test client that accepts writes without persisting.
type StubClient struct {
	mu      sync.Mutex
	Batches [][]*types.TraceRecord
	Closed  bool
	// Err, if set, is returned by WriteRecords.
	Err error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteRecords implements Client.
func (c *StubClient) WriteRecords(_ context.Context, records []*types.TraceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Batches = append(c.Batches, records)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
