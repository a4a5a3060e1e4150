package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/assay/lode"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/policy"
	"github.com/pithecene-io/assay/trace"
)

// traceSidecarName is the file name of the uploaded trace file.
const traceSidecarName = "trace.msgpack"

// recording owns the trace policy and the destinations behind it.
type recording struct {
	policy    policy.Policy
	traceSink *trace.FileSink
	lode      *lode.LodeClient
}

// storageLabel names the configured destinations for metrics.
func storageLabel(opts *runOptions) string {
	switch {
	case opts.storage.path != "" && opts.tracePath != "":
		return opts.storage.backend + "+file"
	case opts.storage.path != "":
		return opts.storage.backend
	case opts.tracePath != "":
		return "file"
	default:
		return "none"
	}
}

// buildRecording wires the trace file and Lode destinations into a policy.
// Without any destination the policy is noop regardless of the choice.
func buildRecording(ctx context.Context, opts *runOptions, collector *metrics.Collector, logger *log.Logger, start time.Time) (*recording, error) {
	rec := &recording{}
	var sinks []policy.Sink

	if opts.tracePath != "" {
		fs, err := trace.NewFileSink(opts.tracePath)
		if err != nil {
			return nil, err
		}
		rec.traceSink = fs
		sinks = append(sinks, fs)
	}

	if opts.storage.path != "" {
		client, err := newLodeClient(ctx, opts.storage, lode.Config{
			Dataset:     opts.storage.dataset,
			Source:      lode.PartitionSource(opts.source()),
			Day:         lode.DeriveDay(start),
			ExecutionID: opts.executionID,
		})
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("failed to create Lode client: %w", err)
		}
		rec.lode = client
		sinks = append(sinks, lode.NewInstrumentedSink(lode.NewSink(client), collector))
	}

	if len(sinks) == 0 || opts.policy.name == "noop" {
		closeSinks(sinks)
		return &recording{policy: policy.NewNoopPolicy()}, nil
	}

	var sink policy.Sink = sinks[0]
	if len(sinks) > 1 {
		sink = policy.NewMultiSink(sinks...)
	}

	switch opts.policy.name {
	case "buffered":
		cfg := policy.BufferedConfig{
			MaxBufferRecords: opts.policy.bufferRecords,
			MaxBufferBytes:   opts.policy.bufferBytes,
			Logger:           logger,
		}
		if cfg.MaxBufferRecords == 0 && cfg.MaxBufferBytes == 0 {
			def := policy.DefaultBufferedConfig()
			cfg.MaxBufferRecords, cfg.MaxBufferBytes = def.MaxBufferRecords, def.MaxBufferBytes
		}
		pol, err := policy.NewBufferedPolicy(sink, cfg)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		rec.policy = pol
	default:
		rec.policy = policy.NewStrictPolicy(sink)
	}
	return rec, nil
}

// uploadTrace stores the closed trace file next to the execution's records.
func (r *recording) uploadTrace(ctx context.Context) error {
	if r.traceSink == nil || r.lode == nil {
		return nil
	}
	data, err := os.ReadFile(r.traceSink.Path())
	if err != nil {
		return fmt.Errorf("read trace file: %w", err)
	}
	return r.lode.PutFile(ctx, traceSidecarName, "application/msgpack", data)
}

// storageURI describes where the execution's records live.
func (r *recording) storageURI(storage storageChoice) string {
	if r.lode == nil {
		if r.traceSink != nil {
			return "file://" + r.traceSink.Path()
		}
		return ""
	}
	dir := strings.TrimSuffix(r.lode.FilePath(traceSidecarName), "/files/"+traceSidecarName)
	if storage.backend == "s3" {
		return "s3://" + storage.path + "/" + dir
	}
	return "file://" + storage.path + "/" + dir
}

func newLodeClient(ctx context.Context, storage storageChoice, cfg lode.Config) (*lode.LodeClient, error) {
	switch storage.backend {
	case "fs", "":
		return lode.NewLodeClient(cfg, storage.path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, s3Config(storage))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be fs or s3)", storage.backend)
	}
}

// openDataset opens the read side of the configured storage.
func openDataset(ctx context.Context, storage storageChoice) (lodelib.Dataset, error) {
	if storage.path == "" {
		return nil, fmt.Errorf("--storage-path is required")
	}
	switch storage.backend {
	case "fs", "":
		return lode.NewReadDatasetFS(storage.dataset, storage.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, storage.dataset, s3Config(storage))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be fs or s3)", storage.backend)
	}
}

func s3Config(storage storageChoice) lode.S3Config {
	bucket, prefix := lode.ParseS3Path(storage.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       storage.region,
		Endpoint:     storage.endpoint,
		UsePathStyle: storage.pathStyle,
	}
}

func closeSinks(sinks []policy.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}
