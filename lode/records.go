package lode

import (
	"strings"

	"github.com/pithecene-io/assay/types"
)

// sourceReplacer makes a source label safe as a single path segment.
var sourceReplacer = strings.NewReplacer("/", "_", "=", "_", " ", "_", "\\", "_")

// PartitionSource returns source as a partition value.
// gh/binder-examples/conda_environment/HEAD becomes gh_binder-examples_conda_environment_HEAD.
func PartitionSource(source string) string {
	if source == "" {
		return "unknown"
	}
	return sourceReplacer.Replace(source)
}

// toRecordMap converts a trace record to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any carrying every partition key.
func toRecordMap(rec *types.TraceRecord, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind":    string(rec.Kind), // partition key
		"format_version": rec.FormatVersion,
		"execution_id":   cfg.ExecutionID, // partition key
		"seq":            rec.Seq,
		"ts":             rec.Ts,
		"source":         cfg.Source, // partition key
		"day":            cfg.Day,    // partition key
	}
	if rec.Phase != "" {
		m["phase"] = string(rec.Phase)
	}
	if rec.MsgType != "" {
		m["msg_type"] = rec.MsgType
	}
	if rec.Direction != "" {
		m["direction"] = rec.Direction
	}
	if rec.Payload != nil {
		m["payload"] = rec.Payload
	}
	return m
}
