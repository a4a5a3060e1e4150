package lode

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/assay/types"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// Filter narrows a query. Empty fields match everything.
type Filter struct {
	// Source is a partition source value (see PartitionSource).
	Source string
	// Day is a YYYY-MM-DD partition day.
	Day string
	// ExecutionID selects a single execution.
	ExecutionID string
}

func (f Filter) matchesSnapshot(snap *lode.DatasetSnapshot, kind types.TraceKind) bool {
	return snapshotMatchesFilter(snap, "record_kind", string(kind)) &&
		snapshotMatchesFilter(snap, "source", f.Source) &&
		snapshotMatchesFilter(snap, "day", f.Day) &&
		snapshotMatchesFilter(snap, "execution_id", f.ExecutionID)
}

// Manifest path filtering is a coarse pre-filter; record fields are
// authoritative since one snapshot may hold several kinds and executions.
func (f Filter) matchesRecord(record map[string]any, kind types.TraceKind) bool {
	if toString(record["record_kind"]) != string(kind) {
		return false
	}
	if f.Source != "" && toString(record["source"]) != f.Source {
		return false
	}
	if f.Day != "" && toString(record["day"]) != f.Day {
		return false
	}
	if f.ExecutionID != "" && toString(record["execution_id"]) != f.ExecutionID {
		return false
	}
	return true
}

// QueryLatestMetrics finds the most recent metrics record matching filter.
// Returns the raw record map or ErrNoMetricsFound.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, filter Filter) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	// Snapshots are ordered by creation time; latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !filter.matchesSnapshot(snap, types.TraceKindMetrics) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if ok && filter.matchesRecord(record, types.TraceKindMetrics) {
				return record, nil
			}
		}
	}

	return nil, ErrNoMetricsFound
}

// OutcomeSummary is one stored execution outcome.
type OutcomeSummary struct {
	ExecutionID string              `json:"execution_id" yaml:"execution_id"`
	Source      string              `json:"source" yaml:"source"`
	Day         string              `json:"day" yaml:"day"`
	Ts          string              `json:"ts" yaml:"ts"`
	Status      types.OutcomeStatus `json:"status" yaml:"status"`
	Message     string              `json:"message" yaml:"message"`
	DurationMs  int64               `json:"duration_ms" yaml:"duration_ms"`
	Text        string              `json:"text,omitempty" yaml:"text,omitempty"`
}

// ListOutcomes returns the outcome of every stored execution matching
// filter, newest first. Each execution appears once.
func ListOutcomes(ctx context.Context, ds lode.Dataset, filter Filter) ([]OutcomeSummary, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	seen := make(map[string]struct{})
	var out []OutcomeSummary
	for _, snap := range snapshots {
		if !filter.matchesSnapshot(snap, types.TraceKindOutcome) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !filter.matchesRecord(record, types.TraceKindOutcome) {
				continue
			}
			id := toString(record["execution_id"])
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, outcomeFromRecord(record))
		}
	}

	slices.SortStableFunc(out, func(a, b OutcomeSummary) int {
		return cmp.Compare(b.Ts, a.Ts)
	})
	return out, nil
}

func outcomeFromRecord(record map[string]any) OutcomeSummary {
	s := OutcomeSummary{
		ExecutionID: toString(record["execution_id"]),
		Source:      toString(record["source"]),
		Day:         toString(record["day"]),
		Ts:          toString(record["ts"]),
	}
	if payload, ok := record["payload"].(map[string]any); ok {
		s.Status = types.OutcomeStatus(toString(payload["status"]))
		s.Message = toString(payload["message"])
		s.DurationMs = toInt64(payload["duration_ms"])
		s.Text = toString(payload["text"])
	}
	return s
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 converts a decoded JSON number to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
