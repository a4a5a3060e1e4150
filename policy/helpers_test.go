package policy_test

import "github.com/pithecene-io/assay/types"

func rec(kind types.TraceKind, seq int64) *types.TraceRecord {
	return &types.TraceRecord{
		FormatVersion: types.TraceFormatVersion,
		ExecutionID:   "exec-1",
		Seq:           seq,
		Kind:          kind,
	}
}
