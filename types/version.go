package types

// Version is the canonical project version.
// The CLI, the trace format, and the completion event payload share this version.
const Version = "0.1.0"

// TraceFormatVersion is the version stamped on every trace record.
// Lockstep with Version.
const TraceFormatVersion = Version
