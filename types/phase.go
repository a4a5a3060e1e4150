// Package types defines core domain types for the assay runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import "strings"

// Phase is a named stage of the build service provisioning pipeline.
type Phase string

// Phase constants as reported by the build service.
const (
	PhaseWaiting   Phase = "waiting"
	PhaseBuilding  Phase = "building"
	PhaseBuilt     Phase = "built"
	PhaseFetching  Phase = "fetching"
	PhaseLaunching Phase = "launching"
	PhaseReady     Phase = "ready"
	PhaseFailed    Phase = "failed"
	PhaseUnknown   Phase = "unknown"
)

// ParsePhase maps a wire phase name onto the closed Phase set.
// Matching is case-insensitive; anything unrecognized is PhaseUnknown.
func ParsePhase(s string) Phase {
	switch p := Phase(strings.ToLower(strings.TrimSpace(s))); p {
	case PhaseWaiting, PhaseBuilding, PhaseBuilt, PhaseFetching,
		PhaseLaunching, PhaseReady, PhaseFailed:
		return p
	default:
		return PhaseUnknown
	}
}

// IsTerminal returns true if no further phase events are expected after p.
func (p Phase) IsTerminal() bool {
	return p == PhaseReady || p == PhaseFailed
}

// PhaseEvent is one decoded line of the build stream.
//
// Phase is the discriminator. Which fields are meaningful depends on it:
//   - Ready: URL and Token (Image optional)
//   - Built: Message and optional ImageName
//   - Failed: optional Message
//   - everything else: Message
//
// PhaseEvent is comparable; decoding the same line twice yields equal values.
type PhaseEvent struct {
	Phase     Phase
	Message   string
	URL       string
	Token     string
	Image     string
	ImageName string
}

// IsTerminal returns true if the event ends the build watch.
func (e PhaseEvent) IsTerminal() bool {
	return e.Phase.IsTerminal()
}

// Environment returns the handle carried by a Ready event.
// ok is false for every other phase.
func (e PhaseEvent) Environment() (env EnvironmentHandle, ok bool) {
	if e.Phase != PhaseReady {
		return EnvironmentHandle{}, false
	}
	return EnvironmentHandle{BaseURL: e.URL, Token: e.Token}, true
}
