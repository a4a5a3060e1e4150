package types //nolint:revive // types is a valid package name

import "testing"

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in   string
		want Phase
	}{
		{"waiting", PhaseWaiting},
		{"Building", PhaseBuilding},
		{"BUILT", PhaseBuilt},
		{"fetching", PhaseFetching},
		{"launching", PhaseLaunching},
		{"ready", PhaseReady},
		{"failed", PhaseFailed},
		{" ready ", PhaseReady},
		{"unknown", PhaseUnknown},
		{"pushing", PhaseUnknown},
		{"", PhaseUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParsePhase(tt.in); got != tt.want {
				t.Errorf("ParsePhase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhase_IsTerminal(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseReady, true},
		{PhaseFailed, true},
		{PhaseWaiting, false},
		{PhaseBuilding, false},
		{PhaseBuilt, false},
		{PhaseFetching, false},
		{PhaseLaunching, false},
		{PhaseUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			if got := tt.phase.IsTerminal(); got != tt.want {
				t.Errorf("Phase(%q).IsTerminal() = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestPhaseEvent_Environment(t *testing.T) {
	ready := PhaseEvent{Phase: PhaseReady, URL: "https://env.example/x", Token: "abc"}
	env, ok := ready.Environment()
	if !ok {
		t.Fatal("Environment() ok = false for ready event")
	}
	if env.BaseURL != "https://env.example/x" || env.Token != "abc" {
		t.Errorf("Environment() = %+v", env)
	}

	building := PhaseEvent{Phase: PhaseBuilding, URL: "https://env.example/x"}
	if _, ok := building.Environment(); ok {
		t.Error("Environment() ok = true for non-ready event")
	}
}

func TestEnvironmentHandle_Validate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://env.example/x", false},
		{"http://127.0.0.1:8888/", false},
		{"", true},
		{"ftp://env.example/", true},
		{"/relative/path", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := EnvironmentHandle{BaseURL: tt.url}.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestEnvironmentHandle_RedactedToken(t *testing.T) {
	if got := (EnvironmentHandle{Token: "abcdef123456"}).RedactedToken(); got != "****3456" {
		t.Errorf("RedactedToken() = %q", got)
	}
	if got := (EnvironmentHandle{Token: "abc"}).RedactedToken(); got != "****" {
		t.Errorf("RedactedToken() short = %q", got)
	}
}
