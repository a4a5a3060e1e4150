package render

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/assay/cli/tui"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/runtime"
	"github.com/pithecene-io/assay/types"
)

// Progress prints execution progress lines. It implements runtime.Reporter.
// Safe for concurrent use: kernel status arrives from the receive loop.
type Progress struct {
	mu        sync.Mutex
	out       io.Writer
	noColor   bool
	start     time.Time
	now       func() time.Time
	lastPhase types.Phase
	lastState kernel.ExecutionState
}

// NewProgress creates a progress printer writing to out.
func NewProgress(out io.Writer, noColor bool) *Progress {
	return &Progress{out: out, noColor: noColor, start: time.Now(), now: time.Now}
}

// Phase prints a build phase. Repeated phases print only when they carry a message.
func (p *Progress) Phase(ev types.PhaseEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Phase == p.lastPhase && ev.Message == "" {
		return
	}
	p.lastPhase = ev.Phase

	line := p.style(tui.StateStyle(string(ev.Phase)), fmt.Sprintf("%-10s", ev.Phase))
	switch {
	case ev.Phase == types.PhaseReady:
		line += " " + ev.URL
	case ev.Message != "":
		line += " " + firstLine(ev.Message)
	}
	p.printLocked("build", line)
}

// KernelLaunched prints the launched kernel.
func (p *Progress) KernelLaunched(k types.KernelHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printLocked("kernel", fmt.Sprintf("launched %s (%s)", k.ID, k.Name))
}

// KernelStatus prints kernel state changes.
func (p *Progress) KernelStatus(state kernel.ExecutionState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state == p.lastState {
		return
	}
	p.lastState = state
	p.printLocked("kernel", p.style(tui.StateStyle(string(state)), string(state)))
}

// Outcome prints the final outcome line.
func (p *Progress) Outcome(result *runtime.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if result == nil || result.Outcome == nil {
		return
	}
	status := string(result.Outcome.Status)
	line := p.style(tui.StateStyle(status), status)
	if result.Outcome.Message != "" {
		line += " " + result.Outcome.Message
	}
	p.printLocked("outcome", line)
	if result.HasText {
		fmt.Fprintln(p.out, result.Text)
	}
}

func (p *Progress) printLocked(section, line string) {
	elapsed := p.now().Sub(p.start).Truncate(100 * time.Millisecond)
	prefix := p.style(tui.MutedStyle, fmt.Sprintf("[%6s] %-7s", elapsed, section))
	fmt.Fprintf(p.out, "%s %s\n", prefix, line)
}

func (p *Progress) style(s lipgloss.Style, text string) string {
	if p.noColor {
		return text
	}
	return s.Render(text)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}

var _ runtime.Reporter = (*Progress)(nil)
