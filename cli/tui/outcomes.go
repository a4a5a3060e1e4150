package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/assay/lode"
	"github.com/pithecene-io/assay/types"
)

// OutcomesModel summarizes stored execution outcomes.
type OutcomesModel struct {
	outcomes []lode.OutcomeSummary
	width    int
	quitting bool
}

// NewOutcomesModel creates an outcomes view. data must be []lode.OutcomeSummary.
func NewOutcomesModel(data any) (OutcomesModel, error) {
	outcomes, ok := data.([]lode.OutcomeSummary)
	if !ok {
		return OutcomesModel{}, fmt.Errorf("outcomes view requires outcome summaries, got %T", data)
	}
	return OutcomesModel{outcomes: outcomes}, nil
}

// Init implements tea.Model.
func (m OutcomesModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m OutcomesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m OutcomesModel) View() string {
	if m.quitting {
		return ""
	}
	return RenderOutcomes(m.outcomes) + "\n" + HelpStyle.Render("Press q or Ctrl+C to quit")
}

// RenderOutcomes renders status counts followed by the most recent executions.
func RenderOutcomes(outcomes []lode.OutcomeSummary) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Execution Outcomes"))
	b.WriteString("\n")

	counts := make(map[types.OutcomeStatus]int)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	boxes := []string{statBox("Total", len(outcomes))}
	for _, status := range []types.OutcomeStatus{
		types.OutcomeSuccess, types.OutcomeBuildFailed, types.OutcomeTimeout, types.OutcomeTransportError,
	} {
		boxes = append(boxes, statBox(string(status), counts[status]))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	const recent = 15
	for i, o := range outcomes {
		if i == recent {
			fmt.Fprintf(&b, "%s\n", MutedStyle.Render(fmt.Sprintf("… %d more", len(outcomes)-recent)))
			break
		}
		fmt.Fprintf(&b, "%s  %s  %s  %s\n",
			MutedStyle.Render(o.Ts),
			StateStyle(string(o.Status)).Render(fmt.Sprintf("%-15s", o.Status)),
			ValueStyle.Render(o.ExecutionID),
			MutedStyle.Render(fmt.Sprintf("%dms", o.DurationMs)))
	}
	return b.String()
}

func statBox(label string, n int) string {
	return StatBoxStyle.Render(
		StatValueStyle.Render(fmt.Sprintf("%d", n)) + "\n" + StatLabelStyle.Render(label))
}
