package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/assay/trace"
	"github.com/pithecene-io/assay/types"
)

// headerLines is the height reserved above the viewport.
const headerLines = 4

// TraceModel is a scrollable viewer for an execution trace.
type TraceModel struct {
	records  []*types.TraceRecord
	viewport viewport.Model
	ready    bool
	quitting bool
}

// NewTraceModel creates a trace viewer. data must be []*types.TraceRecord.
func NewTraceModel(data any) (TraceModel, error) {
	records, ok := data.([]*types.TraceRecord)
	if !ok {
		return TraceModel{}, fmt.Errorf("trace view requires trace records, got %T", data)
	}
	return TraceModel{records: records}, nil
}

// Init implements tea.Model.
func (m TraceModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m TraceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-headerLines-2, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.SetContent(m.body())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, keys.End):
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m TraceModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}
	help := HelpStyle.Render(fmt.Sprintf("%d%%  ↑/↓ scroll  g/G top/bottom  q quit",
		int(m.viewport.ScrollPercent()*100)))
	return m.header() + "\n" + m.viewport.View() + "\n" + help
}

func (m TraceModel) header() string {
	execID, status := "-", "incomplete"
	if len(m.records) > 0 {
		execID = m.records[0].ExecutionID
		if last := m.records[len(m.records)-1]; last.IsTerminal() {
			if s, ok := last.Payload["status"].(string); ok {
				status = s
			}
		}
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Execution Trace"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s  %s %s  %s %d",
		LabelStyle.Render("Execution:"), ValueStyle.Render(execID),
		MutedStyle.Render("outcome"), StateStyle(status).Render(status),
		MutedStyle.Render("records"), len(m.records))
	return b.String()
}

func (m TraceModel) body() string {
	return RenderTraceLines(m.records)
}

// RenderTraceLines renders one styled line per record.
func RenderTraceLines(records []*types.TraceRecord) string {
	var b strings.Builder
	for _, rec := range records {
		kind := fmt.Sprintf("%-11s", rec.Kind)
		style := ValueStyle
		switch rec.Kind {
		case types.TraceKindPhase:
			style = StateStyle(string(rec.Phase))
		case types.TraceKindParseError:
			style = WarningStyle
		case types.TraceKindOutcome:
			status, _ := rec.Payload["status"].(string)
			style = StateStyle(status)
		case types.TraceKindMetrics:
			style = MutedStyle
		}
		fmt.Fprintf(&b, "%s %s %s %s\n",
			MutedStyle.Render(fmt.Sprintf("%4d", rec.Seq)),
			MutedStyle.Render(rec.Ts),
			style.Render(kind),
			trace.Summary(rec))
	}
	return b.String()
}
