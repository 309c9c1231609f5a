package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fluxcore/fluxcore/internal/statsdump"
)

// Status mirrors the loop's coarse lifecycle state for display.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusStopped:
		return "Stopped"
	default:
		return "Idle"
	}
}

// SnapshotSource supplies the current run snapshot, typically backed by an
// internal/ownerloop.Loop plus its scheduler's Stats().
type SnapshotSource func() statsdump.Snapshot

// TickMsg drives the periodic refresh.
type TickMsg time.Time

// Dashboard is the bubbletea model for the terminal dashboard.
type Dashboard struct {
	width, height int
	status        Status
	source        SnapshotSource
	last          statsdump.Snapshot
	tickEvery     time.Duration
}

// NewDashboard creates a Dashboard that polls source every tickEvery.
func NewDashboard(source SnapshotSource, tickEvery time.Duration) *Dashboard {
	if tickEvery <= 0 {
		tickEvery = 500 * time.Millisecond
	}
	return &Dashboard{width: 80, height: 24, status: StatusIdle, source: source, tickEvery: tickEvery}
}

func (d *Dashboard) tickCmd() tea.Cmd {
	return tea.Tick(d.tickEvery, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (d *Dashboard) Init() tea.Cmd {
	d.status = StatusRunning
	return tea.Batch(d.tickCmd(), tea.EnterAltScreen)
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			d.status = StatusStopped
			return d, tea.Quit
		}

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height

	case TickMsg:
		d.last = d.source()
		return d, d.tickCmd()
	}

	return d, nil
}

func (d *Dashboard) View() string {
	if d.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(d.renderHeader())
	b.WriteString("\n")
	b.WriteString(d.renderStats())
	b.WriteString("\n")
	b.WriteString(d.renderFooter())
	return b.String()
}

func (d *Dashboard) renderHeader() string {
	title := TitleStyle.Render("fluxcore")

	var statusText string
	switch d.status {
	case StatusRunning:
		statusText = RunningStyle.Render("● RUNNING")
	case StatusStopped:
		statusText = StoppedStyle.Render("■ STOPPED")
	default:
		statusText = WarnStyle.Render("○ IDLE")
	}

	return HeaderStyle.Width(d.width - 2).Render(title + "  " + statusText)
}

func (d *Dashboard) renderStats() string {
	s := d.last
	lines := []string{
		RenderLabelValue("Executions", fmt.Sprintf("%d", s.Loop.Executions)),
		RenderLabelValue("Interesting", fmt.Sprintf("%d", s.Loop.InterestingInputs)),
		RenderLabelValue("Crashes", CrashStyle.Render(fmt.Sprintf("%d", s.Loop.Crashes))),
		RenderLabelValue("Timeouts", fmt.Sprintf("%d", s.Loop.Timeouts)),
		RenderLabelValue("Scheduler", s.Scheduler.Kind),
		RenderLabelValue("Corpus size", fmt.Sprintf("%d", s.Scheduler.Size)),
		RenderLabelValue("Uptime", s.Uptime.Round(time.Second).String()),
	}
	return PanelStyle.Width(d.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (d *Dashboard) renderFooter() string {
	return FooterStyle.Render(RenderHelp("q", "quit"))
}

// Run starts the TUI loop, blocking until the user quits.
func Run(d *Dashboard) error {
	p := tea.NewProgram(d, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
