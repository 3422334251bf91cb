// Package tui is a small terminal transport for the engine: it shows the
// playback state and position and maps keys to transport commands.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/satindergrewal/scoreplay/internal/engine"
)

const (
	refresh  = 100 * time.Millisecond
	seekStep = 5.0 // seconds
	barWidth = 40
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fff"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5f5"))
	waitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fd5"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	barStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5af"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#f55"))
)

// Transport is what the view controls.
type Transport interface {
	Status() engine.Status
	Duration() float64 // 0 when nothing is loaded
	Seek(t float64) error
	Stop() error
	Reload() error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type Model struct {
	transport Transport
	title     string
	status    engine.Status
	duration  float64
	err       error
	quitting  bool
}

func New(t Transport, title string) Model {
	return Model{
		transport: t,
		title:     title,
		status:    t.Status(),
		duration:  t.Duration(),
	}
}

// Run blocks until the user quits.
func Run(t Transport, title string) error {
	_, err := tea.NewProgram(New(t, title)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case " ", "p":
			if m.status.State == engine.StateStopped {
				m.err = m.transport.Seek(m.status.ScriptTime)
			} else {
				m.err = m.transport.Stop()
			}
		case "left", "h":
			m.err = m.transport.Seek(math.Max(m.status.ScriptTime-seekStep, 0))
		case "right", "l":
			m.err = m.transport.Seek(m.status.ScriptTime + seekStep)
		case "0", "home":
			m.err = m.transport.Seek(0)
		case "r":
			m.err = m.transport.Reload()
			m.duration = m.transport.Duration()
		}
		m.status = m.transport.Status()

	case tickMsg:
		m.status = m.transport.Status()
		m.duration = m.transport.Duration()
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(stateLabel(m.status.State))
	fmt.Fprintf(&b, "  %s / %s\n", clock(m.status.ScriptTime), clock(m.duration))

	b.WriteString(barStyle.Render(progress(m.status.ScriptTime, m.duration, barWidth)))
	if m.status.Pending > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d queued", m.status.Pending)))
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("space:play/stop  ←/→:seek 5s  0:start  r:reload  q:quit"))
	b.WriteString("\n")
	return b.String()
}

func stateLabel(s engine.State) string {
	switch s {
	case engine.StatePlaying:
		return playingStyle.Render("PLAY")
	case engine.StateStalled, engine.StatePriming:
		return waitingStyle.Render("WAIT")
	}
	return stoppedStyle.Render("STOP")
}

// clock formats seconds as m:ss.d.
func clock(t float64) string {
	if t < 0 {
		return "-" + clock(-t)
	}
	tenths := int(t * 10)
	return fmt.Sprintf("%d:%02d.%d", tenths/600, tenths/10%60, tenths%10)
}

func progress(t, total float64, width int) string {
	filled := 0
	if total > 0 {
		filled = int(math.Round(t / total * float64(width)))
	}
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
