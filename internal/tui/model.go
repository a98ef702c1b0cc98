// Package tui renders live CPU samples in the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Neol00/ClockSpeeds/internal/domain"
)

const intervalStep = 100 * time.Millisecond

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	throttleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("196")).Bold(true).Padding(0, 1)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type Options struct {
	Title      string
	Interval   time.Duration
	DisplayGHz bool
	// OnInterval applies a requested interval and returns the effective one.
	OnInterval   func(time.Duration) time.Duration
	OnDisplayGHz func(bool)
}

type snapshotMsg domain.Snapshot

type closedMsg struct{}

type Model struct {
	opts      Options
	snapshots <-chan domain.Snapshot
	bar       progress.Model

	latest   domain.Snapshot
	received bool
	ghz      bool
	interval time.Duration
	quitting bool
}

func New(snapshots <-chan domain.Snapshot, opts Options) Model {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(30))
	return Model{
		opts:      opts,
		snapshots: snapshots,
		bar:       bar,
		ghz:       opts.DisplayGHz,
		interval:  opts.Interval,
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForSnapshot
}

func (m Model) waitForSnapshot() tea.Msg {
	snapshot, ok := <-m.snapshots
	if !ok {
		return closedMsg{}
	}
	return snapshotMsg(snapshot)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.latest = domain.Snapshot(msg)
		m.received = true
		return m, m.waitForSnapshot

	case closedMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-40))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "g":
			m.ghz = !m.ghz
			if m.opts.OnDisplayGHz != nil {
				m.opts.OnDisplayGHz(m.ghz)
			}
		case "+", "=":
			m.changeInterval(intervalStep)
		case "-", "_":
			m.changeInterval(-intervalStep)
		}
	}
	return m, nil
}

func (m *Model) changeInterval(delta time.Duration) {
	requested := m.interval + delta
	if m.opts.OnInterval != nil {
		requested = m.opts.OnInterval(requested)
	}
	m.interval = requested
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := m.opts.Title
	if title == "" {
		title = "ClockSpeeds"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	if !m.received {
		b.WriteString(labelStyle.Render("waiting for first sample...") + "\n\n")
		b.WriteString(m.help())
		return b.String()
	}

	if m.latest.Throttling {
		b.WriteString(throttleStyle.Render("CPU IS THROTTLING") + "\n\n")
	}

	b.WriteString(field("Governor", orDash(m.latest.Governor)) + "  ")
	b.WriteString(field("Boost", boostLabel(m.latest.Boost)) + "  ")
	b.WriteString(field("Temp", tempLabel(m.latest.PackageTempC)) + "\n")
	b.WriteString(field("Average", m.frequency(m.latest.AverageMHz)) + "  ")
	b.WriteString(field("Load", fmt.Sprintf("%.1f%%", m.latest.AverageLoad)) + "\n\n")

	for _, thread := range m.latest.Threads {
		fmt.Fprintf(&b, "%s %10s %s %5.1f%%\n",
			labelStyle.Render(fmt.Sprintf("CPU %-3d", thread.Thread)),
			m.frequency(thread.FrequencyMHz),
			m.bar.ViewAs(thread.LoadPercent/100),
			thread.LoadPercent,
		)
	}

	b.WriteString("\n" + m.help())
	return b.String()
}

func (m Model) help() string {
	return helpStyle.Render(fmt.Sprintf("interval %.1fs  +/- adjust  g GHz/MHz  q quit", m.interval.Seconds()))
}

func (m Model) frequency(mhz float64) string {
	if m.ghz {
		return fmt.Sprintf("%.2f GHz", mhz/1000)
	}
	return fmt.Sprintf("%.0f MHz", mhz)
}

// Interval is the polling interval after any key adjustments.
func (m Model) Interval() time.Duration {
	return m.interval
}

func (m Model) DisplayGHz() bool {
	return m.ghz
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func boostLabel(boost *bool) string {
	switch {
	case boost == nil:
		return "unknown"
	case *boost:
		return "on"
	}
	return "off"
}

func tempLabel(temp *float64) string {
	if temp == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", *temp)
}
