// ABOUTME: Bubbletea model for the stream monitor TUI
// ABOUTME: Defines application state and update logic
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dmastream/dmastream-go/pkg/pcm"
	"github.com/dmastream/dmastream-go/pkg/stream"
)

// Model represents the TUI state
type Model struct {
	// Input
	file   string
	output string
	format string

	// Geometry
	ringBytes   int
	periodBytes int

	// Playback
	stats    stream.Stats
	position int64

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	ctrl *Control
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderStream()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders input and output information
func (m Model) renderHeader() string {
	return fmt.Sprintf(`┌─ DMA Stream Monitor ─────────────────────────────────┐
│ Input:  %-45s │
│ Output: %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(m.file, 45), truncate(m.output, 45))
}

// renderStream renders the stream state and position
func (m Model) renderStream() string {
	posBar := ""
	if m.ringBytes > 0 {
		ringFrames := int64(m.ringBytes / pcm.FrameBytes)
		posBar = renderBar(int(m.position*100/ringFrames), 100, 20)
	}

	return fmt.Sprintf("│ State:  %-45s │\n"+
		"│ Format: %-45s │\n"+
		"│ Ring:   [%s] frame %-15d │\n",
		m.stats.State, truncate(m.format, 45), posBar, m.position)
}

// renderStats renders transfer statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Pushed:    %-10d frames  %-10d bytes     │
│ Transfers: %-10d sent    %-10d done      │
│ Periods:   %-10d         %-10d stalls    │
│                                                      │
`, m.stats.PushedFrames, m.stats.PushedBytes,
		m.stats.Submitted, m.stats.Completed,
		m.stats.PeriodsElapsed, m.stats.Stalls)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ space:Pause/Resume  d:Debug  q:Quit                │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   In flight: %-10d                              │
│   Unknown completions: %-10d                    │
│   Period bytes: %-10d                           │
`, m.stats.InFlight, m.stats.UnknownCompletions, m.periodBytes)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.ctrl != nil {
			select {
			case m.ctrl.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case " ":
		if m.ctrl != nil {
			select {
			case m.ctrl.Toggle <- struct{}{}:
			default:
			}
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// StatusMsg carries a stats snapshot from the pump loop to the TUI.
// String fields only overwrite the model when non-empty.
type StatusMsg struct {
	Stats    stream.Stats
	Position int64

	File        string
	Output      string
	Format      string
	RingBytes   int
	PeriodBytes int
}

// applyStatus merges a status message into the model
func (m *Model) applyStatus(msg StatusMsg) {
	m.stats = msg.Stats
	m.position = msg.Position

	if msg.File != "" {
		m.file = msg.File
	}
	if msg.Output != "" {
		m.output = msg.Output
	}
	if msg.Format != "" {
		m.format = msg.Format
	}
	if msg.RingBytes != 0 {
		m.ringBytes = msg.RingBytes
	}
	if msg.PeriodBytes != 0 {
		m.periodBytes = msg.PeriodBytes
	}
}

// truncate shortens a string to maxLen with an ellipsis
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// renderBar renders a progress bar of the given width
func renderBar(value, max, width int) string {
	if value < 0 {
		value = 0
	}
	if value > max {
		value = max
	}
	filled := value * width / max

	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}
