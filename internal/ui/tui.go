// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the stream monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Control carries key-driven requests from the TUI back to the pump loop.
type Control struct {
	Toggle chan struct{} // pause/resume
	Quit   chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Toggle: make(chan struct{}, 1),
		Quit:   make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Control) Model {
	return Model{
		ctrl: ctrl,
	}
}

// Run starts the TUI
func Run(ctrl *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	return p, nil
}
