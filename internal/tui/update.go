package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flotilla-dev/flotilla/internal/engine"
	"github.com/flotilla-dev/flotilla/internal/model"
)

// Update handles Bubbletea messages. Engine events are sent into the program
// verbatim by the orchestrator's notifier.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case engine.HostStateEvent:
		hv := m.ensureHost(msg.Address)
		hv.state = msg.State
		return m, nil
	case engine.StepCompleteEvent:
		hv := m.ensureHost(msg.Address)
		hv.steps = append(hv.steps, msg.Result)
		return m, nil
	case engine.HostDoneEvent:
		hv := m.ensureHost(msg.Result.Address)
		hv.state = model.StateDone
		hv.outcome = msg.Result.Outcome
		hv.steps = msg.Result.StepResults
		return m, nil
	case engine.FleetDoneEvent:
		m.fleet = msg.Result
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	}

	return m, nil
}
