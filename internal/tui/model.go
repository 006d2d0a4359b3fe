// Package tui renders live fleet progress with Bubbletea. The orchestrator's
// event notifier feeds engine events straight into the program as messages.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/model"
)

type hostView struct {
	address string
	state   model.HostState
	outcome model.HostOutcome
	steps   []model.StepResult
}

// Model contains the Bubbletea state for the fleet progress display.
type Model struct {
	cfg       *config.Config
	spin      spinner.Model
	hosts     map[string]*hostView
	order     []string
	fleet     *model.FleetResult
	cancel    context.CancelFunc
	finished  bool
	cancelled bool
}

// NewModel constructs the fleet TUI. Every configured host gets a row up
// front so the display enumerates the whole fleet from the start. cancel is
// invoked on Ctrl+C so the orchestrator stops dispatching new hosts.
func NewModel(cfg *config.Config, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle

	m := Model{
		cfg:    cfg,
		spin:   sp,
		hosts:  make(map[string]*hostView),
		order:  make([]string, 0, len(cfg.Hosts)),
		cancel: cancel,
	}
	for _, h := range cfg.Hosts {
		m.hosts[h.Address] = &hostView{
			address: h.Address,
			state:   model.StatePending,
		}
		m.order = append(m.order, h.Address)
	}
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

// Fleet returns the final result once the run has finished, nil before that.
func (m Model) Fleet() *model.FleetResult {
	return m.fleet
}

// IsCancelled reports whether the user interrupted the run.
func (m Model) IsCancelled() bool {
	return m.cancelled
}

func (m *Model) ensureHost(address string) *hostView {
	if hv, ok := m.hosts[address]; ok {
		return hv
	}
	hv := &hostView{address: address, state: model.StatePending}
	m.hosts[address] = hv
	m.order = append(m.order, address)
	return hv
}
