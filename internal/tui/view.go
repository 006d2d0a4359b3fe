package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/flotilla-dev/flotilla/internal/model"
)

// View renders the fleet progress screen.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("Flotilla • %s", m.title())))

	sections = append(sections, sectionStyle.Render("Hosts"))
	for _, address := range m.order {
		sections = append(sections, m.renderHost(m.hosts[address]))
	}

	if m.finished || m.cancelled {
		sections = append(sections, summaryStyle.Render(m.footer()))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHost(hv *hostView) string {
	icon := m.hostIcon(hv)
	line := fmt.Sprintf(" %s %s — %s", icon, hv.address, hostPhase(hv))

	changed, failed := 0, 0
	for _, sr := range hv.steps {
		switch sr.Status {
		case model.StatusChanged, model.StatusWouldChange:
			changed++
		case model.StatusFailed:
			failed++
		}
	}
	if len(hv.steps) > 0 {
		line = fmt.Sprintf("%s (%d steps, %d changed, %d failed)",
			line, len(hv.steps), changed, failed)
	}

	lines := []string{line}
	for _, sr := range hv.steps {
		if sr.Status != model.StatusFailed {
			continue
		}
		detail := fmt.Sprintf("   %s %s", StatusIcon(sr.Status), sr.StepID)
		if strings.TrimSpace(sr.Message) != "" {
			detail = fmt.Sprintf("%s: %s", detail, sr.Message)
		}
		if sr.Duration > 0 {
			detail = fmt.Sprintf("%s (%s)", detail, sr.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, detail)
	}
	return strings.Join(lines, "\n")
}

func (m Model) hostIcon(hv *hostView) string {
	if hv.state != model.StateDone {
		if hv.state == model.StatePending {
			return pendingStyle.Render("·")
		}
		return m.spin.View()
	}
	switch hv.outcome {
	case model.OutcomeSuccess:
		return successStyle.Render("✓")
	case model.OutcomePartialFailure:
		return partialStyle.Render("◐")
	case model.OutcomeFailure:
		return failureStyle.Render("✗")
	case model.OutcomeNotAttempted:
		return skippedStyle.Render("⊘")
	default:
		return pendingStyle.Render("…")
	}
}

func hostPhase(hv *hostView) string {
	if hv.state == model.StateDone {
		switch hv.outcome {
		case model.OutcomeSuccess:
			return "converged"
		case model.OutcomePartialFailure:
			return "partially converged"
		case model.OutcomeFailure:
			return "failed"
		case model.OutcomeNotAttempted:
			return "not attempted"
		}
	}
	switch hv.state {
	case model.StatePending:
		return "waiting"
	case model.StateProbing:
		return "probing"
	case model.StateFactsGathered:
		return "gathering facts"
	case model.StatePlanComputed:
		return "plan computed"
	case model.StateExecuting:
		return "executing"
	default:
		return string(hv.state)
	}
}

func (m Model) footer() string {
	if m.cancelled {
		return failureStyle.Render("Cancelled — finishing current step, remaining hosts will not be attempted")
	}
	if m.fleet == nil {
		return ""
	}
	s := m.fleet.Summarize()
	return fmt.Sprintf("%d hosts: %d succeeded, %d partial, %d failed, %d not attempted",
		s.TotalHosts, s.Succeeded, s.Partial, s.Failed, s.NotAttempted)
}

func (m Model) title() string {
	if m.cfg != nil && strings.TrimSpace(m.cfg.Name) != "" {
		return m.cfg.Name
	}
	return "Convergence"
}

// StatusIcon returns the glyph representing a step status.
func StatusIcon(status string) string {
	switch status {
	case model.StatusChanged:
		return successStyle.Render("✓")
	case model.StatusUnchanged:
		return successStyle.Render("=")
	case model.StatusRunning:
		return runningStyle.Render("⏳")
	case model.StatusFailed:
		return failureStyle.Render("✗")
	case model.StatusSkipped:
		return skippedStyle.Render("⊘")
	case model.StatusWouldChange:
		return pendingStyle.Render("↻")
	default:
		return pendingStyle.Render("…")
	}
}
