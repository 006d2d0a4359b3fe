// Package report renders fleet results for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/flotilla-dev/flotilla/internal/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginTop(1)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Render produces the human-readable fleet report.
func Render(name string, fleet *model.FleetResult) string {
	var sections []string

	title := "Fleet convergence"
	if strings.TrimSpace(name) != "" {
		title = name
	}
	sections = append(sections, titleStyle.Render(title))

	sections = append(sections, sectionStyle.Render("Hosts"))
	for _, hr := range fleet.HostResults {
		sections = append(sections, renderHost(hr))
	}

	summary := fleet.Summarize()
	sections = append(sections, sectionStyle.Render("Summary"), renderSummary(summary))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderHost(hr *model.HostResult) string {
	line := fmt.Sprintf(" %s %s — %s", OutcomeIcon(hr.Outcome), hr.Address, outcomeText(hr.Outcome))
	if hr.Outcome != model.OutcomeNotAttempted {
		line = fmt.Sprintf("%s (%d changed, %d failed of %d steps)",
			line, hr.StepsChanged(), hr.StepsFailed(), len(hr.StepResults))
	}
	if d := hr.Duration(); d > 0 {
		line = fmt.Sprintf("%s [%s]", line, d.Truncate(10*time.Millisecond))
	}

	lines := []string{line}
	if hr.Error != nil {
		lines = append(lines, mutedStyle.Render("   "+hr.Error.Error()))
	}
	for _, sr := range hr.StepResults {
		if sr.Status == model.StatusFailed {
			lines = append(lines, failureStyle.Render(fmt.Sprintf("   ✗ %s: %s", sr.StepID, sr.Message)))
		}
	}
	return strings.Join(lines, "\n")
}

func renderSummary(s model.Summary) string {
	parts := []string{
		fmt.Sprintf("%d hosts", s.TotalHosts),
		successStyle.Render(fmt.Sprintf("%d succeeded", s.Succeeded)),
	}
	if s.Partial > 0 {
		parts = append(parts, partialStyle.Render(fmt.Sprintf("%d partial", s.Partial)))
	}
	if s.Failed > 0 {
		parts = append(parts, failureStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.NotAttempted > 0 {
		parts = append(parts, skippedStyle.Render(fmt.Sprintf("%d not attempted", s.NotAttempted)))
	}

	steps := fmt.Sprintf("steps: %d changed, %d unchanged, %d failed, %d skipped",
		s.StepsChanged, s.StepsUnchanged, s.StepsFailed, s.StepsSkipped)

	return strings.Join(parts, ", ") + "\n" + mutedStyle.Render(steps)
}

func outcomeText(outcome model.HostOutcome) string {
	switch outcome {
	case model.OutcomeSuccess:
		return "converged"
	case model.OutcomePartialFailure:
		return "partially converged"
	case model.OutcomeFailure:
		return "failed"
	case model.OutcomeNotAttempted:
		return "not attempted"
	default:
		return string(outcome)
	}
}

// OutcomeIcon returns the glyph for a host outcome.
func OutcomeIcon(outcome model.HostOutcome) string {
	switch outcome {
	case model.OutcomeSuccess:
		return successStyle.Render("✓")
	case model.OutcomePartialFailure:
		return partialStyle.Render("◐")
	case model.OutcomeFailure:
		return failureStyle.Render("✗")
	case model.OutcomeNotAttempted:
		return skippedStyle.Render("⊘")
	default:
		return mutedStyle.Render("…")
	}
}

type jsonReport struct {
	Name    string        `json:"name,omitempty"`
	Summary model.Summary `json:"summary"`
	Hosts   []jsonHost    `json:"hosts"`
}

type jsonHost struct {
	Address     string     `json:"address"`
	Outcome     string     `json:"outcome"`
	State       string     `json:"state"`
	PlanStepIDs []string   `json:"plan,omitempty"`
	Steps       []jsonStep `json:"steps,omitempty"`
	ProbeError  string     `json:"probe_error,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
}

type jsonStep struct {
	StepID     string `json:"step_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// WriteJSON emits the machine-readable report.
func WriteJSON(w io.Writer, name string, fleet *model.FleetResult) error {
	out := jsonReport{
		Name:    name,
		Summary: fleet.Summarize(),
		Hosts:   make([]jsonHost, 0, len(fleet.HostResults)),
	}
	for _, hr := range fleet.HostResults {
		jh := jsonHost{
			Address:     hr.Address,
			Outcome:     string(hr.Outcome),
			State:       string(hr.State),
			PlanStepIDs: hr.PlanStepIDs,
			DurationMS:  hr.Duration().Milliseconds(),
		}
		if hr.ProbeErr != nil {
			jh.ProbeError = hr.ProbeErr.Error()
		}
		if hr.Error != nil {
			jh.Error = hr.Error.Error()
		}
		for _, sr := range hr.StepResults {
			js := jsonStep{
				StepID:     sr.StepID,
				Status:     sr.Status,
				Message:    sr.Message,
				DurationMS: sr.Duration.Milliseconds(),
			}
			if sr.Error != nil {
				js.Error = sr.Error.Error()
			}
			jh.Steps = append(jh.Steps, js)
		}
		out.Hosts = append(out.Hosts, jh)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
