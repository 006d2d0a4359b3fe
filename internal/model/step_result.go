package model

import (
	"time"
)

const (
	// StatusPending indicates a step has not started yet.
	StatusPending = "pending"
	// StatusRunning indicates a step is actively executing.
	StatusRunning = "running"
	// StatusChanged marks a step that mutated the host to reach the desired state.
	StatusChanged = "changed"
	// StatusUnchanged marks a step whose desired state was already satisfied.
	StatusUnchanged = "unchanged"
	// StatusSkipped indicates the step was never attempted on this host.
	StatusSkipped = "skipped"
	// StatusFailed marks a failure during step execution.
	StatusFailed = "failed"
	// StatusWouldChange indicates dry-run detected drift that apply would fix.
	StatusWouldChange = "would_change"
)

// StepResult captures the outcome of executing a single step on a host.
type StepResult struct {
	StepID    string
	Status    string
	Message   string
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

// Failed reports whether the step ended in failure.
func (r StepResult) Failed() bool {
	return r.Status == StatusFailed
}
