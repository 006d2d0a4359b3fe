package model

import (
	"time"
)

// HostState tracks a host executor's progress through its run. Transitions
// are strictly sequential; no step executes before StatePlanComputed.
type HostState string

const (
	StatePending       HostState = "pending"
	StateProbing       HostState = "probing"
	StateFactsGathered HostState = "facts_gathered"
	StatePlanComputed  HostState = "plan_computed"
	StateExecuting     HostState = "executing"
	StateDone          HostState = "done"
)

// HostOutcome is the terminal classification of a host's run.
type HostOutcome string

const (
	// OutcomeSuccess means every planned step succeeded.
	OutcomeSuccess HostOutcome = "success"
	// OutcomePartialFailure means some steps failed under continue-on-error.
	OutcomePartialFailure HostOutcome = "partial_failure"
	// OutcomeFailure means the run aborted on a failed step or never got that far.
	OutcomeFailure HostOutcome = "failure"
	// OutcomeNotAttempted means the orchestrator halted before reaching this host.
	OutcomeNotAttempted HostOutcome = "not_attempted"
)

// HostResult captures the outcome of converging a single host.
type HostResult struct {
	Address     string
	State       HostState
	Outcome     HostOutcome
	Facts       Facts
	PlanStepIDs []string
	StepResults []StepResult
	ProbeErr    error
	Error       error
	StartTime   time.Time
	EndTime     time.Time
}

// NewHostResult creates a pending result for the given host address.
func NewHostResult(address string) *HostResult {
	return &HostResult{
		Address: address,
		State:   StatePending,
	}
}

// Transition advances the host state.
func (r *HostResult) Transition(state HostState) {
	r.State = state
}

// Duration returns how long the host's run took.
func (r *HostResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// AddStepResult appends a step outcome.
func (r *HostResult) AddStepResult(sr StepResult) {
	r.StepResults = append(r.StepResults, sr)
}

// StepsChanged returns the number of steps that mutated the host.
func (r *HostResult) StepsChanged() int {
	count := 0
	for _, sr := range r.StepResults {
		if sr.Status == StatusChanged {
			count++
		}
	}
	return count
}

// StepsFailed returns the number of steps that failed.
func (r *HostResult) StepsFailed() int {
	count := 0
	for _, sr := range r.StepResults {
		if sr.Failed() {
			count++
		}
	}
	return count
}
