package model

import (
	"time"
)

// FleetResult aggregates per-host outcomes for a whole run. Host results are
// append-only, one slot per host, in fleet input order.
type FleetResult struct {
	StartTime   time.Time
	EndTime     time.Time
	HostResults []*HostResult
}

// NewFleetResult creates a fleet result stamped with the current time.
func NewFleetResult() *FleetResult {
	return &FleetResult{StartTime: time.Now()}
}

// Add appends a host result.
func (r *FleetResult) Add(hr *HostResult) {
	r.HostResults = append(r.HostResults, hr)
}

// Complete marks the fleet run as finished.
func (r *FleetResult) Complete() {
	r.EndTime = time.Now()
}

// Duration returns total fleet execution time.
func (r *FleetResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Failed reports whether any host ended in failure or partial failure.
func (r *FleetResult) Failed() bool {
	for _, hr := range r.HostResults {
		if hr.Outcome == OutcomeFailure || hr.Outcome == OutcomePartialFailure {
			return true
		}
	}
	return false
}

// Summary holds aggregate counts for reporting.
type Summary struct {
	TotalHosts     int           `json:"total_hosts"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Partial        int           `json:"partial"`
	NotAttempted   int           `json:"not_attempted"`
	StepsChanged   int           `json:"steps_changed"`
	StepsUnchanged int           `json:"steps_unchanged"`
	StepsFailed    int           `json:"steps_failed"`
	StepsSkipped   int           `json:"steps_skipped"`
	TotalDuration  time.Duration `json:"total_duration"`
}

// Summarize computes aggregate counts across all hosts.
func (r *FleetResult) Summarize() Summary {
	s := Summary{TotalHosts: len(r.HostResults), TotalDuration: r.Duration()}
	for _, hr := range r.HostResults {
		switch hr.Outcome {
		case OutcomeSuccess:
			s.Succeeded++
		case OutcomeFailure:
			s.Failed++
		case OutcomePartialFailure:
			s.Partial++
		case OutcomeNotAttempted:
			s.NotAttempted++
		}
		for _, sr := range hr.StepResults {
			switch sr.Status {
			case StatusChanged, StatusWouldChange:
				s.StepsChanged++
			case StatusUnchanged:
				s.StepsUnchanged++
			case StatusFailed:
				s.StepsFailed++
			case StatusSkipped:
				s.StepsSkipped++
			}
		}
	}
	return s
}
