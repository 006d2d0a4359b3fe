package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/logger"
	"github.com/flotilla-dev/flotilla/internal/model"
)

// FailurePolicy controls how a host failure affects hosts that have not
// started yet.
type FailurePolicy string

const (
	// PolicyAbort stops dispatching new hosts after the first host failure.
	// Hosts never reached are reported as not attempted.
	PolicyAbort FailurePolicy = "abort"
	// PolicyBestEffort attempts every host regardless of earlier failures.
	PolicyBestEffort FailurePolicy = "best_effort"
)

// Orchestrator schedules host executors across the fleet. Batch is the
// number of hosts converged concurrently; zero or one means strictly serial,
// where a host's run does not begin until the previous host is done.
type Orchestrator struct {
	executor *Executor
	batch    int
	policy   FailurePolicy
	logger   *logger.Logger
	notify   Notifier
}

// NewOrchestrator builds a fleet orchestrator around a host executor.
func NewOrchestrator(executor *Executor, batch int, policy FailurePolicy, log *logger.Logger) *Orchestrator {
	if batch < 1 {
		batch = 1
	}
	if policy == "" {
		policy = PolicyAbort
	}
	return &Orchestrator{
		executor: executor,
		batch:    batch,
		policy:   policy,
		logger:   log,
	}
}

// SetNotifier installs an event sink on the orchestrator and its executor.
// Must be called before Run.
func (o *Orchestrator) SetNotifier(notify Notifier) {
	o.notify = notify
	o.executor.SetNotifier(notify)
}

// Run converges every host in cfg and returns the fleet result. The result
// enumerates all hosts in input order, including those never attempted. Run
// never returns early: under cancellation, in-flight hosts finish their
// current step and the rest are marked not attempted.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config) *model.FleetResult {
	hosts := cfg.Hosts
	results := make([]*model.HostResult, len(hosts))

	// halted flips once a host fails under the abort policy, or the run
	// context is cancelled. Checked before each dispatch; hosts already
	// running are unaffected.
	var halted atomic.Bool
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.batch)

	for i, host := range hosts {
		if ctx.Err() != nil {
			halted.Store(true)
		}
		if halted.Load() {
			results[i] = notAttempted(host.Address)
			continue
		}

		sem <- struct{}{}
		// Re-check after waiting on the semaphore: a host that finished
		// while we were blocked may have triggered the halt.
		if halted.Load() {
			<-sem
			results[i] = notAttempted(host.Address)
			continue
		}

		wg.Add(1)
		go func(idx int, h config.Host) {
			defer wg.Done()
			defer func() { <-sem }()

			hr := o.executor.Converge(ctx, h, cfg.HostVars(h))
			results[idx] = hr
			if hr.Outcome == model.OutcomeFailure && o.policy == PolicyAbort {
				halted.Store(true)
			}
			o.hostDone(hr)
		}(i, host)
	}

	wg.Wait()

	fleet := model.NewFleetResult()
	for _, hr := range results {
		fleet.Add(hr)
	}
	fleet.Complete()

	if o.notify != nil {
		o.notify(FleetDoneEvent{Result: fleet})
	}
	return fleet
}

func (o *Orchestrator) hostDone(hr *model.HostResult) {
	if o.logger != nil {
		o.logger.WithFields(map[string]any{
			"host":    hr.Address,
			"outcome": string(hr.Outcome),
			"changed": hr.StepsChanged(),
			"failed":  hr.StepsFailed(),
		}).Info("host finished")
	}
	if o.notify != nil {
		o.notify(HostDoneEvent{Result: hr})
	}
}

func notAttempted(address string) *model.HostResult {
	hr := model.NewHostResult(address)
	hr.Outcome = model.OutcomeNotAttempted
	return hr
}
