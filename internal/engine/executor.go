// Package engine drives convergence: a per-host executor walks one host
// through probing, fact gathering, planning and step execution, and a fleet
// orchestrator schedules executors across hosts under a concurrency policy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/facts"
	"github.com/flotilla-dev/flotilla/internal/logger"
	"github.com/flotilla-dev/flotilla/internal/model"
	"github.com/flotilla-dev/flotilla/internal/registry"
	"github.com/flotilla-dev/flotilla/internal/role"
	"github.com/flotilla-dev/flotilla/internal/transport"
	fleeterrors "github.com/flotilla-dev/flotilla/pkg/errors"
)

const (
	defaultStepTimeout  = 5 * time.Minute
	defaultProbeTimeout = 2 * time.Minute
)

// ExecutorOptions tune a host executor's behavior.
type ExecutorOptions struct {
	// StepTimeout bounds each step's remote work. Zero means the default.
	StepTimeout time.Duration
	// ProbeTimeout bounds the bootstrap probe and fact battery. Zero means
	// the default.
	ProbeTimeout time.Duration
	// ContinueOnError keeps executing remaining steps after a step failure
	// instead of aborting the host.
	ContinueOnError bool
	// DryRun reports drift without mutating hosts.
	DryRun bool
}

func (o ExecutorOptions) stepTimeout() time.Duration {
	if o.StepTimeout <= 0 {
		return defaultStepTimeout
	}
	return o.StepTimeout
}

func (o ExecutorOptions) probeTimeout() time.Duration {
	if o.ProbeTimeout <= 0 {
		return defaultProbeTimeout
	}
	return o.ProbeTimeout
}

// OptionsFromSettings maps parsed config settings onto executor options.
func OptionsFromSettings(s config.Settings) ExecutorOptions {
	return ExecutorOptions{
		StepTimeout:     time.Duration(s.StepTimeout) * time.Second,
		ProbeTimeout:    time.Duration(s.ProbeTimeout) * time.Second,
		ContinueOnError: s.ContinueOnError,
		DryRun:          s.DryRun,
	}
}

// Executor converges a single host against the shared step registry. The
// registry and collector are read-only and shared; one Executor may serve
// many hosts, each via its own Converge call.
type Executor struct {
	registry  *registry.Registry
	collector *facts.Collector
	dial      transport.Dialer
	logger    *logger.Logger
	opts      ExecutorOptions
	notify    Notifier
}

// NewExecutor builds a host executor.
func NewExecutor(reg *registry.Registry, collector *facts.Collector, dial transport.Dialer, log *logger.Logger, opts ExecutorOptions) *Executor {
	return &Executor{
		registry:  reg,
		collector: collector,
		dial:      dial,
		logger:    log,
		opts:      opts,
	}
}

// SetNotifier installs an event sink. Must be called before any Converge.
func (e *Executor) SetNotifier(notify Notifier) {
	e.notify = notify
}

// Converge runs the full per-host sequence: connect, probe, gather facts,
// compute the plan once, then execute its steps in order. It always returns
// a terminal HostResult; errors are recorded on the result rather than
// returned, so the fleet report can enumerate every host uniformly.
func (e *Executor) Converge(ctx context.Context, host config.Host, vars config.Vars) *model.HostResult {
	result := model.NewHostResult(host.Address)
	result.StartTime = time.Now()
	log := e.hostLogger(host.Address)

	defer func() {
		result.EndTime = time.Now()
		result.Transition(model.StateDone)
		e.notifyState(host.Address, model.StateDone)
	}()

	result.Transition(model.StateProbing)
	e.notifyState(host.Address, model.StateProbing)

	runner, err := e.dial(ctx, host.Address)
	if err != nil {
		result.Outcome = model.OutcomeFailure
		result.Error = fleeterrors.NewConnectionError(host.Address, err)
		log.Error(result.Error, "connection failed")
		return result
	}
	defer runner.Close()

	probeCtx, cancelProbe := context.WithTimeout(ctx, e.opts.probeTimeout())
	defer cancelProbe()

	if err := e.collector.EnsureBaseline(probeCtx, host.Address, runner); err != nil {
		var probeErr *fleeterrors.ProbeError
		if !errors.As(err, &probeErr) {
			// Cancellation or a dead connection, not a probe miss.
			result.Outcome = model.OutcomeFailure
			result.Error = err
			return result
		}
		// The baseline tool could not be installed. Facts may come back
		// sparse but the plan can still run, so record and continue.
		result.ProbeErr = err
		log.Warn(err, "bootstrap probe failed, continuing without baseline tool")
	}

	// The fact battery gets its own budget; a slow probe must not eat into it.
	gatherCtx, cancelGather := context.WithTimeout(ctx, e.opts.probeTimeout())
	defer cancelGather()

	hostFacts, err := e.collector.Gather(gatherCtx, host.Address, runner)
	if err != nil {
		result.Outcome = model.OutcomeFailure
		result.Error = err
		return result
	}
	result.Facts = hostFacts
	result.Transition(model.StateFactsGathered)
	e.notifyState(host.Address, model.StateFactsGathered)

	// The plan is computed exactly once per host run. Steps whose predicate
	// does not match are absent from it, not skipped at execution time.
	plan := e.registry.Plan(hostFacts, vars)
	result.PlanStepIDs = plan.StepIDs()
	result.Transition(model.StatePlanComputed)
	e.notifyState(host.Address, model.StatePlanComputed)
	log.WithFields(map[string]any{"steps": len(plan.Steps)}).Debug("plan computed")

	result.Transition(model.StateExecuting)
	e.notifyState(host.Address, model.StateExecuting)

	e.executePlan(ctx, plan, runner, hostFacts, vars, result, log)
	return result
}

func (e *Executor) executePlan(ctx context.Context, plan *registry.Plan, runner transport.Runner, hostFacts model.Facts, vars config.Vars, result *model.HostResult, log *logger.Logger) {
	failed := false
	aborted := false

	for i, step := range plan.Steps {
		// Cancellation is honored between steps only; a step in flight runs
		// to completion or its own timeout.
		if err := ctx.Err(); err != nil {
			e.skipRemaining(result, plan.Steps[i:], "run cancelled")
			result.Outcome = model.OutcomeFailure
			if result.Error == nil {
				result.Error = err
			}
			return
		}

		sr := e.executeStep(ctx, step, result.Address, runner, hostFacts, vars, log)
		result.AddStepResult(sr)
		e.notifyStep(result.Address, sr)

		if sr.Failed() {
			failed = true
			if result.Error == nil {
				result.Error = fleeterrors.NewStepError(result.Address, step.ID, sr.Error)
			}
			if !e.opts.ContinueOnError {
				aborted = true
				e.skipRemaining(result, plan.Steps[i+1:], fmt.Sprintf("aborted after step %q failed", step.ID))
				break
			}
		}
	}

	switch {
	case aborted:
		result.Outcome = model.OutcomeFailure
	case failed:
		result.Outcome = model.OutcomePartialFailure
	default:
		result.Outcome = model.OutcomeSuccess
	}
}

func (e *Executor) executeStep(ctx context.Context, step registry.Step, address string, runner transport.Runner, hostFacts model.Facts, vars config.Vars, log *logger.Logger) model.StepResult {
	stepCtx, cancel := context.WithTimeout(ctx, e.opts.stepTimeout())
	defer cancel()

	start := time.Now()
	res, err := step.Role.Apply(stepCtx, &role.ExecContext{
		Host:   address,
		Runner: runner,
		Facts:  hostFacts,
		Vars:   vars,
		Logger: log,
		DryRun: e.opts.DryRun,
	})

	sr := model.StepResult{
		StepID:    step.ID,
		Status:    model.StatusFailed,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if res != nil {
		sr.Status = res.Status
		sr.Message = res.Message
		sr.Error = res.Error
	}
	if err != nil {
		sr.Status = model.StatusFailed
		if sr.Error == nil {
			sr.Error = err
		}
		if sr.Message == "" {
			sr.Message = err.Error()
		}
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			sr.Message = fmt.Sprintf("step %q exceeded timeout of %s", step.ID, e.opts.stepTimeout())
		}
		log.Warn(sr.Error, fmt.Sprintf("step %q failed", step.ID))
		return sr
	}

	log.WithFields(map[string]any{"step": step.ID, "status": sr.Status}).Debug("step finished")
	return sr
}

func (e *Executor) skipRemaining(result *model.HostResult, steps []registry.Step, reason string) {
	for _, step := range steps {
		result.AddStepResult(model.StepResult{
			StepID:    step.ID,
			Status:    model.StatusSkipped,
			Message:   reason,
			Timestamp: time.Now(),
		})
	}
}

func (e *Executor) hostLogger(address string) *logger.Logger {
	if e.logger == nil {
		return nil
	}
	return e.logger.WithHost(address)
}
