package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/model"
	"github.com/flotilla-dev/flotilla/internal/registry"
	"github.com/flotilla-dev/flotilla/internal/role"
	"github.com/flotilla-dev/flotilla/internal/transport"
)

func fleetConfig(addresses ...string) *config.Config {
	cfg := &config.Config{
		Version: "1.0.0",
		Name:    "fleet",
		Vars:    declaredVars(),
	}
	for _, addr := range addresses {
		cfg.Hosts = append(cfg.Hosts, config.Host{Address: addr})
	}
	return cfg
}

// hostTracker records, per host, when its role work started and finished so
// tests can assert scheduling properties.
type hostTracker struct {
	mu     sync.Mutex
	events []string
}

func (h *hostTracker) record(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *hostTracker) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func trackingRole(tracker *hostTracker, failOn map[string]bool) *fakeRole {
	return &fakeRole{
		name: "tracked",
		apply: func(ctx context.Context, exec *role.ExecContext) (*model.StepResult, error) {
			tracker.record("start " + exec.Host)
			time.Sleep(5 * time.Millisecond)
			tracker.record("end " + exec.Host)
			if failOn[exec.Host] {
				err := fmt.Errorf("converge failed on %s", exec.Host)
				return &model.StepResult{Status: model.StatusFailed, Error: err}, err
			}
			return &model.StepResult{Status: model.StatusChanged}, nil
		},
	}
}

func newFleetOrchestrator(t *testing.T, tracker *hostTracker, failOn map[string]bool, batch int, policy FailurePolicy) *Orchestrator {
	t.Helper()
	reg := buildRegistry(t, registry.Step{ID: "only", Order: 1, Role: trackingRole(tracker, failOn)})
	dial := func(ctx context.Context, address string) (transport.Runner, error) {
		return newFakeRunner(nil), nil
	}
	exec := NewExecutor(reg, newTestCollector(), dial, nil, ExecutorOptions{})
	return NewOrchestrator(exec, batch, policy, nil)
}

func TestOrchestratorSerialOrdering(t *testing.T) {
	t.Parallel()

	tracker := &hostTracker{}
	orch := newFleetOrchestrator(t, tracker, nil, 1, PolicyBestEffort)

	fleet := orch.Run(context.Background(), fleetConfig("h1", "h2", "h3"))

	require.Len(t, fleet.HostResults, 3)
	require.Equal(t, []string{
		"start h1", "end h1",
		"start h2", "end h2",
		"start h3", "end h3",
	}, tracker.all())
}

func TestOrchestratorEnumeratesHostsInInputOrder(t *testing.T) {
	t.Parallel()

	tracker := &hostTracker{}
	orch := newFleetOrchestrator(t, tracker, nil, 2, PolicyBestEffort)

	fleet := orch.Run(context.Background(), fleetConfig("h1", "h2", "h3", "h4"))

	require.Len(t, fleet.HostResults, 4)
	for i, addr := range []string{"h1", "h2", "h3", "h4"} {
		require.Equal(t, addr, fleet.HostResults[i].Address)
		require.Equal(t, model.OutcomeSuccess, fleet.HostResults[i].Outcome)
	}
	require.False(t, fleet.Failed())
}

func TestOrchestratorAbortPolicySerial(t *testing.T) {
	t.Parallel()

	tracker := &hostTracker{}
	orch := newFleetOrchestrator(t, tracker, map[string]bool{"h1": true}, 1, PolicyAbort)

	fleet := orch.Run(context.Background(), fleetConfig("h1", "h2", "h3"))

	require.Len(t, fleet.HostResults, 3)
	require.Equal(t, model.OutcomeFailure, fleet.HostResults[0].Outcome)
	require.Equal(t, model.OutcomeNotAttempted, fleet.HostResults[1].Outcome)
	require.Equal(t, model.OutcomeNotAttempted, fleet.HostResults[2].Outcome)
	require.True(t, fleet.Failed())

	// h2 and h3 never ran any role work.
	require.Equal(t, []string{"start h1", "end h1"}, tracker.all())
}

func TestOrchestratorBestEffortAttemptsEveryHost(t *testing.T) {
	t.Parallel()

	tracker := &hostTracker{}
	orch := newFleetOrchestrator(t, tracker, map[string]bool{"h2": true}, 1, PolicyBestEffort)

	fleet := orch.Run(context.Background(), fleetConfig("h1", "h2", "h3"))

	require.Len(t, fleet.HostResults, 3)
	require.Equal(t, model.OutcomeSuccess, fleet.HostResults[0].Outcome)
	require.Equal(t, model.OutcomeFailure, fleet.HostResults[1].Outcome)
	require.Equal(t, model.OutcomeSuccess, fleet.HostResults[2].Outcome)

	summary := fleet.Summarize()
	require.Equal(t, 3, summary.TotalHosts)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
}

func TestOrchestratorBatchedConcurrencyBound(t *testing.T) {
	t.Parallel()

	var active atomic.Int32
	var peak atomic.Int32
	counting := &fakeRole{
		name: "counting",
		apply: func(ctx context.Context, exec *role.ExecContext) (*model.StepResult, error) {
			cur := active.Add(1)
			for {
				prev := peak.Load()
				if cur <= prev || peak.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
			return &model.StepResult{Status: model.StatusUnchanged}, nil
		},
	}
	reg := buildRegistry(t, registry.Step{ID: "only", Order: 1, Role: counting})
	dial := func(ctx context.Context, address string) (transport.Runner, error) {
		return newFakeRunner(nil), nil
	}
	exec := NewExecutor(reg, newTestCollector(), dial, nil, ExecutorOptions{})
	orch := NewOrchestrator(exec, 2, PolicyBestEffort, nil)

	fleet := orch.Run(context.Background(), fleetConfig("h1", "h2", "h3", "h4", "h5"))

	require.Len(t, fleet.HostResults, 5)
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestOrchestratorCancelledContextMarksHostsNotAttempted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker := &hostTracker{}
	orch := newFleetOrchestrator(t, tracker, nil, 1, PolicyBestEffort)

	fleet := orch.Run(ctx, fleetConfig("h1", "h2"))

	require.Len(t, fleet.HostResults, 2)
	for _, hr := range fleet.HostResults {
		require.Equal(t, model.OutcomeNotAttempted, hr.Outcome)
	}
	require.Empty(t, tracker.all())
}

func TestOrchestratorSecondRunReportsUnchanged(t *testing.T) {
	t.Parallel()

	// A stateful fake host: the first apply creates the marker, after which
	// the check passes and re-runs converge to unchanged.
	var mu sync.Mutex
	converged := false
	runner := newFakeRunner(nil)
	runner.script = func(command string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		// Unit commands arrive with the exported vars prologue in front.
		switch {
		case strings.HasSuffix(command, "test -d /data/chain"):
			if converged {
				return "", nil
			}
			return "", fmt.Errorf("exit status 1")
		case strings.HasSuffix(command, "mkdir -p /data/chain"):
			converged = true
			return "", nil
		}
		return "linux", nil
	}

	reg := buildRegistry(t, registry.Step{
		ID:    "chain-dir",
		Order: 1,
		Role: role.NewCommandRole("chain-dir", role.Unit{
			Name:  "chain directory",
			Check: "test -d /data/chain",
			Apply: "mkdir -p /data/chain",
		}),
	})
	exec := NewExecutor(reg, newTestCollector(), fakeDialer(runner), nil, ExecutorOptions{})
	orch := NewOrchestrator(exec, 1, PolicyAbort, nil)

	first := orch.Run(context.Background(), fleetConfig("h1"))
	require.Equal(t, model.OutcomeSuccess, first.HostResults[0].Outcome)
	require.Equal(t, model.StatusChanged, first.HostResults[0].StepResults[0].Status)

	second := orch.Run(context.Background(), fleetConfig("h1"))
	require.Equal(t, model.OutcomeSuccess, second.HostResults[0].Outcome)
	require.Equal(t, model.StatusUnchanged, second.HostResults[0].StepResults[0].Status)
}

func TestOrchestratorNotifierReceivesHostAndFleetEvents(t *testing.T) {
	t.Parallel()

	tracker := &hostTracker{}
	orch := newFleetOrchestrator(t, tracker, nil, 1, PolicyAbort)

	var mu sync.Mutex
	var hostsDone []string
	fleetDone := false
	orch.SetNotifier(func(event any) {
		mu.Lock()
		defer mu.Unlock()
		switch e := event.(type) {
		case HostDoneEvent:
			hostsDone = append(hostsDone, e.Result.Address)
		case FleetDoneEvent:
			fleetDone = true
		}
	})

	orch.Run(context.Background(), fleetConfig("h1", "h2"))

	require.Equal(t, []string{"h1", "h2"}, hostsDone)
	require.True(t, fleetDone)
}
