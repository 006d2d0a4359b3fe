package role

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/model"
)

// scriptRunner answers commands from a script function and records every
// command it sees.
type scriptRunner struct {
	mu       sync.Mutex
	script   func(command string) (string, error)
	commands []string
}

func (r *scriptRunner) Run(_ context.Context, command string) (string, error) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()

	if r.script == nil {
		return "", nil
	}
	return r.script(command)
}

func (r *scriptRunner) Close() error { return nil }

func (r *scriptRunner) seen(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cmd := range r.commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

func execContext(runner *scriptRunner) *ExecContext {
	return &ExecContext{
		Host:   "10.0.0.1",
		Runner: runner,
		Facts:  model.Facts{model.FactOS: "linux"},
		Vars:   config.Vars{config.VarHomePath: "/home/ubuntu", config.VarOperation: "start"},
	}
}

func TestCommandRoleAppliesMissingUnits(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{script: func(cmd string) (string, error) {
		if strings.Contains(cmd, "command -v mongod") {
			return "", errors.New("exit status 1")
		}
		return "", nil
	}}

	r := NewCommandRole("mongodb",
		Unit{Name: "install", Check: "command -v mongod", Apply: "apt-get install -y mongodb-org"},
	)

	res, err := r.Apply(context.Background(), execContext(runner))
	require.NoError(t, err)
	require.Equal(t, model.StatusChanged, res.Status)
	require.True(t, runner.seen("apt-get install -y mongodb-org"))
}

func TestCommandRoleIsIdempotent(t *testing.T) {
	t.Parallel()

	// every check passes: the host is already converged
	runner := &scriptRunner{}
	r := NewCommandRole("mongodb",
		Unit{Name: "install", Check: "command -v mongod", Apply: "apt-get install -y mongodb-org"},
		Unit{Name: "service", Check: "pgrep mongod", Apply: "systemctl start mongod"},
	)

	res, err := r.Apply(context.Background(), execContext(runner))
	require.NoError(t, err)
	require.Equal(t, model.StatusUnchanged, res.Status)
	require.False(t, runner.seen("apt-get install"))
	require.False(t, runner.seen("systemctl start"))
}

func TestCommandRoleDryRunReportsWouldChange(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{script: func(cmd string) (string, error) {
		return "", errors.New("exit status 1") // all checks fail
	}}

	r := NewCommandRole("consensus",
		Unit{Name: "install", Check: "command -v tendermint", Apply: "curl -sL https://example.test/tendermint | tar xz"},
	)

	exec := execContext(runner)
	exec.DryRun = true

	res, err := r.Apply(context.Background(), exec)
	require.NoError(t, err)
	require.Equal(t, model.StatusWouldChange, res.Status)
	require.False(t, runner.seen("tar xz"), "dry-run must not apply")
}

func TestCommandRoleFailureAbortsRemainingUnits(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{script: func(cmd string) (string, error) {
		switch {
		case strings.Contains(cmd, "check-one"), strings.Contains(cmd, "check-two"):
			return "", errors.New("exit status 1")
		case strings.Contains(cmd, "apply-one"):
			return "E: unable to locate package", errors.New("exit status 100")
		}
		return "", nil
	}}

	r := NewCommandRole("broken",
		Unit{Name: "one", Check: "check-one", Apply: "apply-one"},
		Unit{Name: "two", Check: "check-two", Apply: "apply-two"},
	)

	res, err := r.Apply(context.Background(), execContext(runner))
	require.Error(t, err)
	require.Equal(t, model.StatusFailed, res.Status)
	require.Contains(t, res.Message, "unit one failed")
	require.Contains(t, res.Message, "unable to locate package")
	require.False(t, runner.seen("apply-two"))
}

func TestCommandRoleUnitsWithoutCheckAlwaysApply(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{}
	r := NewCommandRole("chaindb",
		Unit{Name: "start", Apply: "systemctl restart chaindb"},
	)

	res, err := r.Apply(context.Background(), execContext(runner))
	require.NoError(t, err)
	require.Equal(t, model.StatusChanged, res.Status)
	require.True(t, runner.seen("systemctl restart chaindb"))
}

func TestVarsPrologueExportsDeclaredVariables(t *testing.T) {
	t.Parallel()

	runner := &scriptRunner{}
	r := NewCommandRole("chaindb", Unit{Name: "start", Apply: "start-chaindb"})

	exec := execContext(runner)
	exec.Vars = config.Vars{
		config.VarStackType: "docker",
		config.VarHomePath:  "/home/o'brien",
		config.VarOperation: "start",
	}

	_, err := r.Apply(context.Background(), exec)
	require.NoError(t, err)

	require.Len(t, runner.commands, 1)
	cmd := runner.commands[0]
	require.True(t, strings.HasPrefix(cmd, "export "), cmd)
	require.Contains(t, cmd, "STACK_TYPE='docker'")
	require.Contains(t, cmd, `HOME_PATH='/home/o'\''brien'`)
	require.Contains(t, cmd, "OPERATION='start'")
	require.True(t, strings.HasSuffix(cmd, "; start-chaindb"), cmd)

	// deterministic key order
	require.Less(t, strings.Index(cmd, "HOME_PATH"), strings.Index(cmd, "OPERATION"))
	require.Less(t, strings.Index(cmd, "OPERATION"), strings.Index(cmd, "STACK_TYPE"))
}

func TestCommandRoleStopsBetweenUnitsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	runner := &scriptRunner{script: func(cmd string) (string, error) {
		if strings.Contains(cmd, "apply-one") {
			cancel() // cancellation arrives while a unit is in flight
			return "", nil
		}
		return "", errors.New("exit status 1")
	}}

	r := NewCommandRole("slow",
		Unit{Name: "one", Apply: "apply-one"},
		Unit{Name: "two", Apply: "apply-two"},
	)

	res, err := r.Apply(ctx, execContext(runner))
	require.Error(t, err)
	require.Equal(t, model.StatusFailed, res.Status)
	require.False(t, runner.seen("apply-two"), "no new unit may start after cancellation")
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	mongo := NewCommandRole("mongodb", Unit{Name: "install", Apply: "true"})

	require.NoError(t, reg.Register(mongo))
	require.Error(t, reg.Register(mongo), "duplicate registration must fail")
	require.Error(t, reg.Register(nil))

	got, err := reg.Get("mongodb")
	require.NoError(t, err)
	require.Equal(t, mongo, got)

	_, err = reg.Get("postgres")
	require.Error(t, err)

	require.NoError(t, reg.Register(NewCommandRole("chaindb", Unit{Name: "start", Apply: "true"})))
	require.Equal(t, []string{"chaindb", "mongodb"}, reg.Names())
}
