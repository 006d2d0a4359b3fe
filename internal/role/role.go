// Package role defines the contract between the convergence engine and the
// provisioning bundles it invokes. A role receives a connected host plus the
// merged variable set, applies its units idempotently, and reports a single
// step outcome.
package role

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/logger"
	"github.com/flotilla-dev/flotilla/internal/model"
	"github.com/flotilla-dev/flotilla/internal/transport"
)

// ExecContext carries everything a role needs to act on one host. Facts and
// Vars are read-only for the duration of the run.
type ExecContext struct {
	Host   string
	Runner transport.Runner
	Facts  model.Facts
	Vars   config.Vars
	Logger *logger.Logger
	DryRun bool
}

// Role is an idempotent provisioning bundle. Apply must be safe to re-run:
// against a host already in the desired state it reports unchanged and
// performs no mutation.
type Role interface {
	Name() string
	Apply(ctx context.Context, exec *ExecContext) (*model.StepResult, error)
}

// Unit is one check/apply pair inside a command role. When Check exits zero
// the unit is already satisfied and Apply is skipped.
type Unit struct {
	Name  string `yaml:"name" validate:"required"`
	Check string `yaml:"check,omitempty"`
	Apply string `yaml:"apply" validate:"required"`
}

// CommandRole runs an ordered list of units over the host's runner.
type CommandRole struct {
	name  string
	units []Unit
}

// NewCommandRole builds a role from check/apply units.
func NewCommandRole(name string, units ...Unit) *CommandRole {
	return &CommandRole{name: name, units: append([]Unit(nil), units...)}
}

// Name returns the role name.
func (r *CommandRole) Name() string { return r.name }

// Apply walks the units in order. The first failing unit aborts the role;
// earlier mutations stand, which is safe because units are idempotent.
func (r *CommandRole) Apply(ctx context.Context, exec *ExecContext) (*model.StepResult, error) {
	prologue := varsPrologue(exec.Vars)
	changed := 0

	for _, unit := range r.units {
		if err := ctx.Err(); err != nil {
			return failedResult(r.name, unit.Name, err), err
		}

		if unit.Check != "" {
			if _, err := exec.Runner.Run(ctx, prologue+unit.Check); err == nil {
				continue
			}
		}

		if exec.DryRun {
			changed++
			continue
		}

		if output, err := exec.Runner.Run(ctx, prologue+unit.Apply); err != nil {
			if exec.Logger != nil {
				exec.Logger.Error(err, "unit "+unit.Name+" failed")
			}
			res := failedResult(r.name, unit.Name, err)
			if trimmed := strings.TrimSpace(output); trimmed != "" {
				res.Message = res.Message + ": " + lastLine(trimmed)
			}
			return res, err
		}
		changed++
	}

	return changedResult(r.name, changed, len(r.units), exec.DryRun), nil
}

func failedResult(role, unit string, err error) *model.StepResult {
	return &model.StepResult{
		StepID:    role,
		Status:    model.StatusFailed,
		Message:   "unit " + unit + " failed",
		Error:     err,
		Timestamp: time.Now(),
	}
}

func changedResult(role string, changed, total int, dryRun bool) *model.StepResult {
	res := &model.StepResult{
		StepID:    role,
		Timestamp: time.Now(),
	}
	switch {
	case changed == 0:
		res.Status = model.StatusUnchanged
		res.Message = "already converged"
	case dryRun:
		res.Status = model.StatusWouldChange
		res.Message = unitCount(changed, total) + " would change"
	default:
		res.Status = model.StatusChanged
		res.Message = unitCount(changed, total) + " changed"
	}
	return res
}

func unitCount(changed, total int) string {
	if total == 1 {
		return "1 unit"
	}
	return fmt.Sprintf("%d of %d units", changed, total)
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// varsPrologue renders the declared variables as exported environment
// variables so unit commands can reference them ($HOME_PATH, $OPERATION...).
// Deterministic ordering keeps command strings stable for logging and tests.
func varsPrologue(vars config.Vars) string {
	if len(vars) == 0 {
		return ""
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("export")
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(strings.ToUpper(k))
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(vars[k], "'", `'\''`))
		b.WriteString("'")
	}
	b.WriteString("; ")
	return b.String()
}
