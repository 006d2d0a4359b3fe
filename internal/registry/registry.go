// Package registry holds the ordered set of predicate-guarded convergence
// steps and computes per-host execution plans from gathered facts and
// declared variables.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/model"
	"github.com/flotilla-dev/flotilla/internal/role"
	fleeterrors "github.com/flotilla-dev/flotilla/pkg/errors"
)

// Step is one registered unit of the convergence sequence. Steps are defined
// once and shared read-only across all hosts.
type Step struct {
	ID    string
	Name  string
	Order int
	When  Predicate
	Role  role.Role
}

// Registry validates and stores steps. Registration fails fast: a predicate
// referencing an undeclared variable, a duplicate id, or a duplicate order
// index is rejected before any host is touched.
type Registry struct {
	mu       sync.RWMutex
	declared config.Vars
	steps    []Step
	byID     map[string]struct{}
	byOrder  map[int]string
}

// New creates a registry bound to the declared variable set.
func New(declared config.Vars) *Registry {
	return &Registry{
		declared: declared,
		byID:     make(map[string]struct{}),
		byOrder:  make(map[int]string),
	}
}

// Register adds a step after validating it against the declared variables.
func (r *Registry) Register(step Step) error {
	if step.ID == "" {
		return fleeterrors.NewValidationError("step.id", "step id is required", nil)
	}
	if step.Role == nil {
		return fleeterrors.NewValidationError("step.role", fmt.Sprintf("step %q has no role", step.ID), nil)
	}
	if step.Order <= 0 {
		return fleeterrors.NewValidationError("step.order", fmt.Sprintf("step %q needs a positive order index", step.ID), nil)
	}
	if step.When == nil {
		step.When = Always()
	}

	for _, ref := range step.When.Refs() {
		if !r.declared.Declared(ref) {
			return fleeterrors.NewPredicateError(step.ID, fmt.Sprintf("references undeclared variable %q", ref))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[step.ID]; exists {
		return fleeterrors.NewValidationError("step.id", fmt.Sprintf("duplicate step id %q", step.ID), nil)
	}
	if prev, exists := r.byOrder[step.Order]; exists {
		return fleeterrors.NewValidationError("step.order", fmt.Sprintf("order %d already used by step %q", step.Order, prev), nil)
	}

	r.byID[step.ID] = struct{}{}
	r.byOrder[step.Order] = step.ID
	r.steps = append(r.steps, step)
	return nil
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// Steps returns a snapshot of every registered step sorted by order index,
// regardless of predicates. Used to present the full sequence before any
// host has been probed.
func (r *Registry) Steps() []Step {
	r.mu.RLock()
	steps := make([]Step, len(r.steps))
	copy(steps, r.steps)
	r.mu.RUnlock()

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}

// Plan is the ordered subsequence of steps applicable to one host. Computed
// once per host run; steps registered afterwards do not retroactively apply.
type Plan struct {
	Steps []Step
}

// StepIDs lists the plan's step ids in execution order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Plan evaluates every predicate against the host's facts and effective
// variables and returns the applicable steps sorted by order index. The
// returned plan is a snapshot: later registry mutations do not affect it.
func (r *Registry) Plan(facts model.Facts, vars config.Vars) *Plan {
	r.mu.RLock()
	selected := make([]Step, 0, len(r.steps))
	for _, step := range r.steps {
		if step.When.Eval(facts, vars) {
			selected = append(selected, step)
		}
	}
	r.mu.RUnlock()

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Order < selected[j].Order
	})

	return &Plan{Steps: selected}
}

// FromConfig builds a registry from the fleet document's step list, resolving
// role names against the role registry. Command steps become single-unit
// roles. Resolution failures abort the whole run, fleet-wide.
func FromConfig(cfg *config.Config, roles *role.Registry) (*Registry, error) {
	r := New(cfg.Vars)

	for i, sc := range cfg.Steps {
		step := Step{
			ID:    sc.ID,
			Name:  sc.Name,
			Order: sc.Order,
			When:  FromWhen(sc.When),
		}

		if sc.Role != "" {
			impl, err := roles.Get(sc.Role)
			if err != nil {
				return nil, fleeterrors.NewValidationError(fmt.Sprintf("steps[%d].role", i), err.Error(), err)
			}
			step.Role = impl
		} else {
			step.Role = role.NewCommandRole(sc.ID, role.Unit{
				Name:  sc.ID,
				Check: sc.Check,
				Apply: sc.Command,
			})
		}

		if err := r.Register(step); err != nil {
			return nil, err
		}
	}

	return r, nil
}
