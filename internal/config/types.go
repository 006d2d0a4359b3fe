package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Recognized variable keys. Extra keys may be declared; predicates may only
// reference declared keys.
const (
	VarStackType = "stack_type"
	VarHomePath  = "home_path"
	VarOperation = "operation"
)

// Stack types accepted for the stack_type variable.
const (
	StackLocal  = "local"
	StackDocker = "docker"
	StackCloud  = "cloud"
)

// Operations accepted for the operation variable.
const (
	OperationStart = "start"
	OperationStop  = "stop"
)

// Config represents the full fleet document.
type Config struct {
	Version     string   `yaml:"version" validate:"required,semver"`
	Name        string   `yaml:"name" validate:"required,min=1,max=100"`
	Description string   `yaml:"description,omitempty"`
	Vars        Vars     `yaml:"vars" validate:"required"`
	Settings    Settings `yaml:"settings,omitempty"`
	Hosts       []Host   `yaml:"hosts" validate:"required,min=1,dive"`
	Steps       []Step   `yaml:"steps,omitempty" validate:"omitempty,dive"`
	RoleSource  string   `yaml:"role_source,omitempty"`
}

// Vars is the declared variable set shared by all hosts, with optional
// per-host overrides.
type Vars map[string]string

// Get returns the value for key, or "" when absent.
func (v Vars) Get(key string) string {
	if v == nil {
		return ""
	}
	return v[key]
}

// Declared reports whether a variable is present in the set.
func (v Vars) Declared(key string) bool {
	if v == nil {
		return false
	}
	_, ok := v[key]
	return ok
}

// Merged overlays other on top of v, returning a new set.
func (v Vars) Merged(other Vars) Vars {
	out := make(Vars, len(v)+len(other))
	for k, val := range v {
		out[k] = val
	}
	for k, val := range other {
		out[k] = val
	}
	return out
}

// Settings holds global execution parameters.
type Settings struct {
	// Batch is the number of hosts converged concurrently. Zero or one means
	// serial: a host's run does not begin until the previous host is done.
	Batch int `yaml:"batch,omitempty" validate:"omitempty,min=1,max=64"`
	// FailurePolicy controls whether a host failure halts subsequent hosts.
	FailurePolicy   string `yaml:"failure_policy,omitempty" validate:"omitempty,oneof=abort best_effort"`
	ContinueOnError bool   `yaml:"continue_on_error,omitempty"`
	// StepTimeout bounds each remote operation, in seconds.
	StepTimeout  int  `yaml:"step_timeout,omitempty" validate:"omitempty,min=1,max=86400"`
	ProbeTimeout int  `yaml:"probe_timeout,omitempty" validate:"omitempty,min=1,max=3600"`
	DryRun       bool `yaml:"dry_run,omitempty"`
	Verbose      bool `yaml:"verbose,omitempty"`
}

// Host describes one member of the fleet.
type Host struct {
	Address string `yaml:"address" validate:"required,min=1"`
	Port    int    `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User    string `yaml:"user,omitempty"`
	KeyFile string `yaml:"key_file,omitempty"`
	Vars    Vars   `yaml:"vars,omitempty"`
}

// Step describes one predicate-guarded unit of the convergence plan. Exactly
// one of Role or Command must be set.
type Step struct {
	ID      string      `yaml:"id" validate:"required,step_id"`
	Name    string      `yaml:"name,omitempty"`
	Order   int         `yaml:"order" validate:"required,min=1"`
	Role    string      `yaml:"role,omitempty"`
	Command string      `yaml:"command,omitempty"`
	Check   string      `yaml:"check,omitempty"`
	When    *WhenClause `yaml:"when,omitempty"`
}

// WhenClause is the YAML form of an applicability predicate. Exactly one of
// Var or Fact selects the input, and exactly one of Equals or In the match.
// Matching is case-insensitive for variables.
type WhenClause struct {
	Var    string   `yaml:"var,omitempty"`
	Fact   string   `yaml:"fact,omitempty"`
	Equals string   `yaml:"equals,omitempty"`
	In     []string `yaml:"in,omitempty"`
	Not    bool     `yaml:"not,omitempty"`
}

// UnmarshalYAML lowercases match values so predicate evaluation stays
// case-insensitive without re-normalizing per host.
func (w *WhenClause) UnmarshalYAML(value *yaml.Node) error {
	type rawWhen WhenClause
	var temp rawWhen
	if err := value.Decode(&temp); err != nil {
		return err
	}
	*w = WhenClause(temp)
	w.Equals = strings.ToLower(w.Equals)
	for i, v := range w.In {
		w.In[i] = strings.ToLower(v)
	}
	return nil
}

// normalize lowercases values whose domains are case-insensitive. Applied
// once at parse time so the rest of the run sees canonical values.
func (c *Config) normalize() {
	normalizeVars(c.Vars)
	for i := range c.Hosts {
		normalizeVars(c.Hosts[i].Vars)
	}
	if c.Settings.FailurePolicy == "" {
		c.Settings.FailurePolicy = "abort"
	}
}

func normalizeVars(vars Vars) {
	for _, key := range []string{VarStackType, VarOperation} {
		if val, ok := vars[key]; ok {
			vars[key] = strings.ToLower(strings.TrimSpace(val))
		}
	}
}

// HostVars returns the effective variable set for a host: globals overlaid
// with the host's own overrides.
func (c *Config) HostVars(h Host) Vars {
	return c.Vars.Merged(h.Vars)
}
