package registry

import (
	"fmt"
	"strings"

	"github.com/flotilla-dev/flotilla/internal/config"
	"github.com/flotilla-dev/flotilla/internal/model"
)

// Predicate decides whether a step applies to a host. Evaluation is pure and
// total: it always resolves to a boolean for any facts/vars combination.
// Variable references are declared up front via Refs so the registry can
// reject undefined references at registration time.
type Predicate interface {
	Eval(facts model.Facts, vars config.Vars) bool
	// Refs lists the declared variables the predicate reads; registration
	// fails fast when one is undeclared.
	Refs() []string
	// FactRefs lists the gathered facts the predicate reads. Facts only
	// exist once a host has been probed, so callers evaluating without
	// facts (the plan command) report these steps as conditional instead
	// of resolving them.
	FactRefs() []string
	String() string
}

type alwaysPredicate struct{}

func (alwaysPredicate) Eval(model.Facts, config.Vars) bool { return true }
func (alwaysPredicate) Refs() []string                     { return nil }
func (alwaysPredicate) FactRefs() []string                 { return nil }
func (alwaysPredicate) String() string                     { return "always" }

// Always matches every host.
func Always() Predicate {
	return alwaysPredicate{}
}

type varEquals struct {
	name  string
	value string
}

func (p varEquals) Eval(_ model.Facts, vars config.Vars) bool {
	return strings.EqualFold(vars.Get(p.name), p.value)
}

func (p varEquals) Refs() []string { return []string{p.name} }
func (p varEquals) FactRefs() []string { return nil }
func (p varEquals) String() string { return fmt.Sprintf("%s == %q", p.name, p.value) }

// VarEquals matches when the named variable equals value, case-insensitively.
func VarEquals(name, value string) Predicate {
	return varEquals{name: name, value: value}
}

type varIn struct {
	name   string
	values []string
}

func (p varIn) Eval(_ model.Facts, vars config.Vars) bool {
	actual := vars.Get(p.name)
	for _, v := range p.values {
		if strings.EqualFold(actual, v) {
			return true
		}
	}
	return false
}

func (p varIn) Refs() []string { return []string{p.name} }
func (p varIn) FactRefs() []string { return nil }
func (p varIn) String() string {
	return fmt.Sprintf("%s in {%s}", p.name, strings.Join(p.values, ", "))
}

// VarIn matches when the named variable equals any of the values,
// case-insensitively.
func VarIn(name string, values ...string) Predicate {
	return varIn{name: name, values: append([]string(nil), values...)}
}

type factEquals struct {
	name  string
	value string
}

func (p factEquals) Eval(facts model.Facts, _ config.Vars) bool {
	return strings.EqualFold(facts.Get(p.name), p.value)
}

func (p factEquals) Refs() []string { return nil }
func (p factEquals) FactRefs() []string { return []string{p.name} }
func (p factEquals) String() string { return fmt.Sprintf("fact %s == %q", p.name, p.value) }

// FactEquals matches when the named gathered fact equals value. Facts are
// discovered at run time, so references need no declaration; an absent fact
// simply compares as the empty string.
func FactEquals(name, value string) Predicate {
	return factEquals{name: name, value: value}
}

type factIn struct {
	name   string
	values []string
}

func (p factIn) Eval(facts model.Facts, _ config.Vars) bool {
	actual := facts.Get(p.name)
	for _, v := range p.values {
		if strings.EqualFold(actual, v) {
			return true
		}
	}
	return false
}

func (p factIn) Refs() []string { return nil }
func (p factIn) FactRefs() []string { return []string{p.name} }
func (p factIn) String() string {
	return fmt.Sprintf("fact %s in {%s}", p.name, strings.Join(p.values, ", "))
}

// FactIn matches when the named fact equals any of the values.
func FactIn(name string, values ...string) Predicate {
	return factIn{name: name, values: append([]string(nil), values...)}
}

type notPredicate struct {
	inner Predicate
}

func (p notPredicate) Eval(facts model.Facts, vars config.Vars) bool {
	return !p.inner.Eval(facts, vars)
}

func (p notPredicate) Refs() []string { return p.inner.Refs() }
func (p notPredicate) FactRefs() []string { return p.inner.FactRefs() }
func (p notPredicate) String() string { return fmt.Sprintf("not (%s)", p.inner) }

// Not inverts a predicate.
func Not(inner Predicate) Predicate {
	return notPredicate{inner: inner}
}

// FromWhen converts a validated when clause into a predicate.
func FromWhen(when *config.WhenClause) Predicate {
	if when == nil {
		return Always()
	}

	var p Predicate
	switch {
	case when.Var != "" && when.Equals != "":
		p = VarEquals(when.Var, when.Equals)
	case when.Var != "":
		p = VarIn(when.Var, when.In...)
	case when.Equals != "":
		p = FactEquals(when.Fact, when.Equals)
	default:
		p = FactIn(when.Fact, when.In...)
	}

	if when.Not {
		p = Not(p)
	}
	return p
}
