package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	fleeterrors "github.com/flotilla-dev/flotilla/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	stepIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

	stackTypes = map[string]struct{}{StackLocal: {}, StackDocker: {}, StackCloud: {}}
	operations = map[string]struct{}{OperationStart: {}, OperationStop: {}}
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// ValidateConfig performs schema and cross-field validation on the fleet
// document. Declared variables are checked here; predicate references are
// checked at registry registration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fleeterrors.NewValidationError("config", "configuration is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	if err := validateVars(cfg.Vars, "vars"); err != nil {
		return err
	}
	for i, host := range cfg.Hosts {
		if err := validateOverrides(host.Vars, fmt.Sprintf("hosts[%d].vars", i), cfg.Vars); err != nil {
			return err
		}
	}

	stepIndex := make(map[string]int, len(cfg.Steps))
	orderIndex := make(map[int]string, len(cfg.Steps))

	for i, step := range cfg.Steps {
		if _, exists := stepIndex[step.ID]; exists {
			return fleeterrors.NewValidationError(fieldForStep(i, "id"), fmt.Sprintf("duplicate step id %q", step.ID), nil)
		}
		stepIndex[step.ID] = i

		if prev, exists := orderIndex[step.Order]; exists {
			return fleeterrors.NewValidationError(fieldForStep(i, "order"), fmt.Sprintf("order %d already used by step %q", step.Order, prev), nil)
		}
		orderIndex[step.Order] = step.ID

		if err := validateStep(step, i); err != nil {
			return err
		}
	}

	return nil
}

func validateVars(vars Vars, field string) error {
	for _, key := range []string{VarStackType, VarHomePath, VarOperation} {
		if !vars.Declared(key) {
			return fleeterrors.NewValidationError(field, fmt.Sprintf("variable %q must be declared", key), nil)
		}
	}
	return validateVarValues(vars, field)
}

// validateOverrides checks per-host overrides: only declared variables may be
// overridden, and overriding values follow the same domains.
func validateOverrides(vars Vars, field string, declared Vars) error {
	for key := range vars {
		if !declared.Declared(key) {
			return fleeterrors.NewValidationError(field, fmt.Sprintf("override of undeclared variable %q", key), nil)
		}
	}
	return validateVarValues(vars, field)
}

func validateVarValues(vars Vars, field string) error {
	if val, ok := vars[VarStackType]; ok {
		if _, known := stackTypes[val]; !known {
			return fleeterrors.NewValidationError(field+"."+VarStackType, fmt.Sprintf("unknown stack type %q (expected local, docker or cloud)", val), nil)
		}
	}
	if val, ok := vars[VarOperation]; ok {
		if _, known := operations[val]; !known {
			return fleeterrors.NewValidationError(field+"."+VarOperation, fmt.Sprintf("unknown operation %q (expected start or stop)", val), nil)
		}
	}
	if val, ok := vars[VarHomePath]; ok && strings.TrimSpace(val) == "" {
		return fleeterrors.NewValidationError(field+"."+VarHomePath, "must not be empty", nil)
	}
	return nil
}

func validateStep(step Step, index int) error {
	hasRole := strings.TrimSpace(step.Role) != ""
	hasCommand := strings.TrimSpace(step.Command) != ""

	switch {
	case hasRole && hasCommand:
		return fleeterrors.NewValidationError(fieldForStep(index, "role"), "role and command are mutually exclusive", nil)
	case !hasRole && !hasCommand:
		return fleeterrors.NewValidationError(fieldForStep(index, "role"), "either role or command is required", nil)
	}

	if hasRole && step.Check != "" {
		return fleeterrors.NewValidationError(fieldForStep(index, "check"), "check applies to command steps only", nil)
	}

	if step.When != nil {
		if err := validateWhen(*step.When, index); err != nil {
			return err
		}
	}

	return nil
}

func validateWhen(when WhenClause, index int) error {
	hasVar := when.Var != ""
	hasFact := when.Fact != ""

	switch {
	case hasVar && hasFact:
		return fleeterrors.NewValidationError(fieldForStep(index, "when"), "var and fact are mutually exclusive", nil)
	case !hasVar && !hasFact:
		return fleeterrors.NewValidationError(fieldForStep(index, "when"), "either var or fact is required", nil)
	}

	hasEquals := when.Equals != ""
	hasIn := len(when.In) > 0

	switch {
	case hasEquals && hasIn:
		return fleeterrors.NewValidationError(fieldForStep(index, "when"), "equals and in are mutually exclusive", nil)
	case !hasEquals && !hasIn:
		return fleeterrors.NewValidationError(fieldForStep(index, "when"), "either equals or in is required", nil)
	}

	return nil
}

// convertValidationError normalizes validator errors into fleet validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return fleeterrors.NewValidationError(field, msg, err)
	}

	return fleeterrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	var lowered []string
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}
