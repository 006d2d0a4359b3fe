package errors

import (
	"fmt"
)

// ParseError represents a fleet file parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures fleet configuration validation issues. These fail
// the entire run before any host is touched.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PredicateError reports a step predicate that cannot be registered, such as
// a reference to an undeclared variable. Registration-time only; predicates
// never fail at evaluation time.
type PredicateError struct {
	StepID  string
	Message string
}

// NewPredicateError constructs a PredicateError for the given step.
func NewPredicateError(stepID, message string) error {
	return &PredicateError{StepID: stepID, Message: message}
}

func (e *PredicateError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID != "" {
		return fmt.Sprintf("predicate error on step %s: %s", e.StepID, e.Message)
	}
	return fmt.Sprintf("predicate error: %s", e.Message)
}

// ConnectionError indicates a host could not be reached. Fatal for that host
// only; other hosts are unaffected.
type ConnectionError struct {
	Host string
	Err  error
}

// NewConnectionError constructs a ConnectionError.
func NewConnectionError(host string, err error) error {
	return &ConnectionError{Host: host, Err: err}
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("connection error: %s: %v", e.Host, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProbeError indicates the bootstrap probe could not install baseline tooling
// and the tool is absent. The executor records it but proceeds.
type ProbeError struct {
	Host string
	Err  error
}

// NewProbeError constructs a ProbeError.
func NewProbeError(host string, err error) error {
	return &ProbeError{Host: host, Err: err}
}

func (e *ProbeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("probe error: %s: %v", e.Host, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ProbeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StepError represents a runtime failure while executing a step on a host.
// Timeouts are reported through the same type.
type StepError struct {
	Host   string
	StepID string
	Err    error
}

// NewStepError constructs a StepError.
func NewStepError(host, stepID string, err error) error {
	return &StepError{Host: host, StepID: stepID, Err: err}
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.Host != "" {
		return fmt.Sprintf("step %s failed on %s: %v", e.StepID, e.Host, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.StepID, e.Err)
}

// Unwrap exposes the root error.
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
