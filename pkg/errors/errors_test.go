package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("fleet.yaml", 7, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "fleet.yaml", parseErr.Path)
	require.Equal(t, 7, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "fleet.yaml")
}

func TestValidationErrorAggregatesFields(t *testing.T) {
	t.Parallel()

	err := NewValidationError("vars.stack_type", "must be one of local, docker, cloud", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "vars.stack_type", validationErr.Field)
	require.Contains(t, validationErr.Message, "must be one of")
}

func TestPredicateErrorIncludesStepContext(t *testing.T) {
	t.Parallel()

	err := NewPredicateError("container_runtime", `references undeclared variable "stack_kind"`)

	var predErr *PredicateError
	require.ErrorAs(t, err, &predErr)
	require.Equal(t, "container_runtime", predErr.StepID)
	require.Contains(t, err.Error(), "container_runtime")
}

func TestConnectionErrorWrapsDialFailure(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("dial tcp: connection refused")
	err := NewConnectionError("10.0.0.5", underlying)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "10.0.0.5", connErr.Host)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestProbeErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("no package manager found")
	err := NewProbeError("node-1", underlying)

	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
	require.Equal(t, "node-1", probeErr.Host)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestStepErrorIncludesHostAndStep(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("exit status 1")
	err := NewStepError("node-2", "datastore", underlying)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "node-2", stepErr.Host)
	require.Equal(t, "datastore", stepErr.StepID)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "datastore")
}
