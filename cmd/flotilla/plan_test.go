package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const planFixture = `version: "1.0"
name: bigchain fleet
vars:
  stack_type: docker
  home_path: /data
  operation: start
hosts:
  - address: node-1.example.com
  - address: node-2.example.com
    vars:
      stack_type: local
`

func writePlanFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(planFixture), 0o644))
	return path
}

func TestRunPlanDefaultSteps(t *testing.T) {
	var out bytes.Buffer
	err := runPlan(convergeOptions{ConfigPath: writePlanFixture(t)}, &out)
	require.NoError(t, err)

	text := out.String()
	require.Contains(t, text, "node-1.example.com (stack_type=docker, operation=start)")
	require.Contains(t, text, "node-2.example.com (stack_type=local, operation=start)")

	// Docker host gets the container runtime, local host the Python stack;
	// the unconditional services appear for both.
	require.Contains(t, text, "dockerengine")
	require.Contains(t, text, "pythonenv")
	require.Contains(t, text, "mongodb")
	require.Contains(t, text, "tendermint")
	require.Contains(t, text, "chaindb")
}

func TestRunPlanExplicitSteps(t *testing.T) {
	fixture := `version: "1.0"
name: custom
vars:
  stack_type: cloud
  home_path: /data
  operation: start
hosts:
  - address: h1
steps:
  - id: data-dir
    order: 1
    command: mkdir -p /data
    check: test -d /data
  - id: runtime
    order: 2
    role: dockerengine
    when:
      var: stack_type
      in: [docker, cloud]
`
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	var out bytes.Buffer
	require.NoError(t, runPlan(convergeOptions{ConfigPath: path}, &out))

	text := out.String()
	require.Contains(t, text, "data-dir")
	require.Contains(t, text, "runtime")
	require.Contains(t, text, `[when stack_type in {docker, cloud}]`)
}

func TestRunPlanListsFactGuardedStepsAsConditional(t *testing.T) {
	fixture := `version: "1.0"
name: fact guarded
vars:
  stack_type: local
  home_path: /data
  operation: start
hosts:
  - address: 10.0.0.1
steps:
  - id: apt-tuning
    order: 1
    command: sysctl -w vm.swappiness=10
    when:
      fact: os_family
      equals: debian
`
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))

	var out bytes.Buffer
	require.NoError(t, runPlan(convergeOptions{ConfigPath: path}, &out))

	// The step cannot be resolved without gathered facts, so it must still
	// appear, marked conditional, rather than vanish from the plan.
	text := out.String()
	require.Contains(t, text, "apt-tuning")
	require.Contains(t, text, `[conditional on facts: fact os_family == "debian"]`)
	require.NotContains(t, text, "no steps selected")
}

func TestRunPlanRejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: [broken"), 0o644))

	var out bytes.Buffer
	require.Error(t, runPlan(convergeOptions{ConfigPath: path}, &out))
}
