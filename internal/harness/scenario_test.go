package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes a plan and a scenario referencing it into dir.
func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plan.yaml"), []byte("query: {lit: 1}\n"), 0644))
	path := filepath.Join(dir, "test"+ScenarioSuffix)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: test_scenario
description: "Test scenario for validation"
plan: plan.yaml
runs: 4
tables:
  t: {bag: [1, 2]}
assertions:
  - type: result_equals
    value: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "plan.yaml"), scenario.Plan)
	assert.Equal(t, 4, scenario.Runs)
	assert.Contains(t, scenario.Tables, "t")
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, "1", scenario.Assertions[0].Value.Value)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.scenario.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_MissingPlan(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x"+ScenarioSuffix)
	require.NoError(t, os.WriteFile(path, []byte(`
name: x
description: d
plan: missing.yaml
assertions:
  - type: result_count
`), 0644))

	_, err := LoadScenario(path)
	var pnf *PlanNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "x", pnf.Scenario)
}

func TestLoadScenario_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "name: a\ndescription: d\nplan: plan.yaml\nassertion: []\n", "failed to parse YAML"},
		{"missing name", "description: d\nplan: plan.yaml\nassertions: [{type: result_count}]\n", "name is required"},
		{"missing description", "name: a\nplan: plan.yaml\nassertions: [{type: result_count}]\n", "description is required"},
		{"missing plan", "name: a\ndescription: d\nassertions: [{type: result_count}]\n", "plan is required"},
		{"negative runs", "name: a\ndescription: d\nplan: plan.yaml\nruns: -1\nassertions: [{type: result_count}]\n", "runs must be non-negative"},
		{"no assertions", "name: a\ndescription: d\nplan: plan.yaml\n", "assertions list is required"},
		{"missing type", "name: a\ndescription: d\nplan: plan.yaml\nassertions: [{count: 1}]\n", "type is required"},
		{"unknown type", "name: a\ndescription: d\nplan: plan.yaml\nassertions: [{type: trace_order}]\n", `unknown assertion type "trace_order"`},
		{"result_equals without value", "name: a\ndescription: d\nplan: plan.yaml\nassertions: [{type: result_equals}]\n", "value is required for result_equals"},
		{"table_equals without table", "name: a\ndescription: d\nplan: plan.yaml\nassertions: [{type: table_equals, value: 1}]\n", "table is required"},
		{"compile_error without code", "name: a\ndescription: d\nplan: plan.yaml\nassertions: [{type: compile_error}]\n", "code is required"},
		{"execute_error without message", "name: a\ndescription: d\nplan: plan.yaml\nassertions: [{type: execute_error}]\n", "message is required"},
		{"strategy_used without strategy", "name: a\ndescription: d\nplan: plan.yaml\nassertions: [{type: strategy_used}]\n", "strategy is required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tc.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, name := range []string{"b" + ScenarioSuffix, "a" + ScenarioSuffix, "plan.yaml", "nested/c" + ScenarioSuffix} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a"+ScenarioSuffix),
		filepath.Join(dir, "b"+ScenarioSuffix),
		filepath.Join(dir, "nested", "c"+ScenarioSuffix),
	}, paths)

	_, err = FindScenarios(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
