package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestScenarios(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ScenarioSuffix)
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_RecordsStrategiesAndExplain(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/top_two.scenario.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass)
	assert.Equal(t, "strict", result.Mode)
	assert.True(t, strings.HasPrefix(result.Explain, "Query\n"), result.Explain)
	assert.Contains(t, result.Strategies, "select")
	assert.Contains(t, result.Strategies, "scan")
	assert.Equal(t, "[5, 3]", result.Rendered)
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/top_two.scenario.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{
		{Type: AssertResultCount, Count: 3},
		{Type: AssertStrategyUsed, Strategy: "hash_aggregate"},
		{Type: AssertCompileError, Code: "E201"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Expected: 3 elements")
	assert.Contains(t, result.Errors[1], "Expected: strategy hash_aggregate")
	assert.Contains(t, result.Errors[2], "Actual: compiled")
}

func TestRun_ModeOverride(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/top_two.scenario.yaml")
	require.NoError(t, err)
	scenario.Mode = "permissive"

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, "permissive", result.Mode)

	scenario.Mode = "lenient"
	_, err = Run(scenario)
	assert.ErrorContains(t, err, "unknown mode")
}

func TestRun_BadFixture(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/top_two.scenario.yaml")
	require.NoError(t, err)
	node := scenario.Tables["t"]
	scenario.Tables = map[string]yaml.Node{
		"t":      node,
		"scalar": {Kind: yaml.ScalarNode, Tag: "!!int", Value: "5"},
	}

	_, err = Run(scenario)
	assert.ErrorContains(t, err, "failed to load tables")
}
