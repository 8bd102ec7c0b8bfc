package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topTwoScenario = `name: top_two
description: "Sort descending and keep two"
plan: ../plans/top_two.yaml
tables:
  t: {bag: [{k: 1, v: 2}, {k: 1, v: 3}, {k: 2, v: 5}]}
assertions:
  - type: result_equals
    value: [5, 3]
  - type: strategy_used
    strategy: sort
`

const failingScenario = `name: wrong_answer
description: "Expects the wrong result"
plan: ../plans/top_two.yaml
tables:
  t: {bag: [{k: 1, v: 2}]}
assertions:
  - type: result_count
    count: 5
`

// scenarioTree lays out plans/ and scenarios/ under a temp dir and
// returns the scenarios directory.
func scenarioTree(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "plans/top_two.yaml", topTwoPlan)
	for name, content := range scenarios {
		writeFile(t, dir, "scenarios/"+name, content)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scenarios"), 0755))
	return filepath.Join(dir, "scenarios")
}

func TestTestCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_NonExistentDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := execute(t, "test", scenarioTree(t, nil))
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommand_Pass(t *testing.T) {
	dir := scenarioTree(t, map[string]string{"top_two.scenario.yaml": topTwoScenario})

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ top_two")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_FailureJSON(t *testing.T) {
	dir := scenarioTree(t, map[string]string{
		"top_two.scenario.yaml": topTwoScenario,
		"wrong.scenario.yaml":   failingScenario,
	})

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "top_two", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "wrong_answer", resp.Data.Scenarios[1].Name)
	assert.NotEmpty(t, resp.Data.Scenarios[1].Errors)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioTree(t, map[string]string{
		"top_two.scenario.yaml": topTwoScenario,
		"wrong.scenario.yaml":   failingScenario,
	})

	out, err := execute(t, "test", dir, "--filter", "top_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")

	_, err = execute(t, "test", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := scenarioTree(t, map[string]string{"broken.scenario.yaml": "name: broken\n"})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.scenario.yaml")
	assert.Contains(t, out, "Load error: failed to load scenario")
}

func TestTestCommand_Golden(t *testing.T) {
	dir := scenarioTree(t, map[string]string{"top_two.scenario.yaml": topTwoScenario})
	golden := filepath.Join(t.TempDir(), "golden")

	// Comparing without a golden file fails.
	_, err := execute(t, "test", dir, "--golden", golden)
	require.Error(t, err)

	out, err := execute(t, "test", dir, "--golden", golden, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	data, err := os.ReadFile(filepath.Join(golden, "top_two.golden"))
	require.NoError(t, err)
	assert.Equal(t, "scenario: top_two\nmode: strict\nresult: [5, 3]\n", string(data))

	_, err = execute(t, "test", dir, "--golden", golden)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(golden, "top_two.golden"), []byte("stale\n"), 0644))
	out, err = execute(t, "test", dir, "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, out, "Golden file mismatch")
}

func TestTestCommand_UpdateNeedsGolden(t *testing.T) {
	_, err := execute(t, "test", scenarioTree(t, nil), "--update")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
