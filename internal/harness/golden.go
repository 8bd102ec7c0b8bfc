package harness

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pql/internal/compiler"
)

// Snapshot renders the observable outcome of a scenario as stable text:
//
//	scenario: sum-by-key
//	mode: strict
//	result: <<{'k': 1, 'total': 5}>>
//
// Effects show "rows: N" instead of a result. Failures show
// "error: compile E2xx" or "error: execute"; error messages are left out
// because they carry statement IDs and Go type details.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "mode: %s\n", result.Mode)
	switch {
	case result.CompileErr != nil:
		code := "?"
		var pe *compiler.PError
		if errors.As(result.CompileErr, &pe) {
			code = pe.Code
		}
		fmt.Fprintf(&b, "error: compile %s\n", code)
	case result.ExecuteErr != nil:
		b.WriteString("error: execute\n")
	case result.IsEffect:
		fmt.Fprintf(&b, "rows: %d\n", result.Rows)
	default:
		fmt.Fprintf(&b, "result: %s\n", result.Rendered)
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass; a mismatch with the golden
// file fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against a
// golden file without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
