package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/planio"
	"github.com/roach88/pql/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Explain  string // Annotated plan, when compilation succeeded
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Explain != "" {
		fmt.Fprintf(&buf, "\nPlan:\n")
		for _, line := range strings.Split(strings.TrimRight(e.Explain, "\n"), "\n") {
			fmt.Fprintf(&buf, "  %s\n", line)
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions checks every assertion and returns the failure
// messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Explain: result.Explain}
	}

	switch a.Type {
	case AssertCompileError:
		var pe *compiler.PError
		switch {
		case result.CompileErr == nil:
			return fail("compile error "+a.Code, "compiled")
		case !errors.As(result.CompileErr, &pe):
			return fail("compile error "+a.Code, result.CompileErr.Error())
		case pe.Code != a.Code:
			return fail("compile error "+a.Code, pe.Error())
		}
		return nil
	case AssertExecuteError:
		switch {
		case result.ExecuteErr == nil:
			return fail(fmt.Sprintf("execution error containing %q", a.Message), outcome(result))
		case !strings.Contains(result.ExecuteErr.Error(), a.Message):
			return fail(fmt.Sprintf("execution error containing %q", a.Message), result.ExecuteErr.Error())
		}
		return nil
	}

	// Every other assertion needs a successful run.
	if result.CompileErr != nil || result.ExecuteErr != nil {
		return fail(a.Type, outcome(result))
	}

	switch a.Type {
	case AssertResultEquals:
		want, err := planio.Literal(&a.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		if result.IsEffect || !datum.Equal(want, result.Value) {
			return fail(want.String(), outcome(result))
		}
	case AssertResultCount:
		if result.IsEffect || !result.Value.Kind().IsCollection() {
			return fail(fmt.Sprintf("a collection of %d", a.Count), outcome(result))
		}
		if n := result.Value.Len(); n != a.Count {
			return fail(fmt.Sprintf("%d elements", a.Count), fmt.Sprintf("%d elements: %s", n, result.Rendered))
		}
	case AssertRowsWritten:
		if !result.IsEffect || result.Rows != int64(a.Count) {
			return fail(fmt.Sprintf("%d rows written", a.Count), outcome(result))
		}
	case AssertTableEquals:
		want, err := planio.Literal(&a.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		tbl, ok, err := actx.Store.Table(actx.Ctx, a.Table)
		if err != nil {
			return err
		}
		if !ok {
			return fail(want.String(), fmt.Sprintf("no table %q", a.Table))
		}
		rows, err := tbl.Rows(actx.Ctx)
		if err != nil {
			return err
		}
		got := datum.Collection(tbl.Schema(), rows)
		if !datum.Equal(want, got) {
			return fail(want.String(), got.String())
		}
	case AssertStrategyUsed:
		if !slices.Contains(result.Strategies, a.Strategy) {
			return fail("strategy "+a.Strategy, "strategies "+strings.Join(result.Strategies, ", "))
		}
	}
	return nil
}

// outcome describes a result in one line.
func outcome(result *Result) string {
	switch {
	case result.CompileErr != nil:
		return "compile error: " + result.CompileErr.Error()
	case result.ExecuteErr != nil:
		return "execution error: " + result.ExecuteErr.Error()
	case result.IsEffect:
		return fmt.Sprintf("%d rows written", result.Rows)
	}
	return result.Rendered
}
