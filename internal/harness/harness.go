package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/planio"
	"github.com/roach88/pql/internal/store"
	"github.com/roach88/pql/internal/testutil"
)

// Harness holds the per-scenario environment.
type Harness struct {
	store    *store.Store
	catalog  *store.Catalog
	compiler *compiler.Compiler
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and load the fixture tables
// 2. Load the plan document against the store catalog
// 3. Compile it; a compile error ends the run
// 4. Execute (queries several times, effects once)
// 5. Evaluate assertions
//
// Returned errors are problems with the scenario itself: unreadable plan
// or bad fixtures. Compile and execution failures are recorded in the
// result for assertions to check.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store:   st,
		catalog: st.Catalog("harness"),
		logger:  logger,
	}
	h.compiler = compiler.New(
		compiler.WithFunctions(h.catalog.Functions()),
		compiler.WithIDGenerator(testutil.NewSequentialIDs("stmt")),
		compiler.WithLogger(logger),
	)

	ctx := context.Background()
	if err := h.loadTables(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to load tables: %w", err)
	}

	doc, err := planio.LoadFile(scenario.Plan, planio.WithCatalog(h.catalog))
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	mode := doc.Mode
	if scenario.Mode != "" {
		if mode, err = planio.ParseMode(scenario.Mode); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	result.Mode = mode.String()
	_, result.IsEffect = doc.Plan.Action.(*plan.Effect)

	stmt, err := h.compiler.Prepare(doc.Plan, mode, doc.Context(nil))
	if err != nil {
		result.CompileErr = err
	} else {
		result.Explain = stmt.Explain()
		result.Strategies = chosenStrategies(stmt)
		h.execute(stmt, scenario.Runs, result)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// loadTables loads fixture tables in name order.
func (h *Harness) loadTables(ctx context.Context, scenario *Scenario) error {
	names := make([]string, 0, len(scenario.Tables))
	for name := range scenario.Tables {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		node := scenario.Tables[name]
		v, err := planio.Literal(&node)
		if err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		if _, err := h.store.Load(ctx, name, v); err != nil {
			return err
		}
	}
	return nil
}

// execute runs stmt and records the outcome. Query results of every run
// must render identically.
func (h *Harness) execute(stmt *compiler.Statement, runs int, result *Result) {
	if runs <= 0 {
		runs = 2
	}
	if result.IsEffect {
		runs = 1
	}
	session := &catalog.Session{Catalog: h.catalog, Logger: h.logger}

	for i := 0; i < runs; i++ {
		res, err := stmt.Execute(session)
		if err != nil {
			result.ExecuteErr = err
			return
		}
		switch r := res.(type) {
		case compiler.EffectResult:
			result.Rows = r.Rows
		case compiler.QueryResult:
			v, err := datum.Materialize(r.Value)
			if err != nil {
				result.ExecuteErr = err
				return
			}
			if i == 0 {
				result.Value, result.Rendered = v, v.String()
				continue
			}
			if got := v.String(); got != result.Rendered {
				result.AddError(fmt.Sprintf("nondeterministic result: run 1 gave %s, run %d gave %s", result.Rendered, i+1, got))
			}
		}
	}
}

func chosenStrategies(stmt *compiler.Statement) []string {
	var out []string
	plan.Walk(stmt.Plan().Action.Root(), func(op plan.Operator) bool {
		if name, ok := stmt.Strategy(op); ok {
			out = append(out, name)
		}
		return true
	})
	return out
}
