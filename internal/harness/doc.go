// Package harness runs plan scenarios: plan documents executed against
// fixture tables, with assertions on the outcome and golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files named *.scenario.yaml:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	plan: ../plans/sum_by_key.yaml
//	mode: permissive            # optional, overrides the plan document
//	runs: 3                     # optional, query executions compared
//	tables:
//	  t: {bag: [{k: 1, v: 2}, {k: 2, v: 5}]}
//	assertions:
//	  - type: result_equals
//	    value: {bag: [{k: 1, total: 2}, {k: 2, total: 5}]}
//	  - type: strategy_used
//	    strategy: hash_aggregate
//
// The plan path is resolved relative to the scenario file. Table values use
// the literal forms of plan documents and are loaded into a fresh
// in-memory SQLite store, which serves as the catalog for the run.
//
// # Assertion Types
//
//   - result_equals: the query result equals value (bags compare
//     without regard to order)
//   - result_count: the query result has count elements
//   - table_equals: after the run, table holds value
//   - rows_written: the effect wrote count rows
//   - compile_error: compilation fails with code
//   - execute_error: execution fails with an error containing message
//   - strategy_used: some operator was lowered by strategy
//
// # Deterministic Testing
//
// A query is executed several times (runs, default 2) and every execution
// must render the same result. Statement IDs come from a sequential
// generator, so snapshots never depend on time.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/sum_by_key.scenario.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
