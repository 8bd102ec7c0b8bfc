package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/plan"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	SourceOptions
	Runs int
}

// ReplayStatementResult holds the replay result for one compilation.
type ReplayStatementResult struct {
	Statement     string `json:"statement"`
	Runs          int    `json:"runs"`
	Result        string `json:"result"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Statements       []ReplayStatementResult `json:"statements"`
	SamePlan         bool                    `json:"same_plan"`
	AllDeterministic bool                    `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <plan>",
		Short: "Re-run a query and verify determinism",
		Long: `Compile a query plan twice and execute each statement several times.

Both compilations must choose the same strategies, and every execution
must produce the same result. Only queries can be replayed; effects
change their target table.

Exit codes:
  0 - All executions agree
  1 - Determinism verification failed, or the plan failed
  2 - Command error (missing file, effect plan, etc.)

Examples:
  pql replay plan.yaml --data t=rows.yaml
  pql replay plan.yaml --sqlite ./pql.db --runs 10 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	addSourceFlags(cmd, &opts.SourceOptions)
	cmd.Flags().IntVar(&opts.Runs, "runs", 3, "executions per compiled statement")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	if opts.Runs < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--runs must be at least 1, got %d", opts.Runs))
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	env, err := OpenEnvironment(commandContext(cmd), &opts.SourceOptions, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	doc, err := env.LoadPlan(path, opts.Mode)
	if err != nil {
		return err
	}
	if _, ok := doc.Plan.Action.(*plan.Effect); ok {
		return NewExitError(ExitCommandError, "replay supports queries only")
	}

	comp := env.Compiler()
	var stmts []*compiler.Statement
	for i := 0; i < 2; i++ {
		stmt, err := comp.Prepare(doc.Plan, doc.Mode, doc.Context(nil))
		if err != nil {
			return reportCompileError(formatter, doc, err)
		}
		stmts = append(stmts, stmt)
	}

	result := ReplayResult{
		SamePlan:         stmts[0].Explain() == stmts[1].Explain(),
		AllDeterministic: true,
	}
	var first string
	for i, stmt := range stmts {
		sr, err := replayStatement(env, stmt, opts.Runs)
		if err != nil {
			_ = formatter.Error(ErrCodeExecute, err.Error(), nil)
			return WrapExitError(ExitFailure, "execution failed", err)
		}
		if i == 0 {
			first = sr.Result
		} else if sr.Result != first {
			sr.Deterministic = false
		}
		if !sr.Deterministic {
			result.AllDeterministic = false
		}
		result.Statements = append(result.Statements, sr)
	}
	if !result.SamePlan {
		result.AllDeterministic = false
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayStatement executes stmt runs times; every rendering must match
// the first.
func replayStatement(env *Environment, stmt *compiler.Statement, runs int) (ReplayStatementResult, error) {
	out := ReplayStatementResult{Statement: stmt.ID, Runs: runs, Deterministic: true}
	for i := 0; i < runs; i++ {
		res, err := stmt.Execute(env.Session())
		if err != nil {
			return out, err
		}
		q, ok := res.(compiler.QueryResult)
		if !ok {
			return out, fmt.Errorf("statement %s returned %T", stmt.ID, res)
		}
		v, err := datum.Materialize(q.Value)
		if err != nil {
			return out, err
		}
		rendered := v.String()
		if i == 0 {
			out.Result = rendered
		} else if rendered != out.Result {
			out.Deterministic = false
		}
	}
	return out, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d statement(s)\n", len(result.Statements))
	fmt.Fprintln(w)

	for _, s := range result.Statements {
		status := "✓"
		if !s.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Statement: %s\n", status, s.Statement)
		fmt.Fprintf(w, "  Runs: %d\n", s.Runs)
		if verbose {
			fmt.Fprintf(w, "  Result: %s\n", s.Result)
		}
		if !s.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic result detected!")
		}
		fmt.Fprintln(w)
	}

	if !result.SamePlan {
		fmt.Fprintln(w, "✗ Compilations chose different strategies")
	}
	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All executions verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
