package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/planio"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SourceOptions

	// IDGenerator overrides the statement ID generator (for testing).
	// If nil, statements get UUIDv7 IDs.
	IDGenerator compiler.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <plan>",
		Short: "Compile and execute a plan",
		Long: `Compile a plan document (.yaml, .yml or .cue) and execute it once.

Queries print their result. Effects write into their target table and
print the number of rows written; the target must be writable, which
means a --data table or a table in the --sqlite store.

Exit codes:
  0 - Plan executed
  1 - Plan failed to compile or execute
  2 - Command error (missing file, bad flag, database not found, etc.)

Examples:
  pql run plan.yaml --data t=rows.yaml
  pql run plan.cue --sqlite ./pql.db --format table
  pql run plan.yaml --parquet people=people.parquet --mode permissive`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	addSourceFlags(cmd, &opts.SourceOptions)

	return cmd
}

func runPlan(opts *RunOptions, path string, cmd *cobra.Command) error {
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
	defer func() {
		if closeErr := env.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	doc, err := env.LoadPlan(path, opts.Mode)
	if err != nil {
		return err
	}

	compilerOpts := []compiler.Option{
		compiler.WithFunctions(env.Catalog.Functions()),
		compiler.WithLogger(logger),
	}
	if opts.IDGenerator != nil {
		compilerOpts = append(compilerOpts, compiler.WithIDGenerator(opts.IDGenerator))
	}
	stmt, err := compiler.New(compilerOpts...).Prepare(doc.Plan, doc.Mode, doc.Context(nil))
	if err != nil {
		return reportCompileError(formatter, doc, err)
	}
	formatter.VerboseLog("Compiled %s (%s, plan %s) as %s", path, doc.Mode, plan.Fingerprint(doc.Plan)[:12], stmt.ID)

	res, err := stmt.Execute(env.Session())
	if err != nil {
		_ = formatter.Error(ErrCodeExecute, err.Error(), nil)
		return WrapExitError(ExitFailure, "execution failed", err)
	}

	switch r := res.(type) {
	case compiler.EffectResult:
		if opts.Format == "json" {
			return formatter.Success(map[string]any{"effect": r.Name, "target": r.Target, "rows": r.Rows})
		}
		fmt.Fprintf(formatter.Writer, "%s: %d row%s written to %s\n", r.Name, r.Rows, plural(int(r.Rows)), r.Target)
		return nil
	case compiler.QueryResult:
		v, err := datum.Materialize(r.Value)
		if err != nil {
			_ = formatter.Error(ErrCodeExecute, err.Error(), nil)
			return WrapExitError(ExitFailure, "execution failed", err)
		}
		return formatter.Value(v)
	}
	return fmt.Errorf("unexpected result %T", res)
}

// reportCompileError prints a compile failure with its plan error code.
func reportCompileError(formatter *OutputFormatter, doc *planio.Document, err error) error {
	code := ErrCodeGeneric
	var details any
	var pe *compiler.PError
	if errors.As(err, &pe) {
		code = pe.Code
		if pe.Operator != nil {
			details = map[string]string{"file": doc.File, "operator": plan.Label(pe.Operator)}
		}
	}
	_ = formatter.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, "compilation failed", err)
}

// commandContext returns the command's context, or Background when the
// command runs outside ExecuteContext (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
