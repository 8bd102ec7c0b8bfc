package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pql/internal/plan"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	SourceOptions
}

// ExplainStep is one operator of an explained plan.
type ExplainStep struct {
	Depth    int    `json:"depth"`
	Operator string `json:"operator"`
	Strategy string `json:"strategy"`
}

// ExplainResult is the JSON payload of the explain command.
type ExplainResult struct {
	Mode        string        `json:"mode"`
	Fingerprint string        `json:"fingerprint"`
	Steps       []ExplainStep `json:"steps"`
	Text        string        `json:"text"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <plan>",
		Short: "Show the strategy chosen for every operator",
		Long: `Compile a plan without executing it and print the operator tree,
each operator annotated with the strategy that compiled it.

Examples:
  pql explain plan.yaml --data t=rows.yaml
  pql explain plan.cue --sqlite ./pql.db --format table`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	addSourceFlags(cmd, &opts.SourceOptions)

	return cmd
}

func runExplain(opts *ExplainOptions, path string, cmd *cobra.Command) error {
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
	stmt, err := env.Compiler().Prepare(doc.Plan, doc.Mode, doc.Context(nil))
	if err != nil {
		return reportCompileError(formatter, doc, err)
	}

	result := ExplainResult{
		Mode:        doc.Mode.String(),
		Fingerprint: plan.Fingerprint(doc.Plan),
		Text:        stmt.Explain(),
	}
	var walk func(op plan.Operator, depth int)
	walk = func(op plan.Operator, depth int) {
		name, _ := stmt.Strategy(op)
		result.Steps = append(result.Steps, ExplainStep{Depth: depth, Operator: plan.Label(op), Strategy: name})
		for _, child := range op.Children() {
			walk(child, depth+1)
		}
	}
	walk(stmt.Plan().Action.Root(), 0)

	switch opts.Format {
	case "json":
		return formatter.Success(result)
	case "table":
		rows := make([][]string, len(result.Steps))
		for i, s := range result.Steps {
			rows[i] = []string{fmt.Sprint(s.Depth), strings.Repeat("  ", s.Depth) + s.Operator, s.Strategy}
		}
		renderTable(formatter.Writer, []string{"depth", "operator", "strategy"}, rows)
		return nil
	}
	fmt.Fprint(formatter.Writer, result.Text)
	return nil
}
