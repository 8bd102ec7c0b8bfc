package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/planio"
)

// ValidationError is one problem found in a plan document.
type ValidationError struct {
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Code     string `json:"code"`
	Operator string `json:"operator,omitempty"`
	Message  string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	SourceOptions
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <plan>...",
		Short: "Check plans without executing them",
		Long: `Read and compile plan documents without executing them.

Unlike run, validation does not stop at the first compile error: every
operator is visited and all problems are reported together.

Exit codes:
  0 - All plans valid
  1 - One or more plans have errors
  2 - Command error (bad flag, database not found, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	addSourceFlags(cmd, &opts.SourceOptions)

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	env, err := OpenEnvironment(commandContext(cmd), &opts.SourceOptions, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	var all []ValidationError
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		all = append(all, validatePlan(env, path, opts.Mode)...)
	}

	if len(all) > 0 {
		return outputValidationErrors(formatter, len(paths), all)
	}
	return outputValidateSuccess(formatter, len(paths))
}

// validatePlan loads and compiles one document, collecting every error.
func validatePlan(env *Environment, path, mode string) []ValidationError {
	doc, err := env.LoadPlan(path, mode)
	if err != nil {
		var pe *planio.Error
		if errors.As(err, &pe) {
			return []ValidationError{{File: path, Line: pe.Line, Column: pe.Column, Code: ErrCodePlan, Message: pe.Field + ": " + pe.Message}}
		}
		return []ValidationError{{File: path, Code: ErrCodePlan, Message: err.Error()}}
	}

	listener := &compiler.CollectingListener{}
	_, err = env.Compiler().Prepare(doc.Plan, doc.Mode, doc.Context(listener))
	if err == nil {
		return nil
	}
	found := listener.Errors()
	if len(found) == 0 {
		return []ValidationError{{File: path, Code: ErrCodeGeneric, Message: err.Error()}}
	}
	out := make([]ValidationError, len(found))
	for i, pe := range found {
		out[i] = ValidationError{File: path, Code: pe.Code, Message: pe.Message}
		if pe.Operator != nil {
			out[i].Operator = plan.Label(pe.Operator)
		}
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, files int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Files: files})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d plan(s) valid\n", files)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, files int, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Files: files, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		switch {
		case err.Line > 0:
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", err.File, err.Line, err.Column)
		default:
			fmt.Fprintf(formatter.Writer, "%s\n", err.File)
		}
		if err.Operator != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Operator, err.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
