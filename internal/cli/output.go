package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/pql/internal/datum"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Plan or scenario failure (compile error, failed assertion, nondeterminism)
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON, text and table output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E203", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Value outputs a query result. The table format lays a collection of
// tuples out as rows; anything else falls back to text.
func (f *OutputFormatter) Value(v datum.Datum) error {
	switch f.Format {
	case "json":
		return f.Success(map[string]any{"result": v, "type": v.Type().String()})
	case "table":
		if header, rows, ok := tabulate(v); ok {
			renderTable(f.Writer, header, rows)
			fmt.Fprintf(f.Writer, "(%d row%s)\n", len(rows), plural(len(rows)))
			return nil
		}
	}
	fmt.Fprintln(f.Writer, v.String())
	return nil
}

// renderTable writes rows under header as a bordered table.
func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

// tabulate splits a materialized collection of tuples into a header and
// string cells. Columns appear in first-seen order; a missing field is an
// empty cell.
func tabulate(v datum.Datum) ([]string, [][]string, bool) {
	if v.IsAbsent() || !v.Kind().IsCollection() || v.IsLazy() {
		return nil, nil, false
	}
	elems, err := v.Elements()
	if err != nil {
		return nil, nil, false
	}
	var header []string
	index := map[string]int{}
	for _, e := range elems {
		if e.IsAbsent() || !e.Kind().IsTuple() {
			return nil, nil, false
		}
		for _, fld := range e.Fields() {
			if _, ok := index[fld.Name]; !ok {
				index[fld.Name] = len(header)
				header = append(header, fld.Name)
			}
		}
	}
	if len(header) == 0 {
		return nil, nil, false
	}
	rows := make([][]string, len(elems))
	for i, e := range elems {
		row := make([]string, len(header))
		for _, fld := range e.Fields() {
			row[index[fld.Name]] = fld.Value.String()
		}
		rows[i] = row
	}
	return header, rows, true
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
