package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/planio"
	"github.com/roach88/pql/internal/store"
	"github.com/roach88/pql/internal/types"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Database string
	Schema   string // declared table type; default is the value's type
	Replace  bool
}

// TableInfo describes one stored table.
type TableInfo struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
	Rows   int    `json:"rows"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <table> <value-file>",
		Short: "Store a YAML value as a table",
		Long: `Create a table in a SQLite store from a file holding one value in plan
literal notation; the value must be a collection.

Examples:
  pql load --db ./pql.db orders orders.yaml
  pql load --db ./pql.db out empty.yaml --schema "BAG(STRUCT(k INTEGER, v INTEGER))"
  pql load --db ./pql.db orders orders.yaml --replace`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "table type, e.g. BAG(STRUCT(k INTEGER))")
	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "drop an existing table of the same name first")

	return cmd
}

func runLoad(opts *LoadOptions, name, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	src, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read value file", err)
	}
	value, err := planio.ParseLiteral(string(src))
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid value file %s", path), err)
	}
	if !value.Kind().IsCollection() {
		return NewExitError(ExitCommandError, fmt.Sprintf("value in %s is %s, not a collection", path, value.Kind()))
	}

	st, err := store.Open(opts.Database, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Replace {
		if err := st.DropTable(ctx, name); err != nil {
			return WrapExitError(ExitCommandError, "failed to drop table", err)
		}
	}

	var tbl *store.Table
	if opts.Schema == "" {
		tbl, err = st.Load(ctx, name, value)
	} else {
		tbl, err = loadWithSchema(ctx, st, name, opts.Schema, value)
	}
	if errors.Is(err, store.ErrTableExists) {
		return WrapExitError(ExitCommandError, "table exists (use --replace)", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load table", err)
	}

	rows, err := tbl.Rows(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read table", err)
	}
	info := TableInfo{Name: tbl.Name(), Schema: tbl.Schema().String(), Rows: len(rows)}
	if opts.Format == "json" {
		return formatter.Success(info)
	}
	fmt.Fprintf(formatter.Writer, "✓ Loaded %d row%s into %s %s\n", info.Rows, plural(info.Rows), info.Name, info.Schema)
	return nil
}

// loadWithSchema creates name with a declared type and inserts the
// elements of value, which are decoded against it on read.
func loadWithSchema(ctx context.Context, st *store.Store, name, schemaText string, value datum.Datum) (*store.Table, error) {
	schema, err := types.Parse(schemaText)
	if err != nil {
		return nil, fmt.Errorf("invalid --schema: %w", err)
	}
	tbl, err := st.CreateTable(ctx, name, schema)
	if err != nil {
		return nil, err
	}
	elems, err := value.Elements()
	if err != nil {
		return nil, err
	}
	if _, err := tbl.InsertContext(ctx, elems); err != nil {
		return nil, err
	}
	return tbl, nil
}

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	Database string
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a SQLite store",
		Long: `List stored tables in creation order with their types and row counts.

Examples:
  pql tables --db ./pql.db
  pql tables --db ./pql.db --format table`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTables(opts *TablesOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}
	st, err := store.Open(opts.Database, store.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	names, err := st.Tables(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list tables", err)
	}
	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		tbl, ok, err := st.Table(ctx, name)
		if err != nil || !ok {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read table %s", name), err)
		}
		rows, err := tbl.Rows(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to read table %s", name), err)
		}
		infos = append(infos, TableInfo{Name: name, Schema: tbl.Schema().String(), Rows: len(rows)})
	}

	switch opts.Format {
	case "json":
		return formatter.Success(infos)
	case "table":
		rows := make([][]string, len(infos))
		for i, info := range infos {
			rows[i] = []string{info.Name, info.Schema, fmt.Sprint(info.Rows)}
		}
		renderTable(formatter.Writer, []string{"name", "schema", "rows"}, rows)
		return nil
	}
	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No tables.")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(formatter.Writer, "%s %s (%d row%s)\n", info.Name, info.Schema, info.Rows, plural(info.Rows))
	}
	return nil
}
