package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/parquetsrc"
	"github.com/roach88/pql/internal/planio"
	"github.com/roach88/pql/internal/store"
)

// Error codes for command-level failures. Plan compile errors keep their
// own E2xx codes.
const (
	ErrCodeGeneric = "E001" // Generic/unknown error
	ErrCodePlan    = "E011" // Plan document could not be read
	ErrCodeExecute = "E012" // Statement failed at run time
)

// SourceOptions are the flags that describe where tables come from.
type SourceOptions struct {
	SQLite  string   // path to a store database
	Parquet []string // name=path
	Data    []string // name=path to a YAML literal
	Mode    string   // overrides the document mode when set
}

// Environment is the catalog a command compiles and executes against.
type Environment struct {
	Catalog *Union
	Store   *store.Store // nil without --sqlite
	Logger  *slog.Logger
}

// Close releases the store, if one was opened.
func (e *Environment) Close() error {
	if e.Store == nil {
		return nil
	}
	return e.Store.Close()
}

// Session returns an execution session over the environment catalog.
func (e *Environment) Session() *catalog.Session {
	return &catalog.Session{Catalog: e.Catalog, Logger: e.Logger}
}

// OpenEnvironment assembles the catalog described by opts. Files named
// with --data and --parquet are looked up before the store.
func OpenEnvironment(ctx context.Context, opts *SourceOptions, logger *slog.Logger) (*Environment, error) {
	mem := catalog.NewMemory("local")
	env := &Environment{Logger: logger}

	for _, binding := range opts.Data {
		name, path, err := splitBinding("--data", binding)
		if err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read data file", err)
		}
		v, err := planio.ParseLiteral(string(src))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid data file %s", path), err)
		}
		if _, err := mem.Put(name, v); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to register table", err)
		}
		logger.Debug("registered data table", "table", name, "path", path, "type", v.Type().String())
	}

	for _, binding := range opts.Parquet {
		name, path, err := splitBinding("--parquet", binding)
		if err != nil {
			return nil, err
		}
		tbl, err := parquetsrc.Open(name, path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open parquet table", err)
		}
		if err := mem.Add(tbl); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to register table", err)
		}
		logger.Debug("registered parquet table", "table", name, "path", path, "schema", tbl.Schema().String())
	}

	cats := []catalog.Catalog{mem}
	if opts.SQLite != "" {
		st, err := store.Open(opts.SQLite, store.WithLogger(logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		env.Store = st
		cats = append(cats, st.Catalog("sqlite"))
		logger.Debug("opened store", "path", opts.SQLite)
	}
	env.Catalog = NewUnion("pql", cats...)
	return env, nil
}

// LoadPlan reads a plan document against the environment and applies the
// --mode override.
func (e *Environment) LoadPlan(path string, mode string) (*planio.Document, error) {
	doc, err := planio.LoadFile(path, planio.WithCatalog(e.Catalog))
	if err != nil {
		var pe *planio.Error
		if errors.As(err, &pe) {
			return nil, WrapExitError(ExitFailure, "invalid plan", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load plan", err)
	}
	if mode != "" {
		m, err := planio.ParseMode(mode)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --mode", err)
		}
		doc.Mode = m
	}
	return doc, nil
}

// Compiler returns a compiler over the environment's functions.
func (e *Environment) Compiler() *compiler.Compiler {
	return compiler.New(
		compiler.WithFunctions(e.Catalog.Functions()),
		compiler.WithLogger(e.Logger),
	)
}

// splitBinding parses name=path.
func splitBinding(flag, binding string) (string, string, error) {
	name, path, ok := strings.Cut(binding, "=")
	if !ok || name == "" || path == "" {
		return "", "", NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q: want name=path", flag, binding))
	}
	return name, path, nil
}

// Union looks tables up in several catalogs in order. Functions come
// from the first catalog.
type Union struct {
	name string
	cats []catalog.Catalog
}

// NewUnion returns a catalog over cats.
func NewUnion(name string, cats ...catalog.Catalog) *Union {
	return &Union{name: name, cats: cats}
}

func (u *Union) Name() string { return u.name }

func (u *Union) Functions() *fn.Registry {
	if len(u.cats) == 0 {
		return fn.Builtins()
	}
	return u.cats[0].Functions()
}

func (u *Union) Table(name string) (catalog.Table, bool) {
	for _, c := range u.cats {
		if t, ok := c.Table(name); ok {
			return t, true
		}
	}
	return nil, false
}
