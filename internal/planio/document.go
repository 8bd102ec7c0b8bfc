package planio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

// Document is a plan read from a file, with its compile settings.
type Document struct {
	File string
	Name string
	Mode compiler.Mode
	// Path is the default catalog path for unqualified table names.
	Path []string
	Plan *plan.Plan
}

// Context returns the compile context the document asks for.
func (d *Document) Context(listener compiler.ErrorListener) *compiler.Context {
	return &compiler.Context{Listener: listener, Path: d.Path}
}

// Error is a document error with its source position, when known.
type Error struct {
	File    string
	Line    int
	Column  int
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Column, e.Field, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Option configures how documents are bound.
type Option func(*binder)

// WithCatalog resolves table types and functions through cat. Types
// declared in the document take precedence over catalog schemas.
func WithCatalog(cat catalog.Catalog) Option {
	return func(b *binder) {
		b.cat = cat
		if r := cat.Functions(); r != nil {
			b.reg = r
		}
	}
}

// WithFunctions sets the registry calls, measures and window functions are
// resolved against. Default: fn.Builtins().
func WithFunctions(r *fn.Registry) Option {
	return func(b *binder) { b.reg = r }
}

// ParseMode maps "strict" and "permissive" (any case) to a compile mode.
// The empty string is strict.
func ParseMode(s string) (compiler.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return compiler.ModeStrict, nil
	case "permissive":
		return compiler.ModePermissive, nil
	}
	return 0, fmt.Errorf("unknown mode %q: want strict or permissive", s)
}

// LoadFile reads a .yaml, .yml or .cue document.
func LoadFile(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data, path, opts...)
	case ".cue":
		return ParseCUE(data, path, opts...)
	}
	return nil, fmt.Errorf("plan %s: unsupported extension %q (want .yaml, .yml or .cue)", path, filepath.Ext(path))
}

// declaredTables parses the tables section of a document.
func declaredTables(file string, decl map[string]string) (map[string]types.PType, error) {
	out := make(map[string]types.PType, len(decl))
	for name, text := range decl {
		t, err := types.Parse(text)
		if err != nil {
			return nil, &Error{File: file, Field: "tables." + name, Message: err.Error()}
		}
		out[name] = t
	}
	return out, nil
}
