// Package catalog provides the name-resolution surface consulted during
// execution: catalogs, tables and the per-execution Session.
//
// Catalogs are read-only while a statement executes, with one exception:
// an effect writes into a table that implements Writable.
package catalog

import (
	"log/slog"
	"strings"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

// Table is a named value in a catalog, usually a BAG of tuples.
type Table interface {
	Name() string
	Schema() types.PType
	// Datum returns the current value of the table. Collections may be lazy;
	// each iteration re-reads the underlying source.
	Datum() (datum.Datum, error)
}

// Writable is a table that accepts rows from an effect.
type Writable interface {
	Table
	// Insert appends rows and returns how many were written.
	Insert(rows []datum.Datum) (int64, error)
}

// Catalog resolves table names and supplies the function registry.
type Catalog interface {
	Name() string
	// Table looks up a table by dotted name. See Name for matching rules.
	Table(name string) (Table, bool)
	Functions() *fn.Registry
}

// Session carries everything an execution reads from its surroundings.
type Session struct {
	Catalog Catalog
	// Path is the default schema prefix tried before a bare name.
	Path   []string
	Logger *slog.Logger
}

// NewSession returns a session over cat that logs through slog.Default.
func NewSession(cat Catalog) *Session {
	return &Session{Catalog: cat, Logger: slog.Default()}
}

// Log returns the session logger, falling back to slog.Default.
func (s *Session) Log() *slog.Logger {
	if s == nil || s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Resolve looks name up in the session catalog. An unqualified name is
// tried under Path first.
func (s *Session) Resolve(name string) (Table, bool) {
	if s == nil || s.Catalog == nil {
		return nil, false
	}
	if len(s.Path) > 0 && len(ParseName(name).Parts) == 1 {
		qualified := strings.Join(s.Path, ".") + "." + name
		if t, ok := s.Catalog.Table(qualified); ok {
			return t, true
		}
	}
	return s.Catalog.Table(name)
}

// Name is a parsed dotted identifier. Parts written in double quotes match
// exactly; unquoted parts match case-insensitively.
type Name struct {
	Parts  []string
	Quoted []bool
}

// ParseName splits s on dots outside double quotes. Inside quotes a doubled
// quote stands for one quote character.
func ParseName(s string) Name {
	var n Name
	var cur strings.Builder
	quoted, inQuote := false, false
	flush := func() {
		n.Parts = append(n.Parts, cur.String())
		n.Quoted = append(n.Quoted, quoted)
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '"' && i+1 < len(s) && s[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuote = !inQuote
			quoted = true
		case c == '.' && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return n
}

// Matches reports whether the plain dotted name target satisfies n.
func (n Name) Matches(target string) bool {
	parts := strings.Split(target, ".")
	if len(parts) != len(n.Parts) {
		return false
	}
	for i, p := range n.Parts {
		if n.Quoted[i] {
			if p != parts[i] {
				return false
			}
		} else if !strings.EqualFold(p, parts[i]) {
			return false
		}
	}
	return true
}

func (n Name) String() string {
	return strings.Join(n.Parts, ".")
}
