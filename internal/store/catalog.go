package store

import (
	"context"
	"fmt"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/fn"
)

// Catalog exposes the tables of a store as a catalog.Catalog.
type Catalog struct {
	name      string
	store     *Store
	functions *fn.Registry
}

var _ catalog.Catalog = (*Catalog)(nil)

// Catalog returns a catalog named name over the store's tables with the
// builtin functions.
func (s *Store) Catalog(name string) *Catalog {
	return &Catalog{name: name, store: s, functions: fn.Builtins()}
}

func (c *Catalog) Name() string { return c.name }

func (c *Catalog) Functions() *fn.Registry { return c.functions }

// Table implements catalog.Catalog. An exact match wins; otherwise the name
// is matched with catalog.Name rules against tables whose names are equal
// ignoring case, oldest first. Lookup failures are logged and reported as
// not found.
func (c *Catalog) Table(name string) (catalog.Table, bool) {
	ctx := context.Background()
	t, ok, err := c.store.Table(ctx, name)
	if err != nil {
		c.store.logger.Warn("table lookup failed", "table", name, "error", err)
		return nil, false
	}
	if ok {
		return t, true
	}

	n := catalog.ParseName(name)
	candidates, err := c.store.namesLike(ctx, n.String())
	if err != nil {
		c.store.logger.Warn("table lookup failed", "table", name, "error", err)
		return nil, false
	}

	for _, candidate := range candidates {
		if !n.Matches(candidate) {
			continue
		}
		t, ok, err := c.store.Table(ctx, candidate)
		if err != nil {
			c.store.logger.Warn("table lookup failed", "table", candidate, "error", err)
			return nil, false
		}
		if ok {
			return t, true
		}
	}
	return nil, false
}

// namesLike returns the table names equal to name ignoring case, oldest
// first.
func (s *Store) namesLike(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM tables
		WHERE name = ? COLLATE NOCASE
		ORDER BY created_seq ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query tables like %q: %w", name, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var candidate string
		if err := rows.Scan(&candidate); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables like %q: %w", name, err)
	}
	return names, nil
}
