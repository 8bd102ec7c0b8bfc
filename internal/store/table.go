package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

// ErrTableExists is returned by CreateTable for a name already in use.
var ErrTableExists = errors.New("table already exists")

// Table is a stored table. It implements catalog.Writable.
//
// Thread-safety: a Table is safe for concurrent use; SQLite serializes the
// underlying reads and writes.
type Table struct {
	store  *Store
	name   string
	schema types.PType
}

var _ catalog.Writable = (*Table)(nil)

// CreateTable registers an empty table. schema must be a BAG, LIST or SEXP
// type; its element type drives row decoding.
func (s *Store) CreateTable(ctx context.Context, name string, schema types.PType) (*Table, error) {
	if !schema.Kind().IsCollection() {
		return nil, fmt.Errorf("create table %q: schema %s is not a collection type", name, schema)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tables WHERE name = ?`, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("create table %q: %w", name, ErrTableExists)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tables (name, schema, created_seq)
		VALUES (?, ?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM tables))
	`, name, schema.String())
	if err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}

	s.logger.Debug("table created", "table", name, "schema", schema.String())
	return &Table{store: s, name: name, schema: schema}, nil
}

// Load creates a table holding the elements of value, a collection. The
// table schema is the static type of value.
func (s *Store) Load(ctx context.Context, name string, value datum.Datum) (*Table, error) {
	if !value.Kind().IsCollection() {
		return nil, fmt.Errorf("load table %q: value is %s, not a collection", name, value.Kind())
	}
	t, err := s.CreateTable(ctx, name, value.Type())
	if err != nil {
		return nil, err
	}
	elems, err := value.Elements()
	if err != nil {
		return nil, fmt.Errorf("load table %q: %w", name, err)
	}
	if _, err := t.InsertContext(ctx, elems); err != nil {
		return nil, err
	}
	return t, nil
}

// Table returns the table registered under exactly name.
func (s *Store) Table(ctx context.Context, name string) (*Table, bool, error) {
	var schemaText string
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM tables WHERE name = ?`, name).Scan(&schemaText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read table %q: %w", name, err)
	}
	schema, err := types.Parse(schemaText)
	if err != nil {
		return nil, false, fmt.Errorf("read table %q: %w", name, err)
	}
	return &Table{store: s, name: name, schema: schema}, true, nil
}

// Tables returns the table names in creation order.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tables ORDER BY created_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

// DropTable removes a table and its rows. Dropping an unknown table is not
// an error.
func (s *Store) DropTable(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tables WHERE name = ?`, name); err != nil {
		return fmt.Errorf("drop table %q: %w", name, err)
	}
	return nil
}

func (t *Table) Name() string { return t.name }

func (t *Table) Schema() types.PType { return t.schema }

// Datum returns a lazy collection over the stored rows. Every iteration
// runs a fresh query, so rows inserted after Datum was called are seen by
// later iterations.
func (t *Table) Datum() (datum.Datum, error) {
	return datum.Lazy(t.schema, func() (datum.Iterator, error) {
		rows, err := t.Rows(context.Background())
		if err != nil {
			return nil, err
		}
		return datum.SliceIterator(rows), nil
	}), nil
}

// Rows reads every row in seq order.
func (t *Table) Rows(ctx context.Context) ([]datum.Datum, error) {
	rows, err := t.store.db.QueryContext(ctx, `
		SELECT seq, value FROM rows
		WHERE table_name = ?
		ORDER BY seq ASC
	`, t.name)
	if err != nil {
		return nil, fmt.Errorf("query rows of %q: %w", t.name, err)
	}
	defer rows.Close()

	elem := t.schema.Element()
	out := []datum.Datum{}
	for rows.Next() {
		var (
			seq  int64
			text string
		)
		if err := rows.Scan(&seq, &text); err != nil {
			return nil, fmt.Errorf("scan row of %q: %w", t.name, err)
		}
		d, err := decodeRow(text, elem)
		if err != nil {
			return nil, fmt.Errorf("table %q row %d: %w", t.name, seq, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows of %q: %w", t.name, err)
	}
	return out, nil
}

// Insert implements catalog.Writable.
func (t *Table) Insert(rows []datum.Datum) (int64, error) {
	return t.InsertContext(context.Background(), rows)
}

// InsertContext appends rows in one transaction. Either every row is
// written or none is.
func (t *Table) InsertContext(ctx context.Context, rows []datum.Datum) (int64, error) {
	encoded := make([]string, len(rows))
	for i, r := range rows {
		text, err := encodeRow(r)
		if err != nil {
			return 0, fmt.Errorf("insert into %q: row %d: %w", t.name, i, err)
		}
		encoded[i] = text
	}

	tx, err := t.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert into %q: %w", t.name, err)
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM rows WHERE table_name = ?`, t.name).Scan(&last); err != nil {
		return 0, fmt.Errorf("insert into %q: %w", t.name, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rows (table_name, seq, value) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("insert into %q: %w", t.name, err)
	}
	defer stmt.Close()
	for i, text := range encoded {
		if _, err := stmt.ExecContext(ctx, t.name, last+int64(i)+1, text); err != nil {
			return 0, fmt.Errorf("insert into %q: %w", t.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert into %q: %w", t.name, err)
	}

	t.store.logger.Debug("rows inserted", "table", t.name, "rows", len(rows))
	return int64(len(rows)), nil
}
