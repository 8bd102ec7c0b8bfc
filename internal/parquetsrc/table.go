// Package parquetsrc serves Apache Parquet files as read-only catalog
// tables.
//
// A file becomes a BAG of STRUCTs whose fields follow the file schema in
// column order. Leaf columns map to types as follows:
//
//	BOOLEAN                BOOL
//	INT32                  INTEGER (DATE logical type: DATE)
//	INT64                  BIGINT
//	FLOAT / DOUBLE         REAL / DOUBLE
//	BYTE_ARRAY             BLOB (STRING logical type: STRING)
//	repeated leaf          LIST of the leaf type
//	group, anything else   DYNAMIC
//
// Optional columns yield typed NULLs. Timestamp columns surface as their
// physical INT64 values.
package parquetsrc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/types"
)

// column is one top-level field of the file schema.
type column struct {
	name string
	typ  types.PType
}

// Table is a Parquet file exposed as a catalog table. The file is re-read on
// every iteration of its value.
type Table struct {
	name    string
	path    string
	columns []column
	schema  types.PType
}

var _ catalog.Table = (*Table)(nil)

// Open reads the schema of the Parquet file at path and returns a table
// named name.
func Open(name, path string) (*Table, error) {
	f, pq, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cols []column
	var fields []types.Field
	for _, field := range pq.Schema().Fields() {
		c := column{name: field.Name(), typ: fieldType(field)}
		cols = append(cols, c)
		fields = append(fields, types.F(c.name, c.typ))
	}
	return &Table{
		name:    name,
		path:    path,
		columns: cols,
		schema:  types.Bag(types.StructOf(fields...)),
	}, nil
}

func openFile(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}
	pq, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}
	return f, pq, nil
}

func (t *Table) Name() string { return t.name }

func (t *Table) Schema() types.PType { return t.schema }

// Path returns the file the table reads.
func (t *Table) Path() string { return t.path }

// Datum returns a lazy BAG over the file rows.
func (t *Table) Datum() (datum.Datum, error) {
	return datum.Lazy(t.schema, func() (datum.Iterator, error) {
		rows, err := t.Rows()
		if err != nil {
			return nil, err
		}
		return datum.SliceIterator(rows), nil
	}), nil
}

// Rows reads the whole file.
func (t *Table) Rows() ([]datum.Datum, error) {
	f, pq, err := openFile(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := parquet.NewReader(pq)
	defer func() { _ = reader.Close() }()

	var out []datum.Datum
	for {
		row := make(map[string]any)
		if err := reader.Read(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read %s row %d: %w", t.path, len(out), err)
		}
		d, err := t.convert(row)
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", t.path, len(out), err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (t *Table) convert(row map[string]any) (datum.Datum, error) {
	fields := make([]datum.Field, len(t.columns))
	for i, c := range t.columns {
		d, err := toDatum(row[c.name], c.typ)
		if err != nil {
			return datum.Datum{}, fmt.Errorf("column %q: %w", c.name, err)
		}
		fields[i] = datum.NewField(c.name, d)
	}
	return datum.Struct(fields...), nil
}

// fieldType maps a Parquet field to a PType.
func fieldType(field parquet.Field) types.PType {
	if len(field.Fields()) > 0 || field.Type() == nil {
		return types.Dynamic()
	}
	leaf := leafType(field)
	if field.Repeated() {
		return types.List(leaf)
	}
	return leaf
}

func leafType(field parquet.Field) types.PType {
	logical := ""
	if lt := field.Type().LogicalType(); lt != nil {
		logical = lt.String()
	}
	switch field.Type().Kind() {
	case parquet.Boolean:
		return types.Bool()
	case parquet.Int32:
		if logical == "DATE" {
			return types.Date()
		}
		return types.Integer()
	case parquet.Int64:
		return types.BigInt()
	case parquet.Float:
		return types.Real()
	case parquet.Double:
		return types.Double()
	case parquet.ByteArray:
		if logical == "STRING" || logical == "UTF8" {
			return types.String()
		}
		return types.Blob(types.DefaultLobLength)
	}
	return types.Dynamic()
}

var epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// toDatum converts a value read by parquet-go into a datum of type t.
func toDatum(v any, t types.PType) (datum.Datum, error) {
	if v == nil {
		if t.Kind() == types.KindDynamic {
			return datum.Null(types.Unknown()), nil
		}
		return datum.Null(t), nil
	}
	switch t.Kind() {
	case types.KindList:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice {
			return datum.Datum{}, fmt.Errorf("expected a repeated value, got %T", v)
		}
		elems := make([]datum.Datum, rv.Len())
		for i := range elems {
			d, err := toDatum(rv.Index(i).Interface(), t.Element())
			if err != nil {
				return datum.Datum{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = d
		}
		return datum.Collection(t, elems), nil
	case types.KindDate:
		switch days := v.(type) {
		case int32:
			return datum.Date(epoch.AddDate(0, 0, int(days))), nil
		case time.Time:
			return datum.Date(days), nil
		}
		return datum.Datum{}, fmt.Errorf("unexpected DATE value %T", v)
	case types.KindBlob:
		switch b := v.(type) {
		case []byte:
			return datum.Blob(b), nil
		case string:
			return datum.Blob([]byte(b)), nil
		}
	case types.KindString:
		switch s := v.(type) {
		case []byte:
			return datum.String(string(s)), nil
		case string:
			return datum.String(s), nil
		}
	}
	d, err := datum.FromGo(v)
	if err != nil {
		return datum.Datum{}, err
	}
	return eval.CastValue(d, t)
}
