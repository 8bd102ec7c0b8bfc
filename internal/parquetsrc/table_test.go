package parquetsrc_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/compiler"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/parquetsrc"
	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

// Field names are in alphabetical order so the expected column order does
// not depend on how the writer orders struct fields.
type person struct {
	Active bool    `parquet:"active"`
	Age    int64   `parquet:"age"`
	Name   string  `parquet:"name"`
	Score  float64 `parquet:"score"`
}

func writePeople(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	writer := parquet.NewGenericWriter[person](f)
	_, err = writer.Write([]person{
		{Active: true, Age: 30, Name: "ann", Score: 1.5},
		{Active: false, Age: 41, Name: "bob", Score: 2},
		{Active: true, Age: 25, Name: "cy", Score: 0.25},
	})
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return path
}

func TestOpen_MapsSchema(t *testing.T) {
	tbl, err := parquetsrc.Open("people", writePeople(t))
	require.NoError(t, err)

	assert.Equal(t, "people", tbl.Name())
	assert.Equal(t, "BAG(STRUCT(active BOOL, age BIGINT, name STRING, score DOUBLE))", tbl.Schema().String())
}

func TestDatum_ReadsRowsInFileOrder(t *testing.T) {
	tbl, err := parquetsrc.Open("people", writePeople(t))
	require.NoError(t, err)

	v, err := tbl.Datum()
	require.NoError(t, err)
	require.True(t, v.IsLazy())
	v, err = datum.Materialize(v)
	require.NoError(t, err)

	assert.Equal(t,
		"<<{'active': TRUE, 'age': 30, 'name': 'ann', 'score': 1.5}, "+
			"{'active': FALSE, 'age': 41, 'name': 'bob', 'score': 2}, "+
			"{'active': TRUE, 'age': 25, 'name': 'cy', 'score': 0.25}>>",
		v.String())
}

func TestOpen_Errors(t *testing.T) {
	_, err := parquetsrc.Open("x", filepath.Join(t.TempDir(), "missing.parquet"))
	assert.ErrorContains(t, err, "failed to open file")

	path := filepath.Join(t.TempDir(), "bad.parquet")
	require.NoError(t, os.WriteFile(path, []byte("not parquet"), 0o644))
	_, err = parquetsrc.Open("x", path)
	assert.ErrorContains(t, err, "failed to open parquet file")
}

func TestTable_ServesCompiledStatements(t *testing.T) {
	tbl, err := parquetsrc.Open("people", writePeople(t))
	require.NoError(t, err)
	mem := catalog.NewMemory("db")
	require.NoError(t, mem.Add(tbl))

	row := tbl.Schema().Element()
	age := func() plan.Rex { return plan.PathSymbol(plan.Var(0, 0, row), "age") }
	reg := fn.Builtins()
	scan := plan.NewScan(plan.Table("people", tbl.Schema()), "p")
	older := plan.NewFilter(scan, plan.NewCall(reg, "gt", age(), plan.Lit(datum.BigInt(28))))
	names := plan.Select(older, plan.PathSymbol(plan.Var(0, 0, row), "name"))

	stmt, err := compiler.New().Prepare(plan.NewQuery(names), compiler.ModeStrict, nil)
	require.NoError(t, err)
	res, err := stmt.Execute(catalog.NewSession(mem))
	require.NoError(t, err)
	v, err := datum.Materialize(res.(compiler.QueryResult).Value)
	require.NoError(t, err)

	assert.Equal(t, "<<'ann', 'bob'>>", v.String())
}

func TestSchema_ColumnTypes(t *testing.T) {
	tbl, err := parquetsrc.Open("people", writePeople(t))
	require.NoError(t, err)

	fields := tbl.Schema().Element().Fields()
	require.Len(t, fields, 4)
	assert.Equal(t, types.KindBool, fields[0].Type.Kind())
	assert.Equal(t, types.KindDouble, fields[3].Type.Kind())
}
