package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pql/internal/store"
)

func TestLoadAndTables(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "pql.db")
	rows := writeFile(t, dir, "rows.yaml", kvRows)
	empty := writeFile(t, dir, "empty.yaml", "{bag: []}\n")

	out, err := execute(t, "load", "--db", db, "t", rows)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Loaded 3 rows into t")

	out, err = execute(t, "load", "--db", db, "out", empty, "--schema", "BAG(INTEGER)")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Loaded 0 rows into out BAG(INTEGER)")

	out, err = execute(t, "tables", "--db", db, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data []TableInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "t", resp.Data[0].Name)
	assert.Equal(t, 3, resp.Data[0].Rows)
	assert.Equal(t, TableInfo{Name: "out", Schema: "BAG(INTEGER)", Rows: 0}, resp.Data[1])

	out, err = execute(t, "tables", "--db", db, "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "| name | schema")

	plan := writeFile(t, dir, "insert.yaml", insertLargePlan)
	_, err = execute(t, "run", plan, "--sqlite", db)
	require.NoError(t, err)

	out, err = execute(t, "tables", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "out BAG(INTEGER) (2 rows)")
}

func TestLoad_ExistingTable(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "pql.db")
	rows := writeFile(t, dir, "rows.yaml", kvRows)
	other := writeFile(t, dir, "other.yaml", "{list: [1]}\n")

	_, err := execute(t, "load", "--db", db, "t", rows)
	require.NoError(t, err)

	_, err = execute(t, "load", "--db", db, "t", other)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "use --replace")

	out, err := execute(t, "load", "--db", db, "t", other, "--replace")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Loaded 1 row into t")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "pql.db")
	scalar := writeFile(t, dir, "scalar.yaml", "5\n")
	rows := writeFile(t, dir, "rows.yaml", kvRows)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"load", "--db", db, "t", filepath.Join(dir, "nope.yaml")}, "failed to read value file"},
		{"scalar", []string{"load", "--db", db, "t", scalar}, "not a collection"},
		{"bad schema", []string{"load", "--db", db, "t", rows, "--schema", "BAG(NOPE)"}, "invalid --schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTables_MissingDatabase(t *testing.T) {
	_, err := execute(t, "tables", "--db", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestTables_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "pql.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, "tables", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No tables.\n", out)
}
