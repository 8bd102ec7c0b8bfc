package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore opens a store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func indexExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", name,
	).Scan(&count))
	return count == 1
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_KeepsTablesAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO tables (name, schema, created_seq) VALUES ('t', 'BAG(INTEGER)', 1)`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM tables").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	version, err := storedVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, currentVersion(), version)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestSettings_AppliedOnOpen(t *testing.T) {
	s := createTestStore(t)

	for _, st := range settings {
		t.Run(st.name, func(t *testing.T) {
			assert.NoError(t, checkSetting(s.db, st))
		})
	}

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestCheckSetting_ReportsIgnoredPragma(t *testing.T) {
	s := createTestStore(t)

	err := checkSetting(s.db, setting{name: "busy_timeout", value: "1", accept: []string{"1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `busy_timeout is "5000", want 1`)
}

func TestMigrate_SetsVersionAndIndex(t *testing.T) {
	s := createTestStore(t)

	version, err := storedVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, currentVersion(), version)
	assert.True(t, indexExists(t, s.db, "idx_tables_name_nocase"))
}

func TestMigrate_UpgradesFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_tables_name_nocase")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, indexExists(t, s.db, "idx_tables_name_nocase"))
	version, err := storedVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMigrate_RefusesNewerStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store version 99 is newer than supported version 1")
}

func TestNamesLike(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.db.Exec(`
		INSERT INTO tables (name, schema, created_seq) VALUES
			('Orders', 'BAG(INTEGER)', 1),
			('items', 'BAG(INTEGER)', 2),
			('ORDERS', 'BAG(INTEGER)', 3)
	`)
	require.NoError(t, err)

	names, err := s.namesLike(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders", "ORDERS"}, names)

	names, err = s.namesLike(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Close())
	_, err = s.namesLike(ctx, "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `query tables like "orders"`)
}
