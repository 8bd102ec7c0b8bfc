package store

import (
	"database/sql"
	_ "embed"
	"fmt"
)

// schemaSQL is the layout of a new store: the tables registry and the
// rows of every table.
//
//go:embed schema.sql
var schemaSQL string

// upgrade moves a store from version-1 to version. Stores created before
// the registry had a case-insensitive index are version 0; unquoted
// lookups in Catalog.Table scan that index.
type upgrade struct {
	version int
	about   string
	stmts   []string
}

var upgrades = []upgrade{
	{
		version: 1,
		about:   "case-insensitive table name index",
		stmts: []string{
			`CREATE INDEX IF NOT EXISTS idx_tables_name_nocase ON tables(name COLLATE NOCASE)`,
		},
	},
}

func currentVersion() int {
	return upgrades[len(upgrades)-1].version
}

// migrate creates the registry and row tables if needed and applies every
// upgrade newer than the stored user_version, each in its own transaction.
// A store written by a newer release is refused.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	version, err := storedVersion(db)
	if err != nil {
		return err
	}
	if version > currentVersion() {
		return fmt.Errorf("store version %d is newer than supported version %d", version, currentVersion())
	}

	for _, u := range upgrades {
		if u.version <= version {
			continue
		}
		if err := apply(db, u); err != nil {
			return err
		}
	}
	return nil
}

func storedVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read store version: %w", err)
	}
	return version, nil
}

func apply(db *sql.DB, u upgrade) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("upgrade to v%d: %w", u.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range u.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("upgrade to v%d (%s): %w", u.version, u.about, err)
		}
	}
	// PRAGMA does not take parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", u.version)); err != nil {
		return fmt.Errorf("upgrade to v%d: %w", u.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upgrade to v%d: %w", u.version, err)
	}
	return nil
}
