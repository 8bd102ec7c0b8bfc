package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store keeps catalog tables in a SQLite database: a registry of table
// names and schemas plus one JSON row per element. See schema.go for the
// layout and its versions.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for table creation and inserts.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// setting is a connection pragma and the values it may read back as.
type setting struct {
	name  string
	value string
	// accept lists the read-back values that count as applied. An
	// in-memory database reports journal_mode "memory" whatever is asked.
	accept []string
}

// settings are applied on every open, then read back. Table scans run
// while effects append rows, so the journal is WAL; DropTable relies on
// foreign keys to cascade rows.
var settings = []setting{
	{name: "journal_mode", value: "WAL", accept: []string{"wal", "memory"}},
	{name: "synchronous", value: "NORMAL", accept: []string{"1"}},
	{name: "busy_timeout", value: "5000", accept: []string{"5000"}},
	{name: "foreign_keys", value: "ON", accept: []string{"1"}},
}

// Open opens the table store at path, creating it when missing, and
// brings its schema up to date. ":memory:" gives a private store that
// lives as long as the Store.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db

	s.logger.Debug("table store opened", "path", path, "version", currentVersion())
	return s, nil
}

func prepare(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, st := range settings {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", st.name, st.value)); err != nil {
			return fmt.Errorf("set %s: %w", st.name, err)
		}
		if err := checkSetting(db, st); err != nil {
			return err
		}
	}
	if err := migrate(db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// checkSetting reads a pragma back and fails when SQLite ignored it.
func checkSetting(db *sql.DB, st setting) error {
	var got string
	if err := db.QueryRow("PRAGMA " + st.name).Scan(&got); err != nil {
		return fmt.Errorf("read %s: %w", st.name, err)
	}
	if !slices.Contains(st.accept, strings.ToLower(got)) {
		return fmt.Errorf("%s is %q, want %s", st.name, got, strings.Join(st.accept, " or "))
	}
	return nil
}

// Close closes the database. Tables obtained from the store stop working.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
