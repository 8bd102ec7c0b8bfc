package catalog

import (
	"fmt"
	"sync"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

// Memory is an in-memory catalog. Tables are resolved in registration
// order, so when two names differ only by case the first added wins an
// unquoted lookup.
type Memory struct {
	name      string
	mu        sync.RWMutex
	tables    []Table
	functions *fn.Registry
}

// MemoryOption configures a Memory catalog.
type MemoryOption func(*Memory)

// WithFunctions replaces the builtin function registry.
func WithFunctions(r *fn.Registry) MemoryOption {
	return func(m *Memory) {
		m.functions = r
	}
}

// NewMemory returns an empty catalog with the builtin functions.
func NewMemory(name string, opts ...MemoryOption) *Memory {
	m := &Memory{name: name, functions: fn.Builtins()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Functions() *fn.Registry { return m.functions }

// Add registers tables. Adding a name that is already present (exactly)
// returns an error.
func (m *Memory) Add(tables ...Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tables {
		for _, existing := range m.tables {
			if existing.Name() == t.Name() {
				return fmt.Errorf("table %q already exists in catalog %q", t.Name(), m.name)
			}
		}
		m.tables = append(m.tables, t)
	}
	return nil
}

// Put registers a MemTable holding value and returns it.
func (m *Memory) Put(name string, value datum.Datum) (*MemTable, error) {
	t := NewMemTable(name, value)
	if err := m.Add(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Table implements Catalog.
func (m *Memory) Table(name string) (Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tables {
		if t.Name() == name {
			return t, true
		}
	}
	n := ParseName(name)
	for _, t := range m.tables {
		if n.Matches(t.Name()) {
			return t, true
		}
	}
	return nil, false
}

// Tables returns the registered table names in registration order.
func (m *Memory) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.tables))
	for i, t := range m.tables {
		out[i] = t.Name()
	}
	return out
}

// MemTable is a table held in memory. Inserting into a collection-valued
// table appends to a copy; readers holding the previous Datum are not
// affected.
type MemTable struct {
	name   string
	schema types.PType
	mu     sync.RWMutex
	value  datum.Datum
}

// NewMemTable returns a table whose schema is the static type of value.
func NewMemTable(name string, value datum.Datum) *MemTable {
	return &MemTable{name: name, schema: value.Type(), value: value}
}

func (t *MemTable) Name() string { return t.name }

func (t *MemTable) Schema() types.PType { return t.schema }

func (t *MemTable) Datum() (datum.Datum, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value, nil
}

// Insert implements Writable. The table must hold a BAG or LIST.
func (t *MemTable) Insert(rows []datum.Datum) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.value.Kind().IsCollection() {
		return 0, fmt.Errorf("table %q holds %s, not a collection", t.name, t.value.Kind())
	}
	var elems []datum.Datum
	if !t.value.IsAbsent() {
		var err error
		if elems, err = t.value.Elements(); err != nil {
			return 0, fmt.Errorf("read table %q: %w", t.name, err)
		}
	}
	next := make([]datum.Datum, 0, len(elems)+len(rows))
	next = append(next, elems...)
	next = append(next, rows...)
	t.value = datum.Collection(t.value.Type(), next)
	return int64(len(rows)), nil
}
