// Package store provides SQLite-backed catalog tables.
//
// A store holds named tables. Each table has a collection schema (a BAG,
// LIST or SEXP PType) recorded in a registry, and its rows are kept as JSON
// text in insertion order. Rows are decoded against the element type of the
// schema, so a closed STRUCT schema restores field order and scalar types
// that JSON alone would lose. Values at DYNAMIC positions decode to their
// natural JSON types: integers, decimals, strings, booleans, LISTs and
// STRUCTs.
//
// Tables implement catalog.Writable, so an effect can insert into them.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Rows are deleted with their table
//
// The pool is limited to one connection. Table reads therefore drain their
// query before returning an iterator; a cursor held open across a join would
// block the second side forever.
package store
