// Package planio reads logical plans from YAML and CUE documents.
//
// A document names a plan and its compile settings, declares the types of
// the tables it reads, and holds either a query or an effect:
//
//	name: sum-by-key
//	mode: strict
//	tables:
//	  t: BAG(STRUCT(k INTEGER, v INTEGER))
//	query:
//	  select:
//	    aggregate: {scan: {table: t}, as: r}
//	    groups: {k: {var: r.k}}
//	    measures: {total: {fn: sum, args: [{var: r.v}]}}
//	  value: {struct: {k: {var: k}, total: {var: total}}}
//
// OPERATORS:
//
// Every operator is a mapping whose FIRST key names the operator; the
// remaining keys are its attributes. Relational operators (scan, filter,
// join, ...) and scalar operators (lit, var, call, select, ...) share one
// namespace; where a position expects a relation, a scalar operator is an
// error and vice versa.
//
// NAMES:
//
// Variables are written by name. {var: r.k} looks r up in the enclosing
// row scopes, innermost first, and reads field k of it. The binder turns
// names into the depth/offset addressing of plan.RexVar, so documents
// never spell out scope positions.
//
// CUE documents are unified with a closed schema before they are read, so
// unknown top-level fields and malformed settings are reported by CUE with
// their source position.
package planio
