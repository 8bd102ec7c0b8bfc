// Package plan provides the logical plan representation consumed by the
// compiler.
//
// A logical plan is a pure tree of operators. Each node has exactly one
// parent; subtrees are never shared. Two families exist:
//
//	Rel - produces a sequence of rows; carries a types.RelType
//	Rex - produces a single value;     carries a types.PType
//
// SEALED INTERFACES:
//
// Operator, Rel, Rex and Action are sealed interfaces using the marker
// method pattern. Only types in this package implement them, so the set of
// variants is closed and switches over it (Label, the compiler's default
// strategies) can be exhaustive.
//
// DERIVED TYPES:
//
// Every constructor (NewScan, NewFilter, NewCall, ...) computes the node's
// type from its operands and stores it. Types are never computed lazily and
// never change. Build nodes through the constructors; a zero-valued struct
// literal has a zero type.
//
// CHILDREN ORDER:
//
// Children returns the operand operators in a fixed order documented on each
// variant. The compiler compiles children in exactly that order and hands the
// results to strategies positionally, so the order is part of the contract:
//
//	RelFilter    [Input, Predicate]
//	RelProject   [Input, projections...]
//	RelJoin      [Left, Right, Condition]
//	RelAggregate [Input, groups..., measure args...]
//	RelWindow    [Input, partitions..., collations..., function args...]
//	RelWith      [elements..., Body]
//
// SCOPES:
//
// RexVar{Depth, Offset} addresses a column of an enclosing row scope.
// Depth 0 is the row of the nearest enclosing relational operator; each
// correlated subquery, RexSelect or RelCorrelate right side adds one level.
package plan
