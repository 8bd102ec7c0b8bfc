// Package eval implements the physical operators produced by the compiler.
//
// Two families mirror the logical plan:
//
//	Relation   - pull-based row iterator (Open / Next / Close)
//	Expression - evaluates to a single datum.Datum against an *Env
//
// SCOPES:
//
// An Env is an immutable stack of row scopes. Relational operators push
// each input row before evaluating their expressions; Variable(depth,
// offset) reads column offset of the row pushed depth scopes ago. Lateral
// joins and subqueries open their inner relation with the outer row pushed,
// which is how correlation works.
//
// STATE:
//
// Expressions are stateless and may be shared between executions.
// Relations are single-use and carry their iteration state; the compiler
// hands out Factory values so every execution, every lateral iteration and
// every iteration of a lazy SELECT value builds fresh relations.
//
// ERRORS:
//
// Data errors are *TypeCheckError, *CardinalityError, *Failure and
// *fn.DataError. In strict mode they propagate to the caller. Permissive
// wraps an expression so that its data errors become MISSING; anything else
// (ErrReopen, ErrTableNotFound, iterator failures) always propagates.
package eval
