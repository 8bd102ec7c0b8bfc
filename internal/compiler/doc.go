// Package compiler lowers logical plans into executable statements.
//
// A Compiler holds an ordered list of strategies. Prepare walks the plan
// post-order and, for every operator, applies the first strategy whose
// pattern matches. Strategies turn relational operators into relation
// factories and scalar operators into expressions; the result is a
// Statement that can be executed any number of times.
//
// Compile errors carry a code:
//
//	E201  no physical strategy matches an operator
//	E202  an operand has the wrong static type
//	E203  a function or aggregate name is unknown
//	E204  the plan is structurally invalid
//	E205  the operator is recognised but not supported
//	E206  a strategy failed or returned the wrong kind of result
//
// Errors go to the ErrorListener of the compile Context. AbortListener, the
// default, stops at the first error; CollectingListener gathers them all.
package compiler
