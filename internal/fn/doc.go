// Package fn is the function registry consumed by the compiler and the
// evaluator.
//
// A Registry maps a case-insensitive name to overloads held in registration
// order. Resolution is first-match: Resolve returns the first overload whose
// parameters statically accept the argument types. When an argument is
// DYNAMIC the caller keeps the Candidates and picks one at runtime with
// Dispatch.
//
// Runtime failures (overflow, division by zero, an argument of the wrong
// runtime type) are returned as *DataError values, never panics.
package fn
