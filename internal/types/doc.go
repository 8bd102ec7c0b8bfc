// Package types provides the static type model for pql.
//
// This package contains type descriptors only. Every other internal package
// imports types; types imports nothing internal. It is the foundational layer
// beneath datum, plan, eval and compiler.
//
// Key design constraints:
//   - PType values are immutable and structurally comparable (use Equal)
//   - Kind is a closed enumeration; new kinds require touching every switch
//   - Type-parameter accessors (Precision, Scale, Length, Element, Fields) are
//     only valid for the kinds that carry the parameter. Calling one on any
//     other kind panics with *UnsupportedOperationError rather than returning
//     a default.
package types
