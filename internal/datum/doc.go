// Package datum implements runtime values for pql.
//
// A Datum is a value tagged with its static types.PType. Scalars expose one
// typed accessor each (Boolean, Int64, Decimal, Text, ...); collections and
// tuples expose iteration and field access. Calling an accessor that does not
// match the kind panics with *types.UnsupportedOperationError.
//
// DECIMAL values are backed by github.com/cockroachdb/apd/v3. The
// arbitrary-precision integer NUMERIC is backed by math/big.
//
// Ordering and identity:
//   - Compare is a total order over all datums, used by sorting and MIN/MAX
//   - Equal is Compare(a, b) == 0, used by grouping, DISTINCT and set operators
//   - Key is a canonical byte encoding consistent with Equal (NFC text,
//     numbers by value, sorted tuple fields)
package datum
