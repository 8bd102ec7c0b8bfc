package datum

import (
	"fmt"
	"math/big"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/pql/internal/types"
)

type flag uint8

const (
	flagValue flag = iota
	flagNull
	flagMissing
)

// Datum is a runtime value tagged with its static type.
//
// Datum is a small value type and is safe to copy and share: every payload
// reachable from a Datum is treated as immutable once the Datum is built.
// The zero value is MISSING.
//
// INVARIANTS:
//   - d.Kind() == d.Type().Kind()
//   - a NULL keeps the static type it was created with
//   - MISSING has kind UNKNOWN
type Datum struct {
	typ  types.PType
	flag flag
	v    any
}

// NullValueError is raised (via panic) when a scalar accessor is called on a
// NULL or MISSING datum. Callers must check IsAbsent first.
type NullValueError struct {
	Accessor string
	Missing  bool
}

// Error implements the error interface.
func (e *NullValueError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%s called on MISSING", e.Accessor)
	}
	return fmt.Sprintf("%s called on NULL", e.Accessor)
}

// Null returns the NULL value of static type t.
func Null(t types.PType) Datum {
	return Datum{typ: t, flag: flagNull}
}

// Missing returns the absent value.
func Missing() Datum {
	return Datum{typ: types.Unknown(), flag: flagMissing}
}

// Type returns the static type of d.
func (d Datum) Type() types.PType {
	if d.IsMissing() {
		return types.Unknown()
	}
	return d.typ
}

// Kind is a shorthand for d.Type().Kind().
func (d Datum) Kind() types.Kind {
	return d.Type().Kind()
}

// IsNull reports whether d is NULL.
func (d Datum) IsNull() bool { return d.flag == flagNull }

// IsMissing reports whether d is MISSING. The zero Datum is MISSING.
func (d Datum) IsMissing() bool { return d.flag == flagMissing || (d.flag == flagValue && d.v == nil) }

// IsAbsent reports whether d is NULL or MISSING.
func (d Datum) IsAbsent() bool { return d.IsNull() || d.IsMissing() }

// check enforces accessor discipline: the accessor must be valid for the kind
// and the value must be present.
func (d Datum) check(accessor string, valid bool) {
	if !valid {
		panic(&types.UnsupportedOperationError{Kind: d.Kind(), Accessor: accessor})
	}
	if d.IsAbsent() {
		panic(&NullValueError{Accessor: accessor, Missing: d.IsMissing()})
	}
}

// Bool returns a BOOL datum.
func Bool(b bool) Datum {
	return Datum{typ: types.Bool(), v: b}
}

// Boolean returns the value of a BOOL datum.
func (d Datum) Boolean() bool {
	d.check("Boolean", d.Kind() == types.KindBool)
	return d.v.(bool)
}

// TinyInt returns a TINYINT datum.
func TinyInt(n int8) Datum { return Datum{typ: types.TinyInt(), v: int64(n)} }

// SmallInt returns a SMALLINT datum.
func SmallInt(n int16) Datum { return Datum{typ: types.SmallInt(), v: int64(n)} }

// Int returns an INTEGER datum.
func Int(n int32) Datum { return Datum{typ: types.Integer(), v: int64(n)} }

// BigInt returns a BIGINT datum.
func BigInt(n int64) Datum { return Datum{typ: types.BigInt(), v: n} }

// Int64 returns the value of a TINYINT, SMALLINT, INTEGER or BIGINT datum.
func (d Datum) Int64() int64 {
	switch d.Kind() {
	case types.KindTinyInt, types.KindSmallInt, types.KindInteger, types.KindBigInt:
		d.check("Int64", true)
		return d.v.(int64)
	}
	d.check("Int64", false)
	return 0
}

// Numeric returns an arbitrary-precision integer datum. n is copied.
func Numeric(n *big.Int) Datum {
	return Datum{typ: types.Numeric(), v: new(big.Int).Set(n)}
}

// BigInteger returns a copy of the value of a NUMERIC datum.
func (d Datum) BigInteger() *big.Int {
	d.check("BigInteger", d.Kind() == types.KindNumeric)
	return new(big.Int).Set(d.v.(*big.Int))
}

// Decimal returns a DECIMAL(precision, scale) datum. dec is copied.
func Decimal(dec *apd.Decimal, precision, scale int) Datum {
	c := new(apd.Decimal).Set(dec)
	return Datum{typ: types.Decimal(precision, scale), v: c}
}

// DecimalOf returns a DECIMAL datum whose precision and scale are derived
// from the digits of dec.
func DecimalOf(dec *apd.Decimal) Datum {
	scale := 0
	if dec.Exponent < 0 {
		scale = int(-dec.Exponent)
	}
	precision := int(dec.NumDigits())
	if precision < scale {
		precision = scale
	}
	if precision == 0 {
		precision = 1
	}
	return Decimal(dec, precision, scale)
}

// Decimal returns a copy of the value of a DECIMAL datum.
func (d Datum) Decimal() *apd.Decimal {
	d.check("Decimal", d.Kind() == types.KindDecimal)
	return new(apd.Decimal).Set(d.v.(*apd.Decimal))
}

// Real returns a REAL datum.
func Real(f float32) Datum { return Datum{typ: types.Real(), v: float64(f)} }

// Double returns a DOUBLE datum.
func Double(f float64) Datum { return Datum{typ: types.Double(), v: f} }

// Float64 returns the value of a REAL or DOUBLE datum.
func (d Datum) Float64() float64 {
	k := d.Kind()
	d.check("Float64", k == types.KindReal || k == types.KindDouble)
	return d.v.(float64)
}

// String returns a STRING datum.
func String(s string) Datum { return Datum{typ: types.String(), v: s} }

// Symbol returns a SYMBOL datum.
func Symbol(s string) Datum { return Datum{typ: types.Symbol(), v: s} }

// Char returns a CHAR(length) datum.
func Char(s string, length int) Datum { return Datum{typ: types.Char(length), v: s} }

// Varchar returns a VARCHAR(length) datum.
func Varchar(s string, length int) Datum { return Datum{typ: types.Varchar(length), v: s} }

// Clob returns a CLOB datum.
func Clob(b []byte) Datum {
	return Datum{typ: types.Clob(types.DefaultLobLength), v: string(b)}
}

// Text returns the value of a CHAR, VARCHAR, STRING, SYMBOL or CLOB datum.
func (d Datum) Text() string {
	d.check("Text", d.Kind().IsText())
	return d.v.(string)
}

// Blob returns a BLOB datum. b is copied.
func Blob(b []byte) Datum {
	return Datum{typ: types.Blob(types.DefaultLobLength), v: append([]byte(nil), b...)}
}

// Bytes returns a copy of the value of a BLOB or CLOB datum.
func (d Datum) Bytes() []byte {
	k := d.Kind()
	d.check("Bytes", k == types.KindBlob || k == types.KindClob)
	if s, ok := d.v.(string); ok {
		return []byte(s)
	}
	return append([]byte(nil), d.v.([]byte)...)
}

// Date returns a DATE datum. The time of day is dropped.
func Date(t time.Time) Datum {
	y, m, dd := t.Date()
	return Datum{typ: types.Date(), v: time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)}
}

// Time returns a TIME(precision) datum. Only the clock of t is significant.
func Time(t time.Time, precision int) Datum {
	h, m, s := t.Clock()
	return Datum{typ: types.Time(precision), v: time.Date(1970, 1, 1, h, m, s, t.Nanosecond(), time.UTC)}
}

// TimeZ returns a TIME(precision) WITH TIME ZONE datum.
func TimeZ(t time.Time, precision int) Datum {
	h, m, s := t.Clock()
	return Datum{typ: types.TimeZ(precision), v: time.Date(1970, 1, 1, h, m, s, t.Nanosecond(), t.Location())}
}

// Timestamp returns a TIMESTAMP(precision) datum in UTC.
func Timestamp(t time.Time, precision int) Datum {
	return Datum{typ: types.Timestamp(precision), v: t.UTC()}
}

// TimestampZ returns a TIMESTAMP(precision) WITH TIME ZONE datum.
func TimestampZ(t time.Time, precision int) Datum {
	return Datum{typ: types.TimestampZ(precision), v: t}
}

// Time returns the value of a DATE, TIME[Z] or TIMESTAMP[Z] datum.
func (d Datum) Time() time.Time {
	d.check("Time", d.Kind().IsDateTime())
	return d.v.(time.Time)
}
