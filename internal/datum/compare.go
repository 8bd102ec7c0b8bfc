package datum

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"math"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/pql/internal/types"
)

// Type classes in ascending sort order.
const (
	classAbsent = iota
	classBool
	classNumber
	classTime
	classText
	classLob
	classList
	classSexp
	classTuple
	classBag
)

func class(d Datum) int {
	if d.IsAbsent() {
		return classAbsent
	}
	k := d.Kind()
	switch {
	case k == types.KindBool:
		return classBool
	case k.IsNumeric():
		return classNumber
	case k.IsDateTime():
		return classTime
	case k == types.KindClob, k == types.KindBlob:
		return classLob
	case k.IsText():
		return classText
	case k == types.KindList:
		return classList
	case k == types.KindSexp:
		return classSexp
	case k.IsTuple():
		return classTuple
	case k == types.KindBag:
		return classBag
	}
	return classAbsent
}

// Compare is the total order used for sorting and MIN/MAX.
//
// NULL and MISSING sort first and compare equal to each other. Then come, in
// order: BOOL (false < true), numbers (compared by value across kinds, NaN
// first), date and time values (by instant), text (NFC-normalized,
// byte-wise), LOBs, LISTs and SEXPs (element-wise), tuples (fields sorted by
// name, then pairwise) and BAGs (elements sorted, then element-wise).
//
// Lazy collections are materialized; an iteration error makes the
// collection compare as empty. Call Materialize first to observe the error.
func Compare(a, b Datum) int {
	ca, cb := class(a), class(b)
	if ca != cb {
		return cmp.Compare(ca, cb)
	}
	switch ca {
	case classAbsent:
		return 0
	case classBool:
		return compareBool(a.Boolean(), b.Boolean())
	case classNumber:
		return compareNumbers(a, b)
	case classTime:
		return a.Time().Compare(b.Time())
	case classText:
		return strings.Compare(norm.NFC.String(a.Text()), norm.NFC.String(b.Text()))
	case classLob:
		return bytes.Compare(a.Bytes(), b.Bytes())
	case classList, classSexp:
		return compareSeq(elementsOrEmpty(a), elementsOrEmpty(b))
	case classTuple:
		return compareFields(sortedFields(a), sortedFields(b))
	case classBag:
		return compareSeq(sortedElements(a), sortedElements(b))
	}
	return 0
}

// Equal reports whether a and b are equivalent under Compare. It is the
// equality used by grouping, DISTINCT and the set operators.
func Equal(a, b Datum) bool {
	return Compare(a, b) == 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}

func compareSeq(a, b []Datum) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareFields(a, b []Field) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i].Name, b[i].Name); c != 0 {
			return c
		}
		if c := Compare(a[i].Value, b[i].Value); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func elementsOrEmpty(d Datum) []Datum {
	elems, err := d.Elements()
	if err != nil {
		return nil
	}
	return elems
}

func sortedElements(d Datum) []Datum {
	elems := elementsOrEmpty(d)
	slices.SortStableFunc(elems, Compare)
	return elems
}

func sortedFields(d Datum) []Field {
	fields := d.Fields()
	slices.SortStableFunc(fields, func(x, y Field) int {
		if c := strings.Compare(x.Name, y.Name); c != 0 {
			return c
		}
		return Compare(x.Value, y.Value)
	})
	return fields
}

func compareNumbers(a, b Datum) int {
	ka, kb := a.Kind(), b.Kind()
	if ka.IsExactInteger() && kb.IsExactInteger() && ka != types.KindNumeric && kb != types.KindNumeric {
		return cmp.Compare(a.Int64(), b.Int64())
	}
	if isFloat(ka) && isFloat(kb) {
		return cmp.Compare(a.Float64(), b.Float64())
	}
	if isFloat(ka) || isFloat(kb) {
		fa, fb := ToFloat64(a), ToFloat64(b)
		if !math.IsInf(fa, 0) && !math.IsNaN(fa) && !math.IsInf(fb, 0) && !math.IsNaN(fb) {
			da, _ := ToDecimal(a)
			db, _ := ToDecimal(b)
			return da.Cmp(db)
		}
		return cmp.Compare(fa, fb)
	}
	da, _ := ToDecimal(a)
	db, _ := ToDecimal(b)
	return da.Cmp(db)
}

func isFloat(k types.Kind) bool {
	return k == types.KindReal || k == types.KindDouble
}

// ToDecimal converts a numeric datum to an exact decimal. It returns false
// for non-numeric or absent datums and for NaN and infinite floats.
func ToDecimal(d Datum) (*apd.Decimal, bool) {
	if d.IsAbsent() || !d.Kind().IsNumeric() {
		return nil, false
	}
	switch d.Kind() {
	case types.KindNumeric:
		return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(d.v.(*big.Int)), 0), true
	case types.KindDecimal:
		return d.Decimal(), true
	case types.KindReal, types.KindDouble:
		f := d.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		dec := new(apd.Decimal)
		if _, err := dec.SetFloat64(f); err != nil {
			return nil, false
		}
		return dec, true
	default:
		return apd.New(d.Int64(), 0), true
	}
}

// ToFloat64 converts a numeric datum to a float64. Non-numeric and absent
// datums convert to NaN.
func ToFloat64(d Datum) float64 {
	if d.IsAbsent() || !d.Kind().IsNumeric() {
		return math.NaN()
	}
	switch d.Kind() {
	case types.KindReal, types.KindDouble:
		return d.Float64()
	case types.KindNumeric:
		f, _ := new(big.Float).SetInt(d.v.(*big.Int)).Float64()
		return f
	case types.KindDecimal:
		f, err := d.v.(*apd.Decimal).Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return float64(d.Int64())
	}
}

// Key returns a canonical byte encoding of d such that Equal(a, b) implies
// bytes.Equal(Key(a), Key(b)). It is used as the hash key for grouping,
// DISTINCT and the set operators.
//
// Text is NFC-normalized, numbers are encoded by value, tuple fields are
// sorted by name and BAG elements are sorted by their keys.
func Key(d Datum) []byte {
	var buf bytes.Buffer
	writeKey(&buf, d)
	return buf.Bytes()
}

func writeKey(buf *bytes.Buffer, d Datum) {
	c := class(d)
	buf.WriteByte(byte(c))
	switch c {
	case classAbsent:
	case classBool:
		if d.Boolean() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case classNumber:
		writeString(buf, numberKey(d))
	case classTime:
		writeString(buf, d.Time().UTC().Format(time.RFC3339Nano))
	case classText:
		writeString(buf, norm.NFC.String(d.Text()))
	case classLob:
		writeString(buf, string(d.Bytes()))
	case classList, classSexp:
		elems := elementsOrEmpty(d)
		writeLen(buf, len(elems))
		for _, e := range elems {
			writeKey(buf, e)
		}
	case classTuple:
		fields := sortedFields(d)
		writeLen(buf, len(fields))
		for _, f := range fields {
			writeString(buf, f.Name)
			writeKey(buf, f.Value)
		}
	case classBag:
		elems := elementsOrEmpty(d)
		keys := make([][]byte, len(elems))
		for i, e := range elems {
			keys[i] = Key(e)
		}
		slices.SortFunc(keys, bytes.Compare)
		writeLen(buf, len(keys))
		for _, k := range keys {
			buf.Write(k)
		}
	}
}

func numberKey(d Datum) string {
	dec, ok := ToDecimal(d)
	if !ok {
		f := ToFloat64(d)
		switch {
		case math.IsNaN(f):
			return "nan"
		case math.IsInf(f, 1):
			return "+inf"
		default:
			return "-inf"
		}
	}
	if dec.IsZero() {
		return "0"
	}
	var reduced apd.Decimal
	reduced.Reduce(dec)
	return reduced.String()
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [binary.MaxVarintLen64]byte
	buf.Write(b[:binary.PutUvarint(b[:], uint64(n))])
}

func writeString(buf *bytes.Buffer, s string) {
	writeLen(buf, len(s))
	buf.WriteString(s)
}
