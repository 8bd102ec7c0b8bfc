package datum

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/pql/internal/types"
)

// FromGo converts a decoded Go value (from YAML, JSON, CUE, SQLite or
// Parquet) into a Datum.
//
// Integers become BIGINT, floats DOUBLE, strings STRING, []byte BLOB,
// time.Time TIMESTAMP, slices LIST and maps STRUCT with keys in sorted order.
// nil becomes an untyped NULL. A Datum is returned unchanged.
func FromGo(v any) (Datum, error) {
	switch val := v.(type) {
	case nil:
		return Null(types.Unknown()), nil
	case Datum:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return BigInt(int64(val)), nil
	case int8:
		return TinyInt(val), nil
	case int16:
		return SmallInt(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return BigInt(val), nil
	case uint:
		return fromUint(uint64(val)), nil
	case uint8:
		return SmallInt(int16(val)), nil
	case uint16:
		return Int(int32(val)), nil
	case uint32:
		return BigInt(int64(val)), nil
	case uint64:
		return fromUint(val), nil
	case float32:
		return Real(val), nil
	case float64:
		return Double(val), nil
	case *big.Int:
		return Numeric(val), nil
	case *apd.Decimal:
		return DecimalOf(val), nil
	case apd.Decimal:
		return DecimalOf(&val), nil
	case string:
		return String(val), nil
	case []byte:
		return Blob(val), nil
	case time.Time:
		return Timestamp(val, types.DefaultTimePrecision), nil
	case []any:
		elems := make([]Datum, len(val))
		for i, e := range val {
			d, err := FromGo(e)
			if err != nil {
				return Datum{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = d
		}
		return List(elems...), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		fields := make([]Field, len(keys))
		for i, k := range keys {
			d, err := FromGo(val[k])
			if err != nil {
				return Datum{}, fmt.Errorf("[%q]: %w", k, err)
			}
			fields[i] = Field{Name: k, Value: d}
		}
		return Struct(fields...), nil
	default:
		return Datum{}, fmt.Errorf("unsupported Go type %T", v)
	}
}

func fromUint(u uint64) Datum {
	if u <= math.MaxInt64 {
		return BigInt(int64(u))
	}
	return Numeric(new(big.Int).SetUint64(u))
}

// ToGo converts d into plain Go values: nil, bool, int64, *big.Int,
// *apd.Decimal, float64, string, []byte, time.Time, []any for collections and
// map[string]any for tuples (the last duplicate field wins). Lazy collections
// are materialized.
func ToGo(d Datum) (any, error) {
	if d.IsAbsent() {
		return nil, nil
	}
	k := d.Kind()
	switch {
	case k == types.KindBool:
		return d.Boolean(), nil
	case k == types.KindNumeric:
		return d.BigInteger(), nil
	case k == types.KindDecimal:
		return d.Decimal(), nil
	case k == types.KindReal, k == types.KindDouble:
		return d.Float64(), nil
	case k.IsExactInteger():
		return d.Int64(), nil
	case k == types.KindBlob:
		return d.Bytes(), nil
	case k.IsText():
		return d.Text(), nil
	case k.IsDateTime():
		return d.Time(), nil
	case k.IsCollection():
		elems, err := d.Elements()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(elems))
		for i, e := range elems {
			if out[i], err = ToGo(e); err != nil {
				return nil, err
			}
		}
		return out, nil
	case k.IsTuple():
		out := make(map[string]any, d.Len())
		for _, f := range d.Fields() {
			v, err := ToGo(f.Value)
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %s to a Go value", k)
}

// MarshalJSON renders d as JSON. NULL and MISSING render as null, MISSING
// struct fields are omitted, struct field order is kept, decimals render as
// JSON numbers with their exact digits, LOBs render base64-encoded and
// date/time values render as RFC 3339 strings. NaN and infinite floats render
// as strings.
func (d Datum) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, d Datum) error {
	if d.IsAbsent() {
		buf.WriteString("null")
		return nil
	}
	k := d.Kind()
	switch {
	case k == types.KindBool:
		buf.WriteString(strconv.FormatBool(d.Boolean()))
	case k == types.KindNumeric:
		buf.WriteString(d.v.(*big.Int).String())
	case k == types.KindDecimal:
		buf.WriteString(d.v.(*apd.Decimal).Text('f'))
	case k == types.KindReal, k == types.KindDouble:
		f := d.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return writeJSONString(buf, strconv.FormatFloat(f, 'g', -1, 64))
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case k.IsExactInteger():
		buf.WriteString(strconv.FormatInt(d.Int64(), 10))
	case k == types.KindBlob:
		return writeJSONString(buf, base64.StdEncoding.EncodeToString(d.Bytes()))
	case k.IsText():
		return writeJSONString(buf, d.Text())
	case k.IsDateTime():
		return writeJSONString(buf, formatTime(d))
	case k.IsCollection():
		elems, err := d.Elements()
		if err != nil {
			return err
		}
		buf.WriteByte('[')
		for i, e := range elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case k.IsTuple():
		buf.WriteByte('{')
		first := true
		for _, f := range d.Fields() {
			if f.Value.IsMissing() {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err := writeJSONString(buf, f.Name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeJSON(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot render %s as JSON", k)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func formatTime(d Datum) string {
	t := d.Time()
	switch d.Kind() {
	case types.KindDate:
		return t.Format(time.DateOnly)
	case types.KindTime, types.KindTimeZ:
		return t.Format("15:04:05.999999999")
	default:
		return t.Format(time.RFC3339Nano)
	}
}

// String renders d in PartiQL literal notation, e.g. 1, 'abc', <<1, 2>>,
// [1, 2], {'a': 1}, NULL and MISSING. It is meant for diagnostics and plan
// explanations.
func (d Datum) String() string {
	if d.IsMissing() {
		return "MISSING"
	}
	if d.IsNull() {
		return "NULL"
	}
	k := d.Kind()
	switch {
	case k == types.KindBool:
		return strings.ToUpper(strconv.FormatBool(d.Boolean()))
	case k == types.KindNumeric:
		return d.v.(*big.Int).String()
	case k == types.KindDecimal:
		return d.v.(*apd.Decimal).Text('f')
	case k == types.KindReal, k == types.KindDouble:
		return strconv.FormatFloat(d.Float64(), 'g', -1, 64)
	case k.IsExactInteger():
		return strconv.FormatInt(d.Int64(), 10)
	case k == types.KindBlob:
		return "{{" + base64.StdEncoding.EncodeToString(d.Bytes()) + "}}"
	case k == types.KindSymbol:
		return "`" + d.Text() + "`"
	case k.IsText():
		return "'" + strings.ReplaceAll(d.Text(), "'", "''") + "'"
	case k.IsDateTime():
		return fmt.Sprintf("%s '%s'", dateTimeKeyword(k), formatTime(d))
	case k.IsCollection():
		if d.IsLazy() {
			return fmt.Sprintf("<%s lazy>", d.Type())
		}
		open, end := "[", "]"
		switch k {
		case types.KindBag:
			open, end = "<<", ">>"
		case types.KindSexp:
			open, end = "(", ")"
		}
		elems := d.v.(*collection).elems
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.String()
		}
		return open + strings.Join(parts, ", ") + end
	case k.IsTuple():
		fields := d.v.([]Field)
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = "'" + f.Name + "': " + f.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return k.String()
}

func dateTimeKeyword(k types.Kind) string {
	switch k {
	case types.KindDate:
		return "DATE"
	case types.KindTime, types.KindTimeZ:
		return "TIME"
	default:
		return "TIMESTAMP"
	}
}
