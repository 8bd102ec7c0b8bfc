package eval

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
	"github.com/roach88/pql/internal/types"
)

type cast struct {
	operand Expression
	target  types.PType
}

// Cast converts its operand to target. NULL stays NULL (typed as target)
// and MISSING stays MISSING. Unsupported conversions are type errors; values
// that do not fit the target are *fn.DataError overflows.
func Cast(operand Expression, target types.PType) Expression {
	return &cast{operand: operand, target: target}
}

func (e *cast) Eval(env *Env) (datum.Datum, error) {
	v, err := e.operand.Eval(env)
	if err != nil {
		return datum.Datum{}, err
	}
	return CastValue(v, e.target)
}

var intBounds = map[types.Kind][2]int64{
	types.KindTinyInt:  {math.MinInt8, math.MaxInt8},
	types.KindSmallInt: {math.MinInt16, math.MaxInt16},
	types.KindInteger:  {math.MinInt32, math.MaxInt32},
	types.KindBigInt:   {math.MinInt64, math.MaxInt64},
}

var truncate = func() *apd.Context {
	c := fn.DecimalContext.WithPrecision(fn.DecimalContext.Precision)
	c.Rounding = apd.RoundDown
	return c
}()

// CastValue converts v to target.
func CastValue(v datum.Datum, target types.PType) (datum.Datum, error) {
	if v.IsMissing() {
		return v, nil
	}
	if v.IsNull() {
		return datum.Null(target), nil
	}
	tk, vk := target.Kind(), v.Kind()
	switch {
	case tk == types.KindDynamic || tk == types.KindUnknown:
		return v, nil
	case tk == types.KindBool:
		return castToBool(v)
	case tk.IsNumeric():
		return castToNumber(v, target)
	case tk.IsText():
		s, ok := textOf(v)
		if !ok {
			break
		}
		return makeText(s, target), nil
	case tk == types.KindBlob:
		if vk == types.KindBlob || vk == types.KindClob {
			return datum.Blob(v.Bytes()), nil
		}
	case tk.IsDateTime():
		return castToTime(v, target)
	case tk.IsCollection():
		if !vk.IsCollection() {
			break
		}
		elems, err := v.Elements()
		if err != nil {
			return datum.Datum{}, err
		}
		return datum.Collection(target, elems), nil
	case tk == types.KindStruct:
		if vk.IsTuple() {
			return datum.Struct(v.Fields()...), nil
		}
	case tk == types.KindRow:
		if vk.IsTuple() {
			return datum.Row(v.Fields()...), nil
		}
	}
	return datum.Datum{}, typeErr("CAST", target.String(), vk)
}

func castToBool(v datum.Datum) (datum.Datum, error) {
	switch k := v.Kind(); {
	case k == types.KindBool:
		return v, nil
	case k.IsNumeric():
		return datum.Bool(datum.Compare(v, datum.TinyInt(0)) != 0), nil
	case k.IsText():
		switch strings.ToLower(strings.TrimSpace(v.Text())) {
		case "true":
			return datum.Bool(true), nil
		case "false":
			return datum.Bool(false), nil
		}
		return datum.Datum{}, &fn.DataError{Code: fn.CodeInvalidArg, Function: "cast", Message: "invalid boolean text " + strconv.Quote(v.Text())}
	}
	return datum.Datum{}, typeErr("CAST", "BOOL", v.Kind())
}

func castToNumber(v datum.Datum, target types.PType) (datum.Datum, error) {
	src := v
	switch k := v.Kind(); {
	case k == types.KindBool:
		src = datum.TinyInt(0)
		if v.Boolean() {
			src = datum.TinyInt(1)
		}
	case k.IsText():
		dec, _, err := apd.NewFromString(strings.TrimSpace(v.Text()))
		if err != nil {
			return datum.Datum{}, &fn.DataError{Code: fn.CodeInvalidArg, Function: "cast", Message: "invalid number text " + strconv.Quote(v.Text())}
		}
		src = datum.DecimalOf(dec)
	case !k.IsNumeric():
		return datum.Datum{}, typeErr("CAST", target.String(), k)
	}

	switch tk := target.Kind(); tk {
	case types.KindReal:
		return datum.Real(float32(datum.ToFloat64(src))), nil
	case types.KindDouble:
		return datum.Double(datum.ToFloat64(src)), nil
	}

	dec, ok := datum.ToDecimal(src)
	if !ok {
		return datum.Datum{}, &fn.DataError{Code: fn.CodeOverflow, Function: "cast", Message: "cannot convert " + src.String() + " to " + target.String()}
	}
	switch tk := target.Kind(); tk {
	case types.KindDecimal:
		out := new(apd.Decimal)
		if _, err := fn.DecimalContext.Quantize(out, dec, -int32(target.Scale())); err != nil {
			return datum.Datum{}, &fn.DataError{Code: fn.CodeOverflow, Function: "cast", Message: err.Error()}
		}
		if int(out.NumDigits()) > target.Precision() {
			return datum.Datum{}, &fn.DataError{Code: fn.CodeOverflow, Function: "cast", Message: src.String() + " does not fit " + target.String()}
		}
		return datum.Decimal(out, target.Precision(), target.Scale()), nil
	default:
		whole := new(apd.Decimal)
		if _, err := truncate.RoundToIntegralValue(whole, dec); err != nil {
			return datum.Datum{}, &fn.DataError{Code: fn.CodeOverflow, Function: "cast", Message: err.Error()}
		}
		if tk == types.KindNumeric {
			n, ok := new(big.Int).SetString(whole.Text('f'), 10)
			if !ok {
				return datum.Datum{}, &fn.DataError{Code: fn.CodeOverflow, Function: "cast", Message: "cannot convert " + src.String() + " to NUMERIC"}
			}
			return datum.Numeric(n), nil
		}
		n, err := whole.Int64()
		bounds := intBounds[tk]
		if err != nil || n < bounds[0] || n > bounds[1] {
			return datum.Datum{}, &fn.DataError{Code: fn.CodeOverflow, Function: "cast", Message: src.String() + " does not fit " + tk.String()}
		}
		switch tk {
		case types.KindTinyInt:
			return datum.TinyInt(int8(n)), nil
		case types.KindSmallInt:
			return datum.SmallInt(int16(n)), nil
		case types.KindInteger:
			return datum.Int(int32(n)), nil
		}
		return datum.BigInt(n), nil
	}
}

// textOf renders scalar values as the text a CAST to STRING produces.
func textOf(v datum.Datum) (string, bool) {
	switch k := v.Kind(); {
	case k.IsText():
		return v.Text(), true
	case k == types.KindBool:
		return strconv.FormatBool(v.Boolean()), true
	case k == types.KindReal:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 32), true
	case k == types.KindDouble:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64), true
	case k == types.KindDecimal:
		return v.Decimal().Text('f'), true
	case k == types.KindNumeric:
		return v.BigInteger().String(), true
	case k.IsNumeric():
		return strconv.FormatInt(v.Int64(), 10), true
	case k == types.KindDate:
		return v.Time().Format(time.DateOnly), true
	case k == types.KindTime, k == types.KindTimeZ:
		return v.Time().Format("15:04:05.999999999"), true
	case k.IsDateTime():
		return v.Time().Format(time.RFC3339Nano), true
	}
	return "", false
}

func makeText(s string, target types.PType) datum.Datum {
	switch target.Kind() {
	case types.KindSymbol:
		return datum.Symbol(s)
	case types.KindChar:
		n := target.Length()
		r := []rune(s)
		if len(r) > n {
			r = r[:n]
		}
		for len(r) < n {
			r = append(r, ' ')
		}
		return datum.Char(string(r), n)
	case types.KindVarchar:
		n := target.Length()
		if r := []rune(s); len(r) > n {
			s = string(r[:n])
		}
		return datum.Varchar(s, n)
	case types.KindClob:
		return datum.Clob([]byte(s))
	}
	return datum.String(s)
}

func castToTime(v datum.Datum, target types.PType) (datum.Datum, error) {
	var t time.Time
	switch k := v.Kind(); {
	case k.IsDateTime():
		t = v.Time()
	case k.IsText():
		s := strings.TrimSpace(v.Text())
		var err error
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly, "15:04:05.999999999", "15:04:05Z07:00"} {
			if t, err = time.Parse(layout, s); err == nil {
				break
			}
		}
		if err != nil {
			return datum.Datum{}, &fn.DataError{Code: fn.CodeInvalidArg, Function: "cast", Message: "invalid date/time text " + strconv.Quote(s)}
		}
	default:
		return datum.Datum{}, typeErr("CAST", target.String(), k)
	}
	switch target.Kind() {
	case types.KindDate:
		return datum.Date(t), nil
	case types.KindTime:
		return datum.Time(t, target.Precision()), nil
	case types.KindTimeZ:
		return datum.TimeZ(t, target.Precision()), nil
	case types.KindTimestamp:
		return datum.Timestamp(t, target.Precision()), nil
	}
	return datum.TimestampZ(t, target.Precision()), nil
}
