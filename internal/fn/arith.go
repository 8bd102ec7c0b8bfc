package fn

import (
	"math"
	"math/big"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

// DecimalContext is the context used for all DECIMAL arithmetic.
var DecimalContext = apd.BaseContext.WithPrecision(types.DefaultDecimalPrecision)

// Op is an arithmetic operator.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

var opNames = [...]string{OpAdd: "plus", OpSub: "minus", OpMul: "times", OpDiv: "divide", OpMod: "modulo"}

func (o Op) String() string { return opNames[o] }

// Arith applies op to two numeric datums after promoting both to their
// common numeric kind. Absent operands yield NULL of the common kind (or
// MISSING when either operand is MISSING).
func Arith(op Op, a, b datum.Datum) (datum.Datum, error) {
	if a.IsMissing() || b.IsMissing() {
		return datum.Missing(), nil
	}
	ka, kb := a.Kind(), b.Kind()
	k, ok := types.CommonNumeric(ka, kb)
	if !ok {
		if a.IsNull() || b.IsNull() {
			return datum.Null(types.Dynamic()), nil
		}
		return datum.Datum{}, dataErr(CodeTypeMismatch, op.String(), "cannot apply to %s and %s", ka, kb)
	}
	if a.IsNull() || b.IsNull() {
		return datum.Null(types.Of(k)), nil
	}
	switch {
	case k == types.KindReal || k == types.KindDouble:
		return floatArith(op, k, datum.ToFloat64(a), datum.ToFloat64(b))
	case k == types.KindDecimal:
		da, _ := datum.ToDecimal(a)
		db, _ := datum.ToDecimal(b)
		return decimalArith(op, da, db)
	case k == types.KindNumeric:
		return bigArith(op, toBig(a), toBig(b))
	default:
		return intArith(op, k, a.Int64(), b.Int64())
	}
}

func toBig(d datum.Datum) *big.Int {
	if d.Kind() == types.KindNumeric {
		return d.BigInteger()
	}
	return big.NewInt(d.Int64())
}

var intRanges = map[types.Kind][2]int64{
	types.KindTinyInt:  {math.MinInt8, math.MaxInt8},
	types.KindSmallInt: {math.MinInt16, math.MaxInt16},
	types.KindInteger:  {math.MinInt32, math.MaxInt32},
	types.KindBigInt:   {math.MinInt64, math.MaxInt64},
}

func intArith(op Op, k types.Kind, a, b int64) (datum.Datum, error) {
	var r int64
	overflow := false
	switch op {
	case OpAdd:
		r = a + b
		overflow = (b > 0 && r < a) || (b < 0 && r > a)
	case OpSub:
		r = a - b
		overflow = (b < 0 && r < a) || (b > 0 && r > a)
	case OpMul:
		if a != 0 && b != 0 {
			r = a * b
			overflow = r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64)
		}
	case OpDiv, OpMod:
		if b == 0 {
			return datum.Datum{}, dataErr(CodeDivideByZero, op.String(), "division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			if op == OpMod {
				return makeInt(k, 0), nil
			}
			overflow = true
			break
		}
		if op == OpDiv {
			r = a / b
		} else {
			r = a % b
		}
	}
	rng := intRanges[k]
	if overflow || r < rng[0] || r > rng[1] {
		return datum.Datum{}, dataErr(CodeOverflow, op.String(), "%s overflow", k)
	}
	return makeInt(k, r), nil
}

func makeInt(k types.Kind, v int64) datum.Datum {
	switch k {
	case types.KindTinyInt:
		return datum.TinyInt(int8(v))
	case types.KindSmallInt:
		return datum.SmallInt(int16(v))
	case types.KindInteger:
		return datum.Int(int32(v))
	default:
		return datum.BigInt(v)
	}
}

func bigArith(op Op, a, b *big.Int) (datum.Datum, error) {
	r := new(big.Int)
	switch op {
	case OpAdd:
		r.Add(a, b)
	case OpSub:
		r.Sub(a, b)
	case OpMul:
		r.Mul(a, b)
	case OpDiv, OpMod:
		if b.Sign() == 0 {
			return datum.Datum{}, dataErr(CodeDivideByZero, op.String(), "division by zero")
		}
		if op == OpDiv {
			r.Quo(a, b)
		} else {
			r.Rem(a, b)
		}
	}
	return datum.Numeric(r), nil
}

func decimalArith(op Op, a, b *apd.Decimal) (datum.Datum, error) {
	r := new(apd.Decimal)
	var err error
	switch op {
	case OpAdd:
		_, err = DecimalContext.Add(r, a, b)
	case OpSub:
		_, err = DecimalContext.Sub(r, a, b)
	case OpMul:
		_, err = DecimalContext.Mul(r, a, b)
	case OpDiv, OpMod:
		if b.IsZero() {
			return datum.Datum{}, dataErr(CodeDivideByZero, op.String(), "division by zero")
		}
		if op == OpDiv {
			_, err = DecimalContext.Quo(r, a, b)
		} else {
			_, err = DecimalContext.Rem(r, a, b)
		}
	}
	if err != nil {
		return datum.Datum{}, dataErr(CodeOverflow, op.String(), "%v", err)
	}
	return datum.DecimalOf(r), nil
}

func floatArith(op Op, k types.Kind, a, b float64) (datum.Datum, error) {
	var r float64
	switch op {
	case OpAdd:
		r = a + b
	case OpSub:
		r = a - b
	case OpMul:
		r = a * b
	case OpDiv:
		if b == 0 {
			return datum.Datum{}, dataErr(CodeDivideByZero, op.String(), "division by zero")
		}
		r = a / b
	case OpMod:
		if b == 0 {
			return datum.Datum{}, dataErr(CodeDivideByZero, op.String(), "division by zero")
		}
		r = math.Mod(a, b)
	}
	if k == types.KindReal {
		return datum.Real(float32(r)), nil
	}
	return datum.Double(r), nil
}

// Negate returns -d for a numeric datum.
func Negate(d datum.Datum) (datum.Datum, error) {
	if d.IsAbsent() {
		return d, nil
	}
	if !d.Kind().IsNumeric() {
		return datum.Datum{}, dataErr(CodeTypeMismatch, "neg", "cannot negate %s", d.Kind())
	}
	return Arith(OpSub, makeInt(types.KindTinyInt, 0), d)
}
