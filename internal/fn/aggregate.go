package fn

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

func registerAggregations(r *Registry) {
	dyn := []types.PType{types.Dynamic()}

	r.RegisterAggregation(&Aggregation{
		Name: "count", Params: dyn, Returns: types.BigInt(),
		Accumulator: func() Accumulator { return &countAcc{} },
	})
	r.RegisterAggregation(&Aggregation{
		Name: "count_star", Returns: types.BigInt(),
		Accumulator: func() Accumulator { return &countAcc{star: true} },
	})

	for _, k := range numericKinds {
		returns := k
		if types.NumericRank(k.Kind()) <= types.NumericRank(types.KindBigInt) {
			returns = types.BigInt()
		}
		r.RegisterAggregation(&Aggregation{
			Name: "sum", Params: []types.PType{k}, Returns: returns,
			Accumulator: func() Accumulator { return &sumAcc{returns: returns} },
		})
	}
	r.RegisterAggregation(&Aggregation{
		Name: "sum", Params: dyn, Returns: types.Dynamic(),
		Accumulator: func() Accumulator { return &sumAcc{returns: types.Dynamic()} },
	})

	for _, k := range numericKinds {
		returns := types.DecimalDefault()
		if k.Kind() == types.KindReal || k.Kind() == types.KindDouble {
			returns = types.Double()
		}
		r.RegisterAggregation(&Aggregation{
			Name: "avg", Params: []types.PType{k}, Returns: returns,
			Accumulator: func() Accumulator { return &avgAcc{returns: returns} },
		})
	}
	r.RegisterAggregation(&Aggregation{
		Name: "avg", Params: dyn, Returns: types.Dynamic(),
		Accumulator: func() Accumulator { return &avgAcc{returns: types.Dynamic()} },
	})

	r.RegisterAggregation(&Aggregation{
		Name: "min", Params: dyn, Returns: types.Dynamic(),
		Accumulator: func() Accumulator { return &extremeAcc{sign: -1} },
	})
	r.RegisterAggregation(&Aggregation{
		Name: "max", Params: dyn, Returns: types.Dynamic(),
		Accumulator: func() Accumulator { return &extremeAcc{sign: 1} },
	})

	boolParam := []types.PType{types.Bool()}
	r.RegisterAggregation(&Aggregation{
		Name: "every", Params: boolParam, Returns: types.Bool(),
		Accumulator: func() Accumulator { return &boolAcc{name: "every", all: true} },
	})
	for _, name := range []string{"any", "some"} {
		name := name
		r.RegisterAggregation(&Aggregation{
			Name: name, Params: boolParam, Returns: types.Bool(),
			Accumulator: func() Accumulator { return &boolAcc{name: name} },
		})
	}

	r.RegisterAggregation(&Aggregation{
		Name: "array_agg", Params: dyn, Returns: types.List(types.Dynamic()),
		Accumulator: func() Accumulator { return &arrayAcc{} },
	})
}

// countAcc implements COUNT(x), skipping absent values, and COUNT(*).
type countAcc struct {
	star bool
	n    int64
}

func (a *countAcc) Next(args []datum.Datum) error {
	if a.star || !args[0].IsAbsent() {
		a.n++
	}
	return nil
}

func (a *countAcc) Value() (datum.Datum, error) {
	return datum.BigInt(a.n), nil
}

// sumAcc keeps a running total in the widest numeric kind seen so far.
// Fixed-width integers are summed as BIGINT.
type sumAcc struct {
	returns types.PType
	total   datum.Datum
	seen    bool
}

func (a *sumAcc) Next(args []datum.Datum) error {
	v := args[0]
	if v.IsAbsent() {
		return nil
	}
	if !v.Kind().IsNumeric() {
		return dataErr(CodeTypeMismatch, "sum", "expected a number, got %s", v.Kind())
	}
	switch v.Kind() {
	case types.KindTinyInt, types.KindSmallInt, types.KindInteger:
		v = datum.BigInt(v.Int64())
	}
	if !a.seen {
		a.total, a.seen = v, true
		return nil
	}
	t, err := Arith(OpAdd, a.total, v)
	if err != nil {
		return err
	}
	a.total = t
	return nil
}

func (a *sumAcc) Value() (datum.Datum, error) {
	if !a.seen {
		return datum.Null(a.returns), nil
	}
	return declared(a.total, a.returns), nil
}

// declared gives an exact result the DECIMAL type its overload returns,
// so the value is typed like the call. The digits are kept as computed.
func declared(v datum.Datum, t types.PType) datum.Datum {
	if t.Kind() != types.KindDecimal || v.IsAbsent() {
		return v
	}
	dec, ok := datum.ToDecimal(v)
	if !ok {
		return v
	}
	return datum.Decimal(dec, t.Precision(), t.Scale())
}

// avgAcc averages exact numbers as DECIMAL and approximate numbers as
// DOUBLE.
type avgAcc struct {
	returns types.PType
	sum     sumAcc
	n       int64
}

func (a *avgAcc) Next(args []datum.Datum) error {
	if args[0].IsAbsent() {
		return nil
	}
	if err := a.sum.Next(args); err != nil {
		return err
	}
	a.n++
	return nil
}

func (a *avgAcc) Value() (datum.Datum, error) {
	if a.n == 0 {
		return datum.Null(a.returns), nil
	}
	total := a.sum.total
	if k := total.Kind(); k == types.KindReal || k == types.KindDouble {
		return datum.Double(datum.ToFloat64(total) / float64(a.n)), nil
	}
	dec, _ := datum.ToDecimal(total)
	q := new(apd.Decimal)
	if _, err := DecimalContext.Quo(q, dec, apd.New(a.n, 0)); err != nil {
		return datum.Datum{}, dataErr(CodeOverflow, "avg", "%v", err)
	}
	return declared(datum.DecimalOf(q), a.returns), nil
}

// extremeAcc implements MIN (sign -1) and MAX (sign 1) over the total order.
type extremeAcc struct {
	sign int
	best datum.Datum
	seen bool
}

func (a *extremeAcc) Next(args []datum.Datum) error {
	v := args[0]
	if v.IsAbsent() {
		return nil
	}
	v, err := datum.Materialize(v)
	if err != nil {
		return err
	}
	if !a.seen || datum.Compare(v, a.best)*a.sign > 0 {
		a.best, a.seen = v, true
	}
	return nil
}

func (a *extremeAcc) Value() (datum.Datum, error) {
	if !a.seen {
		return datum.Null(types.Dynamic()), nil
	}
	return a.best, nil
}

// boolAcc implements EVERY (all) and ANY/SOME.
type boolAcc struct {
	name   string
	all    bool
	result bool
	seen   bool
}

func (a *boolAcc) Next(args []datum.Datum) error {
	t, err := truth(a.name, args[0])
	if err != nil || t < 0 {
		return err
	}
	if !a.seen {
		a.result, a.seen = t == 1, true
		return nil
	}
	if a.all {
		a.result = a.result && t == 1
	} else {
		a.result = a.result || t == 1
	}
	return nil
}

func (a *boolAcc) Value() (datum.Datum, error) {
	if !a.seen {
		return datum.Null(types.Bool()), nil
	}
	return datum.Bool(a.result), nil
}

// arrayAcc collects every present value into a LIST in input order.
type arrayAcc struct {
	elems []datum.Datum
}

func (a *arrayAcc) Next(args []datum.Datum) error {
	if !args[0].IsMissing() {
		a.elems = append(a.elems, args[0])
	}
	return nil
}

func (a *arrayAcc) Value() (datum.Datum, error) {
	return datum.Collection(types.List(types.Dynamic()), a.elems), nil
}
