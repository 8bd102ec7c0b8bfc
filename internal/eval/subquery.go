package eval

import (
	"errors"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

type selectExpr struct {
	typ         types.PType
	input       Factory
	constructor Expression
}

// Select yields a lazy collection of type t holding constructor evaluated
// once per row of input. Every iteration of the collection builds and runs
// a fresh relation from input, under the Env captured at evaluation.
func Select(t types.PType, input Factory, constructor Expression) Expression {
	return &selectExpr{typ: t, input: input, constructor: constructor}
}

func (e *selectExpr) Eval(env *Env) (datum.Datum, error) {
	return datum.Lazy(e.typ, func() (datum.Iterator, error) {
		rel := e.input()
		if err := rel.Open(env); err != nil {
			return nil, errors.Join(err, rel.Close())
		}
		return &selectIterator{rel: rel, env: env, constructor: e.constructor}, nil
	}), nil
}

type selectIterator struct {
	rel         Relation
	env         *Env
	constructor Expression
}

func (it *selectIterator) Next() (datum.Datum, bool, error) {
	row, ok, err := it.rel.Next()
	if err != nil || !ok {
		return datum.Datum{}, false, err
	}
	v, err := it.constructor.Eval(it.env.Push(row))
	if err != nil {
		return datum.Datum{}, false, err
	}
	return v, true, nil
}

func (it *selectIterator) Close() error {
	return it.rel.Close()
}

type subquery struct {
	input       Factory
	constructor Expression
	scalar      bool
}

// Subquery runs input and collapses it to one value: NULL for no rows, the
// constructed value for one row, a *CardinalityError for more. A scalar
// subquery additionally unwraps a single-field tuple to its value.
func Subquery(input Factory, constructor Expression, scalar bool) Expression {
	return &subquery{input: input, constructor: constructor, scalar: scalar}
}

func (e *subquery) Eval(env *Env) (v datum.Datum, err error) {
	rel := e.input()
	defer func() {
		if cerr := rel.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	if err := rel.Open(env); err != nil {
		return datum.Datum{}, err
	}
	row, ok, err := rel.Next()
	if err != nil {
		return datum.Datum{}, err
	}
	if !ok {
		return datum.Null(types.Unknown()), nil
	}
	if _, more, err := rel.Next(); err != nil {
		return datum.Datum{}, err
	} else if more {
		return datum.Datum{}, &CardinalityError{Where: "subquery"}
	}
	v, err = e.constructor.Eval(env.Push(row))
	if err != nil || !e.scalar {
		return v, err
	}
	if v.IsAbsent() {
		return v, nil
	}
	if !v.Kind().IsTuple() || v.Len() != 1 {
		return datum.Datum{}, typeErr("scalar subquery", "single-field tuple", v.Kind())
	}
	return v.Fields()[0].Value, nil
}

type pivot struct {
	input      Factory
	key, value Expression
}

// Pivot runs input and builds a tuple with one field per row, named by key
// and valued by value. Rows with a non-text key or a MISSING value are
// skipped.
func Pivot(input Factory, key, value Expression) Expression {
	return &pivot{input: input, key: key, value: value}
}

func (e *pivot) Eval(env *Env) (datum.Datum, error) {
	rows, err := Collect(e.input(), env)
	if err != nil {
		return datum.Datum{}, err
	}
	fields := make([]datum.Field, 0, len(rows))
	for _, row := range rows {
		scope := env.Push(row)
		k, err := e.key.Eval(scope)
		if err != nil {
			return datum.Datum{}, err
		}
		if k.IsAbsent() || !k.Kind().IsText() {
			continue
		}
		v, err := e.value.Eval(scope)
		if err != nil {
			return datum.Datum{}, err
		}
		fields = append(fields, datum.NewField(k.Text(), v))
	}
	return datum.Struct(fields...), nil
}
