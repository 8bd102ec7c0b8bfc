package fn

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

// numericKinds lists the arithmetic overload kinds in promotion order. The
// order matters: Resolve picks the narrowest overload that accepts both
// operands.
var numericKinds = []types.PType{
	types.TinyInt(),
	types.SmallInt(),
	types.Integer(),
	types.BigInt(),
	types.Numeric(),
	types.DecimalDefault(),
	types.Real(),
	types.Double(),
}

// Builtins returns a new registry holding every builtin scalar, aggregate and
// window function.
func Builtins() *Registry {
	r := NewRegistry()
	registerComparison(r)
	registerLogic(r)
	registerArithmetic(r)
	registerText(r)
	registerPredicates(r)
	registerAggregations(r)
	registerWindows(r)
	return r
}

func any2() []types.PType { return []types.PType{types.Dynamic(), types.Dynamic()} }

func registerComparison(r *Registry) {
	r.Register(&Function{
		Name: "eq", Params: any2(), Returns: types.Bool(), MissingCall: true, NullCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.Bool(datum.Equal(args[0], args[1])), nil
		},
	})
	r.Register(&Function{
		Name: "ne", Params: any2(), Returns: types.Bool(), MissingCall: true, NullCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.Bool(!datum.Equal(args[0], args[1])), nil
		},
	})
	ordering := []struct {
		name string
		test func(c int) bool
	}{
		{"lt", func(c int) bool { return c < 0 }},
		{"lte", func(c int) bool { return c <= 0 }},
		{"gt", func(c int) bool { return c > 0 }},
		{"gte", func(c int) bool { return c >= 0 }},
	}
	for _, o := range ordering {
		o := o
		r.Register(&Function{
			Name: o.name, Params: any2(), Returns: types.Bool(), MissingCall: true, NullCall: true,
			Invoke: func(args []datum.Datum) (datum.Datum, error) {
				c, err := compareComparable(o.name, args[0], args[1])
				if err != nil {
					return datum.Datum{}, err
				}
				return datum.Bool(o.test(c)), nil
			},
		})
	}
	r.Register(&Function{
		Name:        "between",
		Params:      []types.PType{types.Dynamic(), types.Dynamic(), types.Dynamic()},
		Returns:     types.Bool(),
		MissingCall: true,
		NullCall:    true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			lo, err := compareComparable("between", args[0], args[1])
			if err != nil {
				return datum.Datum{}, err
			}
			hi, err := compareComparable("between", args[0], args[2])
			if err != nil {
				return datum.Datum{}, err
			}
			return datum.Bool(lo >= 0 && hi <= 0), nil
		},
	})
}

// comparable groups kinds that may be ordered against each other.
func comparableClass(k types.Kind) int {
	switch {
	case k == types.KindBool:
		return 1
	case k.IsNumeric():
		return 2
	case k.IsText() && k != types.KindClob:
		return 3
	case k.IsDateTime():
		return 4
	}
	return 0
}

func compareComparable(name string, a, b datum.Datum) (int, error) {
	ca, cb := comparableClass(a.Kind()), comparableClass(b.Kind())
	if ca == 0 || ca != cb {
		return 0, dataErr(CodeTypeMismatch, name, "cannot compare %s and %s", a.Kind(), b.Kind())
	}
	return datum.Compare(a, b), nil
}

// truth maps a datum to three-valued logic: 1 true, 0 false, -1 unknown.
func truth(name string, d datum.Datum) (int, error) {
	if d.IsAbsent() {
		return -1, nil
	}
	if d.Kind() != types.KindBool {
		return 0, dataErr(CodeTypeMismatch, name, "expected BOOL, got %s", d.Kind())
	}
	if d.Boolean() {
		return 1, nil
	}
	return 0, nil
}

func registerLogic(r *Registry) {
	bools := []types.PType{types.Bool(), types.Bool()}
	r.Register(&Function{
		Name: "and", Params: bools, Returns: types.Bool(),
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			a, err := truth("and", args[0])
			if err != nil {
				return datum.Datum{}, err
			}
			b, err := truth("and", args[1])
			if err != nil {
				return datum.Datum{}, err
			}
			switch {
			case a == 0 || b == 0:
				return datum.Bool(false), nil
			case a == 1 && b == 1:
				return datum.Bool(true), nil
			}
			return datum.Null(types.Bool()), nil
		},
	})
	r.Register(&Function{
		Name: "or", Params: bools, Returns: types.Bool(),
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			a, err := truth("or", args[0])
			if err != nil {
				return datum.Datum{}, err
			}
			b, err := truth("or", args[1])
			if err != nil {
				return datum.Datum{}, err
			}
			switch {
			case a == 1 || b == 1:
				return datum.Bool(true), nil
			case a == 0 && b == 0:
				return datum.Bool(false), nil
			}
			return datum.Null(types.Bool()), nil
		},
	})
	r.Register(&Function{
		Name: "not", Params: []types.PType{types.Bool()}, Returns: types.Bool(),
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			a, err := truth("not", args[0])
			if err != nil {
				return datum.Datum{}, err
			}
			if a < 0 {
				return datum.Null(types.Bool()), nil
			}
			return datum.Bool(a == 0), nil
		},
	})
}

func registerArithmetic(r *Registry) {
	ops := []Op{OpAdd, OpSub, OpMul, OpDiv, OpMod}
	for _, op := range ops {
		op := op
		for _, k := range numericKinds {
			r.Register(&Function{
				Name:        op.String(),
				Params:      []types.PType{k, k},
				Returns:     k,
				NullCall:    true,
				MissingCall: true,
				Invoke: func(args []datum.Datum) (datum.Datum, error) {
					return Arith(op, args[0], args[1])
				},
			})
		}
	}
	for _, k := range numericKinds {
		r.Register(&Function{
			Name: "neg", Params: []types.PType{k}, Returns: k, NullCall: true, MissingCall: true,
			Invoke: func(args []datum.Datum) (datum.Datum, error) {
				return Negate(args[0])
			},
		})
		r.Register(&Function{
			Name: "pos", Params: []types.PType{k}, Returns: k, NullCall: true, MissingCall: true,
			Invoke: func(args []datum.Datum) (datum.Datum, error) {
				return args[0], nil
			},
		})
		r.Register(&Function{
			Name: "abs", Params: []types.PType{k}, Returns: k, NullCall: true, MissingCall: true,
			Invoke: func(args []datum.Datum) (datum.Datum, error) {
				if datum.Compare(args[0], datum.TinyInt(0)) >= 0 {
					return args[0], nil
				}
				return Negate(args[0])
			},
		})
	}
}

func registerText(r *Registry) {
	str := types.String()
	r.Register(&Function{
		Name: "concat", Params: []types.PType{str, str}, Returns: str, NullCall: true, MissingCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.String(args[0].Text() + args[1].Text()), nil
		},
	})
	r.Register(&Function{
		Name: "upper", Params: []types.PType{str}, Returns: str, NullCall: true, MissingCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.String(cases.Upper(language.Und).String(args[0].Text())), nil
		},
	})
	r.Register(&Function{
		Name: "lower", Params: []types.PType{str}, Returns: str, NullCall: true, MissingCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.String(cases.Lower(language.Und).String(args[0].Text())), nil
		},
	})
	r.Register(&Function{
		Name: "char_length", Params: []types.PType{str}, Returns: types.BigInt(), NullCall: true, MissingCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.BigInt(int64(utf8.RuneCountInString(args[0].Text()))), nil
		},
	})
	like := func(args []datum.Datum) (datum.Datum, error) {
		escape := ""
		if len(args) == 3 {
			escape = args[2].Text()
			if utf8.RuneCountInString(escape) != 1 {
				return datum.Datum{}, dataErr(CodeInvalidArg, "like", "escape must be a single character, got %q", escape)
			}
		}
		re, err := likePattern(args[1].Text(), escape)
		if err != nil {
			return datum.Datum{}, dataErr(CodeInvalidArg, "like", "%v", err)
		}
		return datum.Bool(re.MatchString(args[0].Text())), nil
	}
	r.Register(&Function{
		Name: "like", Params: []types.PType{str, str}, Returns: types.Bool(), NullCall: true, MissingCall: true,
		Invoke: like,
	})
	r.Register(&Function{
		Name: "like", Params: []types.PType{str, str, str}, Returns: types.Bool(), NullCall: true, MissingCall: true,
		Invoke: like,
	})
}

// likePattern translates a LIKE pattern into an anchored regular expression.
// % matches any sequence, _ matches one character and the escape character
// makes the next character literal.
func likePattern(pattern, escape string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?s)^")
	escaped := false
	for _, c := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(c)))
			escaped = false
		case escape != "" && string(c) == escape:
			escaped = true
		case c == '%':
			b.WriteString(".*")
		case c == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if escaped {
		b.WriteString(regexp.QuoteMeta(escape))
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func registerPredicates(r *Registry) {
	r.Register(&Function{
		Name: "is_null", Params: []types.PType{types.Dynamic()}, Returns: types.Bool(),
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.Bool(args[0].IsAbsent()), nil
		},
	})
	r.Register(&Function{
		Name: "is_missing", Params: []types.PType{types.Dynamic()}, Returns: types.Bool(),
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			return datum.Bool(args[0].IsMissing()), nil
		},
	})
	r.Register(&Function{
		Name: "in_collection", Params: any2(), Returns: types.Bool(), NullCall: true, MissingCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			if !args[1].Kind().IsCollection() {
				return datum.Datum{}, dataErr(CodeTypeMismatch, "in_collection", "expected a collection, got %s", args[1].Kind())
			}
			elems, err := args[1].Elements()
			if err != nil {
				return datum.Datum{}, err
			}
			sawNull := false
			for _, e := range elems {
				if e.IsAbsent() {
					sawNull = true
					continue
				}
				if datum.Equal(args[0], e) {
					return datum.Bool(true), nil
				}
			}
			if sawNull {
				return datum.Null(types.Bool()), nil
			}
			return datum.Bool(false), nil
		},
	})
	r.Register(&Function{
		Name: "size", Params: []types.PType{types.Dynamic()}, Returns: types.BigInt(), NullCall: true, MissingCall: true,
		Invoke: func(args []datum.Datum) (datum.Datum, error) {
			d := args[0]
			switch {
			case d.Kind().IsTuple():
				return datum.BigInt(int64(d.Len())), nil
			case d.Kind().IsCollection():
				elems, err := d.Elements()
				if err != nil {
					return datum.Datum{}, err
				}
				return datum.BigInt(int64(len(elems))), nil
			}
			return datum.Datum{}, dataErr(CodeTypeMismatch, "size", "expected a collection or struct, got %s", d.Kind())
		},
	})
}
