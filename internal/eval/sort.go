package eval

import (
	"slices"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/plan"
)

// SortKey is a compiled collation.
type SortKey struct {
	Expr  Expression
	Order plan.Order
	Nulls plan.Nulls
}

type keyed struct {
	row  Record
	keys []datum.Datum
}

// compareKeys orders two key tuples under specs. NULL and MISSING are
// placed by Nulls regardless of Order.
func compareKeys(specs []SortKey, a, b []datum.Datum) int {
	for i, s := range specs {
		x, y := a[i], b[i]
		xa, ya := x.IsAbsent(), y.IsAbsent()
		switch {
		case xa && ya:
			continue
		case xa || ya:
			c := 1
			if xa {
				c = -1
			}
			if s.Nulls == plan.NullsLast {
				c = -c
			}
			return c
		}
		c := datum.Compare(x, y)
		if s.Order == plan.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func evalKeys(specs []SortKey, env *Env) ([]datum.Datum, error) {
	keys := make([]datum.Datum, len(specs))
	for i, s := range specs {
		v, err := s.Expr.Eval(env)
		if err != nil {
			return nil, err
		}
		keys[i] = v
	}
	return keys, nil
}

type sorter struct {
	lifecycle
	input Relation
	specs []SortKey

	rows []keyed
	pos  int
}

// NewSort orders the input by specs. The sort is stable: rows with equal
// keys keep their input order.
func NewSort(input Relation, specs ...SortKey) Relation {
	return &sorter{input: input, specs: specs}
}

func (s *sorter) Open(env *Env) error {
	if err := s.begin(); err != nil {
		return err
	}
	if err := s.openChild(s.input, env); err != nil {
		return err
	}
	for {
		row, ok, err := s.input.Next()
		if err != nil {
			return s.abort(err)
		}
		if !ok {
			break
		}
		keys, err := evalKeys(s.specs, env.Push(row))
		if err != nil {
			return s.abort(err)
		}
		s.rows = append(s.rows, keyed{row: row, keys: keys})
	}
	slices.SortStableFunc(s.rows, func(a, b keyed) int {
		return compareKeys(s.specs, a.keys, b.keys)
	})
	return nil
}

func (s *sorter) Next() (Record, bool, error) {
	if err := s.ready(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	r := s.rows[s.pos].row
	s.pos++
	return r, true, nil
}

func (s *sorter) Close() error {
	_, err := s.finish()
	return err
}
