package eval

import (
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
)

// Measure is a compiled aggregate call.
type Measure struct {
	Agg      *fn.Aggregation
	Args     []Expression
	Distinct bool
}

type group struct {
	keys Record
	accs []fn.Accumulator
	seen []map[string]struct{} // per DISTINCT measure
}

// aggregate is a hash aggregation. The whole input is consumed at Open;
// groups are emitted in the order their first row was seen.
type aggregate struct {
	lifecycle
	input    Relation
	groups   []Expression
	measures []Measure

	out []Record
	pos int
}

// NewAggregate groups input by the values of groups and folds measures
// per group. Output rows are the group values followed by the measure
// values. Group keys compare with datum.Equal; NULL and MISSING share a
// group. Without groups exactly one row is produced, even for no input.
func NewAggregate(input Relation, groups []Expression, measures []Measure) Relation {
	return &aggregate{input: input, groups: groups, measures: measures}
}

func (a *aggregate) newGroup(keys Record) *group {
	g := &group{keys: keys, accs: make([]fn.Accumulator, len(a.measures)), seen: make([]map[string]struct{}, len(a.measures))}
	for i, m := range a.measures {
		g.accs[i] = m.Agg.Accumulator()
		if m.Distinct {
			g.seen[i] = make(map[string]struct{})
		}
	}
	return g
}

func (a *aggregate) Open(env *Env) error {
	if err := a.begin(); err != nil {
		return err
	}
	if err := a.openChild(a.input, env); err != nil {
		return err
	}
	index := make(map[string]*group)
	var order []*group
	for {
		row, ok, err := a.input.Next()
		if err != nil {
			return a.abort(err)
		}
		if !ok {
			break
		}
		scope := env.Push(row)
		keys := make(Record, len(a.groups))
		for i, e := range a.groups {
			if keys[i], err = e.Eval(scope); err != nil {
				return a.abort(err)
			}
		}
		k := keys.key()
		g, found := index[k]
		if !found {
			g = a.newGroup(keys)
			index[k] = g
			order = append(order, g)
		}
		if err := a.fold(g, scope); err != nil {
			return a.abort(err)
		}
	}
	if len(order) == 0 && len(a.groups) == 0 {
		order = append(order, a.newGroup(nil))
	}
	a.out = make([]Record, 0, len(order))
	for _, g := range order {
		row := make(Record, 0, len(g.keys)+len(g.accs))
		row = append(row, g.keys...)
		for _, acc := range g.accs {
			v, err := acc.Value()
			if err != nil {
				return a.abort(err)
			}
			row = append(row, v)
		}
		a.out = append(a.out, row)
	}
	return nil
}

func (a *aggregate) fold(g *group, scope *Env) error {
	for i, m := range a.measures {
		args := make([]datum.Datum, len(m.Args))
		for j, e := range m.Args {
			v, err := e.Eval(scope)
			if err != nil {
				return err
			}
			args[j] = v
		}
		if m.Distinct {
			k := Record(args).key()
			if _, dup := g.seen[i][k]; dup {
				continue
			}
			g.seen[i][k] = struct{}{}
		}
		if err := g.accs[i].Next(args); err != nil {
			return err
		}
	}
	return nil
}

func (a *aggregate) Next() (Record, bool, error) {
	if err := a.ready(); err != nil {
		return nil, false, err
	}
	if a.pos >= len(a.out) {
		return nil, false, nil
	}
	r := a.out[a.pos]
	a.pos++
	return r, true, nil
}

func (a *aggregate) Close() error {
	_, err := a.finish()
	return err
}
