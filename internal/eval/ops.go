package eval

import (
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

type filter struct {
	lifecycle
	input     Relation
	predicate Expression
	mode      Mode
	env       *Env
}

// NewFilter passes the input rows for which predicate is TRUE. NULL and
// MISSING drop the row; any other non-boolean is a type error in strict
// mode and drops the row in permissive mode.
func NewFilter(input Relation, predicate Expression, mode Mode) Relation {
	return &filter{input: input, predicate: predicate, mode: mode}
}

func (f *filter) Open(env *Env) error {
	if err := f.begin(); err != nil {
		return err
	}
	f.env = env
	return f.openChild(f.input, env)
}

func (f *filter) Next() (Record, bool, error) {
	if err := f.ready(); err != nil {
		return nil, false, err
	}
	for {
		row, ok, err := f.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		v, err := f.predicate.Eval(f.env.Push(row))
		if err != nil {
			return nil, false, err
		}
		t, err := truthOf("WHERE", v)
		if err != nil {
			if f.mode == ModePermissive {
				continue
			}
			return nil, false, err
		}
		if t == 1 {
			return row, true, nil
		}
	}
}

func (f *filter) Close() error {
	_, err := f.finish()
	return err
}

type project struct {
	lifecycle
	input Relation
	exprs []Expression
	env   *Env
}

// NewProject computes one output column per expression.
func NewProject(input Relation, exprs ...Expression) Relation {
	return &project{input: input, exprs: exprs}
}

func (p *project) Open(env *Env) error {
	if err := p.begin(); err != nil {
		return err
	}
	p.env = env
	return p.openChild(p.input, env)
}

func (p *project) Next() (Record, bool, error) {
	if err := p.ready(); err != nil {
		return nil, false, err
	}
	row, ok, err := p.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	scope := p.env.Push(row)
	out := make(Record, len(p.exprs))
	for i, e := range p.exprs {
		if out[i], err = e.Eval(scope); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func (p *project) Close() error {
	_, err := p.finish()
	return err
}

// evalCount evaluates a LIMIT or OFFSET operand. It must be a non-negative
// exact integer.
func evalCount(where string, e Expression, env *Env) (int64, error) {
	v, err := e.Eval(env)
	if err != nil {
		return 0, err
	}
	if v.IsAbsent() {
		return 0, typeErr(where, "a non-negative integer", types.KindUnknown)
	}
	k := v.Kind()
	if !k.IsExactInteger() || k == types.KindNumeric {
		return 0, typeErr(where, "a non-negative integer", k)
	}
	n := v.Int64()
	if n < 0 {
		return 0, typeErr(where, "a non-negative integer", k)
	}
	return n, nil
}

type limit struct {
	lifecycle
	input Relation
	count Expression
	left  int64
}

// NewLimit passes at most count rows. count is evaluated once, at Open.
func NewLimit(input Relation, count Expression) Relation {
	return &limit{input: input, count: count}
}

func (l *limit) Open(env *Env) error {
	if err := l.begin(); err != nil {
		return err
	}
	n, err := evalCount("LIMIT", l.count, env)
	if err != nil {
		return err
	}
	l.left = n
	return l.openChild(l.input, env)
}

func (l *limit) Next() (Record, bool, error) {
	if err := l.ready(); err != nil {
		return nil, false, err
	}
	if l.left <= 0 {
		return nil, false, nil
	}
	row, ok, err := l.input.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	l.left--
	return row, true, nil
}

func (l *limit) Close() error {
	_, err := l.finish()
	return err
}

type offset struct {
	lifecycle
	input Relation
	count Expression
	skip  int64
}

// NewOffset skips the first count rows. count is evaluated once, at Open.
func NewOffset(input Relation, count Expression) Relation {
	return &offset{input: input, count: count}
}

func (o *offset) Open(env *Env) error {
	if err := o.begin(); err != nil {
		return err
	}
	n, err := evalCount("OFFSET", o.count, env)
	if err != nil {
		return err
	}
	o.skip = n
	return o.openChild(o.input, env)
}

func (o *offset) Next() (Record, bool, error) {
	if err := o.ready(); err != nil {
		return nil, false, err
	}
	for o.skip > 0 {
		_, ok, err := o.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		o.skip--
	}
	return o.input.Next()
}

func (o *offset) Close() error {
	_, err := o.finish()
	return err
}

type distinct struct {
	lifecycle
	input Relation
	seen  map[string]struct{}
}

// NewDistinct removes duplicate rows, keeping first occurrences in input
// order.
func NewDistinct(input Relation) Relation {
	return &distinct{input: input, seen: make(map[string]struct{})}
}

func (d *distinct) Open(env *Env) error {
	if err := d.begin(); err != nil {
		return err
	}
	return d.openChild(d.input, env)
}

func (d *distinct) Next() (Record, bool, error) {
	if err := d.ready(); err != nil {
		return nil, false, err
	}
	for {
		row, ok, err := d.input.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		k := row.key()
		if _, dup := d.seen[k]; dup {
			continue
		}
		d.seen[k] = struct{}{}
		return row, true, nil
	}
}

func (d *distinct) Close() error {
	_, err := d.finish()
	return err
}

type with struct {
	lifecycle
	elements []Expression
	body     Relation
}

// NewWith evaluates elements once, at Open, and opens body with their
// values pushed as a new row scope.
func NewWith(body Relation, elements ...Expression) Relation {
	return &with{elements: elements, body: body}
}

func (w *with) Open(env *Env) error {
	if err := w.begin(); err != nil {
		return err
	}
	scope := make(Record, len(w.elements))
	for i, e := range w.elements {
		v, err := e.Eval(env)
		if err != nil {
			return err
		}
		// Lazy subquery values are run once here, not once per reference.
		if scope[i], err = datum.Materialize(v); err != nil {
			return err
		}
	}
	return w.openChild(w.body, env.Push(scope))
}

func (w *with) Next() (Record, bool, error) {
	if err := w.ready(); err != nil {
		return nil, false, err
	}
	return w.body.Next()
}

func (w *with) Close() error {
	_, err := w.finish()
	return err
}
