package eval

import (
	"errors"

	"github.com/roach88/pql/internal/datum"
)

// scan yields one row per element of a collection value. With indexed set
// it appends the zero-based BIGINT position of each element.
type scan struct {
	lifecycle
	expr    Expression
	mode    Mode
	indexed bool
	lenient bool

	it  datum.Iterator
	pos int64
}

// NewScan returns a relation over the elements of the collection expr
// evaluates to. In strict mode a non-collection value is a type error; in
// permissive mode it is scanned as a one-element bag and MISSING as an
// empty one.
func NewScan(expr Expression, mode Mode) Relation {
	return &scan{expr: expr, mode: mode}
}

// NewScanIndexed is NewScan with a second, positional column.
func NewScanIndexed(expr Expression, mode Mode) Relation {
	return &scan{expr: expr, mode: mode, indexed: true}
}

// NewIterate returns the permissive scan in every mode: a collection yields
// its elements, MISSING yields nothing and any other value a single row.
func NewIterate(expr Expression) Relation {
	return &scan{expr: expr, lenient: true}
}

func (s *scan) Open(env *Env) error {
	if err := s.begin(); err != nil {
		return err
	}
	v, err := s.expr.Eval(env)
	if err != nil {
		return err
	}
	if !v.IsAbsent() && v.Kind().IsCollection() {
		s.it, err = v.Iterate()
		return err
	}
	if !s.lenient && s.mode == ModeStrict {
		return typeErr("scan", "a collection", v.Kind())
	}
	if v.IsMissing() {
		s.it = datum.SliceIterator(nil)
	} else {
		s.it = datum.SliceIterator([]datum.Datum{v})
	}
	return nil
}

func (s *scan) Next() (Record, bool, error) {
	if err := s.ready(); err != nil {
		return nil, false, err
	}
	v, ok, err := s.it.Next()
	if err != nil || !ok {
		return nil, false, err
	}
	if s.indexed {
		row := Record{v, datum.BigInt(s.pos)}
		s.pos++
		return row, true, nil
	}
	return Record{v}, true, nil
}

func (s *scan) Close() error {
	first, err := s.finish()
	if first && s.it != nil {
		return errors.Join(err, s.it.Close())
	}
	return err
}

// unpivot yields (value, name) for every field of a tuple value.
type unpivot struct {
	lifecycle
	expr Expression

	fields []datum.Field
	pos    int
}

// NewUnpivot returns a relation over the fields of the tuple expr evaluates
// to. A non-tuple value v is treated as {'_1': v}; MISSING yields no rows.
func NewUnpivot(expr Expression) Relation {
	return &unpivot{expr: expr}
}

func (u *unpivot) Open(env *Env) error {
	if err := u.begin(); err != nil {
		return err
	}
	v, err := u.expr.Eval(env)
	if err != nil {
		return err
	}
	switch {
	case v.IsMissing():
	case !v.IsNull() && v.Kind().IsTuple():
		u.fields = v.Fields()
	default:
		u.fields = []datum.Field{datum.NewField("_1", v)}
	}
	return nil
}

func (u *unpivot) Next() (Record, bool, error) {
	if err := u.ready(); err != nil {
		return nil, false, err
	}
	if u.pos >= len(u.fields) {
		return nil, false, nil
	}
	f := u.fields[u.pos]
	u.pos++
	return Record{f.Value, datum.String(f.Name)}, true, nil
}

func (u *unpivot) Close() error {
	_, err := u.finish()
	return err
}

// values yields fixed rows. It backs VALUES lists and the tests.
type values struct {
	lifecycle
	rows []Record
	pos  int
}

// NewValues returns a relation over a fixed set of rows.
func NewValues(rows ...Record) Relation {
	return &values{rows: rows}
}

func (v *values) Open(*Env) error { return v.begin() }

func (v *values) Next() (Record, bool, error) {
	if err := v.ready(); err != nil {
		return nil, false, err
	}
	if v.pos >= len(v.rows) {
		return nil, false, nil
	}
	r := v.rows[v.pos]
	v.pos++
	return r, true, nil
}

func (v *values) Close() error {
	_, err := v.finish()
	return err
}
