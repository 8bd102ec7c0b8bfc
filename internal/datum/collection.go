package datum

import (
	"errors"
	"strings"

	"github.com/roach88/pql/internal/types"
)

// Iterator yields the elements of a collection datum.
//
// Next returns ok=false once the collection is exhausted. Close must be called
// when the caller stops iterating, exhausted or not; it is safe to call more
// than once.
type Iterator interface {
	Next() (Datum, bool, error)
	Close() error
}

// OpenFunc starts a fresh iteration of a lazy collection. Every call must
// return an independent iterator.
type OpenFunc func() (Iterator, error)

type collection struct {
	elems []Datum
	open  OpenFunc // nil for materialized collections
}

// Field is a named member of a STRUCT or ROW datum.
type Field struct {
	Name  string
	Value Datum
}

// NewField is a shorthand for Field.
func NewField(name string, value Datum) Field {
	return Field{Name: name, Value: value}
}

// Bag returns a materialized BAG datum. The element type is the common type of
// elems, or DYNAMIC when they differ.
func Bag(elems ...Datum) Datum {
	return Collection(types.Bag(commonType(elems)), elems)
}

// List returns a materialized LIST datum.
func List(elems ...Datum) Datum {
	return Collection(types.List(commonType(elems)), elems)
}

// Sexp returns a materialized SEXP datum.
func Sexp(elems ...Datum) Datum {
	return Collection(types.Sexp(commonType(elems)), elems)
}

// Collection returns a materialized collection datum of type t, which must be
// a BAG, LIST or SEXP type. elems is copied.
func Collection(t types.PType, elems []Datum) Datum {
	if !t.Kind().IsCollection() {
		panic(&types.UnsupportedOperationError{Kind: t.Kind(), Accessor: "Collection"})
	}
	c := &collection{elems: append([]Datum(nil), elems...)}
	return Datum{typ: t, v: c}
}

// Lazy returns a collection datum of type t whose elements are produced on
// demand by open. Each call to Iterate calls open again, so a lazy
// collection may be iterated more than once.
func Lazy(t types.PType, open OpenFunc) Datum {
	if !t.Kind().IsCollection() {
		panic(&types.UnsupportedOperationError{Kind: t.Kind(), Accessor: "Lazy"})
	}
	return Datum{typ: t, v: &collection{open: open}}
}

func commonType(elems []Datum) types.PType {
	if len(elems) == 0 {
		return types.Dynamic()
	}
	t := elems[0].Type()
	for _, e := range elems[1:] {
		if !e.Type().Equal(t) {
			return types.Dynamic()
		}
	}
	return t
}

// IsLazy reports whether d is a collection whose elements are not
// materialized.
func (d Datum) IsLazy() bool {
	c, ok := d.v.(*collection)
	return ok && c.open != nil
}

// Iterate starts an iteration over the elements of a collection datum.
func (d Datum) Iterate() (Iterator, error) {
	d.check("Iterate", d.Kind().IsCollection())
	c := d.v.(*collection)
	if c.open != nil {
		return c.open()
	}
	return &sliceIterator{elems: c.elems}, nil
}

// Elements materializes the elements of a collection datum.
func (d Datum) Elements() ([]Datum, error) {
	d.check("Elements", d.Kind().IsCollection())
	c := d.v.(*collection)
	if c.open == nil {
		return append([]Datum(nil), c.elems...), nil
	}
	it, err := c.open()
	if err != nil {
		return nil, err
	}
	var out []Datum
	for {
		e, ok, err := it.Next()
		if err != nil {
			return nil, errors.Join(err, it.Close())
		}
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out, it.Close()
}

// Materialize returns d with every nested lazy collection replaced by its
// materialized elements. Iteration errors are returned.
func Materialize(d Datum) (Datum, error) {
	if d.IsAbsent() {
		return d, nil
	}
	switch {
	case d.Kind().IsCollection():
		elems, err := d.Elements()
		if err != nil {
			return Datum{}, err
		}
		for i := range elems {
			if elems[i], err = Materialize(elems[i]); err != nil {
				return Datum{}, err
			}
		}
		return Datum{typ: d.typ, v: &collection{elems: elems}}, nil
	case d.Kind().IsTuple():
		fields := d.Fields()
		for i := range fields {
			v, err := Materialize(fields[i].Value)
			if err != nil {
				return Datum{}, err
			}
			fields[i].Value = v
		}
		return Datum{typ: d.typ, v: fields}, nil
	}
	return d, nil
}

type sliceIterator struct {
	elems []Datum
	pos   int
}

func (it *sliceIterator) Next() (Datum, bool, error) {
	if it.pos >= len(it.elems) {
		return Datum{}, false, nil
	}
	e := it.elems[it.pos]
	it.pos++
	return e, true, nil
}

func (it *sliceIterator) Close() error { return nil }

// SliceIterator returns an Iterator over elems.
func SliceIterator(elems []Datum) Iterator {
	return &sliceIterator{elems: elems}
}

// Struct returns a STRUCT datum. Field order is kept and duplicate names are
// allowed. MISSING fields are dropped.
func Struct(fields ...Field) Datum {
	kept := make([]Field, 0, len(fields))
	tfs := make([]types.Field, 0, len(fields))
	for _, f := range fields {
		if f.Value.IsMissing() {
			continue
		}
		kept = append(kept, f)
		tfs = append(tfs, types.F(f.Name, f.Value.Type()))
	}
	return Datum{typ: types.StructOf(tfs...), v: kept}
}

// Row returns a ROW datum with positional fields.
func Row(fields ...Field) Datum {
	kept := append([]Field(nil), fields...)
	tfs := make([]types.Field, len(fields))
	for i, f := range fields {
		tfs[i] = types.F(f.Name, f.Value.Type())
	}
	return Datum{typ: types.Row(tfs...), v: kept}
}

// Fields returns a copy of the fields of a STRUCT or ROW datum.
func (d Datum) Fields() []Field {
	d.check("Fields", d.Kind().IsTuple())
	return append([]Field(nil), d.v.([]Field)...)
}

// Get returns the first field named name. Matching is case-sensitive.
func (d Datum) Get(name string) (Datum, bool) {
	d.check("Get", d.Kind().IsTuple())
	for _, f := range d.v.([]Field) {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Datum{}, false
}

// GetInsensitive returns the first field whose name matches name ignoring
// case.
func (d Datum) GetInsensitive(name string) (Datum, bool) {
	d.check("GetInsensitive", d.Kind().IsTuple())
	for _, f := range d.v.([]Field) {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return Datum{}, false
}

// Len returns the number of fields of a tuple or elements of a materialized
// collection. It panics for lazy collections; use Elements instead.
func (d Datum) Len() int {
	switch {
	case d.Kind().IsTuple():
		d.check("Len", true)
		return len(d.v.([]Field))
	case d.Kind().IsCollection():
		d.check("Len", !d.IsLazy())
		return len(d.v.(*collection).elems)
	}
	d.check("Len", false)
	return 0
}

// At returns the i-th element of a materialized LIST or SEXP, or the i-th
// field value of a ROW or STRUCT. ok is false when i is out of range.
func (d Datum) At(i int) (Datum, bool) {
	switch d.Kind() {
	case types.KindList, types.KindSexp:
		d.check("At", !d.IsLazy())
		elems := d.v.(*collection).elems
		if i < 0 || i >= len(elems) {
			return Datum{}, false
		}
		return elems[i], true
	case types.KindRow, types.KindStruct:
		d.check("At", true)
		fields := d.v.([]Field)
		if i < 0 || i >= len(fields) {
			return Datum{}, false
		}
		return fields[i].Value, true
	}
	d.check("At", false)
	return Datum{}, false
}
