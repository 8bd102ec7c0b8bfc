package types

import "strings"

// RelType is the derived type of a relational operator: an ordered field
// list plus whether the operator guarantees its output order.
type RelType struct {
	fields  []Field
	ordered bool
}

// NewRelType builds a RelType. The field slice is copied.
func NewRelType(ordered bool, fields ...Field) RelType {
	return RelType{fields: copyFields(fields), ordered: ordered}
}

// Fields returns a copy of the field list.
func (r RelType) Fields() []Field {
	return copyFields(r.fields)
}

// Field returns the i-th field.
func (r RelType) Field(i int) Field {
	return r.fields[i]
}

// Size returns the number of fields.
func (r RelType) Size() int {
	return len(r.fields)
}

// IsOrdered reports whether rows are produced in a guaranteed order.
func (r RelType) IsOrdered() bool {
	return r.ordered
}

// WithOrdered returns a copy of r with the ordered flag set to ordered.
func (r RelType) WithOrdered(ordered bool) RelType {
	return RelType{fields: r.fields, ordered: ordered}
}

// Concat returns the fields of r followed by the fields of o. The result is
// unordered.
func (r RelType) Concat(o RelType) RelType {
	fields := make([]Field, 0, len(r.fields)+len(o.fields))
	fields = append(fields, r.fields...)
	fields = append(fields, o.fields...)
	return RelType{fields: fields}
}

// Row returns the ROW type with the same fields.
func (r RelType) Row() PType {
	return Row(r.fields...)
}

// String renders the field list, e.g. (a INTEGER, b STRING) ordered.
func (r RelType) String() string {
	parts := make([]string, len(r.fields))
	for i, f := range r.fields {
		parts[i] = f.Name + " " + f.Type.String()
	}
	s := "(" + strings.Join(parts, ", ") + ")"
	if r.ordered {
		s += " ordered"
	}
	return s
}
