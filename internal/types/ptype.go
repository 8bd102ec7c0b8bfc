package types

import (
	"fmt"
	"strings"
)

// UnsupportedOperationError is raised (via panic) when a type-parameter
// accessor is called on a kind that does not carry that parameter.
type UnsupportedOperationError struct {
	Kind     Kind
	Accessor string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported for type kind %s", e.Accessor, e.Kind)
}

func unsupported(k Kind, accessor string) {
	panic(&UnsupportedOperationError{Kind: k, Accessor: accessor})
}

// Try runs f and converts an UnsupportedOperationError panic into an error.
// Any other panic is re-raised.
func Try(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if uoe, ok := r.(*UnsupportedOperationError); ok {
				err = uoe
				return
			}
			panic(r)
		}
	}()
	f()
	return nil
}

// Field is a named, typed member of a STRUCT or ROW type.
// Field names are not required to be unique for open structs.
type Field struct {
	Name string
	Type PType
}

// F is a shorthand for Field.
func F(name string, t PType) Field {
	return Field{Name: name, Type: t}
}

// PType is an immutable static type descriptor.
//
// Construct PTypes with the package constructors (Decimal, Varchar, Bag,
// Row, ...). The zero value is DYNAMIC.
type PType struct {
	kind      Kind
	precision int
	scale     int
	length    int
	elem      *PType
	fields    []Field
	closed    bool
}

// Kind returns the kind of the type.
func (t PType) Kind() Kind {
	return t.kind
}

// Precision returns the precision of DECIMAL, TIME[Z] and TIMESTAMP[Z] types.
// It panics with *UnsupportedOperationError for every other kind.
func (t PType) Precision() int {
	switch t.kind {
	case KindDecimal, KindTime, KindTimeZ, KindTimestamp, KindTimestampZ:
		return t.precision
	}
	unsupported(t.kind, "Precision")
	return 0
}

// Scale returns the scale of a DECIMAL type.
// It panics with *UnsupportedOperationError for every other kind.
func (t PType) Scale() int {
	if t.kind != KindDecimal {
		unsupported(t.kind, "Scale")
	}
	return t.scale
}

// Length returns the maximum length of CHAR, VARCHAR, BLOB and CLOB types.
// It panics with *UnsupportedOperationError for every other kind.
func (t PType) Length() int {
	switch t.kind {
	case KindChar, KindVarchar, KindBlob, KindClob:
		return t.length
	}
	unsupported(t.kind, "Length")
	return 0
}

// Element returns the element type of BAG, LIST and SEXP types.
// It panics with *UnsupportedOperationError for every other kind.
func (t PType) Element() PType {
	if !t.kind.IsCollection() {
		unsupported(t.kind, "Element")
	}
	if t.elem == nil {
		return Dynamic()
	}
	return *t.elem
}

// Fields returns a copy of the fields of a ROW or STRUCT type. An open STRUCT
// returns nil. It panics with *UnsupportedOperationError for every other kind.
func (t PType) Fields() []Field {
	if !t.kind.IsTuple() {
		unsupported(t.kind, "Fields")
	}
	if t.fields == nil {
		return nil
	}
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// IsClosed reports whether a tuple type has a known, complete field list.
// ROW is always closed.
func (t PType) IsClosed() bool {
	return t.kind == KindRow || (t.kind == KindStruct && t.closed)
}

// Equal reports structural equality.
func (t PType) Equal(o PType) bool {
	if t.kind != o.kind || t.precision != o.precision || t.scale != o.scale ||
		t.length != o.length || t.closed != o.closed {
		return false
	}
	if (t.elem == nil) != (o.elem == nil) {
		return false
	}
	if t.elem != nil && !t.elem.Equal(*o.elem) {
		return false
	}
	if len(t.fields) != len(o.fields) {
		return false
	}
	for i := range t.fields {
		if t.fields[i].Name != o.fields[i].Name || !t.fields[i].Type.Equal(o.fields[i].Type) {
			return false
		}
	}
	return true
}

// String renders the type in SQL-like notation, e.g. DECIMAL(10,2) or
// BAG(ROW(a INTEGER, b STRING)).
func (t PType) String() string {
	switch t.kind {
	case KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.precision, t.scale)
	case KindChar, KindVarchar, KindBlob, KindClob:
		return fmt.Sprintf("%s(%d)", t.kind, t.length)
	case KindTime, KindTimeZ, KindTimestamp, KindTimestampZ:
		return fmt.Sprintf("%s(%d)", t.kind, t.precision)
	case KindBag, KindList, KindSexp:
		return fmt.Sprintf("%s(%s)", t.kind, t.Element())
	case KindStruct, KindRow:
		if t.kind == KindStruct && !t.closed {
			return "STRUCT"
		}
		parts := make([]string, len(t.fields))
		for i, f := range t.fields {
			parts[i] = f.Name + " " + f.Type.String()
		}
		return fmt.Sprintf("%s(%s)", t.kind, strings.Join(parts, ", "))
	default:
		return t.kind.String()
	}
}

// Default precisions used when a constructor is called without parameters.
const (
	DefaultDecimalPrecision = 38
	DefaultDecimalScale     = 0
	DefaultTimePrecision    = 6
	DefaultCharLength       = 1
	DefaultVarcharLength    = 1 << 30
	DefaultLobLength        = 1 << 30
)

// Dynamic returns the DYNAMIC type.
func Dynamic() PType { return PType{kind: KindDynamic} }

// Bool returns the BOOL type.
func Bool() PType { return PType{kind: KindBool} }

// TinyInt returns the TINYINT type.
func TinyInt() PType { return PType{kind: KindTinyInt} }

// SmallInt returns the SMALLINT type.
func SmallInt() PType { return PType{kind: KindSmallInt} }

// Integer returns the INTEGER type.
func Integer() PType { return PType{kind: KindInteger} }

// BigInt returns the BIGINT type.
func BigInt() PType { return PType{kind: KindBigInt} }

// Numeric returns the arbitrary-precision integer type.
func Numeric() PType { return PType{kind: KindNumeric} }

// Decimal returns DECIMAL(precision, scale).
func Decimal(precision, scale int) PType {
	return PType{kind: KindDecimal, precision: precision, scale: scale}
}

// DecimalDefault returns DECIMAL with the default precision and scale.
func DecimalDefault() PType {
	return Decimal(DefaultDecimalPrecision, DefaultDecimalScale)
}

// Real returns the REAL type.
func Real() PType { return PType{kind: KindReal} }

// Double returns the DOUBLE type.
func Double() PType { return PType{kind: KindDouble} }

// Char returns CHAR(length).
func Char(length int) PType { return PType{kind: KindChar, length: length} }

// Varchar returns VARCHAR(length).
func Varchar(length int) PType { return PType{kind: KindVarchar, length: length} }

// String returns the unbounded STRING type.
func String() PType { return PType{kind: KindString} }

// Symbol returns the SYMBOL type.
func Symbol() PType { return PType{kind: KindSymbol} }

// Blob returns BLOB(length).
func Blob(length int) PType { return PType{kind: KindBlob, length: length} }

// Clob returns CLOB(length).
func Clob(length int) PType { return PType{kind: KindClob, length: length} }

// Date returns the DATE type.
func Date() PType { return PType{kind: KindDate} }

// Time returns TIME(precision).
func Time(precision int) PType { return PType{kind: KindTime, precision: precision} }

// TimeZ returns TIME(precision) WITH TIME ZONE.
func TimeZ(precision int) PType { return PType{kind: KindTimeZ, precision: precision} }

// Timestamp returns TIMESTAMP(precision).
func Timestamp(precision int) PType { return PType{kind: KindTimestamp, precision: precision} }

// TimestampZ returns TIMESTAMP(precision) WITH TIME ZONE.
func TimestampZ(precision int) PType { return PType{kind: KindTimestampZ, precision: precision} }

// Bag returns BAG(elem).
func Bag(elem PType) PType { return PType{kind: KindBag, elem: &elem} }

// List returns LIST(elem).
func List(elem PType) PType { return PType{kind: KindList, elem: &elem} }

// Sexp returns SEXP(elem).
func Sexp(elem PType) PType { return PType{kind: KindSexp, elem: &elem} }

// Struct returns the open STRUCT type with no known fields.
func Struct() PType { return PType{kind: KindStruct} }

// StructOf returns a closed STRUCT with the given fields. Duplicate names are
// permitted.
func StructOf(fields ...Field) PType {
	return PType{kind: KindStruct, fields: copyFields(fields), closed: true}
}

// Row returns a closed ROW with ordered fields.
func Row(fields ...Field) PType {
	return PType{kind: KindRow, fields: copyFields(fields)}
}

// Unknown returns the UNKNOWN type.
func Unknown() PType { return PType{kind: KindUnknown} }

// Of returns the parameterless type for a kind, using default parameters for
// kinds that require them.
func Of(k Kind) PType {
	switch k {
	case KindDecimal:
		return DecimalDefault()
	case KindChar:
		return Char(DefaultCharLength)
	case KindVarchar:
		return Varchar(DefaultVarcharLength)
	case KindBlob:
		return Blob(DefaultLobLength)
	case KindClob:
		return Clob(DefaultLobLength)
	case KindTime, KindTimeZ, KindTimestamp, KindTimestampZ:
		return PType{kind: k, precision: DefaultTimePrecision}
	case KindBag:
		return Bag(Dynamic())
	case KindList:
		return List(Dynamic())
	case KindSexp:
		return Sexp(Dynamic())
	default:
		return PType{kind: k}
	}
}

func copyFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}
