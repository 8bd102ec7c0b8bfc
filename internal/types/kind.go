package types

// Kind identifies the family of a PType.
//
// The set of kinds is closed. Switches over Kind should handle every value
// and treat anything else as a programming error.
type Kind int

const (
	// KindDynamic is the type of a value whose kind is only known at runtime.
	KindDynamic Kind = iota
	KindBool
	KindTinyInt
	KindSmallInt
	KindInteger
	KindBigInt
	// KindNumeric is the arbitrary-precision integer.
	KindNumeric
	KindDecimal
	KindReal
	KindDouble
	KindChar
	KindVarchar
	KindString
	KindSymbol
	KindBlob
	KindClob
	KindDate
	KindTime
	KindTimeZ
	KindTimestamp
	KindTimestampZ
	KindBag
	KindList
	KindSexp
	// KindStruct is an open, unordered tuple that allows duplicate names.
	KindStruct
	// KindRow is a closed tuple with ordered, positional fields.
	KindRow
	// KindUnknown is the type of the absent value (MISSING) and of untyped NULL.
	KindUnknown
)

var kindNames = [...]string{
	KindDynamic:    "DYNAMIC",
	KindBool:       "BOOL",
	KindTinyInt:    "TINYINT",
	KindSmallInt:   "SMALLINT",
	KindInteger:    "INTEGER",
	KindBigInt:     "BIGINT",
	KindNumeric:    "NUMERIC",
	KindDecimal:    "DECIMAL",
	KindReal:       "REAL",
	KindDouble:     "DOUBLE",
	KindChar:       "CHAR",
	KindVarchar:    "VARCHAR",
	KindString:     "STRING",
	KindSymbol:     "SYMBOL",
	KindBlob:       "BLOB",
	KindClob:       "CLOB",
	KindDate:       "DATE",
	KindTime:       "TIME",
	KindTimeZ:      "TIMEZ",
	KindTimestamp:  "TIMESTAMP",
	KindTimestampZ: "TIMESTAMPZ",
	KindBag:        "BAG",
	KindList:       "LIST",
	KindSexp:       "SEXP",
	KindStruct:     "STRUCT",
	KindRow:        "ROW",
	KindUnknown:    "UNKNOWN",
}

// String returns the SQL spelling of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "INVALID"
	}
	return kindNames[k]
}

// ParseKind maps a SQL spelling back to a Kind. Matching is exact and upper case.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// IsNumeric reports whether the kind participates in arithmetic.
func (k Kind) IsNumeric() bool {
	return NumericRank(k) >= 0
}

// IsText reports whether the kind is a character string kind.
func (k Kind) IsText() bool {
	switch k {
	case KindChar, KindVarchar, KindString, KindSymbol, KindClob:
		return true
	}
	return false
}

// IsCollection reports whether the kind is BAG, LIST or SEXP.
func (k Kind) IsCollection() bool {
	return k == KindBag || k == KindList || k == KindSexp
}

// IsTuple reports whether the kind is STRUCT or ROW.
func (k Kind) IsTuple() bool {
	return k == KindStruct || k == KindRow
}

// IsDateTime reports whether the kind is a date or time kind.
func (k Kind) IsDateTime() bool {
	switch k {
	case KindDate, KindTime, KindTimeZ, KindTimestamp, KindTimestampZ:
		return true
	}
	return false
}

// NumericRank returns the position of k in the numeric promotion lattice
//
//	TINYINT < SMALLINT < INTEGER < BIGINT < NUMERIC < DECIMAL < REAL < DOUBLE
//
// or -1 when k is not numeric.
func NumericRank(k Kind) int {
	switch k {
	case KindTinyInt:
		return 0
	case KindSmallInt:
		return 1
	case KindInteger:
		return 2
	case KindBigInt:
		return 3
	case KindNumeric:
		return 4
	case KindDecimal:
		return 5
	case KindReal:
		return 6
	case KindDouble:
		return 7
	}
	return -1
}

// CommonNumeric returns the narrowest numeric kind both operands promote to.
// The second result is false if either kind is not numeric.
func CommonNumeric(a, b Kind) (Kind, bool) {
	ra, rb := NumericRank(a), NumericRank(b)
	if ra < 0 || rb < 0 {
		return 0, false
	}
	if ra >= rb {
		return a, true
	}
	return b, true
}

// IsExactInteger reports whether the kind is one of the fixed-width or
// arbitrary-precision integer kinds.
func (k Kind) IsExactInteger() bool {
	switch k {
	case KindTinyInt, KindSmallInt, KindInteger, KindBigInt, KindNumeric:
		return true
	}
	return false
}
