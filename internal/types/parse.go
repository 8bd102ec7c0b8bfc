package types

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseError reports a malformed type string.
type ParseError struct {
	Input  string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse type %q at offset %d: %s", e.Input, e.Offset, e.Reason)
}

var kindAliases = map[string]Kind{
	"INT":     KindInteger,
	"BOOLEAN": KindBool,
	"FLOAT":   KindDouble,
	"TUPLE":   KindStruct,
	"ANY":     KindDynamic,
}

// Parse reads a type in the notation PType.String produces. Kind names are
// case-insensitive and parameters may be omitted, in which case the
// defaults of Of apply:
//
//	INTEGER
//	DECIMAL(10,2)
//	BAG(STRUCT(k INTEGER, v STRING))
func Parse(s string) (PType, error) {
	p := &typeParser{in: s}
	t, err := p.parseType()
	if err != nil {
		return PType{}, err
	}
	p.skipSpace()
	if p.pos != len(p.in) {
		return PType{}, p.fail("unexpected trailing input")
	}
	return t, nil
}

// MustParse is Parse for types known to be valid. It panics on error.
func MustParse(s string) PType {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	in  string
	pos int
}

func (p *typeParser) fail(format string, args ...any) error {
	return &ParseError{Input: p.in, Offset: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.in) && unicode.IsSpace(rune(p.in[p.pos])) {
		p.pos++
	}
}

func (p *typeParser) peek(c byte) bool {
	p.skipSpace()
	return p.pos < len(p.in) && p.in[p.pos] == c
}

func (p *typeParser) expect(c byte) error {
	if !p.peek(c) {
		return p.fail("expected %q", c)
	}
	p.pos++
	return nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// ident reads a bare word or a double-quoted name.
func (p *typeParser) ident() (string, error) {
	p.skipSpace()
	if p.pos < len(p.in) && p.in[p.pos] == '"' {
		end := strings.IndexByte(p.in[p.pos+1:], '"')
		if end < 0 {
			return "", p.fail("unterminated quoted name")
		}
		name := p.in[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return name, nil
	}
	start := p.pos
	for p.pos < len(p.in) && isIdentByte(p.in[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", p.fail("expected a name")
	}
	return p.in[start:p.pos], nil
}

func (p *typeParser) number() (int, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.in) && p.in[p.pos] >= '0' && p.in[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, p.fail("expected a number")
	}
	return strconv.Atoi(p.in[start:p.pos])
}

func (p *typeParser) parseType() (PType, error) {
	word, err := p.ident()
	if err != nil {
		return PType{}, err
	}
	name := strings.ToUpper(word)
	k, ok := ParseKind(name)
	if !ok {
		if k, ok = kindAliases[name]; !ok {
			return PType{}, p.fail("unknown type %s", word)
		}
	}
	if !p.peek('(') {
		return Of(k), nil
	}
	p.pos++

	var t PType
	switch k {
	case KindDecimal:
		prec, err := p.number()
		if err != nil {
			return PType{}, err
		}
		scale := DefaultDecimalScale
		if p.peek(',') {
			p.pos++
			if scale, err = p.number(); err != nil {
				return PType{}, err
			}
		}
		if scale > prec {
			return PType{}, p.fail("scale %d exceeds precision %d", scale, prec)
		}
		t = Decimal(prec, scale)
	case KindChar, KindVarchar, KindBlob, KindClob,
		KindTime, KindTimeZ, KindTimestamp, KindTimestampZ:
		n, err := p.number()
		if err != nil {
			return PType{}, err
		}
		t = Of(k)
		if k.IsDateTime() {
			t.precision = n
		} else {
			t.length = n
		}
	case KindBag, KindList, KindSexp:
		elem, err := p.parseType()
		if err != nil {
			return PType{}, err
		}
		t = PType{kind: k, elem: &elem}
	case KindStruct, KindRow:
		var fields []Field
		for !p.peek(')') {
			if len(fields) > 0 {
				if err := p.expect(','); err != nil {
					return PType{}, err
				}
			}
			name, err := p.ident()
			if err != nil {
				return PType{}, err
			}
			ft, err := p.parseType()
			if err != nil {
				return PType{}, err
			}
			fields = append(fields, F(name, ft))
		}
		if k == KindRow {
			t = Row(fields...)
		} else {
			t = StructOf(fields...)
		}
	default:
		return PType{}, p.fail("type %s takes no parameters", k)
	}
	if err := p.expect(')'); err != nil {
		return PType{}, err
	}
	return t, nil
}
