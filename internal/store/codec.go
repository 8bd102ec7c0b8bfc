package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/eval"
	"github.com/roach88/pql/internal/types"
)

// member is one key/value pair of a decoded JSON object. Objects keep
// their members in document order so that STRUCT field order survives.
type member struct {
	key   string
	value any
}

type object []member

// encodeRow renders a row as JSON text.
func encodeRow(d datum.Datum) (string, error) {
	data, err := d.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	return string(data), nil
}

// decodeRow parses JSON text and converts it to a datum of type t.
func decodeRow(text string, t types.PType) (datum.Datum, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	v, err := readValue(dec)
	if err != nil {
		return datum.Datum{}, fmt.Errorf("decode row: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return datum.Datum{}, errors.New("decode row: trailing data")
	}
	return toDatum(v, t)
}

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		_, err := dec.Token()
		return arr, err
	case '{':
		obj := object{}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", tok)
			}
			v, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, member{key: key, value: v})
		}
		_, err := dec.Token()
		return obj, err
	}
	return nil, fmt.Errorf("unexpected %v", delim)
}

func toDatum(v any, t types.PType) (datum.Datum, error) {
	k := t.Kind()
	dynamic := k == types.KindDynamic || k == types.KindUnknown
	if v == nil {
		if dynamic {
			return datum.Null(types.Unknown()), nil
		}
		return datum.Null(t), nil
	}
	switch {
	case dynamic:
		return natural(v)
	case k.IsCollection():
		arr, ok := v.([]any)
		if !ok {
			return datum.Datum{}, mismatch(t, v)
		}
		elems := make([]datum.Datum, len(arr))
		for i, e := range arr {
			d, err := toDatum(e, t.Element())
			if err != nil {
				return datum.Datum{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = d
		}
		return datum.Collection(t, elems), nil
	case k.IsTuple():
		obj, ok := v.(object)
		if !ok {
			return datum.Datum{}, mismatch(t, v)
		}
		return tuple(obj, t)
	case k == types.KindBool:
		b, ok := v.(bool)
		if !ok {
			return datum.Datum{}, mismatch(t, v)
		}
		return datum.Bool(b), nil
	case k.IsNumeric():
		var text string
		switch n := v.(type) {
		case json.Number:
			text = n.String()
		case string:
			// NaN and infinities are written as strings.
			text = n
		default:
			return datum.Datum{}, mismatch(t, v)
		}
		return eval.CastValue(datum.String(text), t)
	case k == types.KindBlob:
		s, ok := v.(string)
		if !ok {
			return datum.Datum{}, mismatch(t, v)
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return datum.Datum{}, fmt.Errorf("decode %s: %w", t, err)
		}
		return datum.Blob(raw), nil
	case k.IsText(), k.IsDateTime():
		s, ok := v.(string)
		if !ok {
			return datum.Datum{}, mismatch(t, v)
		}
		return eval.CastValue(datum.String(s), t)
	}
	return datum.Datum{}, mismatch(t, v)
}

// tuple decodes an object. Fields of a closed type come first, in type
// order; members the type does not name follow in document order.
func tuple(obj object, t types.PType) (datum.Datum, error) {
	used := make([]bool, len(obj))
	var fields []datum.Field
	if t.IsClosed() {
		for _, f := range t.Fields() {
			for i, m := range obj {
				if used[i] || m.key != f.Name {
					continue
				}
				used[i] = true
				d, err := toDatum(m.value, f.Type)
				if err != nil {
					return datum.Datum{}, fmt.Errorf("[%q]: %w", m.key, err)
				}
				fields = append(fields, datum.NewField(m.key, d))
				break
			}
		}
	}
	for i, m := range obj {
		if used[i] {
			continue
		}
		d, err := natural(m.value)
		if err != nil {
			return datum.Datum{}, fmt.Errorf("[%q]: %w", m.key, err)
		}
		fields = append(fields, datum.NewField(m.key, d))
	}
	if t.Kind() == types.KindRow {
		return datum.Row(fields...), nil
	}
	return datum.Struct(fields...), nil
}

// natural decodes a value with no static type.
func natural(v any) (datum.Datum, error) {
	switch val := v.(type) {
	case nil:
		return datum.Null(types.Unknown()), nil
	case bool:
		return datum.Bool(val), nil
	case string:
		return datum.String(val), nil
	case json.Number:
		if n, err := strconv.ParseInt(val.String(), 10, 64); err == nil {
			if n >= math.MinInt32 && n <= math.MaxInt32 {
				return datum.Int(int32(n)), nil
			}
			return datum.BigInt(n), nil
		}
		dec, _, err := apd.NewFromString(val.String())
		if err != nil {
			return datum.Datum{}, fmt.Errorf("invalid number %q", val.String())
		}
		return datum.DecimalOf(dec), nil
	case []any:
		elems := make([]datum.Datum, len(val))
		for i, e := range val {
			d, err := natural(e)
			if err != nil {
				return datum.Datum{}, fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = d
		}
		return datum.List(elems...), nil
	case object:
		return tuple(val, types.Struct())
	}
	return datum.Datum{}, fmt.Errorf("unsupported JSON value %T", v)
}

func mismatch(t types.PType, v any) error {
	return fmt.Errorf("stored value %s does not fit %s", jsonKind(v), t)
}

func jsonKind(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case object:
		return "object"
	}
	return "null"
}
