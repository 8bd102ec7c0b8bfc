package eval

import (
	"encoding/binary"
	"fmt"

	"github.com/roach88/pql/internal/catalog"
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

// Record is one row flowing between relations: a fixed-width tuple of
// values, positionally aligned with the producing operator's RelType.
type Record []datum.Datum

// RecordOf returns a record holding a copy of values.
func RecordOf(values ...datum.Datum) Record {
	return append(Record(nil), values...)
}

// Concat returns a new record with the values of r followed by the values
// of o. Neither input is modified.
func (r Record) Concat(o Record) Record {
	out := make(Record, 0, len(r)+len(o))
	out = append(out, r...)
	return append(out, o...)
}

// Nulls returns a record of NULLs typed after t, used to pad outer joins.
func Nulls(t types.RelType) Record {
	out := make(Record, t.Size())
	for i := range out {
		out[i] = datum.Null(t.Field(i).Type)
	}
	return out
}

// key returns a canonical byte key for the whole record. Records that are
// equal value by value share the key.
func (r Record) key() string {
	var buf []byte
	for _, v := range r {
		k := datum.Key(v)
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)
	}
	return string(buf)
}

func (r Record) String() string {
	return fmt.Sprint([]datum.Datum(r))
}

// Env is the evaluation environment: an immutable stack of row scopes plus
// the session. Push returns a new Env and never modifies the receiver, so an
// Env may be captured by lazy values and shared freely.
type Env struct {
	parent  *Env
	row     Record
	depth   int
	session *catalog.Session
}

// NewEnv returns the root environment for one execution.
func NewEnv(session *catalog.Session) *Env {
	return &Env{session: session}
}

// Push returns a child environment with row as the innermost scope.
func (e *Env) Push(row Record) *Env {
	return &Env{parent: e, row: row, depth: e.depth + 1, session: e.session}
}

// Scope returns the row scope depth levels out from the innermost one.
func (e *Env) Scope(depth int) (Record, bool) {
	if depth < 0 || depth >= e.depth {
		return nil, false
	}
	cur := e
	for i := 0; i < depth; i++ {
		cur = cur.parent
	}
	return cur.row, true
}

// Depth returns the number of row scopes.
func (e *Env) Depth() int { return e.depth }

// Session returns the execution session.
func (e *Env) Session() *catalog.Session { return e.session }
