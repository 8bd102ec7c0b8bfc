package eval

import (
	"slices"

	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/fn"
)

// WindowCall is a compiled window function.
type WindowCall struct {
	Fn   *fn.WindowFunction
	Args []Expression
}

type partition struct {
	rows []keyed
}

// window computes window functions over the whole input at Open.
//
// Partitions are emitted in the order their first row was seen. Within a
// partition rows are stably sorted by the collations; rows with equal sort
// keys are peers.
type window struct {
	lifecycle
	input      Relation
	partitions []Expression
	specs      []SortKey
	calls      []WindowCall

	out []Record
	pos int
}

// NewWindow returns a window relation. Output rows are the input columns
// followed by one column per call.
func NewWindow(input Relation, partitions []Expression, specs []SortKey, calls ...WindowCall) Relation {
	return &window{input: input, partitions: partitions, specs: specs, calls: calls}
}

func (w *window) Open(env *Env) error {
	if err := w.begin(); err != nil {
		return err
	}
	if err := w.openChild(w.input, env); err != nil {
		return err
	}
	parts, err := w.partition(env)
	if err != nil {
		return w.abort(err)
	}
	for _, p := range parts {
		rows, err := w.compute(p, env)
		if err != nil {
			return w.abort(err)
		}
		w.out = append(w.out, rows...)
	}
	return nil
}

func (w *window) partition(env *Env) ([]*partition, error) {
	index := make(map[string]*partition)
	var order []*partition
	for {
		row, ok, err := w.input.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		scope := env.Push(row)
		pk := make(Record, len(w.partitions))
		for i, e := range w.partitions {
			if pk[i], err = e.Eval(scope); err != nil {
				return nil, err
			}
		}
		keys, err := evalKeys(w.specs, scope)
		if err != nil {
			return nil, err
		}
		k := pk.key()
		p, found := index[k]
		if !found {
			p = &partition{}
			index[k] = p
			order = append(order, p)
		}
		p.rows = append(p.rows, keyed{row: row, keys: keys})
	}
	for _, p := range order {
		slices.SortStableFunc(p.rows, func(a, b keyed) int {
			return compareKeys(w.specs, a.keys, b.keys)
		})
	}
	return order, nil
}

func (w *window) compute(p *partition, env *Env) ([]Record, error) {
	peers := make([]int, len(p.rows))
	for i := 1; i < len(p.rows); i++ {
		peers[i] = peers[i-1]
		if compareKeys(w.specs, p.rows[i-1].keys, p.rows[i].keys) != 0 {
			peers[i]++
		}
	}
	columns := make([][]datum.Datum, len(w.calls))
	for c, call := range w.calls {
		args := make([][]datum.Datum, len(p.rows))
		for i, r := range p.rows {
			scope := env.Push(r.row)
			args[i] = make([]datum.Datum, len(call.Args))
			for j, e := range call.Args {
				v, err := e.Eval(scope)
				if err != nil {
					return nil, err
				}
				args[i][j] = v
			}
		}
		vals, err := call.Fn.Compute(fn.Partition{Args: args, Peers: peers})
		if err != nil {
			return nil, err
		}
		columns[c] = vals
	}
	out := make([]Record, len(p.rows))
	for i, r := range p.rows {
		row := make(Record, 0, len(r.row)+len(w.calls))
		row = append(row, r.row...)
		for c := range w.calls {
			row = append(row, columns[c][i])
		}
		out[i] = row
	}
	return out, nil
}

func (w *window) Next() (Record, bool, error) {
	if err := w.ready(); err != nil {
		return nil, false, err
	}
	if w.pos >= len(w.out) {
		return nil, false, nil
	}
	r := w.out[w.pos]
	w.pos++
	return r, true, nil
}

func (w *window) Close() error {
	_, err := w.finish()
	return err
}
