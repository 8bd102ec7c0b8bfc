package testutil

import (
	"errors"
	"sync/atomic"

	"github.com/roach88/pql/internal/eval"
)

// ErrInjected is the default error returned by failing relations.
var ErrInjected = errors.New("injected failure")

// Relation is a scripted eval.Relation that records how it was driven.
//
// It yields Rows in order. OpenErr, when set, makes Open fail; NextErr makes
// Next fail once FailAfter rows have been produced. Opens and Closes count
// every call, so tests can assert that an operator closed its children
// exactly once.
type Relation struct {
	Rows      []eval.Record
	OpenErr   error
	NextErr   error
	FailAfter int
	CloseErr  error

	Opens  atomic.Int32
	Closes atomic.Int32

	pos int
}

// Rows returns a relation over rows.
func Rows(rows ...eval.Record) *Relation {
	return &Relation{Rows: rows}
}

// FailingOpen returns a relation whose Open fails with err, or ErrInjected
// when err is nil.
func FailingOpen(err error) *Relation {
	if err == nil {
		err = ErrInjected
	}
	return &Relation{OpenErr: err}
}

// Factory returns an eval.Factory that always hands out r. Use it only where
// the factory is called once.
func (r *Relation) Factory() eval.Factory {
	return func() eval.Relation { return r }
}

func (r *Relation) Open(*eval.Env) error {
	r.Opens.Add(1)
	return r.OpenErr
}

func (r *Relation) Next() (eval.Record, bool, error) {
	if r.NextErr != nil && r.pos >= r.FailAfter {
		return nil, false, r.NextErr
	}
	if r.pos >= len(r.Rows) {
		return nil, false, nil
	}
	row := r.Rows[r.pos]
	r.pos++
	return row, true, nil
}

func (r *Relation) Close() error {
	r.Closes.Add(1)
	return r.CloseErr
}
