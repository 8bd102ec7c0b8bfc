package eval

import (
	"errors"
)

// Relation is a physical relational operator: a pull-based row iterator.
//
// LIFECYCLE:
//
//	Created --Open--> Open --Next*--> Exhausted --Close--> Closed
//
// INVARIANTS:
//   - Open is called at most once; a second call returns ErrReopen.
//   - Next after exhaustion keeps returning ok=false.
//   - Close is idempotent and closes every child the relation opened,
//     exactly once, joining their errors without masking the first one.
//   - When Open fails, the relation has already released whatever it
//     acquired before the failure. Close remains safe to call.
//
// A Relation is single-use. Anything that needs to run a subtree more than
// once (a lateral join, a lazy SELECT value, a second execution) holds a
// Factory instead and builds a fresh Relation each time.
type Relation interface {
	Open(env *Env) error
	Next() (Record, bool, error)
	Close() error
}

// Factory builds a fresh physical relation tree.
type Factory func() Relation

// Mode selects the runtime error policy.
type Mode int

const (
	// ModeStrict propagates data errors to the caller.
	ModeStrict Mode = iota
	// ModePermissive turns data errors into MISSING at the operator that
	// raised them.
	ModePermissive
)

func (m Mode) String() string {
	if m == ModePermissive {
		return "permissive"
	}
	return "strict"
}

// lifecycle is embedded by every relation to enforce the state machine.
type lifecycle struct {
	opened bool
	closed bool
	// owned lists the children opened by this relation, in open order.
	owned []Relation
}

func (l *lifecycle) begin() error {
	if l.opened {
		return ErrReopen
	}
	l.opened = true
	return nil
}

func (l *lifecycle) ready() error {
	if !l.opened || l.closed {
		return ErrNotOpen
	}
	return nil
}

// openChild opens r and records it for closing. A child whose Open failed
// is not recorded.
func (l *lifecycle) openChild(r Relation, env *Env) error {
	if err := r.Open(env); err != nil {
		return err
	}
	l.owned = append(l.owned, r)
	return nil
}

// abort closes the children opened so far and returns err joined with any
// close errors. err stays first so errors.Is and errors.As find it.
func (l *lifecycle) abort(err error) error {
	return errors.Join(err, l.closeChildren())
}

func (l *lifecycle) closeChildren() error {
	var errs []error
	for i := len(l.owned) - 1; i >= 0; i-- {
		errs = append(errs, l.owned[i].Close())
	}
	l.owned = nil
	return errors.Join(errs...)
}

// finish marks the relation closed and closes its children. It returns
// false when the relation was already closed.
func (l *lifecycle) finish() (bool, error) {
	if l.closed {
		return false, nil
	}
	l.closed = true
	return true, l.closeChildren()
}

// drain reads every remaining row of an open relation.
func drain(r Relation) ([]Record, error) {
	var out []Record
	for {
		row, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, row)
	}
}

// Collect opens r under env, reads every row and closes it.
func Collect(r Relation, env *Env) (rows []Record, err error) {
	defer func() {
		err = errors.Join(err, r.Close())
	}()
	if err := r.Open(env); err != nil {
		return nil, err
	}
	return drain(r)
}
