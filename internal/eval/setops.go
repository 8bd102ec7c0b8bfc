package eval

// SetOp selects a set operator.
type SetOp int

const (
	SetUnion SetOp = iota
	SetIntersect
	SetExcept
)

func (o SetOp) String() string {
	switch o {
	case SetIntersect:
		return "INTERSECT"
	case SetExcept:
		return "EXCEPT"
	}
	return "UNION"
}

// setop implements UNION, INTERSECT and EXCEPT over rows compared with
// datum.Equal. Left rows come first, in input order.
//
// INTERSECT ALL keeps min(m, n) copies of a row occurring m times on the
// left and n times on the right; EXCEPT ALL keeps max(m-n, 0). The
// distinct forms keep at most one copy.
type setop struct {
	lifecycle
	left, right Relation
	op          SetOp
	all         bool

	counts   map[string]int // right-hand multiplicities
	seen     map[string]struct{}
	leftDone bool
}

// NewSetOp returns the set operator op over left and right.
func NewSetOp(op SetOp, all bool, left, right Relation) Relation {
	return &setop{left: left, right: right, op: op, all: all, seen: make(map[string]struct{})}
}

func (s *setop) Open(env *Env) error {
	if err := s.begin(); err != nil {
		return err
	}
	if err := s.openChild(s.left, env); err != nil {
		return err
	}
	if err := s.openChild(s.right, env); err != nil {
		return s.abort(err)
	}
	if s.op == SetUnion {
		return nil
	}
	s.counts = make(map[string]int)
	for {
		row, ok, err := s.right.Next()
		if err != nil {
			return s.abort(err)
		}
		if !ok {
			return nil
		}
		s.counts[row.key()]++
	}
}

// fresh reports whether a distinct operator has not yet emitted k.
func (s *setop) fresh(k string) bool {
	if s.all {
		return true
	}
	if _, dup := s.seen[k]; dup {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

func (s *setop) Next() (Record, bool, error) {
	if err := s.ready(); err != nil {
		return nil, false, err
	}
	for !s.leftDone {
		row, ok, err := s.left.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			s.leftDone = true
			break
		}
		k := row.key()
		switch s.op {
		case SetUnion:
			if s.fresh(k) {
				return row, true, nil
			}
		case SetIntersect:
			if s.counts[k] > 0 && s.fresh(k) {
				s.counts[k]--
				return row, true, nil
			}
		case SetExcept:
			if s.counts[k] > 0 {
				if s.all {
					s.counts[k]--
				}
				continue
			}
			if s.fresh(k) {
				return row, true, nil
			}
		}
	}
	if s.op != SetUnion {
		return nil, false, nil
	}
	for {
		row, ok, err := s.right.Next()
		if err != nil || !ok {
			return nil, false, err
		}
		if s.fresh(row.key()) {
			return row, true, nil
		}
	}
}

func (s *setop) Close() error {
	_, err := s.finish()
	return err
}
