package eval

import (
	"errors"

	"github.com/roach88/pql/internal/plan"
	"github.com/roach88/pql/internal/types"
)

// join is a nested-loop join. The right input is read completely at Open;
// the left input is streamed.
type join struct {
	lifecycle
	left, right Relation
	condition   Expression
	kind        plan.JoinType
	mode        Mode
	leftNulls   Record
	rightNulls  Record
	env         *Env

	rights       []Record
	rightMatched []bool
	cur          Record // current left row
	hasCur       bool
	curMatched   bool
	pos          int  // next right row to test against cur
	leftDone     bool // left exhausted; draining unmatched right rows
}

// NewJoin returns a nested-loop join. leftType and rightType give the
// NULL padding for outer joins.
func NewJoin(left, right Relation, condition Expression, kind plan.JoinType, mode Mode, leftType, rightType types.RelType) Relation {
	return &join{
		left: left, right: right, condition: condition, kind: kind, mode: mode,
		leftNulls: Nulls(leftType), rightNulls: Nulls(rightType),
	}
}

func (j *join) Open(env *Env) error {
	if err := j.begin(); err != nil {
		return err
	}
	j.env = env
	if err := j.openChild(j.left, env); err != nil {
		return err
	}
	if err := j.openChild(j.right, env); err != nil {
		return j.abort(err)
	}
	rows, err := drain(j.right)
	if err != nil {
		return j.abort(err)
	}
	j.rights = rows
	j.rightMatched = make([]bool, len(rows))
	return nil
}

func (j *join) matches(row Record) (bool, error) {
	v, err := j.condition.Eval(j.env.Push(row))
	if err != nil {
		return false, err
	}
	t, err := truthOf("join condition", v)
	if err != nil {
		if j.mode == ModePermissive {
			return false, nil
		}
		return false, err
	}
	return t == 1, nil
}

func (j *join) Next() (Record, bool, error) {
	if err := j.ready(); err != nil {
		return nil, false, err
	}
	for !j.leftDone {
		if !j.hasCur {
			row, ok, err := j.left.Next()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				j.leftDone = true
				j.pos = 0
				break
			}
			j.cur, j.hasCur, j.curMatched, j.pos = row, true, false, 0
		}
		for j.pos < len(j.rights) {
			i := j.pos
			j.pos++
			out := j.cur.Concat(j.rights[i])
			ok, err := j.matches(out)
			if err != nil {
				return nil, false, err
			}
			if ok {
				j.curMatched = true
				j.rightMatched[i] = true
				return out, true, nil
			}
		}
		cur, matched := j.cur, j.curMatched
		j.cur, j.hasCur = nil, false
		if !matched && (j.kind == plan.JoinLeft || j.kind == plan.JoinFull) {
			return cur.Concat(j.rightNulls), true, nil
		}
	}
	if j.kind == plan.JoinRight || j.kind == plan.JoinFull {
		for j.pos < len(j.rights) {
			i := j.pos
			j.pos++
			if !j.rightMatched[i] {
				return j.leftNulls.Concat(j.rights[i]), true, nil
			}
		}
	}
	return nil, false, nil
}

func (j *join) Close() error {
	_, err := j.finish()
	return err
}

// correlate is a lateral join: the right side is rebuilt from its factory
// and opened once per left row, with the left row pushed as a scope.
type correlate struct {
	lifecycle
	left       Relation
	right      Factory
	kind       plan.JoinType
	rightNulls Record
	env        *Env

	cur        Record
	curRight   Relation
	curMatched bool
}

// NewCorrelate returns a lateral join. Only INNER and LEFT are supported;
// the compiler rejects the others.
func NewCorrelate(left Relation, right Factory, kind plan.JoinType, rightType types.RelType) Relation {
	return &correlate{left: left, right: right, kind: kind, rightNulls: Nulls(rightType)}
}

func (c *correlate) Open(env *Env) error {
	if err := c.begin(); err != nil {
		return err
	}
	c.env = env
	return c.openChild(c.left, env)
}

func (c *correlate) closeRight() error {
	if c.curRight == nil {
		return nil
	}
	err := c.curRight.Close()
	c.curRight = nil
	return err
}

func (c *correlate) Next() (Record, bool, error) {
	if err := c.ready(); err != nil {
		return nil, false, err
	}
	for {
		if c.curRight == nil {
			row, ok, err := c.left.Next()
			if err != nil || !ok {
				return nil, false, err
			}
			right := c.right()
			if err := right.Open(c.env.Push(row)); err != nil {
				return nil, false, errors.Join(err, right.Close())
			}
			c.cur, c.curRight, c.curMatched = row, right, false
		}
		r, ok, err := c.curRight.Next()
		if err != nil {
			return nil, false, err
		}
		if ok {
			c.curMatched = true
			return c.cur.Concat(r), true, nil
		}
		matched := c.curMatched
		if err := c.closeRight(); err != nil {
			return nil, false, err
		}
		if !matched && c.kind == plan.JoinLeft {
			return c.cur.Concat(c.rightNulls), true, nil
		}
	}
}

func (c *correlate) Close() error {
	first, err := c.finish()
	if !first {
		return nil
	}
	return errors.Join(c.closeRight(), err)
}
