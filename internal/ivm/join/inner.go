package join

import (
	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/operator"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// InnerJoin maintains index_a and index_b, multimaps from join-key value to
// the rows currently present on that side, so that a delta arriving on
// either side can be resolved against the other side's live rows without a
// source rescan (§4.3.1).
type InnerJoin struct {
	Args   JoinArgs
	Output operator.Output

	indexA map[string][]value.Row
	indexB map[string][]value.Row
}

func NewInnerJoin(args JoinArgs, out operator.Output) *InnerJoin {
	return &InnerJoin{
		Args:    args,
		Output:  out,
		indexA:  make(map[string][]value.Row),
		indexB:  make(map[string][]value.Row),
	}
}

// AInput returns the input side this join should be connected to as the
// downstream output of the "a" source/operator.
func (j *InnerJoin) AInput() operator.Output {
	return sideInput{push: func(c change.Change) error { return j.pushSide(sideA, c) }}
}

// BInput is AInput's counterpart for the "b" side.
func (j *InnerJoin) BInput() operator.Output {
	return sideInput{push: func(c change.Change) error { return j.pushSide(sideB, c) }}
}

func (j *InnerJoin) pushSide(s side, c change.Change) error {
	for _, w := range change.ToWeighted(c, nil) {
		if err := j.apply(s, w); err != nil {
			return err
		}
	}
	return nil
}

// apply resolves one weighted delta against the opposite side's index,
// emitting one joined delta per match, then updates this side's own index
// (§4.3.1's "drain the opposite multimap, then update this side").
func (j *InnerJoin) apply(s side, w change.Weighted) error {
	var own, other map[string][]value.Row
	var ownCol string
	if s == sideA {
		own, other = j.indexA, j.indexB
		ownCol = j.Args.AJoinCol
	} else {
		own, other = j.indexB, j.indexA
		ownCol = j.Args.BJoinCol
	}

	key := joinKey(w.Row.Get(ownCol))
	for _, otherRow := range other[key] {
		var node *change.Node
		if s == sideA {
			node = buildJoinResult(w.Row, otherRow, j.Args)
		} else {
			node = buildJoinResult(otherRow, w.Row, j.Args)
		}
		var out change.Change
		if w.Mult > 0 {
			out = change.Add(node)
		} else {
			out = change.Remove(node)
		}
		if err := j.Output.Push(out); err != nil {
			return err
		}
	}

	if w.Mult > 0 {
		own[key] = append(own[key], w.Row)
	} else {
		own[key] = removeRow(own[key], w.Row)
	}
	return nil
}
