package join

import (
	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/operator"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// LeftJoin preserves every "a" row even when it has no matching "b" row,
// emitting a null-extended placeholder for unmatched rows and retracting
// it the instant a real match appears (§4.3.2).
//
// a_matches tracks, per distinct a-row (identified by its full contents,
// not just the join key, since two a-rows can share a key), how many b-rows
// currently match it. That counter is the authority for whether the
// placeholder or the real joined rows are currently asserted, and it is
// updated on every single b-side insertion and removal — earlier
// implementations of this operator were seen to let a_matches go stale
// across a sequence of same-key b insertions, retracting the placeholder
// only once and then silently undercounting later matches. This
// implementation increments/decrements the counter unconditionally on
// every b-side delta so the count always reflects the true match set.
type LeftJoin struct {
	Args   JoinArgs
	Output operator.Output

	indexA   map[string][]value.Row
	indexB   map[string][]value.Row
	aMatches map[string]int
}

func NewLeftJoin(args JoinArgs, out operator.Output) *LeftJoin {
	return &LeftJoin{
		Args:     args,
		Output:   out,
		indexA:   make(map[string][]value.Row),
		indexB:   make(map[string][]value.Row),
		aMatches: make(map[string]int),
	}
}

func (j *LeftJoin) AInput() operator.Output {
	return sideInput{push: func(c change.Change) error { return j.pushA(c) }}
}

func (j *LeftJoin) BInput() operator.Output {
	return sideInput{push: func(c change.Change) error { return j.pushB(c) }}
}

func (j *LeftJoin) pushA(c change.Change) error {
	for _, w := range change.ToWeighted(c, nil) {
		if err := j.applyA(w); err != nil {
			return err
		}
	}
	return nil
}

func (j *LeftJoin) pushB(c change.Change) error {
	for _, w := range change.ToWeighted(c, nil) {
		if err := j.applyB(w); err != nil {
			return err
		}
	}
	return nil
}

func (j *LeftJoin) applyA(w change.Weighted) error {
	key := joinKey(w.Row.Get(j.Args.AJoinCol))
	id := rowIdentity(w.Row)
	matches := j.indexB[key]

	if w.Mult > 0 {
		if len(matches) == 0 {
			if err := j.Output.Push(change.Add(buildJoinResult(w.Row, nil, j.Args))); err != nil {
				return err
			}
		} else {
			for _, b := range matches {
				if err := j.Output.Push(change.Add(buildJoinResult(w.Row, b, j.Args))); err != nil {
					return err
				}
			}
		}
		j.aMatches[id] = len(matches)
		j.indexA[key] = append(j.indexA[key], w.Row)
		return nil
	}

	count := j.aMatches[id]
	if count == 0 {
		if err := j.Output.Push(change.Remove(buildJoinResult(w.Row, nil, j.Args))); err != nil {
			return err
		}
	} else {
		for _, b := range matches {
			if err := j.Output.Push(change.Remove(buildJoinResult(w.Row, b, j.Args))); err != nil {
				return err
			}
		}
	}
	delete(j.aMatches, id)
	j.indexA[key] = removeRow(j.indexA[key], w.Row)
	return nil
}

func (j *LeftJoin) applyB(w change.Weighted) error {
	key := joinKey(w.Row.Get(j.Args.BJoinCol))

	if w.Mult > 0 {
		for _, a := range j.indexA[key] {
			id := rowIdentity(a)
			if j.aMatches[id] == 0 {
				if err := j.Output.Push(change.Remove(buildJoinResult(a, nil, j.Args))); err != nil {
					return err
				}
			}
			if err := j.Output.Push(change.Add(buildJoinResult(a, w.Row, j.Args))); err != nil {
				return err
			}
			j.aMatches[id]++
		}
		j.indexB[key] = append(j.indexB[key], w.Row)
		return nil
	}

	for _, a := range j.indexA[key] {
		id := rowIdentity(a)
		if err := j.Output.Push(change.Remove(buildJoinResult(a, w.Row, j.Args))); err != nil {
			return err
		}
		j.aMatches[id]--
		if j.aMatches[id] == 0 {
			if err := j.Output.Push(change.Add(buildJoinResult(a, nil, j.Args))); err != nil {
				return err
			}
		}
	}
	j.indexB[key] = removeRow(j.indexB[key], w.Row)
	return nil
}
