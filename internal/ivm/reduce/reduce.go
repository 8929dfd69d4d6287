// Package reduce implements the group-by/aggregate operator of the stream
// layer: it keeps every member row of each group in an in-memory index and
// re-runs the reducer function on exactly the groups touched by an
// incoming delta, emitting a retract/assert pair only when the group's
// output actually changed (§4.4).
package reduce

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/operator"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// Func computes one group's output row from its current member rows and
// the group-key values that identify it.
type Func func(key []value.Value, members []value.Row) value.Row

// Reduce groups incoming rows by GroupBy, maintaining in_index (the member
// rows of every group currently non-empty) and out_index (the last emitted
// output row per group), so it can re-derive only the groups a delta
// actually touches instead of recomputing every group on every push.
type Reduce struct {
	GroupBy  []string
	Reducer  Func
	Output   operator.Output

	inIndex  map[string][]value.Row
	outIndex map[string]value.Row
}

func New(groupBy []string, reducer Func, out operator.Output) *Reduce {
	return &Reduce{
		GroupBy:  groupBy,
		Reducer:  reducer,
		Output:   out,
		inIndex:  make(map[string][]value.Row),
		outIndex: make(map[string]value.Row),
	}
}

func (r *Reduce) Push(c change.Change) error {
	for _, w := range change.ToWeighted(c, nil) {
		if err := r.apply(w); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reduce) groupKey(row value.Row) (string, []value.Value) {
	vals := make([]value.Value, len(r.GroupBy))
	for i, col := range r.GroupBy {
		vals[i] = row.Get(col)
	}
	cols := make([]string, len(r.GroupBy))
	copy(cols, r.GroupBy)
	sort.Strings(cols)
	key := ""
	for _, col := range cols {
		key += fmt.Sprintf("%s=%s,", col, row.Get(col).String())
	}
	return key, vals
}

func rowIdentity(r value.Row) string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	out := ""
	for _, c := range cols {
		out += fmt.Sprintf("%s=%s,", c, r.Get(c).String())
	}
	return out
}

func removeRow(rows []value.Row, target value.Row) []value.Row {
	id := rowIdentity(target)
	for i, r := range rows {
		if rowIdentity(r) == id {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}

// apply touches exactly one group: updates its membership, re-runs the
// reducer, and emits a retract/assert pair only when the recomputed output
// differs from what was last emitted for that group (§4.4's elision rule).
func (r *Reduce) apply(w change.Weighted) error {
	key, keyVals := r.groupKey(w.Row)

	if w.Mult > 0 {
		r.inIndex[key] = append(r.inIndex[key], w.Row)
	} else {
		r.inIndex[key] = removeRow(r.inIndex[key], w.Row)
	}

	members := r.inIndex[key]
	prev, hadPrev := r.outIndex[key]

	if len(members) == 0 {
		delete(r.inIndex, key)
		if hadPrev {
			delete(r.outIndex, key)
			return r.Output.Push(change.Remove(&change.Node{Row: prev}))
		}
		return nil
	}

	next := r.Reducer(keyVals, members)

	if hadPrev && reflect.DeepEqual(prev, next) {
		return nil
	}

	if hadPrev {
		if err := r.Output.Push(change.Remove(&change.Node{Row: prev})); err != nil {
			return err
		}
	}
	r.outIndex[key] = next
	return r.Output.Push(change.Add(&change.Node{Row: next}))
}
