package source

import "github.com/zoravur/ivm-engine/internal/ivm/change"

// Cursor is a lazy, single-pass iterator over a Fetch's result set. It
// captures its result snapshot (and the source's overlay, if any) at
// creation time and invalidates if the source is pushed to before the
// cursor is exhausted (§4.1, §9 "Coroutine/iterator control flow").
type Cursor struct {
	source     *Source
	generation uint64
	nodes      []*change.Node
	pos        int
}

// Next returns the next node, or ok=false when the cursor is exhausted. If
// the source was pushed to since the cursor was created and unread items
// remain, Next fails fast with a stale-iterator error rather than risk
// returning inconsistent rows.
func (cur *Cursor) Next() (*change.Node, bool, error) {
	if cur.pos >= len(cur.nodes) {
		return nil, false, nil
	}
	if cur.source.currentGeneration() != cur.generation {
		return nil, false, errStaleIterator()
	}
	n := cur.nodes[cur.pos]
	cur.pos++
	return n, true, nil
}

// Rows drains the cursor into a slice, for callers that don't need
// suspension between rows (most tests, and operators that must see the
// whole batch before deciding what to emit).
func (cur *Cursor) Rows() ([]*change.Node, error) {
	var out []*change.Node
	for {
		n, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, n)
	}
}
