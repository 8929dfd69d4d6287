// Package change defines the Change/Node types that flow between the source
// layer, the operator graph, and the view-apply layer (§3.3, §4).
package change

import "github.com/zoravur/ivm-engine/internal/ivm/value"

// Kind tags a Change variant.
type Kind uint8

const (
	KindAdd Kind = iota
	KindRemove
	KindEdit
)

// Node wraps a row together with its materialized relationship children.
// The design describes relationships as a "stream of Node"; this
// implementation materializes them eagerly at construction time (the
// operator that builds a Node — typically a join or the query compiler's
// relationship stage — already has every child in hand), which keeps the
// rest of the engine free of iterator-lifetime bookkeeping for a concern
// that isn't performance sensitive at this layer.
type Node struct {
	Row           value.Row
	Relationships map[string][]*Node
}

// Change is one of add(node) | remove(node) | edit(old_row, new_row)
// (§3.3).
type Change struct {
	Kind   Kind
	Node   *Node     // set for Add/Remove
	OldRow value.Row // set for Edit
	NewRow value.Row // set for Edit
}

func Add(n *Node) Change    { return Change{Kind: KindAdd, Node: n} }
func Remove(n *Node) Change { return Change{Kind: KindRemove, Node: n} }
func Edit(old, new value.Row) Change {
	return Change{Kind: KindEdit, OldRow: old, NewRow: new}
}

// IsKeyChangingEdit reports whether c is an edit whose old and new rows carry
// different primary-key tuples — such an edit is split at source boundaries
// into remove(old) + add(new) by the overlay machinery (§3.3, §4.2).
func (c Change) IsKeyChangingEdit(pk []string) bool {
	return c.Kind == KindEdit && !value.SameKey(c.OldRow, c.NewRow, pk)
}

// SplitEdit returns the remove(old)/add(new) pair an edit decomposes into
// when its primary key changes.
func SplitEdit(c Change) (remove, add Change) {
	return Remove(&Node{Row: c.OldRow}), Add(&Node{Row: c.NewRow})
}

// Weighted is a (row, multiplicity) delta, the representation used
// internally by join and reduce operators while they accumulate cross
// products and group reductions (§4.3, §4.4). A positive multiplicity is an
// assertion, negative a retraction.
type Weighted struct {
	Row  value.Row
	Mult int
}

// ToWeighted converts a source-level Change into the Weighted deltas it
// represents, splitting key-changing edits per pk.
func ToWeighted(c Change, pk []string) []Weighted {
	switch {
	case c.Kind == KindAdd:
		return []Weighted{{Row: c.Node.Row, Mult: 1}}
	case c.Kind == KindRemove:
		return []Weighted{{Row: c.Node.Row, Mult: -1}}
	case c.Kind == KindEdit && value.SameKey(c.OldRow, c.NewRow, pk):
		return []Weighted{{Row: c.OldRow, Mult: -1}, {Row: c.NewRow, Mult: 1}}
	case c.Kind == KindEdit:
		return []Weighted{{Row: c.OldRow, Mult: -1}, {Row: c.NewRow, Mult: 1}}
	default:
		return nil
	}
}

// FromWeighted converts a single-row delta back into a Change for handing to
// a view or to the next operator stage. Multiplicities with |mult| > 1 are
// not representable as a single Change; callers must emit one Change per
// unit of multiplicity (reduce/join deltas are expected to normalize to
// unit multiplicity at operator output boundaries per §4.3/§4.4's use of
// emitted (row, ±1) pairs).
func FromWeighted(w Weighted) Change {
	if w.Mult < 0 {
		return Remove(&Node{Row: w.Row})
	}
	return Add(&Node{Row: w.Row})
}
