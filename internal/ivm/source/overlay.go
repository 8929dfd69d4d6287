package source

import (
	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// overlayEntry is the at-most-one active overlay during a push: the index
// of the connection currently being notified, and the change it is being
// notified of. It is visible to a fetch running on behalf of connection k
// iff k <= index (§4.2, GLOSSARY "Overlay").
type overlayEntry struct {
	index int
	change change.Change
}

// visibleTo reports whether this overlay should be merged into a scan
// running on behalf of the connection at position connIdx.
func (o *overlayEntry) visibleTo(connIdx int) bool {
	return o != nil && connIdx <= o.index
}

// overlayOps expands an overlay entry into the ordered add/remove
// operations a scan must apply, splitting a key-changing edit into
// remove(old) + add(new) (§4.2). A same-key edit contributes no scan-level
// operation: the stored row is still physically the old row until
// finalization, and the distinction between old and new is handled
// downstream by the operator that already received the raw Edit change.
type overlayOp struct {
	isRemove bool
	row      value.Row
}

func overlayOps(c change.Change, pk []string) []overlayOp {
	switch c.Kind {
	case change.KindAdd:
		return []overlayOp{{isRemove: false, row: c.Node.Row}}
	case change.KindRemove:
		return []overlayOp{{isRemove: true, row: c.Node.Row}}
	case change.KindEdit:
		if c.IsKeyChangingEdit(pk) {
			return []overlayOp{
				{isRemove: true, row: c.OldRow},
				{isRemove: false, row: c.NewRow},
			}
		}
		return nil
	default:
		return nil
	}
}
