package source

import (
	"testing"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

func TestOverlayOpsSplitsKeyChangingEdit(t *testing.T) {
	pk := []string{"id"}
	c := change.Edit(row(1, "a", 10), row(2, "a", 10))
	ops := overlayOps(c, pk)
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops for key-changing edit, got %d", len(ops))
	}
	id0, _ := ops[0].row.Get("id").AsInt()
	if !ops[0].isRemove || id0 != 1 {
		t.Fatalf("expected first op to remove old key, got %+v", ops[0])
	}
	id1, _ := ops[1].row.Get("id").AsInt()
	if ops[1].isRemove || id1 != 2 {
		t.Fatalf("expected second op to add new key, got %+v", ops[1])
	}
}

func TestOverlayOpsSameKeyEditIsNoop(t *testing.T) {
	pk := []string{"id"}
	c := change.Edit(row(1, "a", 10), row(1, "a", 20))
	ops := overlayOps(c, pk)
	if ops != nil {
		t.Fatalf("expected no scan-level op for same-key edit, got %+v", ops)
	}
}

func TestOverlayEntryVisibility(t *testing.T) {
	o := &overlayEntry{index: 2}
	cases := []struct {
		connIdx int
		want    bool
	}{
		{0, true},
		{2, true},
		{3, false},
	}
	for _, c := range cases {
		if got := o.visibleTo(c.connIdx); got != c.want {
			t.Errorf("visibleTo(%d) = %v, want %v", c.connIdx, got, c.want)
		}
	}
	var nilOverlay *overlayEntry
	if nilOverlay.visibleTo(0) {
		t.Error("nil overlay should never be visible")
	}
}

func TestApplyOverlayInsertsAtSortedPosition(t *testing.T) {
	ordering := value.Ordering{{Column: "id"}}
	rows := []value.Row{row(1, "a", 1), row(3, "c", 1)}
	ops := []overlayOp{{isRemove: false, row: row(2, "b", 1)}}
	gate := func(value.Row) bool { return true }
	out := applyOverlay(rows, ops, ordering, []string{"id"}, gate)
	mid, _ := out[1].Get("id").AsInt()
	if len(out) != 3 || mid != 2 {
		t.Fatalf("expected row 2 spliced in the middle, got %+v", out)
	}
}

func TestApplyOverlayElidesRemovedRow(t *testing.T) {
	ordering := value.Ordering{{Column: "id"}}
	rows := []value.Row{row(1, "a", 1), row(2, "b", 1)}
	ops := []overlayOp{{isRemove: true, row: row(1, "a", 1)}}
	gate := func(value.Row) bool { return true }
	out := applyOverlay(rows, ops, ordering, []string{"id"}, gate)
	remaining, _ := out[0].Get("id").AsInt()
	if len(out) != 1 || remaining != 2 {
		t.Fatalf("expected row 1 removed, got %+v", out)
	}
}

func TestApplyOverlayGateFiltersOps(t *testing.T) {
	ordering := value.Ordering{{Column: "id"}}
	rows := []value.Row{row(1, "a", 1)}
	ops := []overlayOp{{isRemove: false, row: row(2, "b", 1)}}
	gate := func(r value.Row) bool { id, _ := r.Get("id").AsInt(); return id != 2 }
	out := applyOverlay(rows, ops, ordering, []string{"id"}, gate)
	if len(out) != 1 {
		t.Fatalf("expected gated op to be skipped, got %+v", out)
	}
}

func TestApplyStartBasisAtBeforeAfter(t *testing.T) {
	ordering := value.Ordering{{Column: "id"}}
	rows := []value.Row{row(1, "a", 1), row(2, "b", 1), row(3, "c", 1)}

	at := applyStart(rows, &Start{Row: row(1, "", 0), Basis: BasisAt}, ordering)
	if len(at) != 3 {
		t.Fatalf("basis=at at first row should include all rows, got %d", len(at))
	}

	before := applyStart(rows, &Start{Row: row(1, "", 0), Basis: BasisBefore}, ordering)
	if len(before) != 3 {
		t.Fatalf("basis=before at first row should start at first row, got %d", len(before))
	}

	after := applyStart(rows, &Start{Row: row(3, "", 0), Basis: BasisAfter}, ordering)
	if len(after) != 0 {
		t.Fatalf("basis=after at last row should produce empty stream, got %d", len(after))
	}
}
