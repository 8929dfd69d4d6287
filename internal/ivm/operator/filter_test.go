package operator

import (
	"testing"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

type captureOutput struct {
	changes []change.Change
}

func (c *captureOutput) Push(ch change.Change) error {
	c.changes = append(c.changes, ch)
	return nil
}

func qtyRow(id, qty int64) value.Row {
	return value.Row{"id": value.Int(id), "qty": value.Int(qty)}
}

func TestFilterDropsNonMatchingAdd(t *testing.T) {
	cap := &captureOutput{}
	f := NewFilter(value.Simple{Left: value.ColumnOperand("qty"), Op: value.OpGt, Right: value.LiteralOperand(value.Int(5))}, nil, cap)
	if err := f.Push(change.Add(&change.Node{Row: qtyRow(1, 3)})); err != nil {
		t.Fatal(err)
	}
	if len(cap.changes) != 0 {
		t.Fatalf("expected add below threshold to be dropped, got %d", len(cap.changes))
	}
	if err := f.Push(change.Add(&change.Node{Row: qtyRow(2, 10)})); err != nil {
		t.Fatal(err)
	}
	if len(cap.changes) != 1 {
		t.Fatalf("expected matching add to pass, got %d", len(cap.changes))
	}
}

func TestFilterEditCrossingBoundaryBecomesRemoveOrAdd(t *testing.T) {
	cap := &captureOutput{}
	f := NewFilter(value.Simple{Left: value.ColumnOperand("qty"), Op: value.OpGt, Right: value.LiteralOperand(value.Int(5))}, nil, cap)

	if err := f.Push(change.Edit(qtyRow(1, 10), qtyRow(1, 2))); err != nil {
		t.Fatal(err)
	}
	if len(cap.changes) != 1 || cap.changes[0].Kind != change.KindRemove {
		t.Fatalf("expected edit leaving match set to become a remove, got %+v", cap.changes)
	}

	cap.changes = nil
	if err := f.Push(change.Edit(qtyRow(1, 2), qtyRow(1, 10))); err != nil {
		t.Fatal(err)
	}
	if len(cap.changes) != 1 || cap.changes[0].Kind != change.KindAdd {
		t.Fatalf("expected edit entering match set to become an add, got %+v", cap.changes)
	}

	cap.changes = nil
	if err := f.Push(change.Edit(qtyRow(1, 10), qtyRow(1, 20))); err != nil {
		t.Fatal(err)
	}
	if len(cap.changes) != 1 || cap.changes[0].Kind != change.KindEdit {
		t.Fatalf("expected edit staying in match set to pass through as edit, got %+v", cap.changes)
	}
}
