package reduce

import (
	"testing"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

type capture struct {
	changes []change.Change
}

func (c *capture) Push(ch change.Change) error {
	c.changes = append(c.changes, ch)
	return nil
}

func countReducer(key []value.Value, members []value.Row) value.Row {
	return value.Row{"team": key[0], "count": value.Int(int64(len(members)))}
}

func memberRow(team string, id int64) value.Row {
	return value.Row{"team": value.String(team), "id": value.Int(id)}
}

func TestReduceEmitsAndUpdatesCount(t *testing.T) {
	out := &capture{}
	r := New([]string{"team"}, countReducer, out)

	if err := r.Push(change.Add(&change.Node{Row: memberRow("red", 1)})); err != nil {
		t.Fatal(err)
	}
	count0, _ := out.changes[0].Node.Row.Get("count").AsInt()
	if len(out.changes) != 1 || count0 != 1 {
		t.Fatalf("expected count=1 add, got %+v", out.changes)
	}

	out.changes = nil
	if err := r.Push(change.Add(&change.Node{Row: memberRow("red", 2)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 2 {
		t.Fatalf("expected retract old count + assert new count, got %+v", out.changes)
	}
	if out.changes[0].Kind != change.KindRemove || out.changes[1].Kind != change.KindAdd {
		t.Fatalf("expected retract-then-assert ordering, got %+v", out.changes)
	}
	if count1, _ := out.changes[1].Node.Row.Get("count").AsInt(); count1 != 2 {
		t.Fatalf("expected updated count=2, got %+v", out.changes[1])
	}
}

func TestReduceRetractsWhenGroupEmptied(t *testing.T) {
	out := &capture{}
	r := New([]string{"team"}, countReducer, out)

	_ = r.Push(change.Add(&change.Node{Row: memberRow("red", 1)}))
	out.changes = nil

	if err := r.Push(change.Remove(&change.Node{Row: memberRow("red", 1)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 1 || out.changes[0].Kind != change.KindRemove {
		t.Fatalf("expected retraction when group emptied, got %+v", out.changes)
	}
}

func TestReduceElidesWhenOutputUnchanged(t *testing.T) {
	out := &capture{}
	// A reducer that always returns a constant regardless of membership
	// exercises the elision path: adding a second member changes the
	// group's row set but not its reduced output.
	constReducer := func(key []value.Value, members []value.Row) value.Row {
		return value.Row{"team": key[0], "nonempty": value.Bool(true)}
	}
	r := New([]string{"team"}, constReducer, out)

	_ = r.Push(change.Add(&change.Node{Row: memberRow("red", 1)}))
	out.changes = nil

	if err := r.Push(change.Add(&change.Node{Row: memberRow("red", 2)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 0 {
		t.Fatalf("expected no emission when reduced output is unchanged, got %+v", out.changes)
	}
}
