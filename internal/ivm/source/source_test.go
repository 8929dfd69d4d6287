package source

import (
	"testing"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

func testSchema() Schema {
	return Schema{
		TableName: "items",
		Columns: map[string]ColumnType{
			"id":   ColInt,
			"name": ColString,
			"qty":  ColInt,
		},
		PrimaryKey: []string{"id"},
	}
}

func row(id int64, name string, qty int64) value.Row {
	return value.Row{
		"id":   value.Int(id),
		"name": value.String(name),
		"qty":  value.Int(qty),
	}
}

type recordingOutput struct {
	changes []change.Change
}

func (r *recordingOutput) Push(c change.Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func TestPushInsertUpdateDeleteRoundTrip(t *testing.T) {
	s := New(testSchema())
	conn := s.Connect(value.Ordering{{Column: "id"}}, nil)
	out := &recordingOutput{}
	conn.SetOutput(out)

	if err := s.Push(change.Add(&change.Node{Row: row(1, "a", 10)})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Push(change.Edit(row(1, "a", 10), row(1, "a", 20))); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := s.Push(change.Remove(&change.Node{Row: row(1, "a", 20)})); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if len(out.changes) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(out.changes))
	}
	if len(s.primary.rows) != 0 {
		t.Fatalf("expected primary index empty after round trip, got %d rows", len(s.primary.rows))
	}
}

func TestPushDuplicateAddRejected(t *testing.T) {
	s := New(testSchema())
	if err := s.Push(change.Add(&change.Node{Row: row(1, "a", 10)})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Push(change.Add(&change.Node{Row: row(1, "a", 10)})); err == nil {
		t.Fatal("expected duplicate add to be rejected")
	}
}

func TestPushRemoveMissingRejected(t *testing.T) {
	s := New(testSchema())
	if err := s.Push(change.Remove(&change.Node{Row: row(1, "a", 10)})); err == nil {
		t.Fatal("expected remove of missing row to be rejected")
	}
}

func TestFetchConstraintOnEmptySource(t *testing.T) {
	s := New(testSchema())
	conn := s.Connect(value.Ordering{{Column: "id"}}, nil)
	cur, err := conn.Fetch(Request{Constraint: &value.Constraint{Column: "missing", Value: value.Int(1)}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	nodes, err := cur.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected empty stream, got %d nodes", len(nodes))
	}
}

func TestFetchDescendingSortAfterConstraint(t *testing.T) {
	s := New(testSchema())
	for i := int64(1); i <= 3; i++ {
		if err := s.Push(change.Add(&change.Node{Row: row(i, "a", 100)})); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	conn := s.Connect(value.Ordering{{Column: "id", Desc: true}}, nil)
	cur, err := conn.Fetch(Request{Constraint: &value.Constraint{Column: "qty", Value: value.Int(100)}})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	nodes, err := cur.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	first, _ := nodes[0].Row.Get("id").AsInt()
	last, _ := nodes[2].Row.Get("id").AsInt()
	if first != 3 || last != 1 {
		t.Fatalf("expected descending order, got %v", nodes)
	}
}

func TestStaleIteratorAfterPush(t *testing.T) {
	s := New(testSchema())
	for i := int64(1); i <= 2; i++ {
		if err := s.Push(change.Add(&change.Node{Row: row(i, "a", 100)})); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	conn := s.Connect(value.Ordering{{Column: "id"}}, nil)
	cur, err := conn.Fetch(Request{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, _, err := cur.Next(); err != nil {
		t.Fatalf("first next: %v", err)
	}
	if err := s.Push(change.Add(&change.Node{Row: row(3, "a", 100)})); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, _, err := cur.Next(); err == nil {
		t.Fatal("expected stale iterator error")
	}
}

func TestSecondaryIndexRefcountDropsOnDisconnect(t *testing.T) {
	s := New(testSchema())
	if err := s.Push(change.Add(&change.Node{Row: row(1, "a", 10)})); err != nil {
		t.Fatalf("add: %v", err)
	}
	conn := s.Connect(value.Ordering{{Column: "name"}}, nil)
	if _, err := conn.Fetch(Request{}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(s.indexes) != 1 {
		t.Fatalf("expected one secondary index, got %d", len(s.indexes))
	}
	conn.Destroy()
	if len(s.indexes) != 0 {
		t.Fatalf("expected secondary index dropped after disconnect, got %d", len(s.indexes))
	}
}

// TestOverlayIsolationBetweenConnections checks §4.2's cross-connection
// visibility rule: while connection at position i is being notified of a
// push, a fetch run on behalf of a connection at position <= i sees the
// overlay, but a fetch for a connection at a higher position does not (it
// hasn't been notified yet, so it must still observe the pre-push state).
func TestOverlayIsolationBetweenConnections(t *testing.T) {
	s := New(testSchema())
	if err := s.Push(change.Add(&change.Node{Row: row(1, "a", 10)})); err != nil {
		t.Fatalf("add: %v", err)
	}

	earlyConn := s.Connect(value.Ordering{{Column: "id"}}, nil) // position 0
	lateConn := s.Connect(value.Ordering{{Column: "id"}}, nil)  // position 1

	earlyProbe := &fetchOnPushOutput{conn: lateConn, t: t} // fetches the NOT-YET-notified connection
	earlyConn.SetOutput(earlyProbe)
	lateProbe := &fetchOnPushOutput{conn: earlyConn, t: t} // fetches the ALREADY-notified connection
	lateConn.SetOutput(lateProbe)

	if err := s.Push(change.Add(&change.Node{Row: row(2, "b", 20)})); err != nil {
		t.Fatalf("add: %v", err)
	}

	if earlyProbe.seenCount != 1 {
		t.Fatalf("fetch via not-yet-notified connection should not see overlay, got %d rows", earlyProbe.seenCount)
	}
	if lateProbe.seenCount != 2 {
		t.Fatalf("fetch via already-notified connection should see overlay, got %d rows", lateProbe.seenCount)
	}
}

type fetchOnPushOutput struct {
	conn      *Connection
	t         *testing.T
	seenCount int
}

func (f *fetchOnPushOutput) Push(c change.Change) error {
	cur, err := f.conn.Fetch(Request{})
	if err != nil {
		f.t.Fatalf("fetch during push: %v", err)
	}
	nodes, err := cur.Rows()
	if err != nil {
		f.t.Fatalf("rows during push: %v", err)
	}
	f.seenCount = len(nodes)
	return nil
}
