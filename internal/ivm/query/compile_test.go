package query

import (
	"encoding/json"
	"testing"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/source"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// testRegistry is a minimal in-memory Registry over a fixed set of sources,
// used only to exercise Compile against real join/view wiring.
type testRegistry map[string]*source.Source

func (r testRegistry) Source(table string) (*source.Source, bool) {
	s, ok := r[table]
	return s, ok
}

func fooSchema() source.Schema {
	return source.Schema{
		TableName:  "foo",
		Columns:    map[string]source.ColumnType{"id": source.ColString, "bar": source.ColString},
		PrimaryKey: []string{"id"},
	}
}

func barSchema() source.Schema {
	return source.Schema{
		TableName:  "boo",
		Columns:    map[string]source.ColumnType{"id": source.ColString, "foo_id": source.ColString, "baz": source.ColString},
		PrimaryKey: []string{"id"},
	}
}

// TestCompileInnerJoinProducesSpecShapedRow exercises §3.4/§3.8-scenario-2:
// a row joined to its single matching relationship row must carry a
// composite id, the parent's own columns, and the child nested under the
// relationship's alias rather than flatly merged in.
func TestCompileInnerJoinProducesSpecShapedRow(t *testing.T) {
	reg := testRegistry{"foo": source.New(fooSchema()), "boo": source.New(barSchema())}

	if err := reg["foo"].Push(change.Add(&change.Node{Row: value.Row{"id": value.String("f1"), "bar": value.String("hello")}})); err != nil {
		t.Fatal(err)
	}
	if err := reg["boo"].Push(change.Add(&change.Node{Row: value.Row{"id": value.String("baz"), "foo_id": value.String("f1"), "baz": value.String("x")}})); err != nil {
		t.Fatal(err)
	}

	q := &Query{
		Table: "foo",
		Relationship: &Relationship{
			Name:         "far",
			Kind:         RelationshipInner,
			Table:        "boo",
			ParentColumn: "id",
			ChildColumn:  "foo_id",
		},
	}

	compiled, err := Compile(reg, q)
	if err != nil {
		t.Fatal(err)
	}
	defer compiled.Close()

	rows := compiled.View.Snapshot()
	if len(rows) != 1 {
		t.Fatalf("expected one joined row, got %d: %+v", len(rows), rows)
	}
	row := rows[0]

	if row.Get("bar").String() != "hello" {
		t.Fatalf("expected parent column bar to survive, got %+v", row)
	}
	if row.Get("id").IsNull() {
		t.Fatalf("expected a composite id, got %+v", row)
	}
	if row.Get("id").String() == "f1" {
		t.Fatalf("expected the composite id to differ from the bare parent pk, got %q", row.Get("id").String())
	}

	raw, ok := row.Get("far").AsJSON()
	if !ok {
		t.Fatalf("expected far to be a json-kinded nested child row, got %+v", row.Get("far"))
	}
	var child map[string]any
	if err := json.Unmarshal(raw, &child); err != nil {
		t.Fatalf("far did not decode as a row: %v", err)
	}
	if child["baz"] != "x" {
		t.Fatalf("expected far.baz == x, got %+v", child)
	}
}

// TestCompileLeftJoinNullsUnmatchedAlias exercises §3.8-scenario-3: a left
// join's unmatched parent row must carry a null value.Value under the
// relationship alias, not an absent key or a flat-merged column.
func TestCompileLeftJoinNullsUnmatchedAlias(t *testing.T) {
	reg := testRegistry{"foo": source.New(fooSchema()), "boo": source.New(barSchema())}

	if err := reg["foo"].Push(change.Add(&change.Node{Row: value.Row{"id": value.String("f1"), "bar": value.String("hello")}})); err != nil {
		t.Fatal(err)
	}

	q := &Query{
		Table: "foo",
		Relationship: &Relationship{
			Name:         "comment",
			Kind:         RelationshipLeft,
			Table:        "boo",
			ParentColumn: "id",
			ChildColumn:  "foo_id",
		},
	}

	compiled, err := Compile(reg, q)
	if err != nil {
		t.Fatal(err)
	}
	defer compiled.Close()

	rows := compiled.View.Snapshot()
	if len(rows) != 1 {
		t.Fatalf("expected one placeholder row, got %d: %+v", len(rows), rows)
	}
	if !rows[0].Get("comment").IsNull() {
		t.Fatalf("expected comment alias to be null for an unmatched row, got %+v", rows[0])
	}
}
