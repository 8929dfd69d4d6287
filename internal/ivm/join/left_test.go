package join

import (
	"testing"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
)

func TestLeftJoinEmitsPlaceholderForUnmatchedRow(t *testing.T) {
	out := &capture{}
	j := NewLeftJoin(ownerJoinArgs("b"), out)

	if err := j.AInput().Push(change.Add(&change.Node{Row: aRow(1)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 1 || out.changes[0].Kind != change.KindAdd {
		t.Fatalf("expected placeholder add for unmatched a-row, got %+v", out.changes)
	}
	node := out.changes[0].Node
	if !node.Row["b"].IsNull() {
		t.Fatalf("placeholder row's b alias should be null, got %+v", node.Row)
	}
	if len(node.Relationships["b"]) != 0 {
		t.Fatalf("placeholder row should carry no b relationship children, got %+v", node.Relationships)
	}
}

func TestLeftJoinRetractsPlaceholderOnFirstMatch(t *testing.T) {
	out := &capture{}
	j := NewLeftJoin(ownerJoinArgs("b"), out)

	_ = j.AInput().Push(change.Add(&change.Node{Row: aRow(1)}))
	out.changes = nil

	if err := j.BInput().Push(change.Add(&change.Node{Row: bRow(10, 1)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 2 {
		t.Fatalf("expected retract-placeholder + assert-match, got %d changes: %+v", len(out.changes), out.changes)
	}
	if out.changes[0].Kind != change.KindRemove {
		t.Fatalf("expected placeholder retraction first, got %+v", out.changes[0])
	}
	if out.changes[1].Kind != change.KindAdd {
		t.Fatalf("expected real match asserted second, got %+v", out.changes[1])
	}
}

// TestLeftJoinTracksMultipleSequentialMatches is the mandatory fix for the
// documented a_matches staleness bug: inserting two b-rows in sequence that
// both match the same a-row must emit two assertions (no placeholder
// re-retraction, no silent undercounting), and removing either must leave
// the other's match correctly asserted rather than resurrecting the
// placeholder prematurely.
func TestLeftJoinTracksMultipleSequentialMatches(t *testing.T) {
	out := &capture{}
	j := NewLeftJoin(ownerJoinArgs("b"), out)

	_ = j.AInput().Push(change.Add(&change.Node{Row: aRow(1)}))
	_ = j.BInput().Push(change.Add(&change.Node{Row: bRow(10, 1)}))
	out.changes = nil

	if err := j.BInput().Push(change.Add(&change.Node{Row: bRow(20, 1)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 1 || out.changes[0].Kind != change.KindAdd {
		t.Fatalf("expected only the new match asserted, no extra placeholder churn, got %+v", out.changes)
	}
	if j.aMatches[rowIdentity(aRow(1))] != 2 {
		t.Fatalf("expected match count 2 after second b insertion, got %d", j.aMatches[rowIdentity(aRow(1))])
	}

	out.changes = nil
	if err := j.BInput().Push(change.Remove(&change.Node{Row: bRow(10, 1)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 1 || out.changes[0].Kind != change.KindRemove {
		t.Fatalf("expected retraction of the removed match only, no placeholder reassertion yet, got %+v", out.changes)
	}
	if j.aMatches[rowIdentity(aRow(1))] != 1 {
		t.Fatalf("expected match count 1 after removing one of two matches, got %d", j.aMatches[rowIdentity(aRow(1))])
	}

	out.changes = nil
	if err := j.BInput().Push(change.Remove(&change.Node{Row: bRow(20, 1)})); err != nil {
		t.Fatal(err)
	}
	if len(out.changes) != 2 {
		t.Fatalf("expected retraction + placeholder reassertion on last match removed, got %+v", out.changes)
	}
	if out.changes[1].Kind != change.KindAdd {
		t.Fatalf("expected placeholder reasserted last, got %+v", out.changes[1])
	}
}
