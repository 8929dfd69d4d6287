package poke

import (
	"testing"
	"time"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

func ts(t time.Time) *time.Time { return &t }

func addChange(id int64) change.Change {
	return change.Add(&change.Node{Row: value.Row{"id": value.Int(id)}})
}

func TestSchedulerPlaysUntimedPokesImmediately(t *testing.T) {
	base := time.Unix(1000, 0)
	var played []Poke
	s := New(func() time.Time { return base }, func(p Poke) { played = append(played, p) }, nil)

	s.Enqueue(Poke{Cookie: "c1", Changes: []change.Change{addChange(1)}})
	n := s.Tick()
	if n != 1 || len(played) != 1 {
		t.Fatalf("expected 1 untimed poke played immediately, got n=%d played=%d", n, len(played))
	}
}

func TestSchedulerHoldsTimedPokeUntilDue(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	var played []Poke
	s := New(func() time.Time { return now }, func(p Poke) { played = append(played, p) }, nil)

	// The first timed poke anchors the playback offset against the
	// current clock and plays immediately — there is no established
	// schedule to hold it against yet.
	s.Enqueue(Poke{Cookie: "c1", Timestamp: ts(base), Changes: []change.Change{addChange(1)}})
	if n := s.Tick(); n != 1 {
		t.Fatalf("expected anchoring poke to play immediately, got %d", n)
	}

	future := base.Add(5 * time.Second)
	s.Enqueue(Poke{BaseCookie: "c1", Cookie: "c2", Timestamp: ts(future), Changes: []change.Change{addChange(2)}})

	if n := s.Tick(); n != 0 {
		t.Fatalf("expected second poke to wait for its scheduled time, got %d played", n)
	}

	now = future
	if n := s.Tick(); n != 1 {
		t.Fatalf("expected poke to play once its scheduled time arrives, got %d", n)
	}
	if len(played) != 2 {
		t.Fatalf("expected 2 pokes played total, got %d", len(played))
	}
}

func TestSchedulerMergesChainedUntimedPokes(t *testing.T) {
	base := time.Unix(1000, 0)
	var played []Poke
	s := New(func() time.Time { return base }, func(p Poke) { played = append(played, p) }, nil)

	s.Enqueue(Poke{Cookie: "c1", Changes: []change.Change{addChange(1)}})
	s.Enqueue(Poke{BaseCookie: "c1", Cookie: "c2", Changes: []change.Change{addChange(2)}})
	s.Enqueue(Poke{BaseCookie: "c2", Cookie: "c3", Changes: []change.Change{addChange(3)}})

	n := s.Tick()
	if n != 3 {
		t.Fatalf("expected 3 individual pokes counted as played, got %d", n)
	}
	if len(played) != 1 {
		t.Fatalf("expected chained untimed pokes merged into 1 callback, got %d", len(played))
	}
	if len(played[0].Changes) != 3 {
		t.Fatalf("expected merged poke to carry all 3 changes, got %d", len(played[0].Changes))
	}
	if played[0].Cookie != "c3" {
		t.Fatalf("expected merged poke's cookie to be the last in the chain, got %q", played[0].Cookie)
	}
}

func TestSchedulerDetectsOutOfOrderCookie(t *testing.T) {
	base := time.Unix(1000, 0)
	var gotExpected, gotActual string
	s := New(func() time.Time { return base }, func(p Poke) {}, func(expected, got string) {
		gotExpected, gotActual = expected, got
	})

	s.Enqueue(Poke{Cookie: "c1"})
	s.Enqueue(Poke{BaseCookie: "WRONG", Cookie: "c2"})

	if gotExpected != "c1" || gotActual != "WRONG" {
		t.Fatalf("expected out-of-order callback with (c1, WRONG), got (%q, %q)", gotExpected, gotActual)
	}
	if s.Pending() != 1 {
		t.Fatalf("expected buffer cleared and reseeded with only the breaking poke, got %d pending", s.Pending())
	}
}

// TestSchedulerPlaysSelfEchoedPokeImmediately covers §4.6's classification
// rule: a poke carrying a timestamp is still untimed if its
// last_mutation_id_changes names this scheduler's own client, since it's an
// echo of a mutation this client issued rather than a server-paced update.
func TestSchedulerPlaysSelfEchoedPokeImmediately(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	var played []Poke
	s := New(func() time.Time { return now }, func(p Poke) { played = append(played, p) }, nil)
	s.ClientID = "client-a"

	// Anchor the offset with a genuine server-timed poke.
	s.Enqueue(Poke{Cookie: "c1", Timestamp: ts(base), Changes: []change.Change{addChange(1)}})
	s.Tick()

	// A far-future timestamp would normally not be due yet, but since it
	// echoes this client's own mutation it must play back immediately.
	future := base.Add(time.Hour)
	s.Enqueue(Poke{
		BaseCookie:            "c1",
		Cookie:                "c2",
		Timestamp:             ts(future),
		LastMutationIDChanges: map[string]int64{"client-a": 7},
		Changes:               []change.Change{addChange(2)},
	})

	n := s.Tick()
	if n != 1 {
		t.Fatalf("expected self-echoed poke to play immediately despite its far-future timestamp, got %d played", n)
	}
	if len(played) != 2 {
		t.Fatalf("expected 2 pokes played total, got %d", len(played))
	}
}

func TestMergePokesTakesMaxLastMutationIDPerClient(t *testing.T) {
	run := []Poke{
		{BaseCookie: "c0", Cookie: "c1", LastMutationIDChanges: map[string]int64{"a": 3, "b": 9}},
		{BaseCookie: "c1", Cookie: "c2", LastMutationIDChanges: map[string]int64{"a": 5}},
	}
	merged := mergePokes(run)
	if merged.LastMutationIDChanges["a"] != 5 {
		t.Fatalf("expected max(3,5)=5 for client a, got %d", merged.LastMutationIDChanges["a"])
	}
	if merged.LastMutationIDChanges["b"] != 9 {
		t.Fatalf("expected client b's single value 9 preserved, got %d", merged.LastMutationIDChanges["b"])
	}
}

func TestSchedulerDriftCorrectionIncrementsMissed(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	s := New(func() time.Time { return now }, func(p Poke) {}, nil)

	s.Enqueue(Poke{Cookie: "c1", Timestamp: ts(base), Changes: []change.Change{addChange(1)}})
	s.Tick() // anchors offset at 0, plays poke 1 immediately since due

	now = base.Add(2 * time.Second)
	s.Enqueue(Poke{BaseCookie: "c1", Cookie: "c2", Timestamp: ts(base.Add(10 * time.Millisecond)), Changes: []change.Change{addChange(2)}})
	s.Tick()

	if s.Stats().Missed != 1 {
		t.Fatalf("expected drift beyond threshold to count as a missed poke, got %d", s.Stats().Missed)
	}
}
