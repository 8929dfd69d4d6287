// Package poke implements the client-side playback scheduler for server
// pushed "pokes" — ordered, cookie-chained bundles of changes the server
// sends as a view advances. The scheduler buffers pokes FIFO, classifies
// them as timed or untimed, and plays timed pokes back at the server's
// intended pace using a playback offset that is periodically
// drift-corrected against the local clock (§4.6, GLOSSARY "Poke").
package poke

import (
	"time"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
)

// Poke is one server-pushed unit of work: a cookie-chained batch of
// changes, optionally carrying a server timestamp that paces its playback.
// A nil Timestamp marks an untimed poke, played as soon as it is reached in
// FIFO order regardless of clock. LastMutationIDChanges carries, per client
// ID, the last mutation id the server has applied for that client as of
// this poke — a poke that names this scheduler's own client is an echo of a
// mutation this client issued, and is always untimed regardless of whether
// it also carries a timestamp (§4.6 "Classification").
type Poke struct {
	BaseCookie            string
	Cookie                string
	Timestamp             *time.Time
	LastMutationIDChanges map[string]int64
	Changes               []change.Change
}

// timed reports whether p should be paced against its Timestamp. clientID
// is this scheduler's own client id; a poke whose LastMutationIDChanges
// includes it is this client's own mutation echoing back and must play
// back immediately rather than wait on the server's pacing clock.
func (p Poke) timed(clientID string) bool {
	if p.Timestamp == nil {
		return false
	}
	if clientID != "" {
		if _, ok := p.LastMutationIDChanges[clientID]; ok {
			return false
		}
	}
	return true
}

// driftThreshold is how far playback may lag or lead the server's intended
// schedule before the scheduler gives up interpolating and re-anchors its
// offset against the current clock.
const driftThreshold = 1000 * time.Millisecond

// Scheduler buffers incoming pokes and plays them back on Tick, merging each
// due poke with the untimed, cookie-chained pokes directly behind it into a
// single callback and tracking how often playback missed its schedule. Two
// timed pokes are never merged into one callback, even when both are due.
type Scheduler struct {
	Now          func() time.Time
	OnPlay       func(Poke)
	OnOutOfOrder func(expectedBase, gotBase string)

	// ClientID is this connection's own client id, used by timed() to
	// recognize a poke that merely echoes a mutation this client issued
	// (§4.6 "Classification"). Empty disables the self-echo check.
	ClientID string

	buffer       []Poke
	haveOffset   bool
	offset       time.Duration
	lastCookie   string

	totalPokes  int
	missedPokes int
}

// New constructs a Scheduler. onPlay receives each played (possibly merged)
// poke; onOutOfOrder is called when an enqueued poke's BaseCookie doesn't
// chain from the last enqueued poke's Cookie, before the buffer is reset.
func New(now func() time.Time, onPlay func(Poke), onOutOfOrder func(expectedBase, gotBase string)) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{Now: now, OnPlay: onPlay, OnOutOfOrder: onOutOfOrder}
}

// Enqueue appends p to the FIFO buffer, verifying the cookie chain. A break
// in the chain invokes OnOutOfOrder and clears the buffer and offset — the
// caller is expected to request a fresh full sync from the server, since
// this scheduler cannot interpolate across a gap it never received.
func (s *Scheduler) Enqueue(p Poke) {
	if s.lastCookie != "" && p.BaseCookie != s.lastCookie {
		if s.OnOutOfOrder != nil {
			s.OnOutOfOrder(s.lastCookie, p.BaseCookie)
		}
		s.Clear()
	}
	s.buffer = append(s.buffer, p)
	s.lastCookie = p.Cookie
}

// Clear discards the buffer and playback offset, as happens on disconnect
// or an out-of-order cookie break (§4.6 "disconnect").
func (s *Scheduler) Clear() {
	s.buffer = nil
	s.haveOffset = false
	s.offset = 0
	s.lastCookie = ""
}

// Tick plays every poke whose scheduled playback time has arrived. Each
// OnPlay call carries the buffer's head merged with the untimed,
// cookie-chained pokes directly behind it; a run of several due timed pokes
// is played as one OnPlay call per timed poke. It returns how many
// individual pokes were played (merged or not).
func (s *Scheduler) Tick() int {
	now := s.Now()
	played := 0

	for len(s.buffer) > 0 {
		p := s.buffer[0]

		if p.timed(s.ClientID) {
			if !s.haveOffset {
				s.offset = now.Sub(*p.Timestamp)
				s.haveOffset = true
			}
			scheduled := p.Timestamp.Add(s.offset)
			drift := now.Sub(scheduled)
			if drift < 0 {
				break // not due yet
			}
			if drift > driftThreshold || -drift > driftThreshold {
				s.offset = now.Sub(*p.Timestamp)
				s.missedPokes++
			}
		}

		merged := s.drainMergeable()
		s.totalPokes += len(merged)
		played += len(merged)
		if s.OnPlay != nil {
			s.OnPlay(mergePokes(merged))
		}
	}

	return played
}

// drainMergeable pops the buffer's current head together with every
// immediately following poke that chains from it by cookie and is not
// itself timed (an untimed poke riding along with the timed one that
// unblocked it), stopping at the first poke that starts a new,
// independently-scheduled chain.
func (s *Scheduler) drainMergeable() []Poke {
	if len(s.buffer) == 0 {
		return nil
	}
	head := s.buffer[0]
	run := []Poke{head}
	s.buffer = s.buffer[1:]

	for len(s.buffer) > 0 {
		next := s.buffer[0]
		if next.BaseCookie != run[len(run)-1].Cookie {
			break
		}
		if next.timed(s.ClientID) {
			break
		}
		run = append(run, next)
		s.buffer = s.buffer[1:]
	}
	return run
}

// mergePokes merges a contiguous, cookie-chained run into one poke per
// §4.6's "Merge rule": base/cookie come from the run's ends, patches
// concatenate in order, and last_mutation_id_changes merges by taking the
// max per client ID (a later poke's id for a client always supersedes an
// earlier one, since mutation ids only increase).
func mergePokes(run []Poke) Poke {
	if len(run) == 1 {
		return run[0]
	}
	out := Poke{BaseCookie: run[0].BaseCookie, Cookie: run[len(run)-1].Cookie, Timestamp: run[0].Timestamp}
	for _, p := range run {
		out.Changes = append(out.Changes, p.Changes...)
		for client, id := range p.LastMutationIDChanges {
			if out.LastMutationIDChanges == nil {
				out.LastMutationIDChanges = make(map[string]int64, len(p.LastMutationIDChanges))
			}
			if existing, ok := out.LastMutationIDChanges[client]; !ok || id > existing {
				out.LastMutationIDChanges[client] = id
			}
		}
	}
	return out
}

// Stats reports cumulative scheduling counters.
type Stats struct {
	Total  int
	Missed int
}

func (s *Scheduler) Stats() Stats {
	return Stats{Total: s.totalPokes, Missed: s.missedPokes}
}

// Pending reports how many unplayed pokes remain buffered.
func (s *Scheduler) Pending() int { return len(s.buffer) }
