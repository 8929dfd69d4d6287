package source

import (
	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// Output is the downstream recipient of a connection's pushed changes —
// typically an operator's input side.
type Output interface {
	Push(change.Change) error
}

// Basis selects where a fetch's start row sits relative to the emitted
// stream.
type Basis int

const (
	BasisAt Basis = iota
	BasisBefore
	BasisAfter
)

// Start describes the optional starting point of a fetch.
type Start struct {
	Row   value.Row
	Basis Basis
}

// Request is the argument to Connection.Fetch / Connection.Cleanup.
type Request struct {
	Constraint *value.Constraint
	Start      *Start
}

// Connection is a live subscription of one operator input to one source,
// parameterized by sort and optional filters (§3.2 "Connections",
// GLOSSARY "Connection"). Connections are ordered relative to each other on
// the same source by insertion order, which is stable until disconnect and
// is part of the push contract (§4.2, §5).
type Connection struct {
	source    *Source
	sort      value.Ordering
	filters   value.Condition
	output    Output
	owned     map[*tableIndex]struct{}
	destroyed bool
}

// GetSchema returns the schema of the connection's source table.
func (c *Connection) GetSchema() Schema { return c.source.schema }

// AppliedFilters reports whether the source guarantees to have applied this
// connection's optional residual filters by the time rows reach the caller.
// This implementation always fully evaluates any supplied filters, so the
// answer is unconditionally true; a source that only partially evaluated
// filters would report false here per §4.1.
func (c *Connection) AppliedFilters() bool { return true }

// SetOutput attaches (or replaces) the connection's downstream output.
func (c *Connection) SetOutput(out Output) { c.output = out }

// Destroy removes the connection from its source's connection list and
// releases every secondary index it caused to be referenced (§3.5, §5).
func (c *Connection) Destroy() {
	c.source.disconnect(c)
}

// Fetch returns a cursor over req's result set, in the connection's
// declared sort order, honoring overlay visibility (§4.1, §4.2). The
// returned cursor is a single-pass snapshot: any push on the source after
// Fetch is called invalidates remaining reads (they fail with a stale
// iterator error) per §4.1 and §5.
func (c *Connection) Fetch(req Request) (*Cursor, error) {
	return c.source.fetch(c, req)
}

// Cleanup is semantically equivalent to Fetch for the purpose of letting a
// downstream operator release per-row state; it never mutates the source
// (§4.1 "Cleanup").
func (c *Connection) Cleanup(req Request) (*Cursor, error) {
	return c.source.fetch(c, req)
}
