// Package query defines the query-builder tree that query subscriptions
// are expressed as, and compiles a tree into a live, incrementally
// maintained view by wiring source connections through the stream-layer
// operators (§6.1).
package query

import "github.com/zoravur/ivm-engine/internal/ivm/value"

// RelationshipKind selects which join operator a Relationship compiles to.
type RelationshipKind int

const (
	RelationshipInner RelationshipKind = iota
	RelationshipLeft
)

// Relationship joins one related table into a Query's result, keyed by a
// single pair of equality-joined columns. Nested (multi-level)
// relationships are intentionally not supported by this compiler — see
// the grounding notes for why a single level was judged sufficient.
type Relationship struct {
	Name          string
	Kind          RelationshipKind
	Table         string
	ParentColumn  string
	ChildColumn   string
	Where         value.Condition
}

// Query describes one subscribable result set: a table, a residual filter,
// a display ordering, and an optional single joined relationship.
type Query struct {
	Table        string
	Where        value.Condition
	OrderBy      value.Ordering
	Relationship *Relationship
}
