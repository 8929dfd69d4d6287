// Package source implements the per-table ordered storage layer: primary and
// secondary indexes, connection tracking, overlay-aware fetch, and the
// push/notify/mutate cycle that propagates mutations to every connected
// operator (§3.2, §4.1, §4.2).
package source

import (
	"sort"
	"sync"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/operator"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// Source stores rows for one table and exposes ordered, filtered,
// constraint-aware scans to multiple concurrent connections, broadcasting
// mutations to them in insertion order with overlay semantics.
type Source struct {
	mu          sync.Mutex
	schema      Schema
	primary     *tableIndex
	indexes     map[string]*tableIndex // canonical ordering -> secondary index
	connections []*Connection          // insertion order, stable until disconnect
	overlay     *overlayEntry
	generation  uint64
}

// New creates an empty source for schema. The primary index orders rows by
// the schema's primary key, ascending.
func New(schema Schema) *Source {
	pkOrdering := make(value.Ordering, len(schema.PrimaryKey))
	for i, c := range schema.PrimaryKey {
		pkOrdering[i] = value.OrderCol{Column: c}
	}
	s := &Source{
		schema:  schema,
		indexes: make(map[string]*tableIndex),
	}
	s.primary = newIndex(pkOrdering, true)
	return s
}

// Schema returns the source's table schema.
func (s *Source) Schema() Schema { return s.schema }

func (s *Source) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Connect registers a new connection with the given declared sort and
// optional residual filters. sort is extended to include the primary key if
// it isn't already present, per §3.1/§3.2.
func (s *Source) Connect(sort value.Ordering, filters value.Condition) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Connection{
		source:  s,
		sort:    sort.WithPrimaryKey(s.schema.PrimaryKey),
		filters: filters,
		owned:   make(map[*tableIndex]struct{}),
	}
	s.connections = append(s.connections, c)
	return c
}

// disconnect removes c from the connection list and releases every
// secondary index it referenced, dropping indexes whose owner set becomes
// empty (§3.5, §5).
func (s *Source) disconnect(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.destroyed {
		return
	}
	c.destroyed = true

	for i, cc := range s.connections {
		if cc == c {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			break
		}
	}

	for idx := range c.owned {
		if idx.primary {
			continue
		}
		if idx.releaseOwner(c) {
			delete(s.indexes, idx.ordering.Canonical())
		}
	}
	c.owned = nil
}

// Push validates and synchronously applies change, notifying every
// connection's output in connection order with overlay visibility, then
// atomically updating every live index once all outputs have been notified
// (§4.1 "push").
func (s *Source) Push(c change.Change) error {
	s.mu.Lock()

	pk := s.schema.PrimaryKey
	if err := s.validatePush(c, pk); err != nil {
		s.mu.Unlock()
		return err
	}

	s.generation++
	conns := make([]*Connection, len(s.connections))
	copy(conns, s.connections)
	s.mu.Unlock()

	for i, conn := range conns {
		s.mu.Lock()
		s.overlay = &overlayEntry{index: i, change: c}
		s.mu.Unlock()

		var out operator.Output = conn.output
		if out != nil && conn.filters != nil {
			out = operator.NewFilter(conn.filters, nil, out)
		}
		if out != nil {
			if err := out.Push(c); err != nil {
				s.mu.Lock()
				s.overlay = nil
				s.mu.Unlock()
				return err
			}
		}
	}

	s.mu.Lock()
	s.overlay = nil
	s.applyToIndexes(c, pk)
	s.mu.Unlock()
	return nil
}

// validatePush checks the invariants from §4.1 step 1. Caller holds s.mu.
func (s *Source) validatePush(c change.Change, pk []string) error {
	switch c.Kind {
	case change.KindAdd:
		if s.primary.findExact(c.Node.Row, pk) >= 0 {
			return errDuplicateAdd(s.schema.TableName)
		}
	case change.KindRemove:
		if s.primary.findExact(c.Node.Row, pk) < 0 {
			return errMissingRow(s.schema.TableName, "remove")
		}
	case change.KindEdit:
		if s.primary.findExact(c.OldRow, pk) < 0 {
			return errMissingRow(s.schema.TableName, "edit")
		}
	}
	return nil
}

// applyToIndexes mutates every live index (primary + secondaries) to
// reflect c. Caller holds s.mu.
func (s *Source) applyToIndexes(c change.Change, pk []string) {
	all := make([]*tableIndex, 0, len(s.indexes)+1)
	all = append(all, s.primary)
	for _, idx := range s.indexes {
		all = append(all, idx)
	}

	switch c.Kind {
	case change.KindAdd:
		for _, idx := range all {
			idx.insert(c.Node.Row)
		}
	case change.KindRemove:
		for _, idx := range all {
			if pos := idx.findExact(c.Node.Row, pk); pos >= 0 {
				idx.removeAt(pos)
			}
		}
	case change.KindEdit:
		for _, idx := range all {
			if pos := idx.findExact(c.OldRow, pk); pos >= 0 {
				idx.removeAt(pos)
			}
			idx.insert(c.NewRow)
		}
	}
}

// indexOfConnection returns c's current position among live connections, or
// -1. Caller holds s.mu.
func (s *Source) indexOfConnection(c *Connection) int {
	for i, cc := range s.connections {
		if cc == c {
			return i
		}
	}
	return -1
}

func (s *Source) fetch(c *Connection, req Request) (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := s.schema.PrimaryKey
	idx, ordering := s.resolveIndex(c, req.Constraint)

	gate := func(row value.Row) bool {
		if req.Constraint != nil && !req.Constraint.Matches(row) {
			return false
		}
		return true
	}

	matched := prefixScan(idx, req.Constraint)

	connIdx := -1
	if s.overlay != nil {
		connIdx = s.indexOfConnection(c)
	}
	if s.overlay.visibleTo(connIdx) {
		matched = applyOverlay(matched, overlayOps(s.overlay.change, pk), ordering, pk, gate)
	}

	windowed := applyStart(matched, req.Start, ordering)

	nodes := make([]*change.Node, 0, len(windowed))
	for _, row := range windowed {
		if c.filters != nil {
			ok, err := value.Eval(c.filters, row, nil)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		nodes = append(nodes, &change.Node{Row: row})
	}

	return &Cursor{source: s, generation: s.generation, nodes: nodes}, nil
}

// resolveIndex picks the index and ordering a fetch with the given optional
// constraint must scan, creating a secondary index lazily if needed
// (§4.1 "Index choice for fetch"). Caller holds s.mu.
func (s *Source) resolveIndex(c *Connection, constraint *value.Constraint) (*tableIndex, value.Ordering) {
	pk := s.schema.PrimaryKey
	fullSort := c.sort.WithPrimaryKey(pk)

	if constraint != nil {
		if len(pk) == 1 && constraint.Column == pk[0] {
			return s.primary, s.primary.ordering
		}
		ordering := prependColumn(constraint.Column, fullSort)
		return s.getOrCreateIndex(ordering, c), ordering
	}
	return s.getOrCreateIndex(fullSort, c), fullSort
}

// getOrCreateIndex returns the index for ordering, building it by a single
// scan of the primary index if it doesn't exist yet, and registers owner as
// one of its users. Caller holds s.mu.
func (s *Source) getOrCreateIndex(ordering value.Ordering, owner *Connection) *tableIndex {
	canon := ordering.Canonical()
	if canon == s.primary.ordering.Canonical() {
		return s.primary
	}
	idx, ok := s.indexes[canon]
	if !ok {
		idx = newIndex(ordering, false)
		idx.buildFrom(s.primary.rows)
		s.indexes[canon] = idx
	}
	idx.addOwner(owner)
	owner.owned[idx] = struct{}{}
	return idx
}

func prependColumn(col string, rest value.Ordering) value.Ordering {
	out := make(value.Ordering, 0, len(rest)+1)
	out = append(out, value.OrderCol{Column: col})
	for _, c := range rest {
		if c.Column != col {
			out = append(out, c)
		}
	}
	return out
}

// prefixScan returns the contiguous run of idx.rows matching constraint (or
// every row, if constraint is nil), per §4.1: "emits a contiguous prefix of
// rows satisfying row[key]==value; stops at the first non-match."
func prefixScan(idx *tableIndex, constraint *value.Constraint) []value.Row {
	if constraint == nil {
		out := make([]value.Row, len(idx.rows))
		copy(out, idx.rows)
		return out
	}
	col, val := constraint.Column, constraint.Value
	lo := sort.Search(len(idx.rows), func(i int) bool {
		return value.Compare(idx.rows[i].Get(col), val) >= 0
	})
	hi := lo
	for hi < len(idx.rows) && value.Equal(idx.rows[hi].Get(col), val) {
		hi++
	}
	out := make([]value.Row, hi-lo)
	copy(out, idx.rows[lo:hi])
	return out
}

// applyOverlay splices add ops into rows at their sorted position and elides
// matching remove ops, per the table in §4.2. Only ops whose row passes gate
// (the fetch's own constraint) are applied; everything else stays hidden.
func applyOverlay(rows []value.Row, ops []overlayOp, ordering value.Ordering, pk []string, gate func(value.Row) bool) []value.Row {
	out := rows
	for _, op := range ops {
		if !gate(op.row) {
			continue
		}
		if op.isRemove {
			for i, r := range out {
				if value.SameKey(r, op.row, pk) {
					out = append(out[:i], out[i+1:]...)
					break
				}
			}
			continue
		}
		pos := sort.Search(len(out), func(i int) bool {
			return ordering.Compare(out[i], op.row) >= 0
		})
		out = append(out, value.Row{})
		copy(out[pos+1:], out[pos:])
		out[pos] = op.row
	}
	return out
}

// applyStart trims rows to the window start describes, using ordering as
// the positional comparator (§4.1 "start").
func applyStart(rows []value.Row, start *Start, ordering value.Ordering) []value.Row {
	if start == nil {
		return rows
	}
	pos := sort.Search(len(rows), func(i int) bool {
		return ordering.Compare(rows[i], start.Row) >= 0
	})
	switch start.Basis {
	case BasisAt:
		return rows[pos:]
	case BasisBefore:
		if pos > 0 {
			pos--
		}
		return rows[pos:]
	case BasisAfter:
		hi := sort.Search(len(rows), func(i int) bool {
			return ordering.Compare(rows[i], start.Row) > 0
		})
		return rows[hi:]
	default:
		return rows[pos:]
	}
}
