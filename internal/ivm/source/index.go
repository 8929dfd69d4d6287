package source

import (
	"sort"

	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// tableIndex is an ordered set of rows keyed by a particular Ordering. The
// primary index is owned exclusively by the source and is never dropped;
// secondary indexes are reference-counted by the set of connections
// currently using them (§3.2, §4.1).
type tableIndex struct {
	ordering value.Ordering
	rows     []value.Row // kept sorted by ordering at all times
	owners   map[*Connection]struct{}
	primary  bool
}

func newIndex(ordering value.Ordering, primary bool) *tableIndex {
	return &tableIndex{
		ordering: ordering,
		owners:   make(map[*Connection]struct{}),
		primary:  primary,
	}
}

// buildFrom populates idx by scanning src (typically the primary index) once
// and sorting by idx's ordering.
func (idx *tableIndex) buildFrom(src []value.Row) {
	idx.rows = make([]value.Row, len(src))
	copy(idx.rows, src)
	idx.ordering.SortRows(idx.rows)
}

// findInsertPos returns the position at which row would be inserted to keep
// idx.rows sorted.
func (idx *tableIndex) findInsertPos(row value.Row) int {
	return sort.Search(len(idx.rows), func(i int) bool {
		return idx.ordering.Compare(idx.rows[i], row) >= 0
	})
}

func (idx *tableIndex) insert(row value.Row) {
	pos := idx.findInsertPos(row)
	idx.rows = append(idx.rows, value.Row{})
	copy(idx.rows[pos+1:], idx.rows[pos:])
	idx.rows[pos] = row
}

// findExact returns the position of a row with the same primary key as
// target, or -1. pk is used to identify the row since idx's own ordering may
// not uniquely locate it (a non-pk column may be involved in the ordering).
func (idx *tableIndex) findExact(target value.Row, pk []string) int {
	// Rows with equal sort key under idx.ordering form a contiguous run;
	// scan that run for the matching primary key.
	lo := sort.Search(len(idx.rows), func(i int) bool {
		return idx.ordering.Compare(idx.rows[i], target) >= 0
	})
	for i := lo; i < len(idx.rows) && idx.ordering.Compare(idx.rows[i], target) == 0; i++ {
		if value.SameKey(idx.rows[i], target, pk) {
			return i
		}
	}
	return -1
}

func (idx *tableIndex) removeAt(pos int) {
	idx.rows = append(idx.rows[:pos], idx.rows[pos+1:]...)
}

func (idx *tableIndex) addOwner(c *Connection) {
	idx.owners[c] = struct{}{}
}

func (idx *tableIndex) releaseOwner(c *Connection) (empty bool) {
	delete(idx.owners, c)
	return len(idx.owners) == 0
}
