package value

import (
	"sort"
	"strings"
)

// OrderCol is one (column, direction) pair in an Ordering.
type OrderCol struct {
	Column string
	Desc   bool
}

// Ordering is an ordered sequence of (column, asc|desc) pairs. An Ordering
// must always include every primary-key column, appended if missing, so that
// every Ordering yields a total order on rows (§3.1).
type Ordering []OrderCol

// WithPrimaryKey returns o with any primary-key column not already present
// appended in ascending order, in pk's declared order. It never mutates o.
func (o Ordering) WithPrimaryKey(pk []string) Ordering {
	have := make(map[string]bool, len(o))
	for _, c := range o {
		have[c.Column] = true
	}
	out := make(Ordering, len(o), len(o)+len(pk))
	copy(out, o)
	for _, c := range pk {
		if !have[c] {
			out = append(out, OrderCol{Column: c})
			have[c] = true
		}
	}
	return out
}

// Columns returns the ordered column names, direction discarded.
func (o Ordering) Columns() []string {
	out := make([]string, len(o))
	for i, c := range o {
		out[i] = c.Column
	}
	return out
}

// Canonical returns a stable string key identifying this ordering, used to
// key the source's map of secondary indexes.
func (o Ordering) Canonical() string {
	var sb strings.Builder
	for i, c := range o {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c.Column)
		if c.Desc {
			sb.WriteString(" desc")
		} else {
			sb.WriteString(" asc")
		}
	}
	return sb.String()
}

// Compare orders two rows by o. Ties are broken by whatever trailing columns
// o carries; callers that need a *total* order must first call
// WithPrimaryKey.
func (o Ordering) Compare(a, b Row) int {
	for _, c := range o {
		cmp := Compare(a.Get(c.Column), b.Get(c.Column))
		if cmp == 0 {
			continue
		}
		if c.Desc {
			return -cmp
		}
		return cmp
	}
	return 0
}

// Less reports whether a sorts strictly before b under o.
func (o Ordering) Less(a, b Row) bool { return o.Compare(a, b) < 0 }

// SortRows sorts rows in place by o. Used by index construction and by tests
// that build fixtures out of order.
func (o Ordering) SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool { return o.Less(rows[i], rows[j]) })
}
