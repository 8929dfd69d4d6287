// Package join implements the binary join operators of the stream layer:
// inner join and left join over two live change streams, each maintaining
// its own multimap index so a delta on either side can be resolved against
// the other side's current rows without rescanning a source (§4.3).
package join

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

type side int

const (
	sideA side = iota
	sideB
)

// sideInput adapts one join side into an operator.Output so it can be
// attached directly to a source Connection or an upstream operator.
type sideInput struct {
	push func(change.Change) error
}

func (s sideInput) Push(c change.Change) error { return s.push(c) }

func joinKey(v value.Value) string { return v.String() }

// rowIdentity returns a stable, column-order-independent encoding of a
// row's full contents, used to track per-row state (left join's match
// counters) independent of the join key, since distinct rows can share a
// join key value.
func rowIdentity(r value.Row) string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	out := ""
	for _, c := range cols {
		out += fmt.Sprintf("%s=%s,", c, r.Get(c).String())
	}
	return out
}

func rowsEqual(a, b value.Row) bool {
	return rowIdentity(a) == rowIdentity(b)
}

func removeRow(rows []value.Row, target value.Row) []value.Row {
	for i, r := range rows {
		if rowsEqual(r, target) {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}

// JoinArgs configures how a join operator builds its result rows: which
// columns the two sides join on, which columns form each side's primary
// key (the inputs to composite_string), and the name the b-side row nests
// under in the result (§3.3, §3.4).
type JoinArgs struct {
	AJoinCol string
	BJoinCol string
	APk      []string
	BPk      []string
	Alias    string
}

func (args JoinArgs) alias() string {
	if args.Alias != "" {
		return args.Alias
	}
	return "b"
}

// compositeID builds composite_string(a_pk, b_pk): a's primary key values,
// a separator, then b's primary key values (empty when b is absent). It is
// stable across rebuilds and unique per (a_pk, b_pk) pair.
func compositeID(a, b value.Row, args JoinArgs) string {
	parts := make([]string, 0, len(args.APk)+len(args.BPk)+1)
	for _, c := range args.APk {
		parts = append(parts, a.Get(c).String())
	}
	parts = append(parts, "|")
	if b != nil {
		for _, c := range args.BPk {
			parts = append(parts, b.Get(c).String())
		}
	}
	return strings.Join(parts, ",")
}

// encodeRow wraps r as a json-kinded Value so it can be nested under a join
// result row's b_alias column.
func encodeRow(r value.Row) value.Value {
	raw, err := json.Marshal(r)
	if err != nil {
		return value.Null()
	}
	return value.JSON(raw)
}

// buildJoinResult constructs the join result row §3.4 requires —
// { id: composite_string(a_pk,b_pk), <a_columns…>, <b_alias>: b_row_or_null }
// — and the Node wrapping it, with Relationships[b_alias] holding the
// matched child row (or nil, for an unmatched left-join row).
func buildJoinResult(a, b value.Row, args JoinArgs) *change.Node {
	row := make(value.Row, len(a)+2)
	for k, v := range a {
		row[k] = v
	}
	row["id"] = value.String(compositeID(a, b, args))

	alias := args.alias()
	var children []*change.Node
	if b == nil {
		row[alias] = value.Null()
	} else {
		row[alias] = encodeRow(b)
		children = []*change.Node{{Row: b}}
	}

	return &change.Node{
		Row:           row,
		Relationships: map[string][]*change.Node{alias: children},
	}
}
