package query

import (
	"fmt"

	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/join"
	"github.com/zoravur/ivm-engine/internal/ivm/operator"
	"github.com/zoravur/ivm-engine/internal/ivm/source"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
	"github.com/zoravur/ivm-engine/internal/ivm/view"
)

// Registry resolves a table name to its live source, the same role the
// in-process source directory plays for every compiled query.
type Registry interface {
	Source(table string) (*source.Source, bool)
}

// Compiled is a running query: its backing view, kept current by the
// connections and operators Compile wired up, and a Close function that
// tears every one of them down.
type Compiled struct {
	View  *view.View
	Close func()
}

// joinOperator is the method set shared by join.InnerJoin and
// join.LeftJoin, used so Compile can wire either without a type switch at
// every call site.
type joinOperator interface {
	AInput() operator.Output
	BInput() operator.Output
}

// Compile wires q's table (and optional relationship) into connections on
// their sources, attaches the stream operators needed to realize any join,
// and seeds the resulting view with the current contents of both sides by
// replaying them through the same incremental path live updates use.
func Compile(reg Registry, q *Query) (*Compiled, error) {
	src, ok := reg.Source(q.Table)
	if !ok {
		return nil, fmt.Errorf("query: unknown table %q", q.Table)
	}
	schema := src.Schema()
	ordering := q.OrderBy.WithPrimaryKey(schema.PrimaryKey)
	v := view.New(ordering, schema.PrimaryKey)

	where, err := resolveExists(reg, q.Where)
	if err != nil {
		return nil, err
	}
	q.Where = where

	parentConn := src.Connect(ordering, q.Where)

	if q.Relationship == nil {
		parentConn.SetOutput(v)
		if err := seed(parentConn, v); err != nil {
			parentConn.Destroy()
			return nil, err
		}
		return &Compiled{
			View:  v,
			Close: parentConn.Destroy,
		}, nil
	}

	rel := q.Relationship
	childSrc, ok := reg.Source(rel.Table)
	if !ok {
		parentConn.Destroy()
		return nil, fmt.Errorf("query: unknown relationship table %q", rel.Table)
	}
	childWhere, err := resolveExists(reg, rel.Where)
	if err != nil {
		parentConn.Destroy()
		return nil, err
	}
	rel.Where = childWhere

	childOrdering := value.Ordering{{Column: rel.ChildColumn}}.WithPrimaryKey(childSrc.Schema().PrimaryKey)
	childConn := childSrc.Connect(childOrdering, rel.Where)

	alias := rel.Name
	if alias == "" {
		alias = rel.Table
	}
	args := join.JoinArgs{
		AJoinCol: rel.ParentColumn,
		BJoinCol: rel.ChildColumn,
		APk:      schema.PrimaryKey,
		BPk:      childSrc.Schema().PrimaryKey,
		Alias:    alias,
	}

	var j joinOperator
	if rel.Kind == RelationshipLeft {
		j = join.NewLeftJoin(args, v)
	} else {
		j = join.NewInnerJoin(args, v)
	}
	parentConn.SetOutput(j.AInput())
	childConn.SetOutput(j.BInput())

	closeAll := func() {
		parentConn.Destroy()
		childConn.Destroy()
	}

	parentNodes, err := fetchAll(parentConn)
	if err != nil {
		closeAll()
		return nil, err
	}
	childNodes, err := fetchAll(childConn)
	if err != nil {
		closeAll()
		return nil, err
	}
	for _, n := range parentNodes {
		if err := j.AInput().Push(change.Add(n)); err != nil {
			closeAll()
			return nil, err
		}
	}
	for _, n := range childNodes {
		if err := j.BInput().Push(change.Add(n)); err != nil {
			closeAll()
			return nil, err
		}
	}
	if _, err := v.Tick(); err != nil {
		closeAll()
		return nil, err
	}

	return &Compiled{View: v, Close: closeAll}, nil
}

func seed(conn *source.Connection, v *view.View) error {
	nodes, err := fetchAll(conn)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		if err := v.Push(change.Add(n)); err != nil {
			return err
		}
	}
	_, err = v.Tick()
	return err
}

func fetchAll(conn *source.Connection) ([]*change.Node, error) {
	cur, err := conn.Fetch(source.Request{})
	if err != nil {
		return nil, err
	}
	return cur.Rows()
}

// resolveExists walks cond, replacing every value.UnresolvedExists (the
// query-builder's decoded, not-yet-runnable "exists" node) with a
// value.SubqueryExists whose Eval runs a correlated scan against the table
// it names, using reg — the one thing the api package's condition decoder
// doesn't have access to (§6.1 "exists").
func resolveExists(reg Registry, cond value.Condition) (value.Condition, error) {
	switch c := cond.(type) {
	case nil:
		return nil, nil
	case value.And:
		out := make([]value.Condition, len(c.Conds))
		for i, sub := range c.Conds {
			resolved, err := resolveExists(reg, sub)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return value.And{Conds: out}, nil
	case value.Or:
		out := make([]value.Condition, len(c.Conds))
		for i, sub := range c.Conds {
			resolved, err := resolveExists(reg, sub)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return value.Or{Conds: out}, nil
	case value.Not:
		resolved, err := resolveExists(reg, c.Cond)
		if err != nil {
			return nil, err
		}
		return value.Not{Cond: resolved}, nil
	case value.UnresolvedExists:
		return resolveOneExists(reg, c)
	default:
		return cond, nil
	}
}

// resolveOneExists turns one correlated exists/not-exists node into a
// SubqueryExists. Eval opens a throwaway connection to the correlated
// table for each evaluation, filtered by the subquery's own residual
// condition plus an equality per correlation column pair bound against the
// row being tested, and reports whether any row matched.
func resolveOneExists(reg Registry, c value.UnresolvedExists) (value.Condition, error) {
	childSrc, ok := reg.Source(c.Table)
	if !ok {
		return nil, fmt.Errorf("query: exists: unknown table %q", c.Table)
	}
	subWhere, err := resolveExists(reg, c.Where)
	if err != nil {
		return nil, err
	}

	return value.SubqueryExists{
		Negate: c.Negate,
		Eval: func(row value.Row, params map[string]value.Value) (bool, error) {
			corr := subWhere
			for i, parentCol := range c.ParentColumns {
				if i >= len(c.ChildColumns) {
					break
				}
				eq := value.Simple{
					Left:  value.ColumnOperand(c.ChildColumns[i]),
					Op:    value.OpEq,
					Right: value.LiteralOperand(row.Get(parentCol)),
				}
				if corr == nil {
					corr = eq
				} else {
					corr = value.And{Conds: []value.Condition{corr, eq}}
				}
			}

			conn := childSrc.Connect(nil, corr)
			defer conn.Destroy()
			nodes, err := fetchAll(conn)
			if err != nil {
				return false, err
			}
			return len(nodes) > 0, nil
		},
	}, nil
}
