package value

import "strings"

// Op is a simple-condition comparison operator.
type Op string

const (
	OpEq       Op = "="
	OpNeq      Op = "!="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpIn       Op = "IN"
	OpNotIn    Op = "NOT IN"
	OpLike     Op = "LIKE"
	OpNotLike  Op = "NOT LIKE"
	OpILike    Op = "ILIKE"
	OpNotILike Op = "NOT ILIKE"
	OpIs       Op = "IS"
	OpIsNot    Op = "IS NOT"
	OpExists   Op = "EXISTS"
	OpNotExists Op = "NOT EXISTS"
)

// Operand is one side of a SimpleCondition: exactly one of Column, Literal,
// or Param is set.
type Operand struct {
	Column  string
	Literal *Value
	Param   string
}

func ColumnOperand(col string) Operand   { return Operand{Column: col} }
func LiteralOperand(v Value) Operand     { return Operand{Literal: &v} }
func ParamOperand(name string) Operand   { return Operand{Param: name} }

// Resolve returns the operand's value given a row and a parameter binding.
func (o Operand) Resolve(row Row, params map[string]Value) Value {
	switch {
	case o.Literal != nil:
		return *o.Literal
	case o.Param != "":
		return params[o.Param]
	default:
		return row.Get(o.Column)
	}
}

// Condition is a tree of simple | and | or | correlated-subquery-exists
// nodes (§3.1). SubqueryExists is represented opaquely here — its Eval
// is supplied by the caller, since evaluating it requires running another
// connected scan that this package has no handle on.
type Condition interface {
	isCondition()
}

// Simple is (left, op, right).
type Simple struct {
	Left  Operand
	Op    Op
	Right Operand
}

func (Simple) isCondition() {}

// And is the conjunction of its children.
type And struct{ Conds []Condition }

func (And) isCondition() {}

// Or is the disjunction of its children.
type Or struct{ Conds []Condition }

func (Or) isCondition() {}

// Not negates its child.
type Not struct{ Cond Condition }

func (Not) isCondition() {}

// SubqueryExists represents a correlated EXISTS/NOT EXISTS. Eval is supplied
// by the query compiler, which knows how to run the correlated subquery
// against the current row; Condition itself stays storage-agnostic.
type SubqueryExists struct {
	Negate bool
	Eval   func(row Row, params map[string]Value) (bool, error)
}

func (SubqueryExists) isCondition() {}

// UnresolvedExists is the decoded, not-yet-compiled form of a correlated
// EXISTS/NOT EXISTS from the query-builder wire surface (§6.1): it names
// the correlated table and the parent/child column pairs the subquery is
// joined on, but carries no Eval, since evaluating it requires a connection
// to that table that only the query compiler can open. The compiler walks
// the condition tree and replaces every UnresolvedExists with a
// SubqueryExists before wiring a Query's sources.
type UnresolvedExists struct {
	Negate        bool
	Table         string
	ParentColumns []string
	ChildColumns  []string
	Where         Condition
}

func (UnresolvedExists) isCondition() {}

// Eval evaluates cond against row with the given parameter bindings.
func Eval(cond Condition, row Row, params map[string]Value) (bool, error) {
	switch c := cond.(type) {
	case nil:
		return true, nil
	case Simple:
		return evalSimple(c, row, params)
	case And:
		for _, sub := range c.Conds {
			ok, err := Eval(sub, row, params)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Or:
		for _, sub := range c.Conds {
			ok, err := Eval(sub, row, params)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := Eval(c.Cond, row, params)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case SubqueryExists:
		ok, err := c.Eval(row, params)
		if err != nil {
			return false, err
		}
		if c.Negate {
			return !ok, nil
		}
		return ok, nil
	default:
		return false, nil
	}
}

func evalSimple(c Simple, row Row, params map[string]Value) (bool, error) {
	l := c.Left.Resolve(row, params)
	switch c.Op {
	case OpEq:
		return Equal(l, c.Right.Resolve(row, params)), nil
	case OpNeq:
		return !Equal(l, c.Right.Resolve(row, params)), nil
	case OpLt:
		return Compare(l, c.Right.Resolve(row, params)) < 0, nil
	case OpLte:
		return Compare(l, c.Right.Resolve(row, params)) <= 0, nil
	case OpGt:
		return Compare(l, c.Right.Resolve(row, params)) > 0, nil
	case OpGte:
		return Compare(l, c.Right.Resolve(row, params)) >= 0, nil
	case OpIs:
		return sameNullity(l, c.Right.Resolve(row, params)), nil
	case OpIsNot:
		return !sameNullity(l, c.Right.Resolve(row, params)), nil
	case OpLike, OpILike:
		return likeMatch(l, c.Right.Resolve(row, params), c.Op == OpILike), nil
	case OpNotLike, OpNotILike:
		return !likeMatch(l, c.Right.Resolve(row, params), c.Op == OpNotILike), nil
	case OpIn, OpNotIn:
		// Right is expected to be a literal/param carrying a comma-joined
		// string set in this core (the builder layer is responsible for
		// expanding real list literals before constructing the tree); here
		// we treat it as "equal to one of Right's string-split values" to
		// keep the condition tree itself list-free.
		rv := c.Right.Resolve(row, params)
		s, _ := rv.AsString()
		found := false
		for _, part := range strings.Split(s, ",") {
			if Equal(l, String(part)) {
				found = true
				break
			}
		}
		if c.Op == OpIn {
			return found, nil
		}
		return !found, nil
	default:
		return false, nil
	}
}

func sameNullity(a, b Value) bool {
	return a.IsNull() == b.IsNull() && (a.IsNull() || Equal(a, b))
}

// likeMatch implements SQL LIKE/ILIKE with % and _ wildcards against string
// values; non-string operands never match.
func likeMatch(v, pattern Value, insensitive bool) bool {
	s, ok := v.AsString()
	if !ok {
		return false
	}
	p, ok := pattern.AsString()
	if !ok {
		return false
	}
	if insensitive {
		s = strings.ToLower(s)
		p = strings.ToLower(p)
	}
	return likeGlob(s, p)
}

// likeGlob matches s against a SQL LIKE pattern p using % (any run) and _
// (single char) wildcards via straightforward recursive backtracking.
func likeGlob(s, p string) bool {
	var match func(si, pi int) bool
	match = func(si, pi int) bool {
		for pi < len(p) {
			switch p[pi] {
			case '%':
				for pi+1 < len(p) && p[pi+1] == '%' {
					pi++
				}
				if pi+1 == len(p) {
					return true
				}
				for k := si; k <= len(s); k++ {
					if match(k, pi+1) {
						return true
					}
				}
				return false
			case '_':
				if si >= len(s) {
					return false
				}
				si++
				pi++
			default:
				if si >= len(s) || s[si] != p[pi] {
					return false
				}
				si++
				pi++
			}
		}
		return si == len(s)
	}
	return match(0, 0)
}
