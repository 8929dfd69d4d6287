package api

import (
	"encoding/json"
	"fmt"

	"github.com/zoravur/ivm-engine/internal/ivm/query"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// queryDTO is the wire shape of a subscribe/query request's query-builder
// tree (§6.1's query/relationship/and/or/not/cmp grammar, JSON-shaped for
// the WS and HTTP surface).
type queryDTO struct {
	Table        string            `json:"table"`
	Where        json.RawMessage   `json:"where,omitempty"`
	OrderBy      []orderColDTO     `json:"orderBy,omitempty"`
	Relationship *relationshipDTO  `json:"relationship,omitempty"`
}

type orderColDTO struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

type relationshipDTO struct {
	Name         string          `json:"name"`
	Kind         string          `json:"kind"` // "inner" | "left"
	Table        string          `json:"table"`
	ParentColumn string          `json:"parentColumn"`
	ChildColumn  string          `json:"childColumn"`
	Where        json.RawMessage `json:"where,omitempty"`
}

// conditionDTO is a tagged union over §3.1's condition tree: exactly one of
// And, Or, Not, Cmp, or Exists is set, selected by Type.
type conditionDTO struct {
	Type string          `json:"type"` // "and" | "or" | "not" | "cmp" | "exists"
	Conds []conditionDTO `json:"conds,omitempty"`
	Cond  *conditionDTO  `json:"cond,omitempty"`

	Column  string          `json:"column,omitempty"`
	Op      string          `json:"op,omitempty"`
	Literal json.RawMessage `json:"literal,omitempty"`
	Param   string          `json:"param,omitempty"`
	Right   string          `json:"rightColumn,omitempty"`

	// exists: a correlated subquery (§6.1 relationship's correlation{parent_field[],
	// child_field[]}), resolved against a live table at compile time since
	// the decoder here has no source registry to run it against.
	Negate        bool            `json:"negate,omitempty"`
	Table         string          `json:"table,omitempty"`
	ParentColumns []string        `json:"parentColumns,omitempty"`
	ChildColumns  []string        `json:"childColumns,omitempty"`
	Subquery      *conditionDTO   `json:"subquery,omitempty"`
}

func decodeQuery(raw []byte) (*query.Query, error) {
	var dto queryDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("api: decode query: %w", err)
	}
	if dto.Table == "" {
		return nil, fmt.Errorf("api: query missing table")
	}

	where, err := decodeCondition(dto.Where)
	if err != nil {
		return nil, err
	}

	ordering := make(value.Ordering, len(dto.OrderBy))
	for i, c := range dto.OrderBy {
		ordering[i] = value.OrderCol{Column: c.Column, Desc: c.Desc}
	}

	q := &query.Query{Table: dto.Table, Where: where, OrderBy: ordering}

	if dto.Relationship != nil {
		rel, err := decodeRelationship(dto.Relationship)
		if err != nil {
			return nil, err
		}
		q.Relationship = rel
	}

	return q, nil
}

func decodeRelationship(r *relationshipDTO) (*query.Relationship, error) {
	var kind query.RelationshipKind
	switch r.Kind {
	case "", "inner":
		kind = query.RelationshipInner
	case "left":
		kind = query.RelationshipLeft
	default:
		return nil, fmt.Errorf("api: unknown relationship kind %q", r.Kind)
	}

	cond, err := decodeCondition(r.Where)
	if err != nil {
		return nil, err
	}

	return &query.Relationship{
		Name:         r.Name,
		Kind:         kind,
		Table:        r.Table,
		ParentColumn: r.ParentColumn,
		ChildColumn:  r.ChildColumn,
		Where:        cond,
	}, nil
}

func decodeCondition(raw json.RawMessage) (value.Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var dto conditionDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("api: decode condition: %w", err)
	}
	return buildCondition(dto)
}

func buildCondition(dto conditionDTO) (value.Condition, error) {
	switch dto.Type {
	case "and":
		conds := make([]value.Condition, len(dto.Conds))
		for i, c := range dto.Conds {
			built, err := buildCondition(c)
			if err != nil {
				return nil, err
			}
			conds[i] = built
		}
		return value.And{Conds: conds}, nil
	case "or":
		conds := make([]value.Condition, len(dto.Conds))
		for i, c := range dto.Conds {
			built, err := buildCondition(c)
			if err != nil {
				return nil, err
			}
			conds[i] = built
		}
		return value.Or{Conds: conds}, nil
	case "not":
		if dto.Cond == nil {
			return nil, fmt.Errorf("api: not condition missing cond")
		}
		built, err := buildCondition(*dto.Cond)
		if err != nil {
			return nil, err
		}
		return value.Not{Cond: built}, nil
	case "cmp":
		left := value.ColumnOperand(dto.Column)
		var right value.Operand
		switch {
		case dto.Param != "":
			right = value.ParamOperand(dto.Param)
		case dto.Right != "":
			right = value.ColumnOperand(dto.Right)
		default:
			lit, err := decodeLiteral(dto.Literal)
			if err != nil {
				return nil, err
			}
			right = value.LiteralOperand(lit)
		}
		return value.Simple{Left: left, Op: value.Op(dto.Op), Right: right}, nil
	case "exists":
		if dto.Table == "" {
			return nil, fmt.Errorf("api: exists condition missing table")
		}
		if len(dto.ParentColumns) == 0 || len(dto.ParentColumns) != len(dto.ChildColumns) {
			return nil, fmt.Errorf("api: exists condition needs matching parentColumns/childColumns")
		}
		var sub value.Condition
		if dto.Subquery != nil {
			built, err := buildCondition(*dto.Subquery)
			if err != nil {
				return nil, err
			}
			sub = built
		}
		return value.UnresolvedExists{
			Negate:        dto.Negate,
			Table:         dto.Table,
			ParentColumns: dto.ParentColumns,
			ChildColumns:  dto.ChildColumns,
			Where:         sub,
		}, nil
	default:
		return nil, fmt.Errorf("api: unknown condition type %q", dto.Type)
	}
}

func decodeLiteral(raw json.RawMessage) (value.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return value.Null(), nil
	}
	var g any
	if err := json.Unmarshal(raw, &g); err != nil {
		return value.Value{}, fmt.Errorf("api: decode literal: %w", err)
	}
	switch x := g.(type) {
	case bool:
		return value.Bool(x), nil
	case float64:
		return value.Float(x), nil
	case string:
		return value.String(x), nil
	default:
		return value.Value{}, fmt.Errorf("api: unsupported literal type %T", g)
	}
}
