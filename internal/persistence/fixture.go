package persistence

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/zoravur/ivm-engine/internal/common"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// PutFixture reflects over v's exported fields and writes each column as its
// own key under the row's handle (rowKey#column), where rowKey is
// common.EncodeHandle("public", table, pk cols, pk vals). Fields are tagged
// `kv:"col"` (column name), `kv:"col,pk"` to mark a primary-key column, or
// `kv:"-"` to skip. v must be a struct, not a pointer. Returns the row key.
//
// This exists for seeding rows in tests without hand-writing value.Row
// literals for every fixture.
func PutFixture(ctx context.Context, s Store, table string, v any) (string, error) {
	row, pkCols, pkVals, err := structToRow(v)
	if err != nil {
		return "", err
	}
	rowKey := common.EncodeHandle("public", table, pkCols, pkVals)

	return rowKey, s.WriteTransaction(ctx, func(tx Tx) error {
		for col, val := range row {
			if err := tx.Put(ctx, rowKey+"#"+col, val); err != nil {
				return err
			}
		}
		return nil
	})
}

func structToRow(v any) (row value.Row, pkCols []string, pkVals []any, err error) {
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	if rt.Kind() != reflect.Struct {
		return nil, nil, nil, fmt.Errorf("persistence: PutFixture requires a struct, got %s", rt.Kind())
	}

	row = value.Row{}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag := f.Tag.Get("kv")
		if tag == "-" {
			continue
		}
		if tag == "" {
			continue
		}

		parts := strings.Split(tag, ",")
		col := parts[0]
		isPK := len(parts) > 1 && parts[1] == "pk"

		val, err := goToValue(rv.Field(i).Interface())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("persistence: field %s: %w", f.Name, err)
		}
		row[col] = val

		if isPK {
			pkCols = append(pkCols, col)
			pkVals = append(pkVals, rv.Field(i).Interface())
		}
	}

	if len(pkCols) == 0 {
		return nil, nil, nil, fmt.Errorf("persistence: struct %s has no field tagged kv:\"col,pk\"", rt.Name())
	}
	return row, pkCols, pkVals, nil
}

func goToValue(g any) (value.Value, error) {
	switch x := g.(type) {
	case int64:
		return value.Int(x), nil
	case int:
		return value.Int(int64(x)), nil
	case string:
		return value.String(x), nil
	case bool:
		return value.Bool(x), nil
	case float64:
		return value.Float(x), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported fixture field type %T", g)
	}
}
