package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/zoravur/ivm-engine/internal/common"
	"github.com/zoravur/ivm-engine/internal/ivm/source"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// RowKey returns the storage key for row in table, keyed by schema's
// primary-key columns.
func RowKey(table string, schema source.Schema, row value.Row) string {
	pkVals := make([]any, len(schema.PrimaryKey))
	for i, col := range schema.PrimaryKey {
		pkVals[i] = row.Get(col).String()
	}
	return common.EncodeHandle("public", table, schema.PrimaryKey, pkVals)
}

// EncodeRow packs row into a single JSON-valued Value for storage under one
// key, the shape the mutation engine uses for table rows (as opposed to
// PutFixture's one-key-per-column scheme for test fixtures).
func EncodeRow(row value.Row) (value.Value, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return value.Value{}, fmt.Errorf("persistence: encode row: %w", err)
	}
	return value.JSON(raw), nil
}

// DecodeRow unpacks a Value produced by EncodeRow back into a value.Row,
// consulting schema to know each column's declared type (raw JSON alone
// can't distinguish, say, an int column from a float one).
func DecodeRow(v value.Value, schema source.Schema) (value.Row, error) {
	raw, ok := v.AsJSON()
	if !ok {
		return nil, fmt.Errorf("persistence: decode row: value is not JSON-kinded")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("persistence: decode row: %w", err)
	}

	row := value.Row{}
	for col, colRaw := range fields {
		colType, ok := schema.Columns[col]
		if !ok {
			continue
		}
		val, err := decodeColumn(colType, colRaw)
		if err != nil {
			return nil, fmt.Errorf("persistence: decode row: column %s: %w", col, err)
		}
		row[col] = val
	}
	return row, nil
}

func decodeColumn(colType source.ColumnType, raw json.RawMessage) (value.Value, error) {
	if string(raw) == "null" {
		return value.Null(), nil
	}
	switch colType {
	case source.ColBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return value.Value{}, err
		}
		return value.Bool(b), nil
	case source.ColInt:
		var i int64
		if err := json.Unmarshal(raw, &i); err != nil {
			return value.Value{}, err
		}
		return value.Int(i), nil
	case source.ColFloat:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return value.Value{}, err
		}
		return value.Float(f), nil
	case source.ColString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return value.Value{}, err
		}
		return value.String(s), nil
	case source.ColBytes:
		var b []byte
		if err := json.Unmarshal(raw, &b); err != nil {
			return value.Value{}, err
		}
		return value.Bytes(b), nil
	case source.ColJSON:
		return value.JSON(raw), nil
	default:
		return value.Null(), nil
	}
}
