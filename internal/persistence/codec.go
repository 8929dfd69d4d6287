package persistence

import (
	"encoding/json"

	"github.com/zoravur/ivm-engine/internal/ivm/value"
)

// wireValue is the JSON-on-the-wire encoding of a value.Value, stored in
// the kv table's value column. Only the field matching Kind is populated.
type wireValue struct {
	Kind  value.Kind      `json:"k"`
	Bool  bool            `json:"b,omitempty"`
	Int   int64           `json:"i,omitempty"`
	Float float64         `json:"f,omitempty"`
	Str   string          `json:"s,omitempty"`
	Bytes []byte          `json:"y,omitempty"`
}

func encodeValue(v value.Value) ([]byte, error) {
	w := wireValue{Kind: v.Kind()}
	switch v.Kind() {
	case value.KindBool:
		w.Bool, _ = v.AsBool()
	case value.KindInt:
		w.Int, _ = v.AsInt()
	case value.KindFloat:
		w.Float, _ = v.AsFloat()
	case value.KindString:
		w.Str, _ = v.AsString()
	case value.KindBytes:
		w.Bytes, _ = v.AsBytes()
	case value.KindJSON:
		raw, _ := v.AsJSON()
		w.Bytes = []byte(raw)
	}
	return json.Marshal(w)
}

func decodeValue(raw []byte) (value.Value, error) {
	var w wireValue
	if err := json.Unmarshal(raw, &w); err != nil {
		return value.Value{}, err
	}
	switch w.Kind {
	case value.KindNull:
		return value.Null(), nil
	case value.KindBool:
		return value.Bool(w.Bool), nil
	case value.KindInt:
		return value.Int(w.Int), nil
	case value.KindFloat:
		return value.Float(w.Float), nil
	case value.KindString:
		return value.String(w.Str), nil
	case value.KindBytes:
		return value.Bytes(w.Bytes), nil
	case value.KindJSON:
		return value.JSON(w.Bytes), nil
	default:
		return value.Null(), nil
	}
}
