package source

import "github.com/zoravur/ivm-engine/internal/ivm/value"

// ColumnType is the declared type of a schema column.
type ColumnType uint8

const (
	ColNull ColumnType = iota
	ColBool
	ColInt
	ColFloat
	ColString
	ColBytes
	ColJSON
)

// Schema describes one table: its name, its declared columns, and its
// primary key (§3.2).
type Schema struct {
	TableName  string
	Columns    map[string]ColumnType
	PrimaryKey []string
}

// Validate checks a row against the schema: every present column must be
// declared, and the primary key columns must be present. Unspecified
// optional columns read as null and are not required to be present.
func (s Schema) Validate(row value.Row) error {
	for col := range row {
		if _, ok := s.Columns[col]; !ok {
			return errUnknownColumn(col)
		}
	}
	for _, pk := range s.PrimaryKey {
		if row.Get(pk).IsNull() {
			if _, ok := row[pk]; !ok {
				return errMissingPK(pk)
			}
		}
	}
	return nil
}
