package value

// Constraint is a (column, value) equality predicate used to restrict a
// scan to a contiguous prefix of an index (§3.1, §4.1).
type Constraint struct {
	Column string
	Value  Value
}

// Matches reports whether row satisfies c.
func (c Constraint) Matches(row Row) bool {
	return Equal(row.Get(c.Column), c.Value)
}
