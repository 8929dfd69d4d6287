package source

import (
	"fmt"

	"github.com/zoravur/ivm-engine/internal/ivm/ivmerr"
)

func errUnknownColumn(col string) error {
	return ivmerr.New(ivmerr.KindSchemaVersionNotSupported, fmt.Sprintf("unknown column %q", col))
}

func errMissingPK(col string) error {
	return ivmerr.New(ivmerr.KindSchemaVersionNotSupported, fmt.Sprintf("missing primary key column %q", col))
}

func errDuplicateAdd(table string) error {
	return ivmerr.New(ivmerr.KindInvariant, fmt.Sprintf("add on %s: row already present", table))
}

func errMissingRow(table, op string) error {
	return ivmerr.New(ivmerr.KindInvariant, fmt.Sprintf("%s on %s: old row absent", op, table))
}

func errStaleIterator() error {
	return ivmerr.New(ivmerr.KindStaleIterator, "fetch iterator invalidated by a subsequent push")
}
