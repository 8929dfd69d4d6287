package value

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeKey returns a canonical, deterministic string encoding of a key
// tuple, given the column names it was drawn from. The format is stable
// across rebuilds: base64("col=val,col=val,...").
//
// Adapted from the handle-encoding scheme used for edit handles in the
// teacher lineage (schema.table|col=val pairs, base64-wrapped) — here it
// encodes plain key tuples rather than client-facing edit handles. The join
// operators and secondary indexes do not call it: joins build result ids
// with their own compositeID and indexes key by Ordering.Canonical.
func EncodeKey(cols []string, vals []Value) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v := Null()
		if i < len(vals) {
			v = vals[i]
		}
		parts[i] = fmt.Sprintf("%s=%s", c, v.String())
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(parts, ",")))
}

// JoinResultID joins two encoded keys into one composite id of the §3.4
// shape, aKey + "|" + bKey: stable across rebuilds and unique per
// (a_pk, b_pk) pair. The join package does not use it.
func JoinResultID(aKey, bKey string) string {
	return aKey + "|" + bKey
}
