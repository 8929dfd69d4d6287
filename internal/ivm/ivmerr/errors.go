// Package ivmerr defines the structured error taxonomy used at the engine's
// external boundaries (§6.3, §7 of the design). Internal packages mostly
// return plain wrapped errors; this taxonomy exists for the handful of kinds
// the mutation layer, the connection layer, and the poke scheduler need to
// branch on.
package ivmerr

import "fmt"

// Kind classifies an error for the benefit of the embedding layer. The
// mutation/session glue decides how to react (abort transaction, trigger a
// full reset, request a cold start, resync) based on Kind alone.
type Kind string

const (
	// KindInvariant marks a programmer error inside a push: duplicate add,
	// missing remove/edit target. The source state is left unchanged.
	KindInvariant Kind = "Invariant"

	// KindInvalidMessage marks a malformed poke or unknown change type.
	KindInvalidMessage Kind = "InvalidMessage"

	// KindInvalidConnectionRequestBaseCookie marks a base cookie that
	// precedes the server's view; triggers a full reset.
	KindInvalidConnectionRequestBaseCookie Kind = "InvalidConnectionRequestBaseCookie"

	// KindClientNotFound marks that the server has no record of this
	// client; triggers a cold start.
	KindClientNotFound Kind = "ClientNotFound"

	// KindOutOfOrder marks two consecutive pokes whose base/cookie don't
	// chain.
	KindOutOfOrder Kind = "OutOfOrder"

	// KindSchemaVersionNotSupported marks that source columns/PK disagree
	// with the schema.
	KindSchemaVersionNotSupported Kind = "SchemaVersionNotSupported"

	// KindStaleIterator marks a fetch cursor invalidated by an intervening
	// push on its source.
	KindStaleIterator Kind = "StaleIterator"
)

// Error is the structured error type consumed by the boundary layers.
type Error struct {
	Kind    Kind
	Message string
	Backoff *int // optional backoff hint in milliseconds
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: cause}
}

// WithBackoff attaches a backoff hint, in milliseconds, and returns the
// receiver for chaining.
func (e *Error) WithBackoff(ms int) *Error {
	e.Backoff = &ms
	return e
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	for err != nil {
		if ie, ok := err.(*Error); ok {
			if ie.Kind == k {
				return true
			}
			err = ie.Wrapped
			continue
		}
		break
	}
	return false
}
