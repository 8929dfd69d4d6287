// Package operator implements the stream-layer building blocks that sit
// between a source connection and the next stage of the dataflow: simple
// residual filtering and the Output interface stages push into (§4.2, §4.3's
// "operators consume and emit changes synchronously").
package operator

import "github.com/zoravur/ivm-engine/internal/ivm/change"

// Output is implemented by anything that accepts a stream of changes:
// another operator's input side, the view-apply layer, or a test probe.
// It is structurally identical to source.Output so operators can be
// plugged directly into a Connection without either package importing the
// other.
type Output interface {
	Push(change.Change) error
}

// OutputFunc adapts a plain function to Output.
type OutputFunc func(change.Change) error

func (f OutputFunc) Push(c change.Change) error { return f(c) }
