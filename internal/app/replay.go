package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zoravur/ivm-engine/internal/common"
	"github.com/zoravur/ivm-engine/internal/ivm/change"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
	"github.com/zoravur/ivm-engine/internal/persistence"
)

// RowReplay is the mutation.Replay / persistence.Sink a committed mutation's
// diff is played into: it turns each put/del at a row's storage key back
// into the add/edit/remove Change the row's source expects.
//
// Correctly distinguishing add from edit (and supplying edit's required old
// row) needs a pre-image. Since persistence.Diff only carries the new value
// at each key, RowReplay keeps its own cache of the last row seen at each
// key: the first time a key is observed it's treated as an add; a delete for
// a key this process never saw before is dropped (logged), since there is no
// pre-image to build a Remove from.
type RowReplay struct {
	registry *SourceRegistry
	log      *zap.Logger

	mu    sync.Mutex
	cache map[string]value.Row
}

// NewRowReplay builds the mutation.Replay sink a Server feeds every
// committed mutation's diff into, so committed rows reach the sources that
// back live queries.
func NewRowReplay(registry *SourceRegistry, log *zap.Logger) *RowReplay {
	return &RowReplay{registry: registry, log: log, cache: make(map[string]value.Row)}
}

func (r *RowReplay) Put(key string, val value.Value) error {
	_, table, _, err := common.DecodeHandle(key)
	if err != nil {
		return nil // not a row key (e.g. a test-fixture column key); not this sink's concern
	}
	src, ok := r.registry.Source(table)
	if !ok {
		return nil
	}

	row, err := persistence.DecodeRow(val, src.Schema())
	if err != nil {
		return err
	}

	r.mu.Lock()
	old, hadOld := r.cache[key]
	r.cache[key] = row
	r.mu.Unlock()

	if hadOld {
		return src.Push(change.Edit(old, row))
	}
	return src.Push(change.Add(&change.Node{Row: row}))
}

func (r *RowReplay) Del(key string) error {
	_, table, _, err := common.DecodeHandle(key)
	if err != nil {
		return nil
	}
	src, ok := r.registry.Source(table)
	if !ok {
		return nil
	}

	r.mu.Lock()
	old, hadOld := r.cache[key]
	delete(r.cache, key)
	r.mu.Unlock()

	if !hadOld {
		if r.log != nil {
			r.log.Warn("mutation replay: delete of a row with no cached pre-image, dropped",
				zap.String("table", table), zap.String("key", key))
		}
		return nil
	}
	return src.Push(change.Remove(&change.Node{Row: old}))
}
