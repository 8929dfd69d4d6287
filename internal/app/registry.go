package app

import (
	"sync"

	"github.com/zoravur/ivm-engine/internal/ivm/source"
)

// SourceRegistry is the in-process directory of live sources by table name,
// the same role query.Registry plays for the query compiler and that the
// mutation engine's replay step uses to route a committed key back to the
// source that owns it.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]*source.Source
}

func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{sources: make(map[string]*source.Source)}
}

// Register creates (or replaces) the source backing schema.TableName.
func (r *SourceRegistry) Register(schema source.Schema) *source.Source {
	src := source.New(schema)
	r.mu.Lock()
	r.sources[schema.TableName] = src
	r.mu.Unlock()
	return src
}

// Source implements query.Registry.
func (r *SourceRegistry) Source(table string) (*source.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[table]
	return src, ok
}

// Tables lists every registered table name.
func (r *SourceRegistry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for t := range r.sources {
		out = append(out, t)
	}
	return out
}
