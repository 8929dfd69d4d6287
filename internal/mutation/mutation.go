// Package mutation implements the engine's one door in from client writes:
// a mutator registry keyed by (namespace, name), and begin_mutation/batch
// wrappers around persistence.Store.WriteTransaction that replay the
// resulting diff back into sources afterward (§6.2).
//
// All mutation execution is serialized through a single mutex, modeling the
// single-threaded cooperative executor the rest of the engine assumes: a
// source never sees two concurrent Push calls.
package mutation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zoravur/ivm-engine/internal/ivm/value"
	"github.com/zoravur/ivm-engine/internal/persistence"
)

// Func is a registered mutator's implementation: it reads/writes through tx
// and returns an error to abort the enclosing transaction.
type Func func(ctx context.Context, tx persistence.Tx, args value.Value) error

// Registry holds mutators keyed by namespace then name, in nested maps
// guarded by an RWMutex.
type Registry struct {
	mu       sync.RWMutex
	mutators map[string]map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{mutators: make(map[string]map[string]Func)}
}

// Register installs impl under namespace.name, overwriting any mutator
// already registered there.
func (r *Registry) Register(namespace, name string, impl Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.mutators[namespace]
	if !ok {
		ns = make(map[string]Func)
		r.mutators[namespace] = ns
	}
	ns[name] = impl
}

func (r *Registry) lookup(namespace, name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.mutators[namespace]
	if !ok {
		return nil, false
	}
	fn, ok := ns[name]
	return fn, ok
}

// Replay receives the rows a committed mutation's diff produces, so the
// caller can push them into the affected sources.
type Replay interface {
	Put(key string, val value.Value) error
	Del(key string) error
}

// Engine is the mutation entry point wired to one persistence.Store and one
// Registry. All BeginMutation/Batch calls on an Engine run one at a time.
type Engine struct {
	store    persistence.Store
	registry *Registry

	mu sync.Mutex

	// inBatch is read before mu is ever acquired, so a mutator called from
	// inside its own Batch callback (same goroutine) can be rejected without
	// re-entering the non-reentrant mu.
	inBatch atomic.Bool
}

func New(store persistence.Store, registry *Registry) *Engine {
	return &Engine{store: store, registry: registry}
}

// BeginMutation looks up "namespace.name", runs it in a WriteTransaction,
// then replays the resulting diff into replay. It must not be called from
// inside a Batch callback, use the Handle passed to f instead.
func (e *Engine) BeginMutation(ctx context.Context, qualifiedName string, args value.Value, replay Replay) error {
	if e.inBatch.Load() {
		return fmt.Errorf("mutation: begin_mutation called directly while a batch is in progress; use the batch handle")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(ctx, qualifiedName, args, replay)
}

// run assumes e.mu is already held.
func (e *Engine) run(ctx context.Context, qualifiedName string, args value.Value, replay Replay) error {
	namespace, name, ok := splitQualified(qualifiedName)
	if !ok {
		return fmt.Errorf("mutation: malformed mutator name %q, want \"namespace.name\"", qualifiedName)
	}

	fn, ok := e.registry.lookup(namespace, name)
	if !ok {
		return fmt.Errorf("mutation: no mutator registered for %s.%s", namespace, name)
	}

	before, err := e.store.Cookie(ctx)
	if err != nil {
		return fmt.Errorf("mutation: read cookie before %s.%s: %w", namespace, name, err)
	}

	if err := e.store.WriteTransaction(ctx, func(tx persistence.Tx) error {
		return fn(ctx, tx, args)
	}); err != nil {
		return fmt.Errorf("mutation: %s.%s: %w", namespace, name, err)
	}

	if replay == nil {
		return nil
	}
	_, err = e.store.Diff(ctx, before, replay)
	return err
}

// Handle is passed to a Batch callback; it is the only way to invoke
// mutators while a batch is open.
type Handle struct {
	engine *Engine
}

// Mutate runs qualifiedName as part of the enclosing batch.
func (h *Handle) Mutate(ctx context.Context, qualifiedName string, args value.Value, replay Replay) error {
	return h.engine.run(ctx, qualifiedName, args, replay)
}

// Batch runs f with a Handle that serializes every mutation it issues onto
// this Engine. Nesting, calling Batch again from inside f, whether directly
// or via a Handle obtained from an outer call, is rejected.
func (e *Engine) Batch(f func(h *Handle) error) error {
	if !e.inBatch.CompareAndSwap(false, true) {
		return fmt.Errorf("mutation: batch cannot be nested")
	}
	defer e.inBatch.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	return f(&Handle{engine: e})
}

func splitQualified(qualifiedName string) (namespace, name string, ok bool) {
	i := strings.IndexByte(qualifiedName, '.')
	if i < 0 || i == 0 || i == len(qualifiedName)-1 {
		return "", "", false
	}
	return qualifiedName[:i], qualifiedName[i+1:], true
}
