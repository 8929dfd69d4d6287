// Package api implements the query-builder HTTP/WS surface: a WebSocket
// endpoint that turns a JSON query-builder tree into a live subscription,
// a POST endpoint for one-shot mutations, and a debug endpoint reporting
// how many snapshot pokes the websocket subscriptions have sent.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zoravur/ivm-engine/internal/ivm/poke"
	"github.com/zoravur/ivm-engine/internal/ivm/query"
	"github.com/zoravur/ivm-engine/internal/mutation"
	"github.com/zoravur/ivm-engine/internal/persistence"
)

// Deps are the shared resources every handler in this package needs,
// injected from app.Server, the same role WSHandler's struct fields played
// in the teacher's version, generalized to every handler rather than just
// the websocket one.
type Deps struct {
	Sources  query.Registry
	Mutate   *mutation.Engine
	Replay   mutation.Replay
	Store    persistence.Store
	Log      *zap.Logger
	TickRate time.Duration
}

// pokeStatsAggregate accumulates, as Total, the number of snapshots each
// websocket subscription's pump sent, added when that pump exits, so the
// debug endpoint can report totals across the server's lifetime rather than
// just the currently-open set. No caller sets Missed, so missed stays 0.
type pokeStatsAggregate struct {
	mu     sync.Mutex
	total  int
	missed int
}

func (a *pokeStatsAggregate) add(s poke.Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total += s.Total
	a.missed += s.Missed
}

func (a *pokeStatsAggregate) snapshot() poke.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return poke.Stats{Total: a.total, Missed: a.missed}
}

// NewHandler builds the full router: the WS subscription endpoint, the
// mutation endpoint, and the debug poke-stats endpoint, with
// LoggingMiddleware applied to everything but the WS upgrade (matching the
// teacher's routes.go, which keeps the WS route outside any middleware that
// wraps the response writer).
func NewHandler(deps Deps) http.Handler {
	stats := &pokeStatsAggregate{}
	ws := &WSHandler{deps: deps, stats: stats}
	mut := &MutateHandler{deps: deps}

	r := chi.NewRouter()
	r.Get("/api/ws", ws.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(NewLoggingMiddleware(deps.Log))
		r.Route("/api", func(r chi.Router) {
			r.Post("/mutate", mut.HandleMutate)
			r.Get("/debug/poke-stats", handlePokeStats(stats))
		})
	})

	return r
}
