package app

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zoravur/ivm-engine/internal/api"
	"github.com/zoravur/ivm-engine/internal/config"
	"github.com/zoravur/ivm-engine/internal/ivm/source"
	"github.com/zoravur/ivm-engine/internal/mutation"
	"github.com/zoravur/ivm-engine/internal/persistence"
)

// Server bundles the running engine: a persistence-backed store, the
// in-process source directory, the mutation engine sitting in front of it,
// and the HTTP/WS surface api.NewHandler builds over all three.
type Server struct {
	cfg *config.Config
	log *zap.Logger

	store   *persistence.PGStore
	sources *SourceRegistry
	mutate  *mutation.Engine
	mutators *mutation.Registry
	replay  *RowReplay

	httpServer *http.Server
}

// NewServer opens the persistence store at cfg.PersistenceDSN (running
// migrations first) and wires up an empty source registry and mutation
// engine. Call RegisterSource for each table, and register mutators via
// Mutators(), before Run.
func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	if err := persistence.Migrate(cfg.PersistenceDSN); err != nil {
		return nil, err
	}
	store, err := persistence.Open(ctx, cfg.PersistenceDSN)
	if err != nil {
		return nil, err
	}

	sources := NewSourceRegistry()
	mutators := mutation.NewRegistry()
	mutate := mutation.New(store, mutators)
	replay := NewRowReplay(sources, log)

	s := &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		sources:  sources,
		mutate:   mutate,
		mutators: mutators,
		replay:   replay,
	}

	handler := api.NewHandler(api.Deps{
		Sources:  sources,
		Mutate:   mutate,
		Replay:   replay,
		Store:    store,
		Log:      log,
		TickRate: cfg.TickInterval,
	})

	s.httpServer = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
	return s, nil
}

// RegisterSource creates a live source for schema and returns it.
func (s *Server) RegisterSource(schema source.Schema) *source.Source {
	return s.sources.Register(schema)
}

// Mutators is the registry callers install namespace.name mutators into.
func (s *Server) Mutators() *mutation.Registry { return s.mutators }

// LoadFromStore replays every row ever committed to the persistence store
// into the registered sources, bringing them up to the store's current
// state. Call it once, after every table has been registered via
// RegisterSource and before Run.
func (s *Server) LoadFromStore(ctx context.Context) error {
	_, err := s.store.Diff(ctx, "0", s.replay)
	return err
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.store.Close()
}
