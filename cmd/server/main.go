package main

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoravur/ivm-engine/internal/app"
	"github.com/zoravur/ivm-engine/internal/config"
	"github.com/zoravur/ivm-engine/internal/ivm/source"
	"github.com/zoravur/ivm-engine/internal/ivm/value"
	"github.com/zoravur/ivm-engine/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("config load failed", zap.Error(err))
	}

	var log *zap.Logger
	if cfg.IsProduction() {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		zap.L().Fatal("logger init failed", zap.Error(err))
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx := context.Background()
	srv, err := app.NewServer(ctx, cfg, log)
	if err != nil {
		log.Fatal("server init failed", zap.Error(err))
	}

	registerSchemas(srv)
	registerMutators(srv)

	if err := srv.LoadFromStore(ctx); err != nil {
		log.Fatal("loading persisted rows failed", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

// registerSchemas declares the demo tables this engine instance serves.
// A real deployment would load these from its own schema source; the spec
// leaves schema discovery out of scope, so the set is fixed here.
func registerSchemas(srv *app.Server) {
	srv.RegisterSource(source.Schema{
		TableName: "issue",
		Columns: map[string]source.ColumnType{
			"id":     source.ColString,
			"title":  source.ColString,
			"closed": source.ColBool,
		},
		PrimaryKey: []string{"id"},
	})
	srv.RegisterSource(source.Schema{
		TableName: "comment",
		Columns: map[string]source.ColumnType{
			"id":       source.ColString,
			"issue_id": source.ColString,
			"body":     source.ColString,
		},
		PrimaryKey: []string{"id"},
	})
}

// registerMutators installs the namespace.name mutators clients can invoke
// through POST /api/mutate, each a small read-modify-write against the row
// it owns.
func registerMutators(srv *app.Server) {
	srv.Mutators().Register("issue", "setTitle", func(ctx context.Context, tx persistence.Tx, args value.Value) error {
		id, title, err := issueSetTitleArgs(args)
		if err != nil {
			return err
		}
		row, err := loadRow(ctx, tx, "issue", id)
		if err != nil {
			return err
		}
		row["title"] = value.String(title)
		return putRow(ctx, tx, "issue", id, row)
	})

	srv.Mutators().Register("issue", "close", func(ctx context.Context, tx persistence.Tx, args value.Value) error {
		id, ok := jsonField(args, "id")
		if !ok {
			return fmt.Errorf("issue.close: missing id")
		}
		row, err := loadRow(ctx, tx, "issue", id)
		if err != nil {
			return err
		}
		row["closed"] = value.Bool(true)
		return putRow(ctx, tx, "issue", id, row)
	})
}

func issueSetTitleArgs(args value.Value) (id, title string, err error) {
	id, ok := jsonField(args, "id")
	if !ok {
		return "", "", fmt.Errorf("issue.setTitle: missing id")
	}
	title, ok = jsonField(args, "title")
	if !ok {
		return "", "", fmt.Errorf("issue.setTitle: missing title")
	}
	return id, title, nil
}

// jsonField extracts a string field from a JSON-kinded mutation args value.
func jsonField(args value.Value, field string) (string, bool) {
	raw, ok := args.AsJSON()
	if !ok {
		return "", false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	s, ok := m[field].(string)
	return s, ok
}

func loadRow(ctx context.Context, tx persistence.Tx, table, id string) (value.Row, error) {
	key := rowKeyFor(table, id)
	v, ok, err := tx.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return value.Row{"id": value.String(id)}, nil
	}
	return persistence.DecodeRow(v, issueSchemaFor(table))
}

func putRow(ctx context.Context, tx persistence.Tx, table, id string, row value.Row) error {
	encoded, err := persistence.EncodeRow(row)
	if err != nil {
		return err
	}
	return tx.Put(ctx, rowKeyFor(table, id), encoded)
}

func rowKeyFor(table, id string) string {
	return persistence.RowKey(table, issueSchemaFor(table), value.Row{"id": value.String(id)})
}

// issueSchemaFor mirrors registerSchemas's declarations, needed here because
// mutators encode/decode rows outside the source layer (they write directly
// to the persistence store; replay is what pushes the result back into the
// source).
func issueSchemaFor(table string) source.Schema {
	switch table {
	case "comment":
		return source.Schema{
			TableName: "comment",
			Columns: map[string]source.ColumnType{
				"id":       source.ColString,
				"issue_id": source.ColString,
				"body":     source.ColString,
			},
			PrimaryKey: []string{"id"},
		}
	default:
		return source.Schema{
			TableName: "issue",
			Columns: map[string]source.ColumnType{
				"id":     source.ColString,
				"title":  source.ColString,
				"closed": source.ColBool,
			},
			PrimaryKey: []string{"id"},
		}
	}
}
