package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/benchmark"
	"github.com/sells-group/valuation-cli/internal/ocr"
	"github.com/sells-group/valuation-cli/internal/pipeline"
	"github.com/sells-group/valuation-cli/internal/reader"
	"github.com/sells-group/valuation-cli/internal/store"
	anthropicpkg "github.com/sells-group/valuation-cli/pkg/anthropic"
)

// env bundles the shared runtime dependencies behind the commands.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "valuation.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	benchmarks := benchmark.Default()
	if cfg.Benchmark.Path != "" {
		benchmarks, err = benchmark.Load(cfg.Benchmark.Path)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	pdf, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		st.Close()
		return nil, err
	}

	rd := reader.New(anthropicpkg.NewClient(cfg.Anthropic.Key), reader.Options{
		Model:          cfg.Anthropic.Model,
		MaxTokens:      cfg.Anthropic.MaxTokens,
		RequestsPerMin: cfg.Anthropic.RequestsPerMin,
	})

	p := pipeline.New(cfg, st, reader.NewLoader(pdf), rd, benchmarks)
	return &env{Store: st, Pipeline: p}, nil
}
