package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ink-prompts/internal/composer"
	"github.com/jonathan/ink-prompts/internal/config"
	"github.com/jonathan/ink-prompts/internal/db"
	"github.com/jonathan/ink-prompts/internal/db/sqlite"
	"github.com/jonathan/ink-prompts/internal/fetch"
	"github.com/jonathan/ink-prompts/internal/llm"
	"github.com/jonathan/ink-prompts/internal/logging"
	"github.com/jonathan/ink-prompts/internal/orchestrator"
	"github.com/jonathan/ink-prompts/internal/pipeline"
	"github.com/jonathan/ink-prompts/internal/research"
	"github.com/jonathan/ink-prompts/internal/server"
	"github.com/jonathan/ink-prompts/internal/visual"
	"github.com/rs/zerolog"
)

// store is everything the commands need from either backend.
type store interface {
	orchestrator.Store
	server.Store
	GetUserIDByExternalID(ctx context.Context, externalID string) (uuid.UUID, error)
	SetUserInterests(ctx context.Context, userID uuid.UUID, interests []string) error
	EnsureSchema(ctx context.Context) error
	Close() error
}

var (
	_ store = (*db.DB)(nil)
	_ store = (*sqlite.Store)(nil)
)

// app holds the wired components for one process.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	store        store
	orchestrator *orchestrator.Orchestrator
	closers      []func() error
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.App.Env, cfg.App.LogLevel), nil
}

// openStore picks SQLite or Postgres from the database URL.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, error) {
	if cfg.IsSQLite() {
		s, err := sqlite.Open(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	d, err := db.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// newApp connects the store and builds the generation stack. Upstream
// clients without credentials are left out; the components then produce
// fallback content.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: st, closers: []func() error{st.Close}}

	if err := st.EnsureSchema(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	runner, err := a.buildRunner(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	a.orchestrator = orchestrator.New(orchestrator.Options{
		Store:                  st,
		Runner:                 runner,
		Dispatcher:             orchestrator.NewDispatcher(cfg.Jobs.MaxConcurrent),
		InterestsPerGeneration: cfg.Jobs.InterestsPerGeneration,
		JobTimeout:             cfg.Jobs.Timeout,
		DailyBatchSize:         cfg.Jobs.DailyBatchSize,
		DailyBatchPause:        cfg.Jobs.DailyBatchPause,
		Location:               loc,
		Logger:                 &a.logger,
	})
	return a, nil
}

func (a *app) buildRunner(ctx context.Context) (*pipeline.Runner, error) {
	cfg := a.cfg

	var textClient llm.Client
	llmCfg := llm.DefaultConfig().
		WithModel(llm.TierStandard, cfg.Gemini.ResearchModel).
		WithModel(llm.TierAdvanced, cfg.Gemini.ComposerModel)
	llmCfg.Fallback = cfg.Gemini.FallbackModel

	client, err := llm.NewClient(ctx, llmCfg, cfg.Gemini.APIKey)
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		a.logger.Warn().Msg("GEMINI_API_KEY not set; research and composition will use fallback content")
	case err != nil:
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	default:
		textClient = client
		a.closers = append(a.closers, client.Close)
	}

	var searcher research.Searcher
	if cfg.Search.APIKey != "" && cfg.Search.EngineID != "" {
		cs, err := research.NewCustomSearch(ctx, cfg.Search.APIKey, cfg.Search.EngineID, cfg.Search.MaxResults)
		if err != nil {
			return nil, fmt.Errorf("failed to create search client: %w", err)
		}
		searcher = cs
	}

	imageClient, err := visual.NewClient(visual.ClientOptions{
		APIKey:        cfg.Images.APIKey,
		BaseURL:       cfg.Images.BaseURL,
		Model:         cfg.Images.Model,
		FallbackModel: cfg.Images.FallbackModel,
		Size:          cfg.Images.Size,
		MaxRetries:    cfg.Images.MaxRetries,
		RetryDelay:    cfg.Images.RetryDelay,
		Timeout:       cfg.Images.Timeout,
		Logger:        &a.logger,
	})
	if errors.Is(err, visual.ErrMissingAPIKey) {
		a.logger.Warn().Msg("IMAGE_API_KEY not set; prompts will be created without images")
		imageClient = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to create image client: %w", err)
	}

	var pages research.PageFetcher
	if searcher != nil && cfg.Research.EnrichSources {
		opts := fetch.DefaultOptions()
		opts.Timeout = cfg.Research.PageTimeout
		pages = fetch.NewCachedFetcher(fetch.CachedFetcherConfig{
			CacheTTL: cfg.Research.PageCacheTTL,
			Options:  opts,
		})
	}

	collector := research.NewCollector(research.Options{
		LLM:         textClient,
		Search:      searcher,
		Pages:       pages,
		Timeout:     cfg.Research.Timeout,
		Temperature: cfg.Research.Temperature,
		Logger:      &a.logger,
	})
	comp := composer.New(composer.Options{
		LLM:                textClient,
		HookMinWords:       cfg.Composer.HookMinWords,
		HookMaxWords:       cfg.Composer.HookMaxWords,
		BlurbMaxParagraphs: cfg.Composer.BlurbMaxParagraphs,
		Temperature:        cfg.Composer.Temperature,
		MaxOutputTokens:    cfg.Composer.MaxOutputTokens,
		Logger:             &a.logger,
	})

	return pipeline.NewRunner(collector, comp, visual.NewComposer(imageClient, &a.logger), &a.logger), nil
}

// resolveUser maps an external id to the internal user id.
func (a *app) resolveUser(ctx context.Context, externalID string) (uuid.UUID, error) {
	id, err := a.store.GetUserIDByExternalID(ctx, externalID)
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("no user with external id %q", externalID)
	}
	return id, nil
}

// Close waits for background jobs and releases clients in reverse order.
func (a *app) Close() error {
	if a.orchestrator != nil {
		a.orchestrator.Dispatcher().Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
