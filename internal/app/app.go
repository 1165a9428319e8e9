package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/db"
	"github.com/inkwelldiary/inkwell/internal/inference"
	"github.com/inkwelldiary/inkwell/internal/inference/engine"
	"github.com/inkwelldiary/inkwell/internal/inference/engine/mock"
	"github.com/inkwelldiary/inkwell/internal/inference/engine/oaihttp"
	"github.com/inkwelldiary/inkwell/internal/jobs/enrich"
	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/observability"
	"github.com/inkwelldiary/inkwell/internal/repos"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Feed     *repos.ChangeFeed
	Repos    Repos
	Services Services
	LLM      *inference.Client

	worker       *enrich.Worker
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires the full pipeline: logger, store, repos, engine, services.
// Nothing is running yet; Start kicks off the worker and model load.
func New(configPath string) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig(log, configPath)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Sync()
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := db.NewSQLiteService(log, cfg.DBPath)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init sqlite: %w", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("sqlite automigrate: %w", err)
	}
	theDB := store.DB()

	feed := repos.NewChangeFeed(log)
	reposet := wireRepos(theDB, log, feed)

	llm, err := buildInferenceClient(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	serviceset, worker, err := wireServices(theDB, log, cfg, reposet, feed, llm)
	if err != nil {
		log.Sync()
		return nil, err
	}

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Feed:     feed,
		Repos:    reposet,
		Services: serviceset,
		LLM:      llm,
		worker:   worker,
	}, nil
}

func buildInferenceClient(log *logger.Logger, cfg Config) (*inference.Client, error) {
	params := engine.Params{MaxTokens: cfg.Model.MaxTokens, TopK: cfg.Model.TopK}

	switch cfg.Engine.Kind {
	case "mock":
		// Scripted engine for model-less development; no artifact lookup.
		return inference.NewClient(log, mock.New(), inference.Options{
			ModelFilename: cfg.Model.Filename,
			Params:        params,
		}), nil
	case "local", "":
		eng, err := oaihttp.New(oaihttp.Options{
			BaseURL: cfg.Engine.BaseURL,
			APIKey:  cfg.Engine.APIKey,
			Timeout: cfg.Engine.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
		return inference.NewClient(log, eng, inference.Options{
			SearchDirs:    []string{cfg.DataDir, cfg.ExternalDir},
			ModelFilename: cfg.Model.Filename,
			Params:        params,
		}), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Engine.Kind)
	}
}

// Start boots the background pieces: tracing, the enrichment worker, the
// profile singleton, and the model session.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(runCtx, a.Log, observability.OtelConfig{
		ServiceName: "inkwell",
	})

	a.worker.Start(runCtx)

	if _, err := a.Services.Profile.EnsureProfile(runCtx); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	if err := a.LLM.Initialize(runCtx); err != nil {
		return err
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.worker != nil {
		a.worker.Wait()
	}
	if a.LLM != nil {
		a.LLM.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
