// Package bootstrap wires the batch manager from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-batch/internal/application"
	appbatch "github.com/bryanwahyu/automaton-batch/internal/application/batch"
	"github.com/bryanwahyu/automaton-batch/internal/config"
	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
	"github.com/bryanwahyu/automaton-batch/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-batch/internal/infra/ai/prompt"
	"github.com/bryanwahyu/automaton-batch/internal/infra/db/filestore"
	mysqlp "github.com/bryanwahyu/automaton-batch/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-batch/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-batch/internal/infra/db/sqlite"
	"github.com/bryanwahyu/automaton-batch/internal/infra/items"
	"github.com/bryanwahyu/automaton-batch/internal/infra/storage"
	"github.com/bryanwahyu/automaton-batch/internal/middleware"
)

type App struct {
	Manager  *appbatch.Manager
	Registry *prompt.Registry
	Checkers map[string]middleware.HealthChecker
	db       *sql.DB
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Build connects the configured store, provider and optional artifact mirror.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, errors.New("openai api key is not set (OPENAI_API_KEY)")
	}
	app := &App{Registry: prompt.NewRegistry(), Checkers: map[string]middleware.HealthChecker{}}

	repo, err := app.openStore(ctx, cfg, log)
	if err != nil {
		app.Close()
		return nil, err
	}

	m := &appbatch.Manager{
		Repo:       repo,
		Provider:   openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, log.Named("openai")),
		Builder:    &openai.InputBuilder{Dir: cfg.InputsDir(), Processors: app.Registry},
		Processors: app.Registry,
		Clock:      application.SystemClock{},
		Log:        log.Named("batch"),

		OutputsDir:  cfg.OutputsDir(),
		ResultsDir:  cfg.ResultsDir(),
		CallTimeout: cfg.OpenAI.RequestTimeout,
	}
	if cfg.Items.Inventory != "" {
		m.Items = &items.Inventory{Path: cfg.Items.Inventory}
	}
	if cfg.Minio.Enabled {
		st, err := storage.New(ctx, storage.Options{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			Prefix:    cfg.Minio.Prefix,
		}, log.Named("minio"))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		m.Artifacts = st
	}
	app.Manager = m
	app.Checkers["data_dir"] = &middleware.DirHealthChecker{Dir: cfg.Store.DataDir}
	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (domain.Repository, error) {
	slog := log.Named("store")
	switch cfg.Store.Driver {
	case "file":
		return filestore.NewJobRepository(cfg.JobsDir(), slog)
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.Checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return sqlite.NewJobRepository(db, slog), nil
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		a.db = db
		r := mysqlp.NewJobRepository(db, slog)
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("mysql schema: %w", err)
		}
		a.Checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return r, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		a.db = db
		r := postgres.NewJobRepository(db, slog)
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		a.Checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		return r, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
