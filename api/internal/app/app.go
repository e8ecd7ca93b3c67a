// Package app wires configuration, engines, retrieval and persistence into
// the pieces both binaries serve.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"school-time-bot/api/internal/config"
	"school-time-bot/api/internal/corpus"
	"school-time-bot/api/internal/generate"
	"school-time-bot/api/internal/llm"
	"school-time-bot/api/internal/llm/gemini"
	"school-time-bot/api/internal/llm/openai"
	"school-time-bot/api/internal/logger"
	"school-time-bot/api/internal/prompt"
	"school-time-bot/api/internal/store"
	"school-time-bot/api/internal/wizard"
)

type App struct {
	Cfg      *config.Config
	Log      *logger.Logger
	Engines  *llm.Engines
	Default  llm.Engine
	Gateway  *generate.Gateway
	Sessions *wizard.Store

	// DB and Repo are nil when no database is configured.
	DB   *sql.DB
	Repo *store.GenerationRepo
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log, Sessions: wizard.NewStore()}

	a.Engines = &llm.Engines{}
	if cfg.OpenAIAPIKey != "" {
		a.Engines.OpenAI = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIEmbedModel, cfg.OpenAIBaseURL)
	}
	if cfg.GeminiAPIKey != "" {
		a.Engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEmbedModel)
	}
	def, err := a.Engines.GetEngine(cfg.DefaultEngine)
	if err != nil {
		def = a.Engines.OpenAI
		if def == nil {
			def = a.Engines.Gemini
		}
		log.Warn("default engine unavailable, falling back", "wanted", cfg.DefaultEngine, "using", def.Name())
	}
	a.Default = def

	prompts, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}

	opts := []generate.Option{generate.WithLessonBatches(cfg.LessonBatchSize, cfg.LessonBatchDelay)}

	if emb, ok := def.(llm.Embedder); ok {
		ix, err := corpus.Open(ctx, cfg.IndexDir, cfg.DocumentsDir, emb, log)
		switch {
		case errors.Is(err, corpus.ErrNoDocuments):
			log.Warn("corpus disabled: no documents", "dir", cfg.DocumentsDir)
		case err != nil:
			log.Warn("corpus disabled", "error", err)
		default:
			opts = append(opts, generate.WithCorpus(ix))
		}
	}

	if cfg.DatabaseURL != "" {
		if err := a.openDB(ctx); err != nil {
			return nil, err
		}
		opts = append(opts, generate.WithRecorder(a.Repo))
	}

	a.Gateway = generate.New(def, prompts, log, opts...)
	return a, nil
}

func (a *App) openDB(ctx context.Context) error {
	db, err := sql.Open("pgx", a.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("db.Ping: %w", err)
	}
	repo := store.NewGenerationRepo(db)
	if err := repo.EnsureSchema(pctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.Log.Info("db connected", "dsn", config.SafeDSNSummary(a.Cfg.DatabaseURL))
	a.DB, a.Repo = db, repo
	return nil
}

// History exposes the generation log, or nil when no database is configured.
func (a *App) History() store.History {
	if a.Repo == nil {
		return nil
	}
	return a.Repo
}

func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
	a.Log.Sync()
}

// Janitor expires idle sessions and purges old generation records every
// interval until ctx is done.
func (a *App) Janitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sweep(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	if n := a.Sessions.Expire(a.Cfg.SessionTTL); n > 0 {
		a.Log.Info("sessions expired", "count", n)
	}
	if a.Repo == nil {
		return
	}
	n, err := a.Repo.PurgeOlderThan(ctx, a.Cfg.GenerationRetention)
	if err != nil {
		a.Log.Warn("purge generations failed", "error", err)
		return
	}
	if n > 0 {
		a.Log.Info("generations purged", "count", n)
	}
}

// Healthz reports ok, or 503 when the configured database does not answer.
func (a *App) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if a.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
