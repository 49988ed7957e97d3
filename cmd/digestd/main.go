package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rss_digest/internal/config"
	"rss_digest/internal/fetcher"
	"rss_digest/internal/llm"
	"rss_digest/internal/newsletter"
	"rss_digest/internal/refresh"
	"rss_digest/internal/scheduler"
	"rss_digest/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:           "digestd",
		Short:         "RSS digest service: feeds in, AI-written newsletters out",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), refreshCmd())

	if err := root.Execute(); err != nil {
		slog.Error("digestd", "error", err)
		os.Exit(1)
	}
}

// app holds the long-lived components shared by every command.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.SQLite
	orch  *refresh.Orchestrator
	svc   *newsletter.Service
	warm  *scheduler.Scheduler
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}

	f := fetcher.New(http.DefaultClient)
	f.SetTimeout(cfg.FetchTimeout)

	orch := refresh.New(f, store, log, refresh.Options{
		Window:      cfg.FreshnessWindow,
		Limit:       cfg.ArticleLimit,
		Concurrency: cfg.RefreshConcurrency,
		Timeout:     cfg.FetchTimeout,
		Rate:        cfg.FetchRate,
	})

	gen := llm.New(llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
	}, log)

	svc := newsletter.New(store, f, orch, gen, log)
	svc.SetTimeout(cfg.GenerationTimeout)

	return &app{
		cfg:   cfg,
		log:   log,
		store: store,
		orch:  orch,
		svc:   svc,
		warm:  scheduler.New(store, orch, log, cfg.WarmInterval),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("close database", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
