package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pagewatch/internal/bot"
	"pagewatch/internal/checker"
	"pagewatch/internal/config"
	"pagewatch/internal/fetcher"
	"pagewatch/internal/normalize"
	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
	"pagewatch/internal/scheduler"
	"pagewatch/internal/snapshot"
	"pagewatch/internal/storage"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *storage.SQLite
	snapshots *snapshot.Store
	registry  *registry.Registry

	// Set by withMonitor.
	sink      notify.Sink
	checker   *checker.Checker
	scheduler *scheduler.Scheduler
	// bot is nil when Telegram is not configured.
	bot *bot.Bot
}

// loadApp reads the configuration and opens the site registry.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	return newApp(cfg, newLogger(level, cmd.ErrOrStderr()))
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}

	snapshots, err := snapshot.NewStore(cfg.CacheDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		snapshots: snapshots,
		registry:  registry.New(store, snapshots),
	}, nil
}

// withMonitor builds the fetch, check and notification pipeline. The
// Telegram bot is created here when configured since it owns the
// connection the notification sink posts through.
func (a *app) withMonitor() error {
	n, err := normalize.New(normalize.Options{
		Selectors:      a.cfg.Selectors,
		IgnorePatterns: a.cfg.IgnorePatterns,
	})
	if err != nil {
		return fmt.Errorf("build normalizer: %w", err)
	}

	client := &http.Client{}
	opts := fetcher.Options{
		UserAgent:  a.cfg.UserAgent,
		Timeout:    a.cfg.Timeout,
		Retries:    a.cfg.FetchRetries,
		RetryDelay: a.cfg.RetryDelay,
	}
	if a.cfg.RespectRobots {
		opts.Robots = fetcher.NewRobots(client, a.cfg.UserAgent)
	}

	sinks := notify.Multi{notify.NewLogSink(a.log)}
	if a.cfg.TelegramEnabled() {
		b, err := bot.New(a.cfg.TelegramBotToken, a.registry, nil, a.cfg, a.log)
		if err != nil {
			return err
		}
		a.bot = b
		sinks = append(sinks, b.Sink())
	}
	a.sink = sinks

	a.checker = checker.New(fetcher.New(client, opts), n, a.snapshots, a.registry, a.sink, checker.Options{
		RetryAttempts:      a.cfg.RetryAttempts,
		NotifyOnFirstCheck: a.cfg.NotifyOnFirstCheck,
		NotifyOnError:      a.cfg.NotifyOnError,
		IncludeDiff:        a.cfg.IncludeDiff,
		MaxDiffLength:      a.cfg.MaxDiffLength,
	}, a.log)

	a.scheduler = scheduler.New(a.registry, a.checker, scheduler.Options{
		PolitenessDelay:        a.cfg.PolitenessDelay,
		Concurrency:            a.cfg.Concurrency,
		DefaultIntervalMinutes: a.cfg.CheckIntervalMinutes,
	}, a.log)

	if a.bot != nil {
		a.bot.SetRunner(a.scheduler)
	}
	return nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func newLogger(level string, w io.Writer) *slog.Logger {
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
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
