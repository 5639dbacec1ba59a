package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-lesson/internal/api"
	"github.com/p-n-ai/pai-lesson/internal/evaluation"
	"github.com/p-n-ai/pai-lesson/internal/events"
	"github.com/p-n-ai/pai-lesson/internal/lesson"
	"github.com/p-n-ai/pai-lesson/internal/platform/cache"
	"github.com/p-n-ai/pai-lesson/internal/platform/config"
	"github.com/p-n-ai/pai-lesson/internal/platform/database"
	"github.com/p-n-ai/pai-lesson/internal/platform/resilience"
	"github.com/p-n-ai/pai-lesson/internal/progress"
	"github.com/p-n-ai/pai-lesson/internal/session"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var opts []api.Option

	var db *database.DB
	if cfg.NeedsDatabase() {
		var err error
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(ctx, db.Pool, progress.Migration, session.TelemetryMigration); err != nil {
			return err
		}
		opts = append(opts, api.WithReadyCheck("database", db.Pool.Ping))
		slog.Info("database connected")
	}

	var kv lesson.KV
	if cfg.Lessons.CacheEnabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer func() {
			if err := c.Close(); err != nil {
				slog.Warn("closing cache", "error", err)
			}
		}()
		kv = c
		opts = append(opts, api.WithReadyCheck("cache", c.HealthCheck))
		slog.Info("lesson cache connected", "ttl", cfg.Lessons.CacheTTL)
	}

	source, err := newSource(cfg.Lessons, kv)
	if err != nil {
		return err
	}

	sink, err := newSink(cfg, db)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("closing event publisher", "error", err)
		}
	}()

	var telemetry session.EventLogger
	if cfg.Telemetry.Enabled {
		telemetry = session.NewPostgresEventLogger(db.Pool)
	}

	hub := api.NewHub()
	manager := session.NewManager(session.ManagerConfig{
		Source: source,
		Session: session.Config{
			Evaluator:        evaluation.NewEvaluator(newScorer(cfg.Speech)),
			Sink:             sink,
			Publisher:        publisher,
			Telemetry:        telemetry,
			Media:            hub,
			Notifier:         hub,
			AutosaveInterval: cfg.Session.AutosaveInterval,
			TickInterval:     cfg.Session.TickInterval,
		},
	})
	defer manager.Shutdown()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(manager, hub, opts...).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "lesson_source", cfg.Lessons.Source, "progress_sink", cfg.Progress.Sink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// newSource builds the lesson source, wrapped in kv when it is set.
func newSource(cfg config.LessonsConfig, kv lesson.KV) (lesson.Source, error) {
	var src lesson.Source
	switch cfg.Source {
	case "dir":
		ds, err := lesson.NewDirSource(cfg.Dir)
		if err != nil {
			return nil, err
		}
		src = ds
	default:
		src = lesson.NewHTTPSource(cfg.BaseURL)
	}
	if kv == nil {
		return src, nil
	}
	return lesson.NewCachedSource(src, kv, cfg.CacheTTL), nil
}

func newSink(cfg *config.Config, db *database.DB) (progress.Sink, error) {
	switch cfg.Progress.Sink {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres progress sink needs a database")
		}
		return progress.NewPostgresSink(db.Pool), nil
	case "memory":
		slog.Warn("progress is kept in memory only")
		return progress.NewMemorySink(), nil
	}
	return progress.NewHTTPSink(cfg.Progress.BaseURL), nil
}

func newPublisher(cfg config.KafkaConfig) (events.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		slog.Info("no kafka brokers configured, completion events are dropped")
		return events.NopPublisher{}, nil
	}
	return events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.Brokers, Topic: cfg.Topic})
}

// newScorer returns nil when no pronunciation service is configured; speech
// steps then fail with a retryable error.
func newScorer(cfg config.SpeechConfig) evaluation.Scorer {
	if cfg.URL == "" {
		slog.Warn("no speech service configured")
		return nil
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return evaluation.NewHTTPScorer(cfg.URL,
		evaluation.WithHTTPClient(client),
		evaluation.WithResilience(resilience.Options{MaxAttempts: cfg.MaxAttempts}),
	)
}
