package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tweetvault/tweetvault/pkg/archive"
	"github.com/tweetvault/tweetvault/pkg/infrastructure/config"
	"github.com/tweetvault/tweetvault/pkg/search"
	"github.com/tweetvault/tweetvault/pkg/stream"
	"github.com/tweetvault/tweetvault/pkg/tweets"
	"github.com/tweetvault/tweetvault/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := tweets.NewRepository(ctx, &tweets.RepositoryConfig{
		ConnectionString: cfg.Database.URL,
		MaxConnections:   int32(cfg.Database.MaxConnections),
		ConnectTimeout:   time.Duration(cfg.Database.ConnectTimeout) * time.Second,
		MigrationsPath:   cfg.Database.MigrationsPath,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.MigrateToLatest(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("database ready")

	index, err := search.Open(cfg.Search.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open search index: %w", err)
	}
	defer index.Close()

	docCount, err := index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to read search index: %w", err)
	}
	logger.Info("search index ready", "path", cfg.Search.IndexPath, "docs", docCount)

	storage := tweets.NewStorageService(repo, index, logger)
	resolver := tweets.NewHierarchyResolver(repo)
	searchSvc := search.NewService(index, repo, logger, cfg.Search.MaxResults)
	importer := archive.NewImporter(storage, logger)

	if cfg.Stream.URL != "" {
		subscriber := stream.NewSubscriber(cfg.Stream.URL, storage, logger,
			time.Duration(cfg.Stream.ReconnectSeconds)*time.Second)
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("stream subscriber stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(cfg.Server.Listen, searchSvc, resolver, importer, logger)
	return server.Start(ctx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
