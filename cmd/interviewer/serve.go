package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/interviewer/internal/anthropic"
	"github.com/MikeSquared-Agency/interviewer/internal/api"
	"github.com/MikeSquared-Agency/interviewer/internal/boltstore"
	"github.com/MikeSquared-Agency/interviewer/internal/config"
	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
	"github.com/MikeSquared-Agency/interviewer/internal/hermes"
	"github.com/MikeSquared-Agency/interviewer/internal/interview"
	"github.com/MikeSquared-Agency/interviewer/internal/session"
	"github.com/MikeSquared-Agency/interviewer/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return serve(cmd.Context(), cfg)
	},
}

// backend is the persistence pair a store implementation provides.
type backend interface {
	interview.Conversations
	interview.Rounds
}

func openStore(ctx context.Context, cfg config.Config) (backend, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendBolt:
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("bolt store opened", "path", cfg.BoltPath)
		return db, func() {
			if err := db.Close(); err != nil {
				slog.Warn("close bolt store", "error", err)
			}
		}, nil
	default:
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("database connected")
		return db, db.Close, nil
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("interviewer starting", "port", cfg.Port, "store", cfg.StoreBackend)

	db, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	provider := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens)
	logger.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Events are optional; without NATS the service runs unannounced.
	var events interview.Events
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer hermesClient.Close()
		events = hermesClient
	} else {
		logger.Warn("NATS not configured, lifecycle events disabled")
	}

	codec := conversation.NewCodec(logger)
	cache := session.NewCache(interview.NewSeeder(db, db, codec, logger), cfg.ContextCapacity, logger)
	svc := interview.NewService(interview.Config{
		Conversations: db,
		Rounds:        db,
		Cache:         cache,
		Provider:      provider,
		Codec:         codec,
		Events:        events,
		TurnTimeout:   cfg.TurnTimeout,
		Logger:        logger,
	})

	srv := api.NewServer(cfg.Port, cfg.APIToken, svc, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	logger.Info("interviewer ready", "port", cfg.Port)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("interviewer stopped")
	return nil
}
