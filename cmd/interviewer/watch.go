package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/interviewer/internal/config"
	"github.com/MikeSquared-Agency/interviewer/internal/hermes"
)

var watchSubject string

// watchCmd tails lifecycle events, one JSON envelope per line.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print interview lifecycle events published on NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		if cfg.NatsURL == "" {
			return fmt.Errorf("NATS_URL is required to watch events")
		}

		client, err := hermes.NewClient(cmd.Context(), cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer client.Close()

		return watchEvents(cmd.Context(), client, watchSubject, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSubject, "subject", "interview.>", "NATS subject to watch")
}

type subscriber interface {
	Subscribe(subject string, handler func(hermes.Envelope)) error
}

// watchEvents writes every envelope received on subject to out until ctx
// ends.
func watchEvents(ctx context.Context, sub subscriber, subject string, out io.Writer) error {
	var mu sync.Mutex
	enc := json.NewEncoder(out)

	err := sub.Subscribe(subject, func(env hermes.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(env); err != nil {
			slog.Warn("write event", "subject", env.Subject, "error", err)
		}
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
