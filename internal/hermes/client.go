// Package hermes publishes interview lifecycle events on NATS.
package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Source identifies this service in published envelopes.
const Source = "interviewer"

// Envelope wraps every published payload.
type Envelope struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Subject     string          `json:"subject"`
	PublishedAt time.Time       `json:"published_at"`
	Data        json.RawMessage `json:"data"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
	now    func() time.Time
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name(Source),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info("nats connected", "url", url)
	return &Client{conn: nc, logger: logger, now: time.Now}, nil
}

// Publish wraps data in an Envelope and sends it on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := c.envelope(subject, data)
	if err != nil {
		return err
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) envelope(subject string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	payload, err := json.Marshal(Envelope{
		ID:          uuid.NewString(),
		Source:      Source,
		Subject:     subject,
		PublishedAt: c.now().UTC(),
		Data:        raw,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return payload, nil
}

// Subscribe delivers decoded envelopes published on subject. Messages that
// are not envelopes are logged and dropped.
func (c *Client) Subscribe(subject string, handler func(Envelope)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			c.logger.Warn("dropping malformed event", "subject", msg.Subject, "error", err)
			return
		}
		handler(env)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
}
