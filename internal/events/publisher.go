// Package events connects the order services to NATS: order events go out,
// fulfillment updates and UPI settlements come in.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/nats-io/nats.go"
)

// HeaderRequestID carries the originating request id on published messages.
const HeaderRequestID = "X-Request-ID"

// Connect dials NATS and keeps reconnecting for as long as the process runs.
func Connect(url, name string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	logger.Info("connected to nats", "url", conn.ConnectedUrl())
	return conn, nil
}

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher publishes domain events as JSON.
type Publisher struct {
	conn   msgPublisher
	logger *slog.Logger
}

var _ domain.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher on conn, normally a *nats.Conn.
func NewPublisher(conn msgPublisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish implements domain.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, subject string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", subject, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	if rid := domain.RequestIDFromContext(ctx); rid != "" {
		msg.Header.Set(HeaderRequestID, rid)
	}

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	p.logger.DebugContext(ctx, "event published", "subject", subject, "bytes", len(data))
	return nil
}
