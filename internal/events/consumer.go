package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/hoversale/internal/domain"
	"github.com/dukerupert/hoversale/internal/telemetry"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// MessageHandler processes one inbound message body.
type MessageHandler func(ctx context.Context, data []byte) error

// Subscriber is the part of *nats.Conn the consumer needs.
type Subscriber interface {
	ChanQueueSubscribe(subj, queue string, ch chan *nats.Msg) (*nats.Subscription, error)
}

// Config holds consumer configuration
type Config struct {
	// WorkerID identifies this instance in logs
	WorkerID string

	// Queue group shared by every instance so each message is handled once
	Queue string

	// MaxConcurrency is the maximum number of messages handled at once
	MaxConcurrency int

	// HandlerTimeout bounds a single message
	HandlerTimeout time.Duration
}

// Consumer dispatches inbound messages to handlers by subject.
type Consumer struct {
	conn     Subscriber
	config   Config
	handlers map[string]MessageHandler
	logger   *slog.Logger
}

// NewConsumer creates a consumer. Register handlers with Handle before Start.
func NewConsumer(conn Subscriber, config Config, logger *slog.Logger) *Consumer {
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("consumer-%s", uuid.New().String()[:8])
	}
	if config.Queue == "" {
		config.Queue = "hoversale-orders"
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		config:   config,
		handlers: make(map[string]MessageHandler),
		logger:   logger.With("component", "consumer", "worker_id", config.WorkerID),
	}
}

// Handle registers h for subject.
func (c *Consumer) Handle(subject string, h MessageHandler) {
	c.handlers[subject] = h
}

// Start subscribes to every registered subject and processes messages
// until ctx is cancelled. In-flight messages finish before it returns.
func (c *Consumer) Start(ctx context.Context) error {
	msgs := make(chan *nats.Msg, c.config.MaxConcurrency*4)

	subs := make([]*nats.Subscription, 0, len(c.handlers))
	for subject := range c.handlers {
		sub, err := c.conn.ChanQueueSubscribe(subject, c.config.Queue, msgs)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	c.logger.Info("consumer starting",
		"queue", c.config.Queue,
		"subjects", len(subs),
		"max_concurrency", c.config.MaxConcurrency)

	sem := make(chan struct{}, c.config.MaxConcurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer shutting down")
			for _, s := range subs {
				if err := s.Drain(); err != nil {
					c.logger.Warn("failed to drain subscription", "subject", s.Subject, "error", err)
				}
			}
			wg.Wait()
			return nil

		case msg := <-msgs:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				c.process(context.WithoutCancel(ctx), msg)
			}()
		}
	}
}

// process runs the handler for one message and replies when the sender
// asked for a reply.
func (c *Consumer) process(ctx context.Context, msg *nats.Msg) {
	h, ok := c.handlers[msg.Subject]
	if !ok {
		c.logger.Warn("no handler for subject", "subject", msg.Subject)
		return
	}

	if msg.Header != nil {
		if rid := msg.Header.Get(HeaderRequestID); rid != "" {
			ctx = domain.NewContextWithRequestID(ctx, rid)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.HandlerTimeout)
	defer cancel()

	err := h(ctx, msg.Data)
	outcome := classify(err)
	telemetry.Business.MessageConsumed(msg.Subject, outcome)

	logger := c.logger.With("subject", msg.Subject, "request_id", domain.RequestIDFromContext(ctx))
	switch outcome {
	case "ok":
		logger.Debug("message processed")
	case "rejected":
		logger.Warn("message rejected",
			"code", domain.ErrorCode(err),
			"reason", domain.ErrorReason(err),
			"error", err)
	default:
		logger.Error("message processing failed", "error", err)
		telemetry.CaptureError(err, map[string]interface{}{"subject": msg.Subject})
	}

	if msg.Reply != "" {
		if err := msg.Respond(replyBody(err)); err != nil {
			logger.Warn("failed to send reply", "error", err)
		}
	}
}

// classify buckets a handler result: "ok", "rejected" when the message
// can never apply, "error" when the failure was ours.
func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "error"
	}
	switch domain.ErrorCode(err) {
	case domain.EINTERNAL, domain.EUNAVAILABLE, domain.EGATEWAY:
		return "error"
	}
	return "rejected"
}

type reply struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func replyBody(err error) []byte {
	r := reply{OK: err == nil}
	if err != nil {
		r.Code = domain.ErrorCode(err)
		r.Reason = domain.ErrorReason(err)
		if r.Code != domain.EINTERNAL {
			r.Message = domain.ErrorMessage(err)
		}
	}
	data, _ := json.Marshal(r)
	return data
}
