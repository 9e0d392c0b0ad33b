// Package messaging delivers outbox events to Redis Pub/Sub.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockwise/internal/infrastructure/storage/postgres"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "stockwise.events"

// Envelope is the message body subscribers receive.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher is the part of *redis.Client the handler needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Observer is told about every delivery attempt.
type Observer interface {
	OutboxDelivered(eventType string, err error)
}

// RedisHandler implements postgres.OutboxHandler.
type RedisHandler struct {
	client   Publisher
	channel  string
	observer Observer
}

var _ postgres.OutboxHandler = (*RedisHandler)(nil)

// Option configures a RedisHandler.
type Option func(*RedisHandler)

// WithChannel sets the Pub/Sub channel.
func WithChannel(channel string) Option {
	return func(h *RedisHandler) {
		if channel != "" {
			h.channel = channel
		}
	}
}

// WithObserver attaches delivery metrics.
func WithObserver(o Observer) Option {
	return func(h *RedisHandler) {
		h.observer = o
	}
}

// NewRedisHandler creates a handler. The caller owns client.
func NewRedisHandler(client Publisher, opts ...Option) *RedisHandler {
	h := &RedisHandler{client: client, channel: DefaultChannel}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Channel returns the channel messages are published to.
func (h *RedisHandler) Channel() string {
	return h.channel
}

// Handle publishes msg. Zero subscribers is not an error: Pub/Sub is
// fire-and-forget and the outbox row is the durable record.
func (h *RedisHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) (err error) {
	if h.observer != nil {
		defer func() { h.observer.OutboxDelivered(msg.EventType, err) }()
	}

	data, err := json.Marshal(Envelope{
		ID:            msg.ID.String(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID.String(),
		EventType:     msg.EventType,
		OccurredAt:    msg.CreatedAt,
		Payload:       msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := h.client.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", h.channel, err)
	}
	return nil
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
