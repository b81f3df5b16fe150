package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockflow/internal/infrastructure/storage/postgres"
)

// DefaultEventsChannel is the pub/sub channel domain events are relayed to.
const DefaultEventsChannel = "stockflow.events"

// EventPublisher relays outbox messages to Redis pub/sub.
type EventPublisher struct {
	client  redis.UniversalClient
	channel string
}

var _ postgres.OutboxHandler = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher for channel.
func NewEventPublisher(client redis.UniversalClient, channel string) *EventPublisher {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &EventPublisher{client: client, channel: channel}
}

type envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     string          `json:"created_at"`
}

// Handle implements postgres.OutboxHandler.
func (p *EventPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	body, err := json.Marshal(envelope{
		ID:            msg.ID.String(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID.String(),
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		CreatedAt:     msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	return nil
}
