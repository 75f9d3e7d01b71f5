package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/freshcart/cart-service-go/internal/cart"
	"github.com/freshcart/cart-service-go/internal/contracts"
)

// PublishMetadata carries request-scoped tracing ids into the envelope.
type PublishMetadata struct {
	CorrelationID string
	CausationID   string
}

// SequenceRepository issues per-partition monotonic sequence numbers so
// consumers can order events from the same cart.
type SequenceRepository interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// RabbitCartEventsPublisher publishes enveloped CartCheckedOut events to the
// shared topic exchange.
type RabbitCartEventsPublisher struct {
	ch        *amqp.Channel
	sequences SequenceRepository
}

func NewRabbitCartEventsPublisher(conn *amqp.Connection, sequences SequenceRepository) (*RabbitCartEventsPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare the exchange so publish never fails due to missing infra
	if err := declareEventsExchange(ch); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", EventsExchange, err)
	}

	return &RabbitCartEventsPublisher{ch: ch, sequences: sequences}, nil
}

func (p *RabbitCartEventsPublisher) Close() error {
	return p.ch.Close()
}

func (p *RabbitCartEventsPublisher) PublishCartCheckedOut(ctx context.Context, userID string, items []cart.Item, f contracts.Fulfillment, meta PublishMetadata) error {
	seq, err := p.sequences.NextSequence(ctx, userID)
	if err != nil {
		return fmt.Errorf("next sequence for %s: %w", userID, err)
	}

	env := contracts.BuildCartCheckedOutEvent(userID, items, f, contracts.EnvelopeOptions{
		PartitionKey:  userID,
		Sequence:      seq,
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
	})
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid CartCheckedOut envelope: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal CartCheckedOut: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		CartCheckedOutRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.EventID,
			Body:         body,
		},
	)
}

// NopPublisher logs checkout events instead of publishing them. Used in
// standalone file-storage mode where no broker is configured.
type NopPublisher struct {
	Logger *slog.Logger
}

func (p NopPublisher) PublishCartCheckedOut(ctx context.Context, userID string, items []cart.Item, f contracts.Fulfillment, meta PublishMetadata) error {
	p.Logger.Info("checkout event publishing disabled",
		"userId", userID,
		"items", len(items),
		"method", f.Method,
		"correlationId", meta.CorrelationID,
	)
	return nil
}
