// Package contracts defines the enveloped CartCheckedOut event shared with
// downstream order processing.
package contracts

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freshcart/cart-service-go/internal/cart"
)

const (
	CartCheckedOutEventName    = "CartCheckedOut"
	CartCheckedOutEventVersion = 1
	CartServiceProducer        = "cart-service"

	FulfillmentDelivery = "delivery"
	FulfillmentPickup   = "pickup"
)

type EventEnvelope struct {
	EventName     string                `json:"eventName"`
	EventVersion  int                   `json:"eventVersion"`
	EventID       string                `json:"eventId"`
	CorrelationID string                `json:"correlationId,omitempty"`
	CausationID   string                `json:"causationId,omitempty"`
	Producer      string                `json:"producer"`
	PartitionKey  string                `json:"partitionKey"`
	Sequence      int64                 `json:"sequence"`
	OccurredAt    time.Time             `json:"occurredAt"`
	Payload       CartCheckedOutPayload `json:"payload"`
}

type CartCheckedOutPayload struct {
	UserID      string               `json:"userId"`
	Items       []CartCheckedOutItem `json:"items"`
	TotalItems  int                  `json:"totalItems"`
	TotalPrice  float64              `json:"totalPrice"`
	Fulfillment Fulfillment          `json:"fulfillment"`
	Timestamp   time.Time            `json:"timestamp"`
}

type CartCheckedOutItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Fulfillment carries the delivery-or-pickup choice made at checkout.
type Fulfillment struct {
	Method     string `json:"method"`
	Address    string `json:"address,omitempty"`
	PickupDate string `json:"pickup_date,omitempty"`
	PickupTime string `json:"pickup_time,omitempty"`
}

type EnvelopeOptions struct {
	PartitionKey  string
	Sequence      int64
	Producer      string
	CorrelationID string
	CausationID   string
	EventID       string
	OccurredAt    time.Time
}

func BuildCartCheckedOutEvent(userID string, items []cart.Item, f Fulfillment, opts EnvelopeOptions) EventEnvelope {
	eventID := opts.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	occurredAt := opts.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	producer := opts.Producer
	if producer == "" {
		producer = CartServiceProducer
	}

	payload := CartCheckedOutPayload{
		UserID:      userID,
		Fulfillment: f,
		Timestamp:   occurredAt,
	}
	for _, it := range items {
		payload.Items = append(payload.Items, CartCheckedOutItem{
			ProductID: it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
		payload.TotalItems += it.Quantity
		payload.TotalPrice += it.Price * float64(it.Quantity)
	}

	return EventEnvelope{
		EventName:     CartCheckedOutEventName,
		EventVersion:  CartCheckedOutEventVersion,
		EventID:       eventID,
		CorrelationID: opts.CorrelationID,
		CausationID:   opts.CausationID,
		Producer:      producer,
		PartitionKey:  opts.PartitionKey,
		Sequence:      opts.Sequence,
		OccurredAt:    occurredAt,
		Payload:       payload,
	}
}

// Validate enforces the contract consumers depend on before an envelope is
// allowed onto the wire.
func (e EventEnvelope) Validate() error {
	if e.EventName != CartCheckedOutEventName {
		return fmt.Errorf("unexpected event name %q", e.EventName)
	}
	if e.EventID == "" {
		return errors.New("eventId is required")
	}
	if e.PartitionKey == "" {
		return errors.New("partitionKey is required")
	}
	if e.Sequence <= 0 {
		return errors.New("sequence must be positive")
	}
	if e.Payload.UserID == "" {
		return errors.New("payload.userId is required")
	}
	if len(e.Payload.Items) == 0 {
		return errors.New("payload.items must not be empty")
	}
	return e.Payload.Fulfillment.Validate()
}

// Validate checks that the chosen method carries the fields it needs.
func (f Fulfillment) Validate() error {
	switch f.Method {
	case FulfillmentDelivery:
		if f.Address == "" {
			return errors.New("delivery fulfillment requires an address")
		}
	case FulfillmentPickup:
		if f.PickupDate == "" || f.PickupTime == "" {
			return errors.New("pickup fulfillment requires a date and time")
		}
	default:
		return fmt.Errorf("unknown fulfillment method %q", f.Method)
	}
	return nil
}
