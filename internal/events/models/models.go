// Package models defines workflow events and the outbox rows that carry them
// to Kafka.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "findiff/pkg/domain"
)

type Type string

const (
	TypeOrderCreated   Type = "order_created"
	TypeOrderDeleted   Type = "order_deleted"
	TypeOrderClaimed   Type = "order_claimed"
	TypeOrderSubmitted Type = "order_submitted"
	TypeOrderSuspended Type = "order_suspended"
	TypeOrderReturned  Type = "order_returned"
	TypeOrderShuffled  Type = "order_shuffled"
	TypeQAClaimed      Type = "qa_claimed"
	TypeQAAssigned     Type = "qa_assigned"
	TypeQASampled      Type = "qa_sampled"
	TypeQAPassed       Type = "qa_passed"
	TypeQAReturned     Type = "qa_returned"
)

// Event records one status change of an order. FromStatus and ToStatus hold
// order status codes; either may be empty for creation and deletion.
type Event struct {
	ID         id.EventID `json:"id"`
	Type       Type       `json:"type"`
	OrderID    id.OrderID `json:"order_id"`
	ActorID    id.UserID  `json:"actor_id"`
	FromStatus string     `json:"from_status,omitempty"`
	ToStatus   string     `json:"to_status,omitempty"`
	Remark     string     `json:"remark,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

const AggregateOrder = "audit_order"

// OutboxEntry is an event waiting to be relayed.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// NewOutboxEntry serializes an event for the relay.
func NewOutboxEntry(e Event) (OutboxEntry, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("marshal event payload: %w", err)
	}
	return OutboxEntry{
		ID:            uuid.New(),
		AggregateType: AggregateOrder,
		AggregateID:   e.OrderID.String(),
		EventType:     string(e.Type),
		Payload:       payload,
		CreatedAt:     e.Timestamp,
	}, nil
}
