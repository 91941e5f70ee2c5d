package order

import (
	"context"
	"time"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventCreated EventType = "order.created"
	EventUpdated EventType = "order.updated"
	EventDeleted EventType = "order.deleted"
)

// Event is emitted after an order mutation has been committed.
type Event struct {
	Type       EventType
	Order      Order
	OccurredAt time.Time
}

// Publisher delivers order events to interested parties. Delivery is best
// effort: a failed publish never undoes a committed order.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
