package model

import "context"

// EventRepository stores committed exchange events.
type EventRepository interface {
	AppendEvents(ctx context.Context, events []Event) error
	ListEvents(ctx context.Context, marketID, afterSequence uint64, limit int) ([]Event, error)
	LastSequence(ctx context.Context) (uint64, error)
}

// EventPublisher hands committed events to downstream consumers.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []Event) error
}
