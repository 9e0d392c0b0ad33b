// Package event defines domain events written to the transactional outbox.
package event

import (
	"context"

	"stockwise/internal/core/id"
)

// Event is a fact produced by a committed business operation.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher records events. Implementations write inside the caller's
// transaction, so an event exists exactly when its operation commits.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
