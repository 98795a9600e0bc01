// Package events publishes record mutation notifications so other systems
// (reporting, notifications) can follow changes without polling.
package events

import (
	"context"
	"errors"
	"time"
)

type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Event describes one successful mutation.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Op         Op        `json:"op"`
	ResourceID string    `json:"resource_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActorRole  string    `json:"actor_role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RoutingKey is "<kind>.<op>", e.g. "invoices.created".
func (e Event) RoutingKey() string {
	return e.Kind + "." + string(e.Op)
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher discards events. Used when AMQP_URL is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error { return nil }

// Fanout publishes every event to each publisher in turn. All publishers see
// the event even if an earlier one fails; the errors are joined.
func Fanout(pubs ...Publisher) Publisher {
	if len(pubs) == 1 {
		return pubs[0]
	}
	return fanout(pubs)
}

type fanout []Publisher

func (f fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
