package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TypeDatasetImported is emitted after a batch of records has been stored.
const TypeDatasetImported = "dataset.imported"

// Event is a notification about the dataset.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Origin     string    `json:"origin,omitempty"`
	Records    int       `json:"records"`
	Skipped    int       `json:"skipped"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewDatasetImported builds a dataset.imported event. source identifies the
// publishing instance, origin the imported file or batch.
func NewDatasetImported(source, origin string, records, skipped int) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeDatasetImported,
		Source:     source,
		Origin:     origin,
		Records:    records,
		Skipped:    skipped,
		OccurredAt: time.Now().UTC(),
	}
}

// Handler processes one delivered event.
type Handler func(ctx context.Context, event Event) error

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Subscriber delivers events to handler until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Bus both publishes and subscribes.
type Bus interface {
	Publisher
	Subscriber
}

// Nop drops every event; Subscribe blocks until ctx is done.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Subscribe(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (Nop) Close() error { return nil }

var _ Bus = Nop{}
