package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

type subscription struct {
	ch   chan Event
	done chan struct{}
}

// MemoryBus fans events out to every subscriber of the same process.
// Subscriber channels are never closed; done signals the end of a
// subscription, so a publisher can send without holding the lock.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	buffer int
	closed bool
	done   chan struct{}
}

// NewMemoryBus creates a bus whose subscribers buffer up to buffer events.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{subs: make(map[int]*subscription), buffer: buffer, done: make(chan struct{})}
}

// Publish delivers event to the subscribers present when it is called. It
// waits while a subscriber's buffer is full, until ctx is done, the
// subscriber leaves or the bus is closed.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- event:
		case <-sub.done:
		case <-b.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers handler and runs it for each event until ctx is done
// or the bus is closed. Handler errors are ignored; the event is not
// redelivered.
func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	sub, id, err := b.register()
	if err != nil {
		return err
	}
	defer b.unregister(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		case event := <-sub.ch:
			_ = handler(ctx, event)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBus) register() (*subscription, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, 0, ErrClosed
	}
	id := b.nextID
	b.nextID++
	sub := &subscription{ch: make(chan Event, b.buffer), done: make(chan struct{})}
	b.subs[id] = sub
	return sub, id, nil
}

func (b *MemoryBus) unregister(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.done)
	}
}

// Close stops all subscriptions and wakes blocked publishers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}

var _ Bus = (*MemoryBus)(nil)
