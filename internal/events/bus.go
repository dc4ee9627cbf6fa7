// Package events delivers domain events to in-process subscribers, either
// directly through a Bus or durably through the SQLite outbox and a
// Dispatcher.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ai-devops/loganomaly/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// Handler processes one event.
type Handler func(ctx context.Context, event domain.DomainEvent) error

// Publisher accepts domain events for delivery.
type Publisher interface {
	Publish(ctx context.Context, event domain.DomainEvent) error
	PublishBatch(ctx context.Context, events []domain.DomainEvent) error
}

// Bus is a synchronous in-process event bus. Publish runs every handler of
// the event concurrently and returns once all of them have finished.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	published []domain.DomainEvent
	logger    *zap.Logger
}

// NewBus creates a bus with no subscribers.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger.Named("event_bus"),
	}
}

// Subscribe registers h for eventType, or for every event with AllEvents.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

func (b *Bus) Publish(ctx context.Context, event domain.DomainEvent) error {
	b.mu.Lock()
	b.published = append(b.published, event)
	handlers := make([]Handler, 0, len(b.handlers[event.EventType()])+len(b.handlers[AllEvents]))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.handlers[AllEvents]...)
	b.mu.Unlock()

	b.logger.Debug("publishing event",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID()),
		zap.Int("handlers", len(handlers)),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		g.Go(func() error { return h(gctx, event) })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("handle %s event %s: %w", event.EventType(), event.EventID(), err)
	}
	return nil
}

// PublishBatch publishes events in order, stopping at the first failure.
func (b *Bus) PublishBatch(ctx context.Context, events []domain.DomainEvent) error {
	for _, event := range events {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Published returns every event published so far, in order.
func (b *Bus) Published() []domain.DomainEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]domain.DomainEvent(nil), b.published...)
}

var _ Publisher = (*Bus)(nil)
