package events

import (
	"context"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/repository"
	"go.uber.org/zap"
)

// OutboxPublisher publishes by appending to an outbox. Delivery to
// subscribers happens later, through a Dispatcher.
type OutboxPublisher struct {
	outbox repository.Outbox
}

// NewOutboxPublisher creates a publisher writing to outbox.
func NewOutboxPublisher(outbox repository.Outbox) *OutboxPublisher {
	return &OutboxPublisher{outbox: outbox}
}

func (p *OutboxPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	return p.outbox.Append(ctx, []domain.DomainEvent{event})
}

func (p *OutboxPublisher) PublishBatch(ctx context.Context, events []domain.DomainEvent) error {
	return p.outbox.Append(ctx, events)
}

// Dispatcher relays outbox records to a publisher in insertion order and
// marks them dispatched.
type Dispatcher struct {
	outbox    repository.Outbox
	next      Publisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher polling outbox every interval for at
// most batchSize records.
func NewDispatcher(outbox repository.Outbox, next Publisher, interval time.Duration, batchSize int, logger *zap.Logger) *Dispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		outbox:    outbox,
		next:      next,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.Named("outbox_dispatcher"),
	}
}

// Run dispatches until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("outbox dispatcher started", zap.Duration("interval", d.interval))
	for {
		if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox dispatch failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DispatchPending relays one batch of pending records and returns how many
// were delivered. Records that no longer decode are logged and marked
// dispatched so they do not block the queue.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	records, err := d.outbox.Pending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	done := make([]int64, 0, len(records))
	delivered := 0
	var publishErr error
	for _, rec := range records {
		event, err := domain.DecodeEvent(rec.EventType, rec.Payload)
		if err != nil {
			d.logger.Error("dropping undecodable outbox record",
				zap.Int64("seq", rec.Seq),
				zap.String("event_id", rec.EventID),
				zap.Error(err),
			)
			done = append(done, rec.Seq)
			continue
		}
		if err := d.next.Publish(ctx, event); err != nil {
			publishErr = err
			break
		}
		done = append(done, rec.Seq)
		delivered++
	}

	if err := d.outbox.MarkDispatched(ctx, done); err != nil {
		return delivered, err
	}
	if delivered > 0 {
		d.logger.Debug("outbox records relayed", zap.Int("count", delivered))
	}
	return delivered, publishErr
}

var _ Publisher = (*OutboxPublisher)(nil)
