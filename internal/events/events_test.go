package events

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBusPublish(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(zap.NewNop())

	var typed, all atomic.Int32
	bus.Subscribe(domain.EventAnalysisCompleted, func(context.Context, domain.DomainEvent) error {
		typed.Add(1)
		return nil
	})
	bus.Subscribe(AllEvents, func(context.Context, domain.DomainEvent) error {
		all.Add(1)
		return nil
	})

	require.NoError(t, bus.PublishBatch(ctx, []domain.DomainEvent{
		domain.NewLogCollectedEvent("s", "src", 3),
		domain.NewAnalysisCompletedEvent("s", "r", false),
	}))

	assert.Equal(t, int32(1), typed.Load())
	assert.Equal(t, int32(2), all.Load())

	published := bus.Published()
	require.Len(t, published, 2)
	assert.Equal(t, domain.EventLogCollected, published[0].EventType())
	assert.Equal(t, domain.EventAnalysisCompleted, published[1].EventType())
}

func TestBusAwaitsAllHandlers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var mu sync.Mutex
	var finished []int
	for i := 0; i < 3; i++ {
		bus.Subscribe(domain.EventLogCollected, func(context.Context, domain.DomainEvent) error {
			time.Sleep(time.Duration(3-i) * 10 * time.Millisecond)
			mu.Lock()
			finished = append(finished, i)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, bus.Publish(context.Background(), domain.NewLogCollectedEvent("s", "src", 1)))
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{0, 1, 2}, finished)
}

func TestBusHandlerError(t *testing.T) {
	bus := NewBus(zap.NewNop())
	boom := errors.New("boom")
	bus.Subscribe(domain.EventLogCollected, func(context.Context, domain.DomainEvent) error { return boom })

	var second atomic.Bool
	bus.Subscribe(domain.EventAnalysisCompleted, func(context.Context, domain.DomainEvent) error {
		second.Store(true)
		return nil
	})

	err := bus.PublishBatch(context.Background(), []domain.DomainEvent{
		domain.NewLogCollectedEvent("s", "src", 1),
		domain.NewAnalysisCompletedEvent("s", "r", false),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "handle LogCollected event")
	assert.False(t, second.Load(), "batch stops at the first failure")
}

func TestRegisterLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bus := NewBus(zap.NewNop())
	RegisterLogging(bus, zap.New(core))
	RegisterMetrics(bus)

	ctx := context.Background()
	require.NoError(t, bus.PublishBatch(ctx, []domain.DomainEvent{
		domain.NewLogCollectedEvent("s1", "src", 10),
		domain.NewAnomalyDetectedEvent("s1", "r1", 2, false),
		domain.NewAnomalyDetectedEvent("s2", "r2", 1, true),
		domain.NewAnalysisCompletedEvent("s1", "r1", true),
	}))

	tests := []struct {
		message string
		level   zapcore.Level
	}{
		{"logs collected", zapcore.InfoLevel},
		{"anomalies detected", zapcore.WarnLevel},
		{"critical anomalies detected", zapcore.ErrorLevel},
		{"analysis completed", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			found := logs.FilterMessage(tt.message).All()
			require.Len(t, found, 1)
			assert.Equal(t, tt.level, found[0].Level)
		})
	}

	critical := logs.FilterMessage("critical anomalies detected").All()[0]
	assert.Equal(t, "r2", critical.ContextMap()["analysis_result_id"])
}

// memoryOutbox is an in-process Outbox for dispatcher tests.
type memoryOutbox struct {
	mu      sync.Mutex
	records []repository.OutboxRecord
	done    map[int64]bool
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{done: make(map[int64]bool)}
}

func (o *memoryOutbox) add(eventType string, payload []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := int64(len(o.records) + 1)
	o.records = append(o.records, repository.OutboxRecord{Seq: seq, EventID: "evt", EventType: eventType, Payload: payload})
}

func (o *memoryOutbox) Append(context.Context, []domain.DomainEvent) error { return nil }

func (o *memoryOutbox) Pending(_ context.Context, limit int) ([]repository.OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []repository.OutboxRecord
	for _, r := range o.records {
		if !o.done[r.Seq] && (limit <= 0 || len(out) < limit) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (o *memoryOutbox) MarkDispatched(_ context.Context, seqs []int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range seqs {
		o.done[s] = true
	}
	return nil
}

func TestDispatcherSkipsUndecodableRecords(t *testing.T) {
	outbox := newMemoryOutbox()
	outbox.add("Unknown", []byte(`{}`))
	outbox.add(domain.EventLogCollected, []byte(`{"eventId":"e1","eventType":"LogCollected","sessionId":"s","sourceId":"src","logCount":4}`))

	bus := NewBus(zap.NewNop())
	d := NewDispatcher(outbox, bus, time.Second, 10, zap.NewNop())

	n, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	published := bus.Published()
	require.Len(t, published, 1)
	e, ok := published[0].(*domain.LogCollectedEvent)
	require.True(t, ok)
	assert.Equal(t, 4, e.LogCount)

	pending, err := outbox.Pending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcherStopsAtPublishFailure(t *testing.T) {
	outbox := newMemoryOutbox()
	payload := []byte(`{"eventId":"e","eventType":"AnalysisCompleted","sessionId":"s","analysisResultId":"r"}`)
	outbox.add(domain.EventAnalysisCompleted, payload)
	outbox.add(domain.EventAnalysisCompleted, payload)

	bus := NewBus(zap.NewNop())
	calls := 0
	bus.Subscribe(domain.EventAnalysisCompleted, func(context.Context, domain.DomainEvent) error {
		calls++
		if calls == 2 {
			return errors.New("subscriber down")
		}
		return nil
	})

	d := NewDispatcher(outbox, bus, time.Second, 10, zap.NewNop())
	n, err := d.DispatchPending(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := outbox.Pending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].Seq)
}

func TestOutboxRoundTripThroughSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "events.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	publisher := NewOutboxPublisher(store.Outbox())
	events := []domain.DomainEvent{
		domain.NewAnomalyDetectedEvent("s", "r", 3, true),
		domain.NewAnalysisCompletedEvent("s", "r", true),
	}
	require.NoError(t, publisher.PublishBatch(ctx, events))
	require.NoError(t, publisher.Publish(ctx, events[0]))

	bus := NewBus(zap.NewNop())
	d := NewDispatcher(store.Outbox(), bus, time.Second, 10, zap.NewNop())
	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	published := bus.Published()
	require.Len(t, published, 2)
	detected, ok := published[0].(*domain.AnomalyDetectedEvent)
	require.True(t, ok)
	assert.Equal(t, events[0].EventID(), detected.EventID())
	assert.True(t, detected.HasCritical)
	assert.Equal(t, 3, detected.AnomalyCount)

	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	outbox := newMemoryOutbox()
	outbox.add(domain.EventLogCollected, []byte(`{"eventId":"e1","eventType":"LogCollected","sessionId":"s","sourceId":"src","logCount":1}`))
	bus := NewBus(zap.NewNop())
	d := NewDispatcher(outbox, bus, 10*time.Millisecond, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(bus.Published()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
