// Package repository persists log sources, sessions, entries and analysis
// results. Lookups of a missing id return a domain.ErrNotFound error.
package repository

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// LogSourceRepository stores log sources.
type LogSourceRepository interface {
	Save(ctx context.Context, source *domain.LogSource) error
	Update(ctx context.Context, source *domain.LogSource) error
	FindByID(ctx context.Context, id string) (*domain.LogSource, error)
	FindAll(ctx context.Context) ([]*domain.LogSource, error)
	FindByType(ctx context.Context, sourceType domain.SourceType) ([]*domain.LogSource, error)
	Delete(ctx context.Context, id string) error
}

// LogEntryRepository stores entries collected outside of a session.
type LogEntryRepository interface {
	SaveBatch(ctx context.Context, entries []*domain.LogEntry) error
	FindByID(ctx context.Context, id string) (*domain.LogEntry, error)

	// FindBySourceID returns the newest entries first; limit <= 0 means all.
	FindBySourceID(ctx context.Context, sourceID string, limit int) ([]*domain.LogEntry, error)
	DeleteBySourceID(ctx context.Context, sourceID string) error
}

// SessionRepository stores analysis sessions with optimistic concurrency.
//
// Save inserts a new session at version 1. Update succeeds only when the
// stored version equals session.Version(), then increments it; a stale
// writer gets a domain.ErrConcurrentModification error. Both record the
// new version on the session.
type SessionRepository interface {
	Save(ctx context.Context, session *domain.LogAnalysisSession) error
	Update(ctx context.Context, session *domain.LogAnalysisSession) error
	FindByID(ctx context.Context, id string) (*domain.LogAnalysisSession, error)
	FindBySourceID(ctx context.Context, sourceID string) ([]*domain.LogAnalysisSession, error)

	// FindActive returns sessions in PENDING, COLLECTING or ANALYZING.
	FindActive(ctx context.Context) ([]*domain.LogAnalysisSession, error)
	FindAll(ctx context.Context) ([]*domain.LogAnalysisSession, error)
	Delete(ctx context.Context, id string) error
}

// AnalysisResultRepository stores analysis results. List queries return
// the newest results first.
type AnalysisResultRepository interface {
	Save(ctx context.Context, result *domain.AnalysisResult) error
	FindByID(ctx context.Context, id string) (*domain.AnalysisResult, error)
	FindBySessionID(ctx context.Context, sessionID string) (*domain.AnalysisResult, error)
	FindBySourceID(ctx context.Context, sourceID string, limit int) ([]*domain.AnalysisResult, error)
	FindWithAnomalies(ctx context.Context) ([]*domain.AnalysisResult, error)
	Delete(ctx context.Context, id string) error
}

// OutboxRecord is one persisted domain event awaiting dispatch.
type OutboxRecord struct {
	Seq       int64
	EventID   string
	EventType string
	Payload   []byte
}

// Outbox is an append-only log of domain events. Appending an event id
// that is already present is a no-op.
type Outbox interface {
	Append(ctx context.Context, events []domain.DomainEvent) error

	// Pending returns undispatched records in insertion order.
	Pending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkDispatched(ctx context.Context, seqs []int64) error
}
