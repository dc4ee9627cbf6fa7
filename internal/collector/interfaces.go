// Package collector fetches log entries from monitored sources.
package collector

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// Collector fetches entries from one kind of backend.
type Collector interface {
	// Collect returns the entries produced by source within timeRange.
	// Ordering is not guaranteed.
	Collect(ctx context.Context, source *domain.LogSource, timeRange domain.TimeRange) ([]*domain.LogEntry, error)

	// TestConnection returns nil when the backend is reachable.
	TestConnection(ctx context.Context, source *domain.LogSource) error
}

// SourceFinder loads log sources by id. A missing source is reported as
// a domain.ErrNotFound error.
type SourceFinder interface {
	FindByID(ctx context.Context, id string) (*domain.LogSource, error)
}
