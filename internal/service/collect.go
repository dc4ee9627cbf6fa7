package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/repository"
	"go.uber.org/zap"
)

// CollectResult is the outcome of an ad-hoc collection.
type CollectResult struct {
	Logs      []*domain.LogEntry
	Count     int
	SourceID  string
	TimeRange domain.TimeRange
}

// CollectService collects logs outside of an analysis session and stores
// them in the entry repository.
type CollectService struct {
	sources   repository.LogSourceRepository
	entries   repository.LogEntryRepository
	collector LogCollector
	logger    *zap.Logger
}

// NewCollectService creates a CollectService.
func NewCollectService(sources repository.LogSourceRepository, entries repository.LogEntryRepository, collector LogCollector, logger *zap.Logger) *CollectService {
	return &CollectService{
		sources:   sources,
		entries:   entries,
		collector: collector,
		logger:    logger.Named("collect_service"),
	}
}

// Collect fetches and stores the entries of an ACTIVE source within
// [start, end]. A collector failure marks the source ERROR.
func (s *CollectService) Collect(ctx context.Context, sourceID string, start, end time.Time) (*CollectResult, error) {
	source, err := s.sources.FindByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !source.IsActive() {
		return nil, domain.InvalidStateError("Log source %q is not active", source.Name())
	}
	timeRange, err := domain.NewTimeRange(start, end)
	if err != nil {
		return nil, err
	}

	logs, err := s.collector.Collect(ctx, sourceID, timeRange)
	if err != nil {
		source.MarkAsError()
		if uerr := s.sources.Update(ctx, source); uerr != nil {
			s.logger.Error("failed to mark source as error",
				zap.String("source_id", sourceID),
				zap.Error(uerr),
			)
		}
		return nil, fmt.Errorf("Failed to collect logs from source %q: %w", source.Name(), err)
	}

	if len(logs) > 0 {
		if err := s.entries.SaveBatch(ctx, logs); err != nil {
			return nil, err
		}
	}
	s.logger.Info("logs collected",
		zap.String("source_id", sourceID),
		zap.Int("count", len(logs)),
	)
	return &CollectResult{
		Logs:      logs,
		Count:     len(logs),
		SourceID:  sourceID,
		TimeRange: timeRange,
	}, nil
}

// Recent returns the newest stored entries of a source.
func (s *CollectService) Recent(ctx context.Context, sourceID string, limit int) ([]*domain.LogEntry, error) {
	if _, err := s.sources.FindByID(ctx, sourceID); err != nil {
		return nil, err
	}
	return s.entries.FindBySourceID(ctx, sourceID, limit)
}
