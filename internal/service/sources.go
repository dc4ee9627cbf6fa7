package service

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/repository"
	"go.uber.org/zap"
)

// RegisterSourceInput describes a new log source.
type RegisterSourceInput struct {
	Name        string
	Type        domain.SourceType
	Endpoint    string
	Credentials map[string]string
	Metadata    map[string]any
}

// ConnectionStatus is the outcome of a connection test.
type ConnectionStatus struct {
	SourceID string `json:"sourceId"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Status   string `json:"status"`
}

// SourceService manages log sources.
type SourceService struct {
	sources   repository.LogSourceRepository
	collector LogCollector
	logger    *zap.Logger
}

// NewSourceService creates a SourceService.
func NewSourceService(sources repository.LogSourceRepository, collector LogCollector, logger *zap.Logger) *SourceService {
	return &SourceService{
		sources:   sources,
		collector: collector,
		logger:    logger.Named("source_service"),
	}
}

// Register creates an INACTIVE source. Names and endpoints are unique
// across sources.
func (s *SourceService) Register(ctx context.Context, in RegisterSourceInput) (*domain.LogSource, error) {
	source, err := domain.NewLogSource(in.Name, in.Type, in.Endpoint, in.Credentials, in.Metadata)
	if err != nil {
		return nil, err
	}

	existing, err := s.sources.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.Name() == source.Name() || e.Endpoint() == source.Endpoint() {
			return nil, domain.ConflictError("Log source with name %q or endpoint %q already exists", source.Name(), source.Endpoint())
		}
	}

	if err := s.sources.Save(ctx, source); err != nil {
		return nil, err
	}
	s.logger.Info("log source registered",
		zap.String("source_id", source.ID()),
		zap.String("name", source.Name()),
		zap.String("type", string(source.Type())),
	)
	return source, nil
}

// Get returns a source by id.
func (s *SourceService) Get(ctx context.Context, id string) (*domain.LogSource, error) {
	return s.sources.FindByID(ctx, id)
}

// List returns every source, or only those of sourceType when it is set.
func (s *SourceService) List(ctx context.Context, sourceType domain.SourceType) ([]*domain.LogSource, error) {
	if sourceType != "" {
		return s.sources.FindByType(ctx, sourceType)
	}
	return s.sources.FindAll(ctx)
}

// Activate marks a source ACTIVE.
func (s *SourceService) Activate(ctx context.Context, id string) (*domain.LogSource, error) {
	return s.setStatus(ctx, id, (*domain.LogSource).Activate)
}

// Deactivate marks a source INACTIVE.
func (s *SourceService) Deactivate(ctx context.Context, id string) (*domain.LogSource, error) {
	return s.setStatus(ctx, id, (*domain.LogSource).Deactivate)
}

func (s *SourceService) setStatus(ctx context.Context, id string, apply func(*domain.LogSource)) (*domain.LogSource, error) {
	source, err := s.sources.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(source)
	if err := s.sources.Update(ctx, source); err != nil {
		return nil, err
	}
	s.logger.Info("log source status changed",
		zap.String("source_id", id),
		zap.String("status", string(source.Status())),
	)
	return source, nil
}

// TestConnection checks the source backend. An ACTIVE source that fails
// the check is marked ERROR.
func (s *SourceService) TestConnection(ctx context.Context, id string) (*ConnectionStatus, error) {
	source, err := s.sources.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, cause := s.collector.TestConnection(ctx, id)
	status := &ConnectionStatus{SourceID: id, Success: ok}
	if !ok {
		if cause != nil {
			status.Message = cause.Error()
		}
		if source.IsActive() {
			source.MarkAsError()
			if err := s.sources.Update(ctx, source); err != nil {
				return nil, err
			}
		}
		s.logger.Warn("log source connection failed",
			zap.String("source_id", id),
			zap.Error(cause),
		)
	}
	status.Status = string(source.Status())
	return status, nil
}
