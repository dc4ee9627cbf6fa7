package ai

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/detection"
	"github.com/ai-devops/loganomaly/internal/domain"
	"go.uber.org/zap"
)

// MockDetector stands in for the LLM when AI_MOCK_MODE is set. It runs the
// statistical heuristics but reports itself as LLM_BASED.
type MockDetector struct {
	logger *zap.Logger
}

// NewMockDetector creates a new mock LLM detector.
func NewMockDetector(logger *zap.Logger) *MockDetector {
	return &MockDetector{
		logger: logger.Named("mock_ai_detector"),
	}
}

// Analyze returns the heuristic anomalies.
func (m *MockDetector) Analyze(ctx context.Context, logs []*domain.LogEntry, cfg domain.DetectionModelConfig) ([]domain.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.logger.Debug("mock AI analysis", zap.Int("logs", len(logs)), zap.String("model", cfg.LLMModel()))
	return detection.Analyze(logs, cfg), nil
}

// ModelType implements detection.Detector.
func (m *MockDetector) ModelType() string {
	return string(domain.ModelLLMBased)
}

// HealthCheck always returns success for the mock.
func (m *MockDetector) HealthCheck(ctx context.Context) error {
	return nil
}
