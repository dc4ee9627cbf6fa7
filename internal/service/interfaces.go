// Package service contains the use cases: running anomaly detection over a
// log source, managing sources, collecting logs and reporting results.
package service

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/detection"
	"github.com/ai-devops/loganomaly/internal/domain"
)

// LogCollector fetches entries for a registered source. It is implemented
// by collector.Registry.
type LogCollector interface {
	Collect(ctx context.Context, sourceID string, timeRange domain.TimeRange) ([]*domain.LogEntry, error)

	// TestConnection reports whether the source backend is reachable,
	// with the cause of a failed check.
	TestConnection(ctx context.Context, sourceID string) (bool, error)
}

// DetectorSelector picks the detection strategy for a model type. It is
// implemented by detection.Selector.
type DetectorSelector interface {
	For(modelType domain.ModelType) detection.Detector
}
