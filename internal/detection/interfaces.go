package detection

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// Detector scores a batch of log entries. Implementations must return
// anomalies in the domain.Anomaly shape and report the strategy they ran.
type Detector interface {
	// Analyze returns the anomalies found in logs.
	Analyze(ctx context.Context, logs []*domain.LogEntry, cfg domain.DetectionModelConfig) ([]domain.Anomaly, error)

	// ModelType returns the name recorded on the analysis result.
	ModelType() string
}
