package events

import (
	"context"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/metrics"
	"go.uber.org/zap"
)

// Subscriber is the subscription side of a Bus.
type Subscriber interface {
	Subscribe(eventType string, h Handler)
}

// RegisterLogging subscribes handlers that log collection and analysis
// events. Anomalies are logged at warn level, or error level when one of
// them is critical.
func RegisterLogging(bus Subscriber, logger *zap.Logger) {
	log := logger.Named("events")

	bus.Subscribe(domain.EventLogCollected, func(_ context.Context, event domain.DomainEvent) error {
		if e, ok := event.(*domain.LogCollectedEvent); ok {
			log.Info("logs collected",
				zap.String("session_id", e.SessionID),
				zap.String("source_id", e.SourceID),
				zap.Int("log_count", e.LogCount),
			)
		}
		return nil
	})

	bus.Subscribe(domain.EventAnomalyDetected, func(_ context.Context, event domain.DomainEvent) error {
		e, ok := event.(*domain.AnomalyDetectedEvent)
		if !ok {
			return nil
		}
		fields := []zap.Field{
			zap.String("session_id", e.SessionID),
			zap.String("analysis_result_id", e.AnalysisResultID),
			zap.Int("anomaly_count", e.AnomalyCount),
		}
		if e.HasCritical {
			log.Error("critical anomalies detected", fields...)
		} else {
			log.Warn("anomalies detected", fields...)
		}
		return nil
	})

	bus.Subscribe(domain.EventAnalysisCompleted, func(_ context.Context, event domain.DomainEvent) error {
		if e, ok := event.(*domain.AnalysisCompletedEvent); ok {
			log.Info("analysis completed",
				zap.String("session_id", e.SessionID),
				zap.String("analysis_result_id", e.AnalysisResultID),
				zap.Bool("has_anomalies", e.HasAnomalies),
			)
		}
		return nil
	})
}

// RegisterMetrics counts every delivered event.
func RegisterMetrics(bus Subscriber) {
	bus.Subscribe(AllEvents, func(_ context.Context, event domain.DomainEvent) error {
		metrics.EventsPublished.WithLabelValues(event.EventType()).Inc()
		return nil
	})
}
