package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/events"
	"github.com/ai-devops/loganomaly/internal/metrics"
	"github.com/ai-devops/loganomaly/internal/repository"
	"go.uber.org/zap"
)

// DetectionRequest is the input of one anomaly detection run. Nil
// Threshold and Sensitivity take the configured defaults.
type DetectionRequest struct {
	SourceID    string
	StartTime   time.Time
	EndTime     time.Time
	ModelConfig domain.DetectionModelConfigProps
}

// Orchestrator runs the collect-then-analyze flow over one session.
type Orchestrator struct {
	sources   repository.LogSourceRepository
	sessions  repository.SessionRepository
	results   repository.AnalysisResultRepository
	collector LogCollector
	detectors DetectorSelector
	publisher events.Publisher
	defaults  config.DetectionConfig
	logger    *zap.Logger
}

// NewOrchestrator creates an Orchestrator with all dependencies.
func NewOrchestrator(
	sources repository.LogSourceRepository,
	sessions repository.SessionRepository,
	results repository.AnalysisResultRepository,
	collector LogCollector,
	detectors DetectorSelector,
	publisher events.Publisher,
	defaults config.DetectionConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		sources:   sources,
		sessions:  sessions,
		results:   results,
		collector: collector,
		detectors: detectors,
		publisher: publisher,
		defaults:  defaults,
		logger:    logger.Named("orchestrator"),
	}
}

// Run executes one detection run and returns the completed session.
//
// Lookup and validation failures are returned as they are, before any
// session exists. Once the session is persisted, any failure marks it
// FAILED with the cause; the failed session is returned along with
// "Anomaly detection failed: <cause>".
func (o *Orchestrator) Run(ctx context.Context, req DetectionRequest) (*domain.LogAnalysisSession, error) {
	source, err := o.sources.FindByID(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}

	timeRange, err := domain.NewTimeRange(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	cfg, err := domain.NewDetectionModelConfig(o.withDefaults(req.ModelConfig))
	if err != nil {
		return nil, err
	}

	session, err := domain.NewLogAnalysisSession(source, timeRange, cfg)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	log := o.logger.With(
		zap.String("session_id", session.ID()),
		zap.String("source_id", source.ID()),
		zap.String("model_type", string(cfg.ModelType())),
	)
	log.Info("anomaly detection started",
		zap.Time("start", timeRange.Start()),
		zap.Time("end", timeRange.End()),
	)

	if err := o.execute(ctx, session); err != nil {
		session.Fail(err.Error())
		if uerr := o.sessions.Update(context.WithoutCancel(ctx), session); uerr != nil {
			log.Error("failed to persist failed session", zap.Error(uerr))
		}
		metrics.SessionsTotal.WithLabelValues(string(domain.SessionFailed)).Inc()
		log.Warn("anomaly detection failed", zap.Error(err))
		return session, fmt.Errorf("Anomaly detection failed: %w", err)
	}

	metrics.SessionsTotal.WithLabelValues(string(session.Status())).Inc()
	log.Info("anomaly detection completed",
		zap.Int("log_count", session.LogCount()),
		zap.Int("anomalies", len(session.AnalysisResult().Anomalies())),
	)
	return session, nil
}

func (o *Orchestrator) execute(ctx context.Context, session *domain.LogAnalysisSession) error {
	source := session.Source()
	timeRange := session.TimeRange()
	cfg := session.ModelConfig()

	if err := session.StartCollecting(); err != nil {
		return err
	}
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}

	logs, err := o.collector.Collect(ctx, source.ID(), timeRange)
	if err != nil {
		return err
	}
	if err := session.AddLogEntries(logs); err != nil {
		return err
	}
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}
	if err := o.flushEvents(ctx, session); err != nil {
		return err
	}

	if err := session.StartAnalysis(); err != nil {
		return err
	}
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}

	detector := o.detectors.For(cfg.ModelType())
	entries := session.LogEntries()
	start := time.Now()
	anomalies, err := detector.Analyze(ctx, entries, cfg)
	metrics.DetectionDuration.WithLabelValues(detector.ModelType()).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	for _, a := range anomalies {
		metrics.AnomaliesTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}

	result, err := domain.NewAnalysisResult(
		session.ID(), source.ID(), detector.ModelType(), len(entries),
		anomalies, summarize(len(entries), len(anomalies)),
		timeRange.Start(), timeRange.End(),
	)
	if err != nil {
		return err
	}
	if err := o.results.Save(ctx, result); err != nil {
		return err
	}
	if err := session.CompleteAnalysis(result); err != nil {
		return err
	}
	if err := o.sessions.Update(ctx, session); err != nil {
		return err
	}
	return o.flushEvents(ctx, session)
}

// flushEvents publishes the session's queued events and clears the queue.
func (o *Orchestrator) flushEvents(ctx context.Context, session *domain.LogAnalysisSession) error {
	pending := session.PendingEvents()
	if len(pending) == 0 {
		return nil
	}
	if err := o.publisher.PublishBatch(ctx, pending); err != nil {
		return err
	}
	session.ClearEvents()
	return nil
}

func (o *Orchestrator) withDefaults(props domain.DetectionModelConfigProps) domain.DetectionModelConfigProps {
	if props.Threshold == nil {
		t := o.defaults.DefaultThreshold
		props.Threshold = &t
	}
	if props.Sensitivity == nil {
		s := o.defaults.DefaultSensitivity
		props.Sensitivity = &s
	}
	return props
}

func summarize(logCount, anomalyCount int) string {
	if anomalyCount == 0 {
		return fmt.Sprintf("Analyzed %d logs. No anomalies detected.", logCount)
	}
	pct := float64(anomalyCount) / float64(logCount) * 100
	return fmt.Sprintf("Analyzed %d logs. Detected %d anomalies (%.2f%% of logs).", logCount, anomalyCount, pct)
}
