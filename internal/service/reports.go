package service

import (
	"context"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/repository"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// DefaultDashboardLimit is the number of recent results on the dashboard.
const DefaultDashboardLimit = 10

// Report summarizes one analysis result.
type Report struct {
	Result            ResultView `json:"result"`
	CriticalCount     int        `json:"criticalCount"`
	HighSeverityCount int        `json:"highSeverityCount"`
	TotalAnomalies    int        `json:"totalAnomalies"`
	HasAnomalies      bool       `json:"hasAnomalies"`
}

// SourceStats aggregates the anomalies of one source.
type SourceStats struct {
	SourceID     string `json:"sourceId"`
	SourceName   string `json:"sourceName"`
	AnomalyCount int    `json:"anomalyCount"`
	LastAnalysis string `json:"lastAnalysis"`
}

// ScoreStats describes the distribution of anomaly scores.
type ScoreStats struct {
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
	P95  float64 `json:"p95"`
}

// Dashboard is the overview across every result with anomalies.
type Dashboard struct {
	RecentResults  []ResultView     `json:"recentResults"`
	TotalAnalyzed  int              `json:"totalAnalyzed"`
	TotalAnomalies int              `json:"totalAnomalies"`
	CriticalAlerts []domain.Anomaly `json:"criticalAlerts"`
	SourceStats    []SourceStats    `json:"sourceStats"`
	Scores         ScoreStats       `json:"scores"`
}

// ReportService builds reports and dashboards from stored results.
type ReportService struct {
	results repository.AnalysisResultRepository
	sources repository.LogSourceRepository
	logger  *zap.Logger
}

// NewReportService creates a ReportService.
func NewReportService(results repository.AnalysisResultRepository, sources repository.LogSourceRepository, logger *zap.Logger) *ReportService {
	return &ReportService{
		results: results,
		sources: sources,
		logger:  logger.Named("report_service"),
	}
}

// Result returns a result by id.
func (s *ReportService) Result(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	return s.results.FindByID(ctx, id)
}

// ResultForSession returns the result produced by a session.
func (s *ReportService) ResultForSession(ctx context.Context, sessionID string) (*domain.AnalysisResult, error) {
	return s.results.FindBySessionID(ctx, sessionID)
}

// Report returns the severity breakdown of a result.
func (s *ReportService) Report(ctx context.Context, id string) (*Report, error) {
	res, err := s.results.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Report{
		Result:            NewResultView(res),
		CriticalCount:     len(res.CriticalAnomalies()),
		HighSeverityCount: len(res.HighSeverityAnomalies()),
		TotalAnomalies:    len(res.Anomalies()),
		HasAnomalies:      res.HasAnomalies(),
	}, nil
}

// Dashboard aggregates every result with anomalies. Critical alerts are
// taken from the limit most recent results only; totals, per-source stats
// and score statistics cover all of them.
func (s *ReportService) Dashboard(ctx context.Context, limit int) (*Dashboard, error) {
	if limit <= 0 {
		limit = DefaultDashboardLimit
	}
	all, err := s.results.FindWithAnomalies(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := s.sources.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(sources))
	for _, src := range sources {
		names[src.ID()] = src.Name()
	}

	recent := all
	if len(recent) > limit {
		recent = recent[:limit]
	}

	d := &Dashboard{
		RecentResults:  make([]ResultView, 0, len(recent)),
		CriticalAlerts: []domain.Anomaly{},
		SourceStats:    []SourceStats{},
	}
	for _, res := range recent {
		d.RecentResults = append(d.RecentResults, NewResultView(res))
		d.CriticalAlerts = append(d.CriticalAlerts, res.CriticalAnomalies()...)
	}

	type agg struct {
		count int
		last  time.Time
	}
	perSource := make(map[string]*agg)
	var order []string
	var scores stats.Float64Data
	for _, res := range all {
		anomalies := res.Anomalies()
		d.TotalAnalyzed += res.AnalyzedLogCount()
		d.TotalAnomalies += len(anomalies)
		for _, a := range anomalies {
			scores = append(scores, a.Score)
		}

		a, ok := perSource[res.SourceID()]
		if !ok {
			a = &agg{}
			perSource[res.SourceID()] = a
			order = append(order, res.SourceID())
		}
		a.count += len(anomalies)
		if res.CreatedAt().After(a.last) {
			a.last = res.CreatedAt()
		}
	}

	for _, id := range order {
		name, ok := names[id]
		if !ok {
			name = "Unknown"
		}
		d.SourceStats = append(d.SourceStats, SourceStats{
			SourceID:     id,
			SourceName:   name,
			AnomalyCount: perSource[id].count,
			LastAnalysis: isoTime(perSource[id].last),
		})
	}

	d.Scores = scoreStats(scores)
	return d, nil
}

func scoreStats(scores stats.Float64Data) ScoreStats {
	if scores.Len() == 0 {
		return ScoreStats{}
	}
	var out ScoreStats
	var err error
	if out.Mean, err = scores.Mean(); err != nil {
		return ScoreStats{}
	}
	if out.Max, err = scores.Max(); err != nil {
		return ScoreStats{}
	}
	if out.P95, err = scores.Percentile(95); err != nil {
		return ScoreStats{}
	}
	return out
}

// AlertsForSource returns the anomalies of every result of a source, newest
// result first. A non-empty severity keeps only anomalies of that severity.
func (s *ReportService) AlertsForSource(ctx context.Context, sourceID string, severity domain.Severity) ([]domain.Anomaly, error) {
	results, err := s.results.FindBySourceID(ctx, sourceID, 0)
	if err != nil {
		return nil, err
	}
	alerts := []domain.Anomaly{}
	for _, res := range results {
		if severity != "" {
			alerts = append(alerts, res.AnomaliesWithSeverity(severity)...)
			continue
		}
		alerts = append(alerts, res.Anomalies()...)
	}
	return alerts, nil
}
