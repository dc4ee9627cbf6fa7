package service

import (
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// maskedCredential replaces credential values in views.
const maskedCredential = "********"

// SourceView is the external representation of a log source. Credential
// values are masked.
type SourceView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Endpoint    string            `json:"endpoint"`
	Credentials map[string]string `json:"credentials,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
}

// NewSourceView maps a source.
func NewSourceView(s *domain.LogSource) SourceView {
	var creds map[string]string
	if c := s.Credentials(); len(c) > 0 {
		creds = make(map[string]string, len(c))
		for k := range c {
			creds[k] = maskedCredential
		}
	}
	return SourceView{
		ID:          s.ID(),
		Name:        s.Name(),
		Type:        string(s.Type()),
		Status:      string(s.Status()),
		Endpoint:    s.Endpoint(),
		Credentials: creds,
		Metadata:    s.Metadata(),
		CreatedAt:   isoTime(s.CreatedAt()),
		UpdatedAt:   isoTime(s.UpdatedAt()),
	}
}

// TimeRangeView is a time range as ISO-8601 strings.
type TimeRangeView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewTimeRangeView maps a time range.
func NewTimeRangeView(r domain.TimeRange) TimeRangeView {
	return TimeRangeView{Start: isoTime(r.Start()), End: isoTime(r.End())}
}

// ModelConfigView is the external form of a detection model config.
type ModelConfigView struct {
	ModelType   string         `json:"modelType"`
	Threshold   float64        `json:"threshold"`
	Sensitivity float64        `json:"sensitivity"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	ModelPath   string         `json:"modelPath,omitempty"`
	LLMModel    string         `json:"llmModel,omitempty"`
	LLMPrompt   string         `json:"llmPrompt,omitempty"`
}

// SessionView is the external representation of an analysis session.
type SessionView struct {
	ID               string          `json:"id"`
	SourceID         string          `json:"sourceId"`
	SourceName       string          `json:"sourceName"`
	TimeRange        TimeRangeView   `json:"timeRange"`
	ModelConfig      ModelConfigView `json:"modelConfig"`
	Status           string          `json:"status"`
	LogCount         int             `json:"logCount"`
	AnalysisResultID *string         `json:"analysisResultId"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        string          `json:"createdAt"`
	UpdatedAt        string          `json:"updatedAt"`
}

// NewSessionView maps a session.
func NewSessionView(s *domain.LogAnalysisSession) SessionView {
	cfg := s.ModelConfig()
	view := SessionView{
		ID:         s.ID(),
		SourceID:   s.Source().ID(),
		SourceName: s.Source().Name(),
		TimeRange:  NewTimeRangeView(s.TimeRange()),
		ModelConfig: ModelConfigView{
			ModelType:   string(cfg.ModelType()),
			Threshold:   cfg.Threshold(),
			Sensitivity: cfg.Sensitivity(),
			Parameters:  cfg.Parameters(),
			ModelPath:   cfg.ModelPath(),
			LLMModel:    cfg.LLMModel(),
			LLMPrompt:   cfg.LLMPrompt(),
		},
		Status:    string(s.Status()),
		LogCount:  s.LogCount(),
		Error:     s.Error(),
		CreatedAt: isoTime(s.CreatedAt()),
		UpdatedAt: isoTime(s.UpdatedAt()),
	}
	if res := s.AnalysisResult(); res != nil {
		id := res.ID()
		view.AnalysisResultID = &id
	}
	return view
}

// ResultView is the external representation of an analysis result.
type ResultView struct {
	ID               string           `json:"id"`
	SessionID        string           `json:"sessionId"`
	SourceID         string           `json:"sourceId"`
	ModelType        string           `json:"modelType"`
	AnalyzedLogCount int              `json:"analyzedLogCount"`
	Anomalies        []domain.Anomaly `json:"anomalies"`
	Summary          string           `json:"summary"`
	StartTime        string           `json:"startTime"`
	EndTime          string           `json:"endTime"`
	CreatedAt        string           `json:"createdAt"`
}

// NewResultView maps a result.
func NewResultView(r *domain.AnalysisResult) ResultView {
	anomalies := r.Anomalies()
	if anomalies == nil {
		anomalies = []domain.Anomaly{}
	}
	return ResultView{
		ID:               r.ID(),
		SessionID:        r.SessionID(),
		SourceID:         r.SourceID(),
		ModelType:        r.ModelType(),
		AnalyzedLogCount: r.AnalyzedLogCount(),
		Anomalies:        anomalies,
		Summary:          r.Summary(),
		StartTime:        isoTime(r.StartTime()),
		EndTime:          isoTime(r.EndTime()),
		CreatedAt:        isoTime(r.CreatedAt()),
	}
}

// LogEntryView is the external representation of a log entry.
type LogEntryView struct {
	ID          string         `json:"id"`
	SourceID    string         `json:"sourceId"`
	Timestamp   string         `json:"timestamp"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CollectedAt string         `json:"collectedAt"`
}

// NewLogEntryView maps an entry.
func NewLogEntryView(e *domain.LogEntry) LogEntryView {
	return LogEntryView{
		ID:          e.ID(),
		SourceID:    e.SourceID(),
		Timestamp:   isoTime(e.Timestamp()),
		Level:       string(e.Level()),
		Message:     e.Message(),
		Metadata:    e.Metadata(),
		Tags:        e.Tags(),
		CollectedAt: isoTime(e.CollectedAt()),
	}
}

// isoTime formats t as UTC with millisecond precision.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
