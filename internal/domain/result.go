package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyType classifies how an anomaly was detected.
type AnomalyType string

const (
	AnomalyStatistical AnomalyType = "STATISTICAL"
	AnomalyPattern     AnomalyType = "PATTERN"
	AnomalyFrequency   AnomalyType = "FREQUENCY"
	AnomalyThreshold   AnomalyType = "THRESHOLD"
	AnomalyLLMDetected AnomalyType = "LLM_DETECTED"
)

// IsValid checks if the anomaly type is one of the allowed values.
func (t AnomalyType) IsValid() bool {
	switch t {
	case AnomalyStatistical, AnomalyPattern, AnomalyFrequency, AnomalyThreshold, AnomalyLLMDetected:
		return true
	default:
		return false
	}
}

// Severity ranks an anomaly.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid checks if the severity value is one of the allowed values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// ClassifySeverity maps a score in [0,1] onto a severity.
func ClassifySeverity(score float64) Severity {
	switch {
	case score >= 0.9:
		return SeverityCritical
	case score >= 0.75:
		return SeverityHigh
	case score >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Anomaly is a scored deviation found in a batch of log entries.
type Anomaly struct {
	Type        AnomalyType    `json:"type"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	LogEntryIDs []string       `json:"logEntryIds"`
	Score       float64        `json:"score"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AnalysisResultProps is the full state of an AnalysisResult.
type AnalysisResultProps struct {
	ID               string
	SessionID        string
	SourceID         string
	ModelType        string
	AnalyzedLogCount int
	Anomalies        []Anomaly
	Summary          string
	StartTime        time.Time
	EndTime          time.Time
	CreatedAt        time.Time
}

// AnalysisResult is the outcome of one analysis run.
type AnalysisResult struct {
	props AnalysisResultProps
}

// NewAnalysisResult builds a result with a fresh id.
func NewAnalysisResult(sessionID, sourceID, modelType string, analyzedLogCount int, anomalies []Anomaly, summary string, startTime, endTime time.Time) (*AnalysisResult, error) {
	return RestoreAnalysisResult(AnalysisResultProps{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		SourceID:         sourceID,
		ModelType:        modelType,
		AnalyzedLogCount: analyzedLogCount,
		Anomalies:        anomalies,
		Summary:          summary,
		StartTime:        startTime,
		EndTime:          endTime,
		CreatedAt:        time.Now(),
	})
}

// RestoreAnalysisResult rebuilds a result from persisted state.
func RestoreAnalysisResult(props AnalysisResultProps) (*AnalysisResult, error) {
	if props.ID == "" {
		return nil, validationError("AnalysisResult ID is required")
	}
	if props.SessionID == "" {
		return nil, validationError("AnalysisResult sessionId is required")
	}
	if props.SourceID == "" {
		return nil, validationError("AnalysisResult sourceId is required")
	}
	props.Anomalies = append([]Anomaly(nil), props.Anomalies...)
	return &AnalysisResult{props: props}, nil
}

func (r *AnalysisResult) ID() string            { return r.props.ID }
func (r *AnalysisResult) SessionID() string     { return r.props.SessionID }
func (r *AnalysisResult) SourceID() string      { return r.props.SourceID }
func (r *AnalysisResult) ModelType() string     { return r.props.ModelType }
func (r *AnalysisResult) AnalyzedLogCount() int { return r.props.AnalyzedLogCount }
func (r *AnalysisResult) Summary() string       { return r.props.Summary }
func (r *AnalysisResult) StartTime() time.Time  { return r.props.StartTime }
func (r *AnalysisResult) EndTime() time.Time    { return r.props.EndTime }
func (r *AnalysisResult) CreatedAt() time.Time  { return r.props.CreatedAt }

// Anomalies returns a copy of the anomaly list.
func (r *AnalysisResult) Anomalies() []Anomaly {
	return append([]Anomaly(nil), r.props.Anomalies...)
}

// CriticalAnomalies returns the CRITICAL anomalies.
func (r *AnalysisResult) CriticalAnomalies() []Anomaly {
	return r.filter(func(a Anomaly) bool { return a.Severity == SeverityCritical })
}

// HighSeverityAnomalies returns the HIGH and CRITICAL anomalies.
func (r *AnalysisResult) HighSeverityAnomalies() []Anomaly {
	return r.filter(func(a Anomaly) bool {
		return a.Severity == SeverityHigh || a.Severity == SeverityCritical
	})
}

// AnomaliesWithSeverity returns the anomalies of one severity.
func (r *AnalysisResult) AnomaliesWithSeverity(s Severity) []Anomaly {
	return r.filter(func(a Anomaly) bool { return a.Severity == s })
}

func (r *AnalysisResult) filter(keep func(Anomaly) bool) []Anomaly {
	var out []Anomaly
	for _, a := range r.props.Anomalies {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// HasAnomalies reports whether any anomaly was recorded.
func (r *AnalysisResult) HasAnomalies() bool { return len(r.props.Anomalies) > 0 }

// HasCriticalAnomalies reports whether any CRITICAL anomaly was recorded.
func (r *AnalysisResult) HasCriticalAnomalies() bool { return len(r.CriticalAnomalies()) > 0 }

// AddAnomaly appends an anomaly. Only valid while the result is being
// assembled, before it is persisted.
func (r *AnalysisResult) AddAnomaly(a Anomaly) {
	r.props.Anomalies = append(r.props.Anomalies, a)
}

// Snapshot returns a copy of the result state.
func (r *AnalysisResult) Snapshot() AnalysisResultProps {
	p := r.props
	p.Anomalies = r.Anomalies()
	return p
}
