package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is a state of the analysis session lifecycle.
type SessionStatus string

const (
	SessionPending    SessionStatus = "PENDING"
	SessionCollecting SessionStatus = "COLLECTING"
	SessionAnalyzing  SessionStatus = "ANALYZING"
	SessionCompleted  SessionStatus = "COMPLETED"
	SessionFailed     SessionStatus = "FAILED"
)

// IsActive reports whether the session is still in progress.
func (s SessionStatus) IsActive() bool {
	return s == SessionPending || s == SessionCollecting || s == SessionAnalyzing
}

// SessionProps is the persistent state of a LogAnalysisSession.
type SessionProps struct {
	ID             string
	Source         *LogSource
	TimeRange      TimeRange
	ModelConfig    DetectionModelConfig
	Status         SessionStatus
	LogEntries     []*LogEntry
	AnalysisResult *AnalysisResult
	Error          string
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LogAnalysisSession is the aggregate root driving one collection and
// analysis run: PENDING -> COLLECTING -> ANALYZING -> COMPLETED, with
// FAILED reachable from any state.
//
// A session is not safe for concurrent use. Events queued by state
// transitions are held in memory until the caller drains them with
// PendingEvents and ClearEvents.
type LogAnalysisSession struct {
	props  SessionProps
	events []DomainEvent
}

// NewLogAnalysisSession starts a PENDING session with no entries.
func NewLogAnalysisSession(source *LogSource, timeRange TimeRange, modelConfig DetectionModelConfig) (*LogAnalysisSession, error) {
	now := time.Now()
	return RestoreSession(SessionProps{
		ID:          uuid.NewString(),
		Source:      source,
		TimeRange:   timeRange,
		ModelConfig: modelConfig,
		Status:      SessionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// RestoreSession rebuilds a session from persisted state. The event queue
// starts empty.
func RestoreSession(props SessionProps) (*LogAnalysisSession, error) {
	if props.ID == "" {
		return nil, validationError("Session ID is required")
	}
	if props.Source == nil {
		return nil, validationError("LogSource is required")
	}
	if props.TimeRange.Start().IsZero() {
		return nil, validationError("TimeRange is required")
	}
	if props.ModelConfig.ModelType() == "" {
		return nil, validationError("ModelConfig is required")
	}
	if props.Status == "" {
		props.Status = SessionPending
	}
	props.LogEntries = append([]*LogEntry(nil), props.LogEntries...)
	return &LogAnalysisSession{props: props}, nil
}

func (s *LogAnalysisSession) ID() string                        { return s.props.ID }
func (s *LogAnalysisSession) Source() *LogSource                { return s.props.Source }
func (s *LogAnalysisSession) TimeRange() TimeRange              { return s.props.TimeRange }
func (s *LogAnalysisSession) ModelConfig() DetectionModelConfig { return s.props.ModelConfig }
func (s *LogAnalysisSession) Status() SessionStatus             { return s.props.Status }
func (s *LogAnalysisSession) AnalysisResult() *AnalysisResult   { return s.props.AnalysisResult }
func (s *LogAnalysisSession) Error() string                     { return s.props.Error }
func (s *LogAnalysisSession) Version() int                      { return s.props.Version }
func (s *LogAnalysisSession) CreatedAt() time.Time              { return s.props.CreatedAt }
func (s *LogAnalysisSession) UpdatedAt() time.Time              { return s.props.UpdatedAt }
func (s *LogAnalysisSession) LogCount() int                     { return len(s.props.LogEntries) }
func (s *LogAnalysisSession) IsCompleted() bool                 { return s.props.Status == SessionCompleted }
func (s *LogAnalysisSession) IsFailed() bool                    { return s.props.Status == SessionFailed }

// LogEntries returns the collected entries in collection order.
func (s *LogAnalysisSession) LogEntries() []*LogEntry {
	return append([]*LogEntry(nil), s.props.LogEntries...)
}

// HasAnomalies is false both when the analysis found nothing and when no
// analysis has completed yet.
func (s *LogAnalysisSession) HasAnomalies() bool {
	return s.props.AnalysisResult != nil && s.props.AnalysisResult.HasAnomalies()
}

// StartCollecting moves a PENDING session to COLLECTING.
func (s *LogAnalysisSession) StartCollecting() error {
	if s.props.Status != SessionPending {
		return stateError("Can only start collecting from PENDING status")
	}
	s.transition(SessionCollecting)
	return nil
}

// AddLogEntries appends collected entries and queues a LogCollected event.
func (s *LogAnalysisSession) AddLogEntries(entries []*LogEntry) error {
	if s.props.Status != SessionCollecting {
		return stateError("Can only add log entries during COLLECTING status")
	}
	s.props.LogEntries = append(s.props.LogEntries, entries...)
	s.touch()
	s.events = append(s.events, NewLogCollectedEvent(s.props.ID, s.props.Source.ID(), len(entries)))
	return nil
}

// StartAnalysis moves a COLLECTING session with at least one entry to
// ANALYZING. An empty session is rejected whatever its status.
func (s *LogAnalysisSession) StartAnalysis() error {
	if len(s.props.LogEntries) == 0 {
		return stateError("Cannot analyze with no log entries")
	}
	if s.props.Status != SessionCollecting {
		return stateError("Must finish collecting before starting analysis")
	}
	s.transition(SessionAnalyzing)
	return nil
}

// CompleteAnalysis stores the result and moves the session to COMPLETED.
// It queues AnomalyDetected when the result has anomalies, then always
// AnalysisCompleted.
func (s *LogAnalysisSession) CompleteAnalysis(result *AnalysisResult) error {
	if s.props.Status != SessionAnalyzing {
		return stateError("Can only complete analysis from ANALYZING status")
	}
	if result == nil {
		return validationError("AnalysisResult is required")
	}
	s.props.AnalysisResult = result
	s.transition(SessionCompleted)

	if result.HasAnomalies() {
		s.events = append(s.events, NewAnomalyDetectedEvent(
			s.props.ID, result.ID(), len(result.Anomalies()), result.HasCriticalAnomalies(),
		))
	}
	s.events = append(s.events, NewAnalysisCompletedEvent(s.props.ID, result.ID(), result.HasAnomalies()))
	return nil
}

// Fail moves the session to FAILED from any state and records the reason.
func (s *LogAnalysisSession) Fail(reason string) {
	s.props.Error = reason
	s.transition(SessionFailed)
}

// PendingEvents returns the queued events in emission order.
func (s *LogAnalysisSession) PendingEvents() []DomainEvent {
	return append([]DomainEvent(nil), s.events...)
}

// ClearEvents empties the event queue.
func (s *LogAnalysisSession) ClearEvents() {
	s.events = nil
}

// SetVersion records the version assigned by the repository on write.
func (s *LogAnalysisSession) SetVersion(v int) {
	s.props.Version = v
}

// Snapshot returns a copy of the session state. Entities are shared.
func (s *LogAnalysisSession) Snapshot() SessionProps {
	p := s.props
	p.LogEntries = s.LogEntries()
	return p
}

func (s *LogAnalysisSession) transition(to SessionStatus) {
	s.props.Status = to
	s.touch()
}

func (s *LogAnalysisSession) touch() {
	s.props.UpdatedAt = time.Now()
}
