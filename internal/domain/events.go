package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event type names.
const (
	EventLogCollected      = "LogCollected"
	EventAnomalyDetected   = "AnomalyDetected"
	EventAnalysisCompleted = "AnalysisCompleted"
)

// DomainEvent is an immutable fact emitted by the session aggregate.
type DomainEvent interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
}

// EventHeader carries the fields shared by every domain event.
type EventHeader struct {
	ID       string    `json:"eventId"`
	Type     string    `json:"eventType"`
	Occurred time.Time `json:"occurredAt"`
}

func newHeader(eventType string) EventHeader {
	return EventHeader{ID: uuid.NewString(), Type: eventType, Occurred: time.Now().UTC()}
}

func (h EventHeader) EventID() string       { return h.ID }
func (h EventHeader) EventType() string     { return h.Type }
func (h EventHeader) OccurredAt() time.Time { return h.Occurred }

// LogCollectedEvent is emitted when entries are added to a session.
type LogCollectedEvent struct {
	EventHeader
	SessionID string `json:"sessionId"`
	SourceID  string `json:"sourceId"`
	LogCount  int    `json:"logCount"`
}

// NewLogCollectedEvent builds a LogCollected event.
func NewLogCollectedEvent(sessionID, sourceID string, logCount int) *LogCollectedEvent {
	return &LogCollectedEvent{
		EventHeader: newHeader(EventLogCollected),
		SessionID:   sessionID,
		SourceID:    sourceID,
		LogCount:    logCount,
	}
}

// AnomalyDetectedEvent is emitted when a completed analysis found anomalies.
type AnomalyDetectedEvent struct {
	EventHeader
	SessionID        string `json:"sessionId"`
	AnalysisResultID string `json:"analysisResultId"`
	AnomalyCount     int    `json:"anomalyCount"`
	HasCritical      bool   `json:"hasCritical"`
}

// NewAnomalyDetectedEvent builds an AnomalyDetected event.
func NewAnomalyDetectedEvent(sessionID, resultID string, anomalyCount int, hasCritical bool) *AnomalyDetectedEvent {
	return &AnomalyDetectedEvent{
		EventHeader:      newHeader(EventAnomalyDetected),
		SessionID:        sessionID,
		AnalysisResultID: resultID,
		AnomalyCount:     anomalyCount,
		HasCritical:      hasCritical,
	}
}

// AnalysisCompletedEvent is emitted on every completed analysis.
type AnalysisCompletedEvent struct {
	EventHeader
	SessionID        string `json:"sessionId"`
	AnalysisResultID string `json:"analysisResultId"`
	HasAnomalies     bool   `json:"hasAnomalies"`
}

// NewAnalysisCompletedEvent builds an AnalysisCompleted event.
func NewAnalysisCompletedEvent(sessionID, resultID string, hasAnomalies bool) *AnalysisCompletedEvent {
	return &AnalysisCompletedEvent{
		EventHeader:      newHeader(EventAnalysisCompleted),
		SessionID:        sessionID,
		AnalysisResultID: resultID,
		HasAnomalies:     hasAnomalies,
	}
}

// DecodeEvent rebuilds a domain event from its JSON form.
func DecodeEvent(eventType string, payload []byte) (DomainEvent, error) {
	var event DomainEvent
	switch eventType {
	case EventLogCollected:
		event = &LogCollectedEvent{}
	case EventAnomalyDetected:
		event = &AnomalyDetectedEvent{}
	case EventAnalysisCompleted:
		event = &AnalysisCompletedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}
	return event, nil
}
