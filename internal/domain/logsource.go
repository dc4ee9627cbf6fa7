package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the monitoring backend behind a LogSource.
type SourceType string

const (
	SourcePrometheus SourceType = "PROMETHEUS"
	SourceZabbix     SourceType = "ZABBIX"
	SourceCustom     SourceType = "CUSTOM"
	SourceFile       SourceType = "FILE"
)

// IsValid checks if the source type is one of the allowed values.
func (t SourceType) IsValid() bool {
	switch t {
	case SourcePrometheus, SourceZabbix, SourceCustom, SourceFile:
		return true
	default:
		return false
	}
}

// SourceStatus is the operational status of a LogSource.
type SourceStatus string

const (
	SourceActive   SourceStatus = "ACTIVE"
	SourceInactive SourceStatus = "INACTIVE"
	SourceError    SourceStatus = "ERROR"
)

// LogSourceProps is the full state of a LogSource.
type LogSourceProps struct {
	ID          string
	Name        string
	Type        SourceType
	Status      SourceStatus
	Endpoint    string
	Credentials map[string]string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LogSource is a monitored backend that log entries are collected from.
type LogSource struct {
	props LogSourceProps
}

// NewLogSource registers a new source in INACTIVE status.
func NewLogSource(name string, sourceType SourceType, endpoint string, credentials map[string]string, metadata map[string]any) (*LogSource, error) {
	if !sourceType.IsValid() {
		return nil, validationError("Unknown log source type %q", string(sourceType))
	}
	now := time.Now()
	return RestoreLogSource(LogSourceProps{
		ID:          uuid.NewString(),
		Name:        name,
		Type:        sourceType,
		Status:      SourceInactive,
		Endpoint:    endpoint,
		Credentials: credentials,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// RestoreLogSource rebuilds a source from persisted state.
func RestoreLogSource(props LogSourceProps) (*LogSource, error) {
	if props.ID == "" {
		return nil, validationError("LogSource ID is required")
	}
	if strings.TrimSpace(props.Name) == "" {
		return nil, validationError("LogSource name is required")
	}
	if strings.TrimSpace(props.Endpoint) == "" {
		return nil, validationError("LogSource endpoint is required")
	}
	props.Credentials = copyMap(props.Credentials)
	props.Metadata = copyMap(props.Metadata)
	return &LogSource{props: props}, nil
}

func (s *LogSource) ID() string           { return s.props.ID }
func (s *LogSource) Name() string         { return s.props.Name }
func (s *LogSource) Type() SourceType     { return s.props.Type }
func (s *LogSource) Status() SourceStatus { return s.props.Status }
func (s *LogSource) Endpoint() string     { return s.props.Endpoint }
func (s *LogSource) CreatedAt() time.Time { return s.props.CreatedAt }
func (s *LogSource) UpdatedAt() time.Time { return s.props.UpdatedAt }
func (s *LogSource) IsActive() bool       { return s.props.Status == SourceActive }

// Credential returns a single credential value.
func (s *LogSource) Credential(key string) string { return s.props.Credentials[key] }

// Credentials returns a copy of the source credentials.
func (s *LogSource) Credentials() map[string]string { return copyMap(s.props.Credentials) }

// Metadata returns a copy of the source metadata.
func (s *LogSource) Metadata() map[string]any { return copyMap(s.props.Metadata) }

// MetadataString returns a string metadata value, or "" when absent.
func (s *LogSource) MetadataString(key string) string {
	v, _ := s.props.Metadata[key].(string)
	return v
}

// Activate marks the source ACTIVE.
func (s *LogSource) Activate() { s.setStatus(SourceActive) }

// Deactivate marks the source INACTIVE.
func (s *LogSource) Deactivate() { s.setStatus(SourceInactive) }

// MarkAsError marks the source ERROR.
func (s *LogSource) MarkAsError() { s.setStatus(SourceError) }

func (s *LogSource) setStatus(status SourceStatus) {
	s.props.Status = status
	s.props.UpdatedAt = time.Now()
}

// UpdateEndpoint replaces the endpoint. An empty endpoint is rejected.
func (s *LogSource) UpdateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return validationError("Endpoint cannot be empty")
	}
	s.props.Endpoint = endpoint
	s.props.UpdatedAt = time.Now()
	return nil
}

// UpdateCredentials replaces the credentials.
func (s *LogSource) UpdateCredentials(credentials map[string]string) {
	s.props.Credentials = copyMap(credentials)
	s.props.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the source state.
func (s *LogSource) Snapshot() LogSourceProps {
	p := s.props
	p.Credentials = copyMap(p.Credentials)
	p.Metadata = copyMap(p.Metadata)
	return p
}
