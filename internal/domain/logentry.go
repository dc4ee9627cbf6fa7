package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LogLevel is the normalized severity of a log entry.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
	LevelFatal LogLevel = "FATAL"
)

// IsValid checks if the level is one of the allowed values.
func (l LogLevel) IsValid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return true
	default:
		return false
	}
}

// IsErrorOrWorse reports whether the level is ERROR or FATAL.
func (l LogLevel) IsErrorOrWorse() bool {
	return l == LevelError || l == LevelFatal
}

// ParseLogLevel maps a source-native level name onto a LogLevel.
// Unknown names map to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG", "DBG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "ERR":
		return LevelError
	case "FATAL", "CRITICAL", "CRIT", "PANIC", "EMERG", "ALERT":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// LogEntryProps is the full state of a LogEntry.
type LogEntryProps struct {
	ID          string
	SourceID    string
	Timestamp   time.Time
	Level       LogLevel
	Message     string
	RawContent  string
	Metadata    map[string]any
	Tags        []string
	CollectedAt time.Time
}

// LogEntry is one collected log line. Identity, origin and content are
// immutable; tags and metadata only grow.
type LogEntry struct {
	props LogEntryProps
}

// NewLogEntry builds an entry collected now with a fresh id.
func NewLogEntry(sourceID string, timestamp time.Time, level LogLevel, message, rawContent string, metadata map[string]any, tags []string) (*LogEntry, error) {
	return RestoreLogEntry(LogEntryProps{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		Timestamp:   timestamp,
		Level:       level,
		Message:     message,
		RawContent:  rawContent,
		Metadata:    metadata,
		Tags:        tags,
		CollectedAt: time.Now(),
	})
}

// RestoreLogEntry rebuilds an entry from persisted state.
func RestoreLogEntry(props LogEntryProps) (*LogEntry, error) {
	if props.ID == "" {
		return nil, validationError("LogEntry ID is required")
	}
	if props.SourceID == "" {
		return nil, validationError("LogEntry sourceId is required")
	}
	if props.Timestamp.IsZero() {
		return nil, validationError("LogEntry timestamp is required")
	}
	if props.Message == "" {
		return nil, validationError("LogEntry message is required")
	}
	if !props.Level.IsValid() {
		props.Level = LevelInfo
	}

	e := &LogEntry{props: props}
	e.props.Metadata = copyMap(props.Metadata)
	e.props.Tags = nil
	for _, tag := range props.Tags {
		e.AddTag(tag)
	}
	return e, nil
}

func (e *LogEntry) ID() string             { return e.props.ID }
func (e *LogEntry) SourceID() string       { return e.props.SourceID }
func (e *LogEntry) Timestamp() time.Time   { return e.props.Timestamp }
func (e *LogEntry) Level() LogLevel        { return e.props.Level }
func (e *LogEntry) Message() string        { return e.props.Message }
func (e *LogEntry) RawContent() string     { return e.props.RawContent }
func (e *LogEntry) CollectedAt() time.Time { return e.props.CollectedAt }

// Tags returns the tags in insertion order.
func (e *LogEntry) Tags() []string {
	return append([]string(nil), e.props.Tags...)
}

// Metadata returns a copy of the entry metadata.
func (e *LogEntry) Metadata() map[string]any { return copyMap(e.props.Metadata) }

// HasTag reports whether the tag is present.
func (e *LogEntry) HasTag(tag string) bool {
	for _, t := range e.props.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag adds a tag if it is not already present.
func (e *LogEntry) AddTag(tag string) {
	if tag == "" || e.HasTag(tag) {
		return
	}
	e.props.Tags = append(e.props.Tags, tag)
}

// AddMetadata sets a metadata key.
func (e *LogEntry) AddMetadata(key string, value any) {
	if e.props.Metadata == nil {
		e.props.Metadata = make(map[string]any)
	}
	e.props.Metadata[key] = value
}

// Snapshot returns a copy of the entry state.
func (e *LogEntry) Snapshot() LogEntryProps {
	p := e.props
	p.Metadata = copyMap(p.Metadata)
	p.Tags = e.Tags()
	return p
}

// EntryIDs returns the ids of entries in order.
func EntryIDs(entries []*LogEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID()
	}
	return ids
}
