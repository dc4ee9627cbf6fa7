package collector

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/valyala/fastjson"
)

// record is one log line decoded from a JSON object or plain text.
type record struct {
	Timestamp time.Time
	Level     domain.LogLevel
	Message   string
	Fields    map[string]any
}

var (
	timestampKeys = []string{"timestamp", "ts", "time", "@timestamp"}
	levelKeys     = []string{"level", "severity", "lvl"}
	messageKeys   = []string{"message", "msg"}
)

// parseJSONRecord extracts a record from a JSON object. Fields other than
// the timestamp, level and message keys are kept as metadata. ok is false
// when the object has no message.
func parseJSONRecord(v *fastjson.Value) (rec record, ok bool) {
	obj, err := v.Object()
	if err != nil {
		return record{}, false
	}

	rec.Level = domain.LevelInfo
	rec.Fields = make(map[string]any)
	obj.Visit(func(key []byte, val *fastjson.Value) {
		k := string(key)
		switch {
		case slices.Contains(timestampKeys, k):
			if rec.Timestamp.IsZero() {
				rec.Timestamp = parseTimestampValue(val)
			}
		case slices.Contains(levelKeys, k):
			rec.Level = parseLevelValue(val)
		case slices.Contains(messageKeys, k):
			if rec.Message == "" {
				rec.Message = string(val.GetStringBytes())
			}
		default:
			rec.Fields[k] = fieldValue(val)
		}
	})

	rec.Message = strings.TrimSpace(rec.Message)
	return rec, rec.Message != ""
}

// parseTimestampValue accepts RFC3339 strings and epoch numbers in
// seconds or milliseconds.
func parseTimestampValue(v *fastjson.Value) time.Time {
	switch v.Type() {
	case fastjson.TypeString:
		return parseTimestampString(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		return epochTime(v.GetFloat64())
	default:
		return time.Time{}
	}
}

func parseTimestampString(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochTime(f)
	}
	return time.Time{}
}

func epochTime(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	// Anything past year 33658 in seconds is assumed to be milliseconds.
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func parseLevelValue(v *fastjson.Value) domain.LogLevel {
	if v.Type() == fastjson.TypeNumber {
		return zabbixLevel(v.GetInt())
	}
	return domain.ParseLogLevel(string(v.GetStringBytes()))
}

func fieldValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	default:
		return v.String()
	}
}

// knownLevels are the level tokens recognized at the start of a plain
// text line.
var knownLevels = map[string]bool{
	"TRACE": true, "DEBUG": true, "DBG": true,
	"INFO": true, "NOTICE": true,
	"WARN": true, "WARNING": true,
	"ERROR": true, "ERR": true,
	"FATAL": true, "CRITICAL": true, "CRIT": true, "PANIC": true,
}

// parseTextRecord parses "<RFC3339> <LEVEL> message". Either prefix may be
// missing; a missing timestamp leaves Timestamp zero.
func parseTextRecord(line string) record {
	rec := record{Level: domain.LevelInfo, Message: strings.TrimSpace(line)}

	if first, rest, ok := strings.Cut(rec.Message, " "); ok {
		if t, err := time.Parse(time.RFC3339Nano, first); err == nil {
			rec.Timestamp = t
			rec.Message = strings.TrimSpace(rest)
		}
	}

	if first, rest, ok := strings.Cut(rec.Message, " "); ok {
		token := strings.ToUpper(strings.Trim(first, "[]:"))
		if knownLevels[token] {
			rec.Level = domain.ParseLogLevel(token)
			rec.Message = strings.TrimSpace(rest)
		}
	}
	return rec
}

// zabbixLevel maps Zabbix severities 0..5 onto log levels.
func zabbixLevel(severity int) domain.LogLevel {
	switch severity {
	case 0:
		return domain.LevelDebug
	case 1:
		return domain.LevelInfo
	case 2, 3:
		return domain.LevelWarn
	case 4:
		return domain.LevelError
	case 5:
		return domain.LevelFatal
	default:
		return domain.LevelInfo
	}
}
