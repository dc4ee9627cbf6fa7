// Package detection provides the statistical anomaly detection engine and
// the strategy selector that picks a detector per model type.
package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ai-devops/loganomaly/internal/domain"
	"go.uber.org/zap"
)

// Detector thresholds. These are fixed reference values; only the pattern
// and frequency detectors are additionally gated by the config threshold.
const (
	errorRateTrigger   = 0.1
	patternMinCount    = 5
	patternRateTrigger = 0.15
	burstFactor        = 3.0
	burstWindow        = 60 * time.Second
)

// Analyze runs the error-rate, repeated-pattern and frequency-burst
// detectors over logs and concatenates their anomalies in that order.
// It never fails; empty input yields no anomalies.
func Analyze(logs []*domain.LogEntry, cfg domain.DetectionModelConfig) []domain.Anomaly {
	if len(logs) == 0 {
		return nil
	}
	model := modelLabel(cfg)

	var anomalies []domain.Anomaly
	anomalies = append(anomalies, errorRate(logs, model)...)
	anomalies = append(anomalies, repeatedPatterns(logs, cfg.Threshold(), model)...)
	anomalies = append(anomalies, frequencyBursts(logs, cfg.Threshold(), model)...)
	return anomalies
}

// errorRate flags the batch when more than 10% of entries are ERROR or
// FATAL. The threshold does not gate it.
func errorRate(logs []*domain.LogEntry, model string) []domain.Anomaly {
	var errs []*domain.LogEntry
	for _, l := range logs {
		if l.Level().IsErrorOrWorse() {
			errs = append(errs, l)
		}
	}

	n := len(logs)
	if float64(len(errs)) <= float64(n)*errorRateTrigger {
		return nil
	}

	rate := float64(len(errs)) / float64(n)
	return []domain.Anomaly{{
		Type:     domain.AnomalyLLMDetected,
		Severity: domain.SeverityHigh,
		Description: fmt.Sprintf("High error rate detected: %d errors out of %d logs (%.1f%%)",
			len(errs), n, rate*100),
		LogEntryIDs: domain.EntryIDs(errs),
		Score:       math.Min(rate/errorRateTrigger, 1),
		Metadata: map[string]any{
			"model":      model,
			"errorCount": len(errs),
			"totalLogs":  n,
		},
	}}
}

type messageGroup struct {
	message string
	entries []*domain.LogEntry
}

// repeatedPatterns groups entries by lowercased message, in first-seen
// order, and flags groups above both the absolute and relative floor.
func repeatedPatterns(logs []*domain.LogEntry, threshold float64, model string) []domain.Anomaly {
	index := make(map[string]int)
	var groups []*messageGroup
	for _, l := range logs {
		key := strings.ToLower(l.Message())
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, &messageGroup{message: key})
		}
		groups[i].entries = append(groups[i].entries, l)
	}

	n := float64(len(logs))
	var anomalies []domain.Anomaly
	for _, g := range groups {
		count := len(g.entries)
		if count <= patternMinCount || float64(count) <= n*patternRateTrigger {
			continue
		}
		score := math.Min(float64(count)/n/patternRateTrigger, 1)
		if score <= threshold {
			continue
		}
		anomalies = append(anomalies, domain.Anomaly{
			Type:        domain.AnomalyPattern,
			Severity:    domain.ClassifySeverity(score),
			Description: fmt.Sprintf("Repeated log pattern detected: \"%s\" appears %d times", g.message, count),
			LogEntryIDs: domain.EntryIDs(g.entries),
			Score:       score,
			Metadata: map[string]any{
				"model":           model,
				"repetitionCount": count,
				"pattern":         g.message,
			},
		})
	}
	return anomalies
}

type window struct {
	start   time.Time
	entries []*domain.LogEntry
}

// frequencyBursts flags 60 second windows holding more than three times
// the average number of entries per non-empty window.
func frequencyBursts(logs []*domain.LogEntry, threshold float64, model string) []domain.Anomaly {
	windows := groupByWindow(logs, burstWindow)
	if len(windows) == 0 {
		return nil
	}

	avg := float64(len(logs)) / float64(len(windows))
	limit := avg * burstFactor

	var anomalies []domain.Anomaly
	for _, w := range windows {
		size := float64(len(w.entries))
		if size <= limit {
			continue
		}
		score := math.Min(size/limit, 1)
		if score <= threshold {
			continue
		}
		ts := w.start.UTC().Format(isoMillis)
		anomalies = append(anomalies, domain.Anomaly{
			Type:     domain.AnomalyFrequency,
			Severity: domain.ClassifySeverity(score),
			Description: fmt.Sprintf("Unusual log burst detected at %s: %d logs in 1 minute (avg: %.1f)",
				ts, len(w.entries), avg),
			LogEntryIDs: domain.EntryIDs(w.entries),
			Score:       score,
			Metadata: map[string]any{
				"model":     model,
				"timestamp": ts,
				"logCount":  len(w.entries),
				"average":   avg,
			},
		})
	}
	return anomalies
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// groupByWindow buckets entries by floor(unixMillis/size)*size after a
// stable ascending sort. Windows come out in time order and are never empty.
func groupByWindow(logs []*domain.LogEntry, size time.Duration) []*window {
	sorted := append([]*domain.LogEntry(nil), logs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().Before(sorted[j].Timestamp())
	})

	sizeMs := size.Milliseconds()
	var windows []*window
	var current *window
	var currentKey int64
	for _, l := range sorted {
		key := floorDiv(l.Timestamp().UnixMilli(), sizeMs) * sizeMs
		if current == nil || key != currentKey {
			current = &window{start: time.UnixMilli(key)}
			currentKey = key
			windows = append(windows, current)
		}
		current.entries = append(current.entries, l)
	}
	return windows
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func modelLabel(cfg domain.DetectionModelConfig) string {
	if cfg.LLMModel() != "" {
		return cfg.LLMModel()
	}
	return string(cfg.ModelType())
}

// Engine adapts Analyze to the Detector interface.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates the statistical detector.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("detection_engine")}
}

// Analyze implements Detector. It honors cancellation only before starting.
func (e *Engine) Analyze(ctx context.Context, logs []*domain.LogEntry, cfg domain.DetectionModelConfig) ([]domain.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	anomalies := Analyze(logs, cfg)
	e.logger.Debug("statistical analysis finished",
		zap.Int("logs", len(logs)),
		zap.Int("anomalies", len(anomalies)),
		zap.Float64("threshold", cfg.Threshold()),
	)
	return anomalies, nil
}

// ModelType implements Detector.
func (e *Engine) ModelType() string {
	return string(domain.ModelStatistical)
}
