package rules

import (
	"context"
	"fmt"

	"github.com/ai-devops/loganomaly/internal/detection"
	"github.com/ai-devops/loganomaly/internal/domain"
	"go.uber.org/zap"
)

// Match is the set of entries one rule fired on.
type Match struct {
	Rule    *Rule
	Entries []*domain.LogEntry
}

// Engine is the RULE_BASED detector: the statistical baseline followed by
// one PATTERN anomaly per rule that fired with confidence above the
// configured threshold.
type Engine struct {
	rules  []*Rule
	logger *zap.Logger
}

// NewEngine creates a new rule engine with the provided rules.
func NewEngine(rules []*Rule, logger *zap.Logger) *Engine {
	return &Engine{
		rules:  rules,
		logger: logger.Named("rule_engine"),
	}
}

// Match applies every rule to every entry message and returns the rules
// that fired, in rule order.
func (e *Engine) Match(logs []*domain.LogEntry) []Match {
	var matches []Match
	for _, rule := range e.rules {
		var hits []*domain.LogEntry
		for _, l := range logs {
			if rule.Match(l.Message()) {
				hits = append(hits, l)
			}
		}
		if len(hits) == 0 {
			continue
		}
		e.logger.Debug("rule matched",
			zap.String("rule_id", rule.ID),
			zap.Int("entries", len(hits)),
			zap.Float64("confidence", rule.Confidence),
		)
		matches = append(matches, Match{Rule: rule, Entries: hits})
	}
	return matches
}

// Analyze implements detection.Detector.
func (e *Engine) Analyze(ctx context.Context, logs []*domain.LogEntry, cfg domain.DetectionModelConfig) ([]domain.Anomaly, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	anomalies := detection.Analyze(logs, cfg)
	for _, m := range e.Match(logs) {
		if m.Rule.Confidence <= cfg.Threshold() {
			continue
		}
		anomalies = append(anomalies, domain.Anomaly{
			Type:        domain.AnomalyPattern,
			Severity:    m.Rule.Severity,
			Description: fmt.Sprintf("%s detected in %d log entries", m.Rule.Name, len(m.Entries)),
			LogEntryIDs: domain.EntryIDs(m.Entries),
			Score:       m.Rule.Confidence,
			Metadata: map[string]any{
				"ruleId":     m.Rule.ID,
				"category":   m.Rule.Category,
				"matchCount": len(m.Entries),
			},
		})
	}
	return anomalies, nil
}

// ModelType implements detection.Detector.
func (e *Engine) ModelType() string {
	return string(domain.ModelRuleBased)
}

var _ detection.Detector = (*Engine)(nil)
