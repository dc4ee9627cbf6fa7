package ai

import (
	"fmt"
	"strings"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// DefaultValidator implements ResponseValidator with strict schema checks.
type DefaultValidator struct{}

// NewDefaultValidator creates a new response validator.
func NewDefaultValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// Validate checks if the AI response conforms to the expected schema.
func (v *DefaultValidator) Validate(resp *DetectionResponse, lineCount int) error {
	if resp == nil {
		return domain.WrapError("validate",
			fmt.Errorf("%w: response is nil", domain.ErrInvalidAIResponse), false)
	}

	for i, a := range resp.Anomalies {
		if strings.TrimSpace(a.Description) == "" {
			return domain.WrapError("validate_description",
				fmt.Errorf("%w: anomalies[%d].description is required", domain.ErrInvalidAIResponse, i), false)
		}

		if !domain.Severity(strings.ToUpper(a.Severity)).IsValid() {
			return domain.WrapError("validate_severity",
				fmt.Errorf("%w: anomalies[%d].severity must be LOW, MEDIUM, HIGH or CRITICAL, got: %s",
					domain.ErrInvalidAIResponse, i, a.Severity), false)
		}

		if a.Type != "" && !domain.AnomalyType(strings.ToUpper(a.Type)).IsValid() {
			return domain.WrapError("validate_type",
				fmt.Errorf("%w: anomalies[%d].type %q is unknown", domain.ErrInvalidAIResponse, i, a.Type), false)
		}

		if a.Score < 0 || a.Score > 1 {
			return domain.WrapError("validate_score",
				fmt.Errorf("%w: anomalies[%d].score must be between 0 and 1", domain.ErrInvalidAIResponse, i), false)
		}

		if len(a.LogIndices) == 0 {
			return domain.WrapError("validate_log_indices",
				fmt.Errorf("%w: anomalies[%d].logIndices is empty", domain.ErrInvalidAIResponse, i), false)
		}

		for _, idx := range a.LogIndices {
			if idx < 0 || idx >= lineCount {
				return domain.WrapError("validate_log_indices",
					fmt.Errorf("%w: anomalies[%d] references log %d of %d", domain.ErrInvalidAIResponse, i, idx, lineCount), false)
			}
		}
	}

	return nil
}
