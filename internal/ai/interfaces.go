// Package ai provides the LLM_BASED detection strategy: an
// OpenAI-compatible chat client that asks a model to flag anomalous log
// entries, plus an offline mock.
package ai

import "context"

// PromptLine is one log entry as shown to the model.
type PromptLine struct {
	Index     int
	Timestamp string
	Level     string
	Message   string
}

// PromptBuilder defines the interface for constructing AI prompts.
type PromptBuilder interface {
	// BuildSystemPrompt returns the system prompt. A non-empty override
	// replaces the built-in role description.
	BuildSystemPrompt(override string) string

	// BuildUserPrompt renders the numbered log lines and the score floor.
	BuildUserPrompt(lines []PromptLine, threshold float64) string
}

// ResponseValidator defines the interface for validating AI responses.
type ResponseValidator interface {
	// Validate checks the parsed response against the number of lines sent.
	Validate(resp *DetectionResponse, lineCount int) error
}

// HealthChecker is implemented by detectors backed by a remote service.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DetectionResponse is the JSON document the model must return.
type DetectionResponse struct {
	Anomalies []ModelAnomaly `json:"anomalies"`
}

// ModelAnomaly is one anomaly as reported by the model. LogIndices refer
// to the PromptLine indices.
type ModelAnomaly struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	LogIndices  []int   `json:"logIndices"`
	Score       float64 `json:"score"`
}
