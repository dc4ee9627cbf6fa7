package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/detection"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/pkg/sanitizer"
	"go.uber.org/zap"
)

// OpenAIDetector implements detection.Detector using an OpenAI-compatible
// chat completions API.
type OpenAIDetector struct {
	config     *config.AIConfig
	httpClient *http.Client
	prompter   PromptBuilder
	validator  ResponseValidator
	sanitizer  *sanitizer.Sanitizer
	logger     *zap.Logger
}

// OpenAI API request/response structures
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIDetector creates a new OpenAI-compatible LLM detector.
func NewOpenAIDetector(cfg *config.AIConfig, prompter PromptBuilder, validator ResponseValidator, s *sanitizer.Sanitizer, logger *zap.Logger) *OpenAIDetector {
	return &OpenAIDetector{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		prompter:  prompter,
		validator: validator,
		sanitizer: s,
		logger:    logger.Named("ai_detector"),
	}
}

// ModelType implements detection.Detector.
func (d *OpenAIDetector) ModelType() string {
	return string(domain.ModelLLMBased)
}

// Analyze sends the logs to the model and maps its answer onto anomalies.
// At most MaxLogLines entries are sent; anomalies can only reference those.
func (d *OpenAIDetector) Analyze(ctx context.Context, logs []*domain.LogEntry, cfg domain.DetectionModelConfig) ([]domain.Anomaly, error) {
	if len(logs) == 0 {
		return nil, nil
	}
	startTime := time.Now()

	sent := logs
	if limit := d.config.MaxLogLines; limit > 0 && len(sent) > limit {
		sent = sent[:limit]
	}

	model := cfg.LLMModel()
	if model == "" {
		model = d.config.Model
	}

	d.logger.Debug("starting AI analysis",
		zap.String("model", model),
		zap.Int("logs", len(logs)),
		zap.Int("sent", len(sent)),
	)

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: d.prompter.BuildSystemPrompt(cfg.LLMPrompt())},
			{Role: "user", Content: d.prompter.BuildUserPrompt(d.promptLines(sent), cfg.Threshold())},
		},
		MaxTokens:      d.config.MaxTokens,
		Temperature:    0.1, // Low temperature for deterministic output
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.WrapError("marshal_request", err, false)
	}

	// Execute request with retry logic
	var resp *DetectionResponse
	var lastErr error

	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := time.Duration(attempt*attempt) * time.Second
			d.logger.Debug("retrying AI request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, domain.WrapError("context_cancelled", ctx.Err(), false)
			case <-time.After(backoff):
			}
		}

		resp, lastErr = d.executeRequest(ctx, jsonBody, len(sent))
		if lastErr == nil {
			break
		}

		// Check if error is retryable
		if !domain.IsRetryable(lastErr) {
			break
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}

	anomalies := toAnomalies(resp, sent, model)
	d.logger.Debug("AI analysis completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("anomalies", len(anomalies)),
	)
	return anomalies, nil
}

func (d *OpenAIDetector) promptLines(logs []*domain.LogEntry) []PromptLine {
	lines := make([]PromptLine, len(logs))
	for i, l := range logs {
		msg := l.Message()
		if d.sanitizer != nil {
			msg = d.sanitizer.Sanitize(msg)
		}
		lines[i] = PromptLine{
			Index:     i,
			Timestamp: l.Timestamp().UTC().Format(time.RFC3339),
			Level:     string(l.Level()),
			Message:   msg,
		}
	}
	return lines
}

// executeRequest performs a single HTTP request to the AI service.
func (d *OpenAIDetector) executeRequest(ctx context.Context, body []byte, lineCount int) (*DetectionResponse, error) {
	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(d.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapError("create_request", err, false)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", d.config.APIKey))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.WrapError("ai_timeout", domain.ErrAITimeout, false)
		}
		return nil, domain.WrapError("http_request", err, true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError("read_response", err, true)
	}

	// Handle HTTP errors
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.WrapError("rate_limit", domain.ErrRateLimited, true)
		}
		if resp.StatusCode >= 500 {
			return nil, domain.WrapError("ai_unavailable", domain.ErrAIUnavailable, true)
		}
		return nil, domain.WrapError("ai_error",
			fmt.Errorf("AI API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200)), false)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, domain.WrapError("parse_response", err, false)
	}

	if chatResp.Error != nil {
		return nil, domain.WrapError("ai_api_error",
			fmt.Errorf("%s: %s", chatResp.Error.Type, chatResp.Error.Message), false)
	}

	if len(chatResp.Choices) == 0 {
		return nil, domain.WrapError("empty_response", domain.ErrInvalidAIResponse, false)
	}

	result, err := d.parseResponse(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	if err := d.validator.Validate(result, lineCount); err != nil {
		return nil, err
	}

	return result, nil
}

// parseResponse extracts the DetectionResponse from the model output.
func (d *OpenAIDetector) parseResponse(content string) (*DetectionResponse, error) {
	// The model might wrap the JSON in markdown code blocks
	jsonContent := extractJSON(content)
	if jsonContent == "" {
		d.logger.Warn("could not extract JSON from AI response",
			zap.String("content_preview", truncate(content, 200)),
		)
		return nil, domain.WrapError("extract_json", domain.ErrInvalidAIResponse, false)
	}

	var result DetectionResponse
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		d.logger.Warn("failed to unmarshal AI response",
			zap.Error(err),
			zap.String("json_content", truncate(jsonContent, 200)),
		)
		return nil, domain.WrapError("unmarshal_result", domain.ErrInvalidAIResponse, false)
	}

	return &result, nil
}

// HealthCheck verifies the AI service is reachable.
func (d *OpenAIDetector) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/models", strings.TrimRight(d.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", d.config.APIKey))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.WrapError("health_check", domain.ErrAIUnavailable, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.WrapError("health_check", domain.ErrAIUnavailable, true)
	}

	return nil
}

// toAnomalies maps validated model output onto domain anomalies. Types
// default to LLM_DETECTED and scores are clamped to [0,1].
func toAnomalies(resp *DetectionResponse, sent []*domain.LogEntry, model string) []domain.Anomaly {
	anomalies := make([]domain.Anomaly, 0, len(resp.Anomalies))
	for _, a := range resp.Anomalies {
		typ := domain.AnomalyType(strings.ToUpper(a.Type))
		if !typ.IsValid() {
			typ = domain.AnomalyLLMDetected
		}

		ids := make([]string, 0, len(a.LogIndices))
		seen := make(map[int]bool, len(a.LogIndices))
		for _, idx := range a.LogIndices {
			if idx < 0 || idx >= len(sent) || seen[idx] {
				continue
			}
			seen[idx] = true
			ids = append(ids, sent[idx].ID())
		}

		anomalies = append(anomalies, domain.Anomaly{
			Type:        typ,
			Severity:    domain.Severity(strings.ToUpper(a.Severity)),
			Description: a.Description,
			LogEntryIDs: ids,
			Score:       math.Max(0, math.Min(a.Score, 1)),
			Metadata: map[string]any{
				"model":     model,
				"logsSent":  len(sent),
				"detection": "llm",
			},
		})
	}
	return anomalies
}

// Helper functions

// extractJSON attempts to extract JSON from content that might include markdown.
func extractJSON(content string) string {
	// Try to parse the entire content as JSON first
	if isValidJSON(content) {
		return content
	}

	start := strings.IndexByte(content, '{')
	if start == -1 {
		return ""
	}

	// Find matching closing brace
	depth := 0
	end := -1
	for i := start; i < len(content); i++ {
		if content[i] == '{' {
			depth++
		} else if content[i] == '}' {
			depth--
			if depth == 0 {
				end = i + 1
				break
			}
		}
	}

	if end == -1 {
		return ""
	}

	extracted := content[start:end]
	if isValidJSON(extracted) {
		return extracted
	}

	return ""
}

func isValidJSON(s string) bool {
	var js json.RawMessage
	return json.Unmarshal([]byte(s), &js) == nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var (
	_ detection.Detector = (*OpenAIDetector)(nil)
	_ HealthChecker      = (*OpenAIDetector)(nil)
)
