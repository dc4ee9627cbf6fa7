package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/pkg/sanitizer"
	"go.uber.org/zap"
)

func testLogs(t *testing.T, n int) []*domain.LogEntry {
	t.Helper()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	logs := make([]*domain.LogEntry, n)
	for i := range logs {
		e, err := domain.NewLogEntry("src-1", base.Add(time.Duration(i)*time.Second), domain.LevelError,
			fmt.Sprintf("login failed password=hunter%d2", i), "raw", nil, nil)
		if err != nil {
			t.Fatalf("NewLogEntry: %v", err)
		}
		logs[i] = e
	}
	return logs
}

func llmConfig(t *testing.T, prompt string) domain.DetectionModelConfig {
	t.Helper()
	cfg, err := domain.NewLLMModelConfig("gpt-test", prompt, nil, nil)
	if err != nil {
		t.Fatalf("NewLLMModelConfig: %v", err)
	}
	return cfg
}

func chatBody(content string) chatResponse {
	var resp chatResponse
	resp.Choices = append(resp.Choices, struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}{FinishReason: "stop"})
	resp.Choices[0].Message.Content = content
	return resp
}

func newTestDetector(t *testing.T, url string, maxLines int) *OpenAIDetector {
	t.Helper()
	prompter, err := NewDefaultPromptBuilder()
	if err != nil {
		t.Fatalf("NewDefaultPromptBuilder: %v", err)
	}
	cfg := &config.AIConfig{
		APIKey:      "test-api-key",
		BaseURL:     url,
		Model:       "default-model",
		Timeout:     5 * time.Second,
		MaxTokens:   512,
		MaxRetries:  0,
		MaxLogLines: maxLines,
	}
	return NewOpenAIDetector(cfg, prompter, NewDefaultValidator(), sanitizer.New(1000), zap.NewNop())
}

func TestOpenAIDetector_Analyze(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		statusCode int
		wantErr    error
		wantCount  int
		wantType   domain.AnomalyType
	}{
		{
			name:       "successful response",
			content:    `{"anomalies":[{"type":"","severity":"high","description":"Brute force login attempts","logIndices":[0,1,1,2],"score":0.92}]}`,
			statusCode: http.StatusOK,
			wantCount:  1,
			wantType:   domain.AnomalyLLMDetected,
		},
		{
			name:       "response with markdown code block",
			content:    "```json\n{\"anomalies\":[{\"type\":\"PATTERN\",\"severity\":\"MEDIUM\",\"description\":\"Repeated login failure\",\"logIndices\":[1],\"score\":0.6}]}\n```",
			statusCode: http.StatusOK,
			wantCount:  1,
			wantType:   domain.AnomalyPattern,
		},
		{
			name:       "no anomalies",
			content:    `{"anomalies":[]}`,
			statusCode: http.StatusOK,
			wantCount:  0,
		},
		{
			name:       "index out of range",
			content:    `{"anomalies":[{"severity":"LOW","description":"x","logIndices":[7],"score":0.2}]}`,
			statusCode: http.StatusOK,
			wantErr:    domain.ErrInvalidAIResponse,
		},
		{
			name:       "not JSON",
			content:    "I could not find anything unusual.",
			statusCode: http.StatusOK,
			wantErr:    domain.ErrInvalidAIResponse,
		},
		{
			name:       "rate limited",
			statusCode: http.StatusTooManyRequests,
			wantErr:    domain.ErrRateLimited,
		},
		{
			name:       "server error",
			statusCode: http.StatusInternalServerError,
			wantErr:    domain.ErrAIUnavailable,
		},
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/chat/completions" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer test-api-key" {
					t.Errorf("missing bearer token")
				}
				w.WriteHeader(tt.statusCode)
				if tt.statusCode == http.StatusOK {
					_ = json.NewEncoder(w).Encode(chatBody(tt.content))
				}
			}))
			defer server.Close()

			d := newTestDetector(t, server.URL, 100)
			logs := testLogs(t, 3)
			anomalies, err := d.Analyze(context.Background(), logs, llmConfig(t, ""))

			if tt.statusCode != http.StatusOK && tt.wantErr == nil {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(anomalies) != tt.wantCount {
				t.Fatalf("got %d anomalies, want %d", len(anomalies), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			if anomalies[0].Type != tt.wantType {
				t.Errorf("type = %s, want %s", anomalies[0].Type, tt.wantType)
			}
			if anomalies[0].Metadata["model"] != "gpt-test" {
				t.Errorf("model metadata = %v", anomalies[0].Metadata["model"])
			}
		})
	}
}

func TestOpenAIDetector_MapsIndicesAndSeverity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatBody(
			`{"anomalies":[{"severity":"critical","description":"Brute force","logIndices":[2,0,2],"score":1.0}]}`))
	}))
	defer server.Close()

	logs := testLogs(t, 3)
	anomalies, err := newTestDetector(t, server.URL, 100).Analyze(context.Background(), logs, llmConfig(t, ""))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	a := anomalies[0]
	if a.Severity != domain.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", a.Severity)
	}
	want := []string{logs[2].ID(), logs[0].ID()}
	if len(a.LogEntryIDs) != 2 || a.LogEntryIDs[0] != want[0] || a.LogEntryIDs[1] != want[1] {
		t.Errorf("LogEntryIDs = %v, want %v", a.LogEntryIDs, want)
	}
}

func TestOpenAIDetector_RequestContent(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatBody(`{"anomalies":[]}`))
	}))
	defer server.Close()

	d := newTestDetector(t, server.URL, 2)
	if _, err := d.Analyze(context.Background(), testLogs(t, 5), llmConfig(t, "You audit payment logs.")); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if got.Model != "gpt-test" {
		t.Errorf("model = %s, want the config model", got.Model)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages", len(got.Messages))
	}
	if !strings.HasPrefix(got.Messages[0].Content, "You audit payment logs.") {
		t.Errorf("system prompt override not applied: %q", got.Messages[0].Content)
	}
	user := got.Messages[1].Content
	if !strings.Contains(user, "[1] ") || strings.Contains(user, "[2] ") {
		t.Errorf("user prompt should carry exactly two lines: %q", user)
	}
	if strings.Contains(user, "hunter02") {
		t.Errorf("passwords should be masked before leaving the process: %q", user)
	}
	if !strings.Contains(user, "above 0.70") {
		t.Errorf("user prompt should state the threshold: %q", user)
	}
}

func TestOpenAIDetector_RetriesTransientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatBody(`{"anomalies":[]}`))
	}))
	defer server.Close()

	d := newTestDetector(t, server.URL, 10)
	d.config.MaxRetries = 1
	if _, err := d.Analyze(context.Background(), testLogs(t, 1), llmConfig(t, "")); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestOpenAIDetector_EmptyInput(t *testing.T) {
	d := newTestDetector(t, "http://127.0.0.1:1", 10)
	anomalies, err := d.Analyze(context.Background(), nil, llmConfig(t, ""))
	if err != nil || len(anomalies) != 0 {
		t.Errorf("Analyze(nil) = %v, %v", anomalies, err)
	}
}

func TestOpenAIDetector_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{name: "healthy", statusCode: http.StatusOK},
		{name: "unhealthy", statusCode: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/models" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := newTestDetector(t, server.URL, 10).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector(zap.NewNop())
	if m.ModelType() != "LLM_BASED" {
		t.Errorf("ModelType() = %s", m.ModelType())
	}
	anomalies, err := m.Analyze(context.Background(), testLogs(t, 10), llmConfig(t, ""))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(anomalies) != 1 || anomalies[0].Type != domain.AnomalyLLMDetected {
		t.Errorf("mock should surface the error-rate anomaly, got %+v", anomalies)
	}
}
