package ai

import (
	"strings"
	"testing"
)

func TestDefaultValidator_Validate(t *testing.T) {
	v := NewDefaultValidator()

	valid := ModelAnomaly{Type: "PATTERN", Severity: "HIGH", Description: "Repeated timeouts", LogIndices: []int{0, 1}, Score: 0.8}

	tests := []struct {
		name    string
		resp    *DetectionResponse
		wantErr bool
	}{
		{name: "valid result", resp: &DetectionResponse{Anomalies: []ModelAnomaly{valid}}},
		{name: "empty list", resp: &DetectionResponse{}},
		{name: "nil result", resp: nil, wantErr: true},
		{
			name: "lowercase severity accepted",
			resp: &DetectionResponse{Anomalies: []ModelAnomaly{{Severity: "low", Description: "d", LogIndices: []int{0}, Score: 0.1}}},
		},
		{
			name:    "empty description",
			resp:    &DetectionResponse{Anomalies: []ModelAnomaly{{Severity: "HIGH", Description: " ", LogIndices: []int{0}}}},
			wantErr: true,
		},
		{
			name:    "invalid severity",
			resp:    &DetectionResponse{Anomalies: []ModelAnomaly{{Severity: "Severe", Description: "d", LogIndices: []int{0}}}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			resp:    &DetectionResponse{Anomalies: []ModelAnomaly{{Type: "WEIRD", Severity: "HIGH", Description: "d", LogIndices: []int{0}}}},
			wantErr: true,
		},
		{
			name:    "score above one",
			resp:    &DetectionResponse{Anomalies: []ModelAnomaly{{Severity: "HIGH", Description: "d", LogIndices: []int{0}, Score: 1.5}}},
			wantErr: true,
		},
		{
			name:    "no indices",
			resp:    &DetectionResponse{Anomalies: []ModelAnomaly{{Severity: "HIGH", Description: "d"}}},
			wantErr: true,
		},
		{
			name:    "index past batch",
			resp:    &DetectionResponse{Anomalies: []ModelAnomaly{{Severity: "HIGH", Description: "d", LogIndices: []int{2}}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.resp, 2)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantJSON bool
	}{
		{name: "pure JSON", content: `{"anomalies": []}`, wantJSON: true},
		{name: "JSON in markdown", content: "```json\n{\"anomalies\": []}\n```", wantJSON: true},
		{name: "JSON with prefix text", content: "Here is the analysis:\n{\"anomalies\": []}", wantJSON: true},
		{name: "no JSON", content: "This is just plain text", wantJSON: false},
		{name: "invalid JSON", content: "{anomalies: []}", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractJSON(tt.content)
			gotJSON := result != ""
			if gotJSON != tt.wantJSON {
				t.Errorf("extractJSON() got JSON = %v, want %v", gotJSON, tt.wantJSON)
			}
		})
	}
}

func TestDefaultPromptBuilder(t *testing.T) {
	builder, err := NewDefaultPromptBuilder()
	if err != nil {
		t.Fatalf("failed to create prompt builder: %v", err)
	}

	if builder.BuildSystemPrompt("") == "" {
		t.Error("system prompt should not be empty")
	}
	custom := builder.BuildSystemPrompt("  Focus on database logs.  ")
	if !strings.HasPrefix(custom, "Focus on database logs.") || !strings.Contains(custom, "ONLY valid JSON") {
		t.Errorf("override should replace the role and keep the JSON contract: %q", custom)
	}

	lines := []PromptLine{
		{Index: 0, Timestamp: "2024-03-01T10:00:00Z", Level: "ERROR", Message: "disk full on /var"},
		{Index: 1, Timestamp: "2024-03-01T10:00:01Z", Level: "INFO", Message: "retrying"},
	}
	userPrompt := builder.BuildUserPrompt(lines, 0.5)
	for _, want := range []string{"2 log entries", "[0] 2024-03-01T10:00:00Z ERROR disk full on /var", "[1] ", "above 0.50"} {
		if !strings.Contains(userPrompt, want) {
			t.Errorf("user prompt should contain %q:\n%s", want, userPrompt)
		}
	}
}
