package ai

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// DefaultPromptBuilder implements PromptBuilder with templated prompts.
type DefaultPromptBuilder struct {
	systemPrompt string
	userTemplate *template.Template
}

// systemPromptText defines the model's role.
// This prompt is versioned as code and can be reviewed/tested.
const systemPromptText = `You are a site reliability engineer reviewing a batch of application and infrastructure logs for anomalies.

Look for:
1. Error spikes and failure cascades
2. Repeated messages that suggest a stuck retry loop or flapping component
3. Sudden bursts or gaps in log volume
4. Security-relevant events such as repeated authentication failures
5. Resource exhaustion (memory, disk, connections)

Severity levels:
- CRITICAL: outage in progress, data loss, security breach
- HIGH: user-facing degradation or a failure that will escalate
- MEDIUM: partial failure, elevated error rate
- LOW: worth a look, no impact yet

CRITICAL: You MUST respond with ONLY valid JSON matching the exact schema provided. No markdown, no explanations, just the JSON object.`

const responseContract = `

CRITICAL: You MUST respond with ONLY valid JSON matching the exact schema provided.`

// userPromptTemplate defines how log lines are presented to the model.
const userPromptTemplate = `Analyze the following {{len .Lines}} log entries and return valid JSON exactly matching this schema:

{
  "anomalies": [
    {
      "type": "STATISTICAL|PATTERN|FREQUENCY|THRESHOLD|LLM_DETECTED",
      "severity": "LOW|MEDIUM|HIGH|CRITICAL",
      "description": "string - what is anomalous and why",
      "logIndices": [0],
      "score": 0.0
    }
  ]
}

Only report anomalies with a score above {{printf "%.2f" .Threshold}}. Return {"anomalies": []} when nothing is anomalous.
logIndices must reference the bracketed index of each entry involved.

Log entries:
---
{{range .Lines}}[{{.Index}}] {{.Timestamp}} {{.Level}} {{.Message}}
{{end}}---

Respond with ONLY the JSON object, no additional text.`

// NewDefaultPromptBuilder creates a new prompt builder with default templates.
func NewDefaultPromptBuilder() (*DefaultPromptBuilder, error) {
	tmpl, err := template.New("user_prompt").Parse(userPromptTemplate)
	if err != nil {
		return nil, err
	}

	return &DefaultPromptBuilder{
		systemPrompt: systemPromptText,
		userTemplate: tmpl,
	}, nil
}

// BuildSystemPrompt returns the system prompt. A caller-supplied override
// still gets the JSON-only instruction appended so responses stay parseable.
func (p *DefaultPromptBuilder) BuildSystemPrompt(override string) string {
	override = strings.TrimSpace(override)
	if override == "" {
		return p.systemPrompt
	}
	return override + responseContract
}

// BuildUserPrompt renders the log lines into the user prompt.
func (p *DefaultPromptBuilder) BuildUserPrompt(lines []PromptLine, threshold float64) string {
	var buf bytes.Buffer
	data := struct {
		Lines     []PromptLine
		Threshold float64
	}{
		Lines:     lines,
		Threshold: threshold,
	}

	if err := p.userTemplate.Execute(&buf, data); err != nil {
		// Fallback to simple format if template fails
		var b strings.Builder
		b.WriteString("Return JSON {\"anomalies\": [...]} for these logs:\n\n")
		for _, l := range lines {
			fmt.Fprintf(&b, "[%d] %s %s %s\n", l.Index, l.Timestamp, l.Level, l.Message)
		}
		return b.String()
	}

	return buf.String()
}
