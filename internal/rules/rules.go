// Package rules provides signature-based anomaly detection.
// Rules flag well-known failure messages (out of memory, full disks, crash
// loops) that the statistical detectors cannot tell apart from noise.
package rules

import (
	"regexp"

	"github.com/ai-devops/loganomaly/internal/domain"
)

// Rule is a known failure signature.
type Rule struct {
	// ID is the unique identifier for this rule.
	ID string

	// Name is a human-readable name for the rule.
	Name string

	// Category groups related rules, e.g. "resources" or "network".
	Category string

	// Patterns are regex patterns matched against the log message.
	Patterns []*regexp.Regexp

	// Exclusions veto a match, e.g. advice text quoting an error.
	Exclusions []*regexp.Regexp

	// Confidence is the anomaly score when this rule matches (0.0-1.0).
	Confidence float64

	// Severity is assigned to anomalies raised by this rule.
	Severity domain.Severity
}

// Match checks if the message matches this rule.
func (r *Rule) Match(message string) bool {
	for _, ex := range r.Exclusions {
		if ex.MatchString(message) {
			return false
		}
	}
	for _, pattern := range r.Patterns {
		if pattern.MatchString(message) {
			return true
		}
	}
	return false
}

// advisory matches hints and documentation that merely quote an error.
var advisory = regexp.MustCompile(`(?i)\b(hint|tip|to prevent|if you (see|encounter)|about)\b`)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// DefaultRules returns the built-in signatures, most severe first.
func DefaultRules() []*Rule {
	return []*Rule{
		outOfMemory(),
		diskSpaceFull(),
		processCrash(),
		crashLoop(),
		imagePullFailure(),
		connectionFailure(),
		databaseDeadlock(),
		certificateError(),
		portInUse(),
		authenticationFailure(),
	}
}

func outOfMemory() *Rule {
	return &Rule{
		ID:       "out_of_memory",
		Name:     "Out of memory",
		Category: "resources",
		Patterns: compile(
			`(?i)out\s+of\s+memory`,
			`\bOOMKilled\b`,
			`(?i)cannot allocate memory`,
			`java\.lang\.OutOfMemoryError`,
			`(?i)\boom-killer\b`,
		),
		Exclusions: []*regexp.Regexp{advisory},
		Confidence: 0.95,
		Severity:   domain.SeverityCritical,
	}
}

func diskSpaceFull() *Rule {
	return &Rule{
		ID:       "disk_space_full",
		Name:     "Disk space exhausted",
		Category: "resources",
		Patterns: compile(
			`(?i)no space left on device`,
			`\bENOSPC\b`,
			`(?i)disk\s+quota\s+exceeded`,
		),
		Exclusions: []*regexp.Regexp{advisory},
		Confidence: 0.95,
		Severity:   domain.SeverityCritical,
	}
}

func processCrash() *Rule {
	return &Rule{
		ID:       "process_crash",
		Name:     "Process crash",
		Category: "runtime",
		Patterns: compile(
			`^panic: `,
			`(?i)segmentation fault`,
			`\bSIGSEGV\b`,
			`(?i)\bcore dumped\b`,
		),
		Confidence: 0.9,
		Severity:   domain.SeverityCritical,
	}
}

func crashLoop() *Rule {
	return &Rule{
		ID:       "k8s_crash_loop",
		Name:     "Container crash loop",
		Category: "kubernetes",
		Patterns: compile(
			`\bCrashLoopBackOff\b`,
			`(?i)back-off restarting failed container`,
		),
		Confidence: 0.95,
		Severity:   domain.SeverityHigh,
	}
}

func imagePullFailure() *Rule {
	return &Rule{
		ID:       "k8s_image_pull_backoff",
		Name:     "Image pull failure",
		Category: "kubernetes",
		Patterns: compile(
			`\bImagePullBackOff\b`,
			`\bErrImagePull\b`,
			`(?i)failed to pull image`,
		),
		Confidence: 0.9,
		Severity:   domain.SeverityHigh,
	}
}

func connectionFailure() *Rule {
	return &Rule{
		ID:       "connection_failure",
		Name:     "Connection failure",
		Category: "network",
		Patterns: compile(
			`(?i)connection\s+timed?\s*out`,
			`\bETIMEDOUT\b`,
			`\bECONNREFUSED\b`,
			`(?i)dial tcp .*(i/o timeout|connection refused)`,
			`(?i)\bi/o timeout\b`,
			`(?i)connect:\s*connection refused`,
		),
		Exclusions: []*regexp.Regexp{advisory},
		Confidence: 0.85,
		Severity:   domain.SeverityHigh,
	}
}

func databaseDeadlock() *Rule {
	return &Rule{
		ID:       "database_deadlock",
		Name:     "Database deadlock",
		Category: "database",
		Patterns: compile(
			`(?i)deadlock (detected|found)`,
			`(?i)lock wait timeout exceeded`,
		),
		Confidence: 0.85,
		Severity:   domain.SeverityHigh,
	}
}

func certificateError() *Rule {
	return &Rule{
		ID:       "tls_certificate_error",
		Name:     "TLS certificate error",
		Category: "network",
		Patterns: compile(
			`(?i)certificate\s+verify\s+failed`,
			`(?i)certificate (has )?expired`,
			`\bx509: `,
			`(?i)unable to verify the first certificate`,
		),
		Exclusions: []*regexp.Regexp{advisory},
		Confidence: 0.9,
		Severity:   domain.SeverityHigh,
	}
}

func portInUse() *Rule {
	return &Rule{
		ID:       "port_in_use",
		Name:     "Port already in use",
		Category: "network",
		Patterns: compile(
			`(?i)\b(bind|listen)\b[^']*:\s*address already in use`,
			`(?i)^(error|fatal)\b.*address already in use`,
			`\bEADDRINUSE\b`,
			`(?i)port\s+\d+\s+is already allocated`,
		),
		Exclusions: []*regexp.Regexp{advisory},
		Confidence: 0.9,
		Severity:   domain.SeverityMedium,
	}
}

func authenticationFailure() *Rule {
	return &Rule{
		ID:       "authentication_failure",
		Name:     "Authentication failure",
		Category: "security",
		Patterns: compile(
			`(?i)authentication\s+failed`,
			`(?i)\b401\s+unauthorized`,
			`(?i)invalid\s+(credentials|token|api.?key)`,
			`(?i)access\s+denied`,
		),
		Exclusions: []*regexp.Regexp{advisory},
		Confidence: 0.8,
		Severity:   domain.SeverityMedium,
	}
}
