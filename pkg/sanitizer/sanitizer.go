// Package sanitizer masks secrets and personal data in log text before it
// leaves the process.
package sanitizer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Redacted replaces every masked value.
const Redacted = "[REDACTED]"

// Rule masks one kind of secret. When Keep is set the first capture group
// (typically the key name) is preserved and only the value is replaced.
type Rule struct {
	Name string
	Re   *regexp.Regexp
	Keep bool
}

func keyed(name, expr string) Rule {
	return Rule{Name: name, Re: regexp.MustCompile(expr), Keep: true}
}

func literal(name, expr string) Rule {
	return Rule{Name: name, Re: regexp.MustCompile(expr)}
}

// DefaultRules is the built-in rule set, most specific first.
func DefaultRules() []Rule {
	return []Rule{
		literal("private_key", `-----BEGIN [A-Z ]*PRIVATE KEY( BLOCK)?-----`),
		literal("jwt", `eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
		literal("github_token", `gh[opusr]_[a-zA-Z0-9]{36}`),
		literal("slack_token", `xox[baprs]-[0-9a-zA-Z-]+`),
		literal("aws_access_key", `\bAKIA[0-9A-Z]{16}\b`),
		keyed("db_credentials", `(?i)((?:mongodb|mysql|postgres(?:ql)?|redis|amqp)://[^:/\s]+:)[^@\s]+`),
		keyed("bearer", `(?i)(bearer\s+)[a-zA-Z0-9_\-.=]+`),
		keyed("api_key", `(?i)((?:api|secret|access)[_-]?key["']?\s*[:=]\s*["']?)[a-zA-Z0-9_\-.]{8,}`),
		keyed("token", `(?i)((?:auth[_-]?)?token["']?\s*[:=]\s*["']?)[a-zA-Z0-9_\-.]{8,}`),
		keyed("password", `(?i)((?:password|passwd|pwd)["']?\s*[:=]\s*["']?)[^\s"',;&]{3,}`),
		literal("email", `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	}
}

// Sanitizer masks secrets and bounds line length.
type Sanitizer struct {
	rules   []Rule
	maxSize int
}

// New creates a Sanitizer with the default rules. Lines longer than
// maxSize bytes are truncated; maxSize <= 0 disables truncation.
func New(maxSize int) *Sanitizer {
	return NewWithRules(maxSize, DefaultRules())
}

// NewWithRules creates a Sanitizer with custom rules.
func NewWithRules(maxSize int, rules []Rule) *Sanitizer {
	return &Sanitizer{rules: rules, maxSize: maxSize}
}

// Report describes what Sanitize changed.
type Report struct {
	Truncated  bool
	Redactions map[string]int
}

// Total returns the number of masked values.
func (r Report) Total() int {
	n := 0
	for _, c := range r.Redactions {
		n += c
	}
	return n
}

// Sanitize trims, truncates and masks a single line.
func (s *Sanitizer) Sanitize(line string) string {
	out, _ := s.SanitizeWithReport(line)
	return out
}

// SanitizeWithReport is Sanitize that also reports what was changed.
func (s *Sanitizer) SanitizeWithReport(line string) (string, Report) {
	report := Report{Redactions: make(map[string]int)}

	line = strings.TrimSpace(line)
	if s.maxSize > 0 && len(line) > s.maxSize {
		line = truncate(line, s.maxSize)
		report.Truncated = true
	}

	for _, rule := range s.rules {
		n := 0
		line = rule.Re.ReplaceAllStringFunc(line, func(match string) string {
			n++
			if !rule.Keep {
				return Redacted
			}
			sub := rule.Re.FindStringSubmatch(match)
			if len(sub) < 2 {
				return Redacted
			}
			return sub[1] + Redacted
		})
		if n > 0 {
			report.Redactions[rule.Name] += n
		}
	}
	return line, report
}

// SanitizeAll sanitizes each line independently.
func (s *Sanitizer) SanitizeAll(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = s.Sanitize(l)
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
