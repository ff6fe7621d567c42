package chat

import (
	"fmt"
	"regexp"
	"strings"
)

// RedactionNote is appended to a message after secrets were removed from it.
const RedactionNote = " (Note: content redacted by scanner)"

const redacted = "[redacted]"

// SecretScanner removes credentials from text before it reaches the feed.
type SecretScanner interface {
	Redact(text string) (out string, count int)
}

//nolint:gochecknoglobals // fixed pattern list
var defaultSecretPatterns = []string{
	`sk-ant-[A-Za-z0-9_-]{32,}`,        // Anthropic
	`sk-proj-[A-Za-z0-9_-]{32,}`,       // OpenAI project keys
	`sk-[A-Za-z0-9]{40,}`,              // OpenAI
	`AIza[0-9A-Za-z_-]{35}`,            // Google
	`AKIA[0-9A-Z]{16}`,                 // AWS access key id
	`gh[pousr]_[A-Za-z0-9]{36}`,        // GitHub
	`(?i)token\s+[0-9a-f]{40}`,         // Gitea authorization header
	`(?i)bearer\s+[A-Za-z0-9._-]{20,}`, // bearer tokens
	`(?i)(?:api[_-]?key|secret|password)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
	`-----BEGIN\s+(?:RSA\s+|DSA\s+|EC\s+|OPENSSH\s+|PGP\s+)?PRIVATE\s+KEY-----`,
}

// PatternScanner redacts text matching a fixed list of regular expressions.
type PatternScanner struct {
	patterns []*regexp.Regexp
}

// NewPatternScanner compiles the default patterns plus extra.
func NewPatternScanner(extra ...string) (*PatternScanner, error) {
	all := append(append([]string(nil), defaultSecretPatterns...), extra...)
	s := &PatternScanner{patterns: make([]*regexp.Regexp, 0, len(all))}
	for _, p := range all {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile secret pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Redact replaces every match with [redacted] and reports how many were replaced.
func (s *PatternScanner) Redact(text string) (string, int) {
	count := 0
	for _, re := range s.patterns {
		text = re.ReplaceAllStringFunc(text, func(string) string {
			count++
			return redacted
		})
	}
	return text, count
}

// RedactSecrets applies scanner to text and appends RedactionNote when anything was removed.
func RedactSecrets(scanner SecretScanner, text string) string {
	out, n := scanner.Redact(text)
	if n > 0 && !strings.HasSuffix(out, RedactionNote) {
		out += RedactionNote
	}
	return out
}
