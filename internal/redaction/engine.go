// Package redaction scrubs secret-shaped substrings out of text before it
// leaves the process — used by internal/notify to keep a leaked token or
// key out of an admin email or log line (a diff excerpt or commit message
// quoted into a notification is attacker- or author-controlled text, not
// something the daemon should trust not to contain one).
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Engine performs regex-based secret detection and redaction.
type Engine struct {
	patterns []*regexp.Regexp
}

// NewEngine creates a new redaction engine with the default secret patterns.
func NewEngine() *Engine {
	return &Engine{patterns: defaultPatterns()}
}

// Redact scans input for secrets and replaces them with stable placeholders
// derived from the secret's hash, so the same secret always redacts to the
// same placeholder within a run without the plaintext ever being logged.
func (e *Engine) Redact(input string) string {
	result := input
	seen := make(map[string]string)

	for _, pattern := range e.patterns {
		for _, match := range pattern.FindAllString(result, -1) {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = e.placeholder(match)
		}
	}

	for secret, placeholder := range seen {
		result = strings.ReplaceAll(result, secret, placeholder)
	}
	return result
}

func (e *Engine) placeholder(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("<REDACTED:%s>", hex.EncodeToString(hash[:])[:8])
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		`sk-[a-zA-Z0-9]{20,}`,
		`sk-ant-[a-zA-Z0-9\-]{20,}`,
		`AKIA[0-9A-Z]{16}`,
		`aws.{0,20}?['"][0-9a-zA-Z/+]{40}['"]`,
		`gh[posr]_[a-zA-Z0-9]{20,}`,
		`AIza[0-9A-Za-z\-_]{35}`,
		`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
		`-----BEGIN\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----[\s\S]*?-----END\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----`,
		`xox[baprs]-[a-zA-Z0-9\-]{10,}`,
		`Bearer\s+[a-zA-Z0-9_\-\.]+`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}
