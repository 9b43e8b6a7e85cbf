package branchsm

import (
	"errors"
	"strings"
)

// ParsedMessage is the title/test-plan/reviewers triple a review branch's
// commit message carries (spec.md §7's "malformed commit message").
type ParsedMessage struct {
	Title    string
	TestPlan string
	Reviewers []string
}

// ParseCommitMessage decodes the convention used throughout spec.md §6's
// scenarios: a title line, a blank line, then optional "Test Plan:" and
// "Reviewers:" fields. A missing or blank title is the one condition that
// makes a message unparseable.
func ParseCommitMessage(msg string) (ParsedMessage, error) {
	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	title := strings.TrimSpace(lines[0])
	if title == "" {
		return ParsedMessage{}, errors.New("commit message has no title line")
	}

	pm := ParsedMessage{Title: title}
	for _, line := range lines[1:] {
		switch {
		case strings.HasPrefix(line, "Test Plan:"):
			pm.TestPlan = strings.TrimSpace(strings.TrimPrefix(line, "Test Plan:"))
		case strings.HasPrefix(line, "Reviewers:"):
			raw := strings.TrimPrefix(line, "Reviewers:")
			for _, name := range strings.Split(raw, ",") {
				name = strings.TrimSpace(name)
				if name != "" {
					pm.Reviewers = append(pm.Reviewers, name)
				}
			}
		}
	}
	return pm, nil
}

// formatLandingMessage reconstructs the commit message used for a
// squash-merge and for the archive entry's "with message:" body
// (spec.md §4.7 step 2, §6).
func formatLandingMessage(pm ParsedMessage) string {
	var b strings.Builder
	b.WriteString(pm.Title)
	b.WriteString("\n")
	if pm.TestPlan != "" {
		b.WriteString("\nTest Plan: " + pm.TestPlan + "\n")
	}
	if len(pm.Reviewers) > 0 {
		b.WriteString("\nReviewers: " + strings.Join(pm.Reviewers, ", ") + "\n")
	}
	return b.String()
}
