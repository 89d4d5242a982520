// Package skip detects opt-out triggers that let authors bypass the
// review pipeline for a pull request.
package skip

import (
	"regexp"
	"strings"
)

// triggerPattern matches [skip review] or [skip-review] (case-insensitive).
var triggerPattern = regexp.MustCompile(`(?i)\[skip[ -]review\]`)

// ContainsTrigger checks if text contains a skip trigger pattern.
// Supported patterns:
//   - [skip review]
//   - [skip-review]
//
// Matching is case-insensitive.
func ContainsTrigger(text string) bool {
	return triggerPattern.MatchString(text)
}

// CheckRequest contains the inputs to check for skip triggers.
type CheckRequest struct {
	CommitMessages []string
	PRTitle        string
	PRDescription  string
}

// CheckResult contains the result of checking for skip triggers.
type CheckResult struct {
	ShouldSkip bool
	Reason     string
}

// Check examines commit messages and PR metadata for skip triggers.
// It checks in order: commit messages, PR title, PR description, and
// returns the first match found.
func Check(req CheckRequest) CheckResult {
	for _, msg := range req.CommitMessages {
		if ContainsTrigger(msg) {
			return CheckResult{ShouldSkip: true, Reason: "commit message"}
		}
	}

	if ContainsTrigger(strings.TrimSpace(req.PRTitle)) {
		return CheckResult{ShouldSkip: true, Reason: "PR title"}
	}

	if ContainsTrigger(req.PRDescription) {
		return CheckResult{ShouldSkip: true, Reason: "PR description"}
	}

	return CheckResult{}
}
