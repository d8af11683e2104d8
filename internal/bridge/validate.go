package bridge

import (
	"fmt"
	"regexp"
	"strings"
)

// Stty flags come from user-editable profiles and are passed to a
// shell-adjacent tool, so anything that smells like command injection
// or a destructive command is rejected outright.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+`),
	regexp.MustCompile(`(?i)del\s+`),
	regexp.MustCompile(`(?i)format\s+`),
	regexp.MustCompile(`(?i)mkfs\s+`),
	regexp.MustCompile(`(?i);\s*dd`),
	regexp.MustCompile(`(?i)&&\s*dd`),
	regexp.MustCompile(`(?i)\|\s*dd`),
	regexp.MustCompile(`(?i)^\s*dd\s+`),
	regexp.MustCompile(`(?i)>\s*/dev/`),
	regexp.MustCompile(`(?i);\s*rm`),
	regexp.MustCompile(`(?i)&&\s*rm`),
	regexp.MustCompile(`(?i)\|\s*rm`),
}

// validFlagToken matches a single stty flag or flag argument, e.g.
// "cs8", "-parenb", "115200".
var validFlagToken = regexp.MustCompile(`^-?[a-zA-Z0-9]+$`)

// ValidateSttyFlags checks a profile's extra stty flags before they are
// applied to a serial device. Empty flags are valid.
func ValidateSttyFlags(flags string) error {
	trimmed := strings.TrimSpace(flags)
	if trimmed == "" {
		return nil
	}

	for _, p := range dangerousPatterns {
		if p.MatchString(trimmed) {
			return fmt.Errorf("stty flags contain a blocked pattern: %q", flags)
		}
	}

	for _, tok := range strings.Fields(trimmed) {
		if !validFlagToken.MatchString(tok) {
			return fmt.Errorf("invalid stty flag token %q", tok)
		}
	}
	return nil
}

// splitFlags tokenizes a validated flag string for exec.
func splitFlags(flags string) []string {
	return strings.Fields(flags)
}
