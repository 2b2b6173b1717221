package utils

import (
	"regexp"
	"strings"
)

var unsafePathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\s_]+`)

const maxPathComponentRunes = 100

// SanitizeFilename turns a host (possibly with a port) or a run ID into one safe path
// component. Runs of unsafe characters become a single underscore; "." and ".." are rejected.
func SanitizeFilename(name string) string {
	clean := strings.Trim(unsafePathChars.ReplaceAllString(name, "_"), "_. ")
	clean = strings.TrimRight(TruncateRunes(clean, maxPathComponentRunes, ""), "_. ")
	if clean == "" {
		return "untitled"
	}
	return clean
}
