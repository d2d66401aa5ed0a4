package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for filesystem paths and
// container names, which must match [a-zA-Z0-9][a-zA-Z0-9_.-]*.
// Problematic characters are replaced with dashes.
func SanitizeIdentifier(id string) string {
	// Colons are the most common offender (model-derived ids like "phi4:latest")
	sanitized := strings.ReplaceAll(id, ":", "-")

	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")

	return sanitized
}
