package util

import "strings"

// Truthy reports whether s is one of true, 1 or yes, ignoring case and
// surrounding whitespace. Toggles read from the environment use it.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
