// Package utils provides small shared helpers: logger construction,
// vector math, and text formatting.
package utils

// Truncate caps s at maxLen bytes, appending "..." when it cuts.
// A non-positive maxLen disables truncation.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
