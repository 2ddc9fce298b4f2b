package http

import "strings"

// sanitizeInput drops control characters other than tab and newlines, then
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		if r == 127 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
