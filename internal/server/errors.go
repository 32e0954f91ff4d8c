package server

import "strings"

// splitErrorCode splits a "CODE: message" error into its machine-readable
// code and human-readable message.
func splitErrorCode(err error) (code, message string) {
	text := err.Error()
	if i := strings.Index(text, ": "); i > 0 {
		return text[:i], text[i+2:]
	}
	return "INTERNAL", text
}
