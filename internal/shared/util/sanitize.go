package util

import (
	"errors"
	"strings"
	"unicode"
)

// SanitizeFileName turns an arbitrary label into a single path segment.
// Separators and whitespace become underscores; traversal is rejected.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || unicode.IsSpace(r):
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if s == "" {
		return "", errors.New("invalid file name")
	}
	return s, nil
}

// ReportFileName names the local copy of a request's PDF report.
func ReportFileName(requestID string) (string, error) {
	base, err := SanitizeFileName(requestID)
	if err != nil {
		return "", err
	}
	return "bridgeiq_report_" + base + ".pdf", nil
}
