package client

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model answer holds no JSON object
var ErrNoJSON = errors.New("no JSON object in model response")

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeJSON removes code fences, comments, and trailing commas from a model answer
// and keeps only the outermost {...}
func SanitizeJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	// Inline comments only after a JSON value, so "http://" inside strings survives
	raw = reInline.ReplaceAllStringFunc(raw, func(m string) string {
		if strings.Count(m, `"`)%2 == 1 {
			return m
		}
		return ""
	})
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ExtractJSON sanitizes raw and fails with ErrNoJSON when no object remains
func ExtractJSON(raw string) (string, error) {
	out := SanitizeJSON(raw)
	if !strings.HasPrefix(out, "{") || !strings.HasSuffix(out, "}") {
		return "", ErrNoJSON
	}
	return out, nil
}
