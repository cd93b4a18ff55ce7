// Package hl7time normalizes the timestamp formats found across the three
// source dataset families into one canonical ISO-8601 string so that events
// from CSV rows, C-CDA documents and FHIR bundles sort against each other.
package hl7time

import (
	"strings"
	"time"
)

// Canonical layout for normalized timestamps (seconds precision, no zone).
const canonicalLayout = "2006-01-02T15:04:05"

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var hl7Layouts = map[int]string{
	8:  "20060102",
	12: "200601021504",
	14: "20060102150405",
}

// Normalize converts a raw timestamp from any supported source format into
// the canonical string. It accepts ISO-8601 (with or without a trailing Z or
// zone offset), HL7 TS forms of 8/12/14 digits optionally followed by a
// signed numeric offset, and falls back to the bare 10-character date prefix.
// The second return value is false when the input is unparsable; callers must
// then treat the fact as undatable rather than failing the build.
func Normalize(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	if strings.ContainsAny(text, "T-") {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				if layout == time.RFC3339 {
					return t.Format(time.RFC3339), true
				}
				return t.Format(canonicalLayout), true
			}
		}
	}

	core, suffix := splitOffsetSuffix(text)
	if layout, ok := hl7Layouts[len(core)]; ok && isDigits(core) {
		if t, err := time.Parse(layout, core); err == nil {
			return t.Format(canonicalLayout) + suffix, true
		}
	}

	if len(text) >= 10 {
		if t, err := time.Parse("2006-01-02", text[:10]); err == nil {
			return t.Format(canonicalLayout), true
		}
	}

	return "", false
}

// Parse converts a canonical (or canonical-with-zone) timestamp string back
// into a time.Time for interval arithmetic. Zoned values are shifted to the
// local clock and stripped of their zone so mixed-zone inputs compare on the
// same axis.
func Parse(canonical string) (time.Time, bool) {
	text := strings.TrimSpace(canonical)
	if text == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		local := t.Local()
		return time.Date(local.Year(), local.Month(), local.Day(),
			local.Hour(), local.Minute(), local.Second(), 0, time.UTC), true
	}
	for _, layout := range []string{canonicalLayout, "2006-01-02T15:04:05-0700", "2006-01-02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// splitOffsetSuffix separates an HL7 TS body from a trailing signed numeric
// zone offset (e.g. "20200101120000-0500").
func splitOffsetSuffix(text string) (core, suffix string) {
	if len(text) > 14 && (text[14] == '+' || text[14] == '-') && isDigits(text[15:]) {
		return text[:14], text[14:]
	}
	return text, ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
