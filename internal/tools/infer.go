package tools

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Shared inference helpers. Every tool infers its arguments from the same
// conversational signals, so the extraction primitives live here.

var (
	quotedTextRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	hashtagRe    = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)
	durationRe   = regexp.MustCompile(`(?i)(\d+)\s*(minutes?|mins?|m\b|hours?|hrs?|h\b)`)
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

// extractQuotedText returns the first quoted phrase in the message.
func extractQuotedText(message string) (string, bool) {
	m := quotedTextRe.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}

// extractHashtags returns all #tags in the message, without the marker.
func extractHashtags(message string) []string {
	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(message, -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// extractDuration finds a duration mention like "25 minutes" or "2h".
func extractDuration(message string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit := strings.ToLower(m[2])
	if strings.HasPrefix(unit, "h") {
		return time.Duration(n) * time.Hour, true
	}
	return time.Duration(n) * time.Minute, true
}

// extractDate resolves date mentions relative to now: "today", "tomorrow",
// "next week", or an explicit YYYY-MM-DD.
func extractDate(message string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(message)
	day := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 0, 0, now.Location())

	switch {
	case strings.Contains(lower, "today"):
		return day, true
	case strings.Contains(lower, "tomorrow"):
		return day.AddDate(0, 0, 1), true
	case strings.Contains(lower, "next week"):
		return day.AddDate(0, 0, 7), true
	}

	if m := isoDateRe.FindStringSubmatch(message); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		dom, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && dom >= 1 && dom <= 31 {
			return time.Date(year, time.Month(month), dom, 23, 59, 0, 0, now.Location()), true
		}
	}

	return time.Time{}, false
}

// extractPriority maps urgency words to the task priority scale.
func extractPriority(message string) (int, bool) {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "urgent"), strings.Contains(lower, "asap"), strings.Contains(lower, "critical"):
		return 3, true
	case strings.Contains(lower, "high priority"), strings.Contains(lower, "important"):
		return 2, true
	case strings.Contains(lower, "medium"), strings.Contains(lower, "normal"):
		return 1, true
	case strings.Contains(lower, "low priority"), strings.Contains(lower, "minor"), strings.Contains(lower, "whenever"):
		return 0, true
	}
	return 0, false
}

// containsAny reports whether the lowercased message mentions any keyword.
func containsAny(message string, keywords ...string) bool {
	lower := strings.ToLower(message)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// clamp bounds v to [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
