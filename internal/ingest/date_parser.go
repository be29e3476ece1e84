package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var dateOnlyFormats = []string{
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

var dateTimeFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3 PM",
	"2 January 2006 3:04 PM",
}

var deadlinePrefixes = []string{
	"closing date:", "deadline:", "due date:", "applications due:", "expires:", "ends:", "closes:", "submission deadline:",
}

var (
	isoDateRegex   = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	slashDateRegex = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	monthDateRegex = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(20\d{2})\b`)
	dayMonthRegex  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?,?\s+(20\d{2})\b`)
)

// ParseDeadline parses a deadline written in one of the common English
// layouts, or finds the first such date inside a longer sentence. Date-only
// values resolve to the end of that day in UTC.
func ParseDeadline(text string) (time.Time, error) {
	s := cleanDateString(text)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range dateTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range dateOnlyFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return toEndOfDay(t), nil
		}
	}

	if t, ok := findDateInText(s); ok {
		return toEndOfDay(t), nil
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// toEndOfDay sets the time to 23:59:59.999999999 UTC
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

func findDateInText(text string) (time.Time, bool) {
	if m := isoDateRegex.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}

	if m := monthDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := parseMonthDay(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	if m := dayMonthRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := parseMonthDay(m[2], m[1], m[3]); ok {
			return t, true
		}
	}

	// US ordering first; fall back to day/month when the first field cannot be a month.
	if m := slashDateRegex.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])); err == nil {
			return t, true
		}
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[2], m[1], m[3])); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseMonthDay(month, day, year string) (time.Time, bool) {
	month = strings.TrimSuffix(strings.ToLower(month), ".")
	if month == "sept" {
		month = "sep"
	}
	if len(month) > 3 {
		month = month[:3]
	}
	t, err := time.Parse("Jan 2 2006", fmt.Sprintf("%s %s %s", strings.ToUpper(month[:1])+month[1:], day, year))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// cleanDateString strips a leading label such as "Deadline:".
func cleanDateString(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range deadlinePrefixes {
		if idx := strings.Index(lower, p); idx != -1 {
			s = s[idx+len(p):]
			lower = lower[idx+len(p):]
		}
	}
	return normalizeSpace(s)
}
