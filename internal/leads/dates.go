package leads

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var malayMonths = map[string]string{
	"januari":   "January",
	"februari":  "February",
	"mac":       "March",
	"april":     "April",
	"mei":       "May",
	"jun":       "June",
	"julai":     "July",
	"ogos":      "August",
	"september": "September",
	"oktober":   "October",
	"november":  "November",
	"disember":  "December",
}

var titleCase = cases.Title(language.English)

var (
	isoDateRe     = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](20\d{2})\b`)
	monthFirstRe  = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2}),?\s+(20\d{2})\b`)
	dayFirstRe    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?,?\s+(20\d{2})\b`)
	malayDateRe   = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(januari|februari|mac|april|mei|jun|julai|ogos|september|oktober|november|disember)\s+(20\d{2})\b`)
)

var datePrefixes = []string{
	"closing date:", "closing date", "tarikh tutup:", "tarikh tutup", "deadline:", "deadline",
	"closes:", "closes", "due:", "due date:", "due",
}

// ParseDeadline reads a tender closing date. Ambiguous numeric dates are read day first,
// which is how the portals we scan write them. Date-only values land at the end of the day UTC.
func ParseDeadline(text string) (time.Time, error) {
	cleaned := cleanDateString(text)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.RFC3339, cleaned); err == nil {
		return t.UTC(), nil
	}

	layouts := []string{
		"2006-01-02",
		"2 January 2006",
		"02 January 2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"2/1/2006",
		"02-01-2006",
		"02.01.2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return toEndOfDay(t), nil
		}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "02/01/2006 15:04", "2 January 2006 3:04 PM"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.UTC(), nil
		}
	}

	if t, ok := findDate(cleaned); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// findDate pulls the first recognisable date out of free text.
func findDate(text string) (time.Time, bool) {
	if m := isoDateRe.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return toEndOfDay(t), true
		}
	}
	if m := numericDateRe.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("2/1/2006", m[1]+"/"+m[2]+"/"+m[3]); err == nil {
			return toEndOfDay(t), true
		}
		// 03/25/2026 cannot be day first.
		if t, err := time.Parse("1/2/2006", m[1]+"/"+m[2]+"/"+m[3]); err == nil {
			return toEndOfDay(t), true
		}
	}
	if m := monthFirstRe.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := parseDayMonthYear(m[2], m[1], m[3]); ok {
			return t, true
		}
	}
	if m := dayFirstRe.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := parseDayMonthYear(m[1], m[2], m[3]); ok {
			return t, true
		}
	}
	if m := malayDateRe.FindStringSubmatch(text); len(m) == 4 {
		if t, ok := parseDayMonthYear(m[1], malayMonths[strings.ToLower(m[2])], m[3]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDayMonthYear(day, month, year string) (time.Time, bool) {
	month = strings.TrimSuffix(month, ".")
	if strings.EqualFold(month, "sept") {
		month = "Sep"
	}
	s := fmt.Sprintf("%s %s %s", day, titleCase.String(month), year)
	for _, layout := range []string{"2 January 2006", "2 Jan 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return toEndOfDay(t), true
		}
	}
	return time.Time{}, false
}

func cleanDateString(s string) string {
	s = normalizeSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range datePrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(s, "."))
}

// toEndOfDay sets the time to 23:59:59.999999999 UTC
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// normalizeSpace collapses runs of whitespace and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
