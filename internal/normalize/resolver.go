package normalize

import (
	"errors"
	"strings"
	"time"
)

// NotAvailable is the sentinel shown for string and date fields that could not be resolved.
const NotAvailable = "N/A"

// DateLayout renders dates as "Oct 24, 2023".
const DateLayout = "Jan 2, 2006"

// ErrNotLinkable reports a record without an rfp id. Callers must not invent one, since the id
// is what detail pages and feedback updates are keyed on.
var ErrNotLinkable = errors.New("record not linkable: missing rfp id")

// sourceDateLayouts covers what PostgreSQL, JavaScript and the older fixtures emit.
var sourceDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	DateLayout,
	"January 2, 2006",
	"2 Jan 2006",
}

// ResolveString returns the first non-blank alias value as a string, or the concept default.
func ResolveString(rec Record, c Concept) (string, bool) {
	for _, key := range c.Aliases {
		v, ok := rec.lookup(key)
		if !ok {
			continue
		}
		if s, ok := asString(v); ok {
			return s, true
		}
	}
	return c.Default, false
}

// ResolveNumber returns the first non-zero numeric alias value. An explicit zero is reported
// as found only when no later alias carries a non-zero value.
func ResolveNumber(rec Record, c Concept) (float64, bool) {
	sawZero := false
	for _, key := range c.Aliases {
		v, ok := rec.lookup(key)
		if !ok {
			continue
		}
		f, ok := asFloat(v)
		if !ok {
			continue
		}
		if f != 0 {
			return f, true
		}
		sawZero = true
	}
	return 0, sawZero
}

// ResolveTime returns the first alias value that parses as a date.
func ResolveTime(rec Record, c Concept) (time.Time, bool) {
	for _, key := range c.Aliases {
		v, ok := rec.lookup(key)
		if !ok {
			continue
		}
		if t, ok := parseSourceTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// ResolveDate formats the resolved date with DateLayout in UTC. Unparseable or missing dates
// yield the concept default (N/A), never the current time or the epoch.
func ResolveDate(rec Record, c Concept) (string, bool) {
	t, ok := ResolveTime(rec, c)
	if !ok {
		if c.Default == "" {
			return NotAvailable, false
		}
		return c.Default, false
	}
	return t.UTC().Format(DateLayout), true
}

// FormatDate renders an optional time the same way ResolveDate does.
func FormatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return NotAvailable
	}
	return t.UTC().Format(DateLayout)
}

func parseSourceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	}

	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range sourceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RequireRfpID returns the record's rfp id or ErrNotLinkable.
func RequireRfpID(rec Record) (string, error) {
	id, ok := ResolveString(rec, RfpID)
	if !ok {
		return "", ErrNotLinkable
	}
	return id, nil
}

// DisplayRfpID is the label shown for a run: its rfp id, else "RFP-" plus the first eight
// characters of the row id, else N/A. The label is never used as a link target.
func DisplayRfpID(rec Record) string {
	if id, ok := ResolveString(rec, RfpID); ok {
		return id
	}
	if rowID, ok := ResolveString(rec, ID); ok {
		if len(rowID) > 8 {
			rowID = rowID[:8]
		}
		return "RFP-" + rowID
	}
	return NotAvailable
}

// ScenarioNumber parses "scenario_2", "Scenario 2" or "2". It returns 0 for anything else.
func ScenarioNumber(tag string) int {
	s := strings.ToLower(strings.TrimSpace(tag))
	s = strings.TrimPrefix(s, "scenario")
	s = strings.TrimLeft(s, "_- ")
	switch s {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	}
	return 0
}

// RecommendedPrice picks the authoritative recommended price of a run.
//
// A tag naming scenario N makes scenario_N_total authoritative. Without it, an explicit
// recommended total is used; only an untagged (or unrecognisably tagged) run falls back to the
// first present scenario total, so a price is never attributed to the wrong scenario.
func RecommendedPrice(rec Record) (float64, bool) {
	tag, tagged := ResolveString(rec, RecommendedScenario)
	n := 0
	if tagged {
		n = ScenarioNumber(tag)
	}

	if n > 0 {
		if v, ok := ResolveNumber(rec, scenarioTotals[n-1]); ok {
			return v, true
		}
	}

	if v, ok := ResolveNumber(rec, RecommendedTotal); ok {
		return v, true
	}

	if n > 0 {
		return 0, false
	}

	for _, c := range scenarioTotals {
		if v, ok := ResolveNumber(rec, c); ok && v != 0 {
			return v, true
		}
	}
	return 0, false
}
