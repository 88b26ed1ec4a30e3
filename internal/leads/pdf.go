package leads

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	rpdf "rsc.io/pdf"
)

var deadlineLabelHints = []string{
	"closing date", "tarikh tutup", "deadline", "submission", "closes", "due date",
}

var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]20\d{2}\b`),
	regexp.MustCompile(`\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(januari|februari|mac|april|mei|jun|julai|ogos|september|oktober|november|disember)\s+20\d{2}\b`),
}

const requirementsExcerpt = 600

// TenderDocument is what we keep from a tender PDF.
type TenderDocument struct {
	Deadline     *time.Time
	Requirements string
}

// ReadTenderPDF extracts the closing date and a requirements excerpt from a tender PDF.
func ReadTenderPDF(content []byte) (*TenderDocument, error) {
	text, err := extractPDFText(content)
	if err != nil {
		return nil, err
	}
	text = normalizeSpace(text)
	doc := &TenderDocument{Requirements: excerpt(text, requirementsExcerpt)}
	if t, ok := deadlineFromText(text); ok {
		doc.Deadline = &t
	}
	return doc, nil
}

func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// deadlineFromText takes the first date that follows a closing-date label, falling back to the
// latest date in the document.
func deadlineFromText(text string) (time.Time, bool) {
	var labelled, latest time.Time
	labelledAt := -1
	for _, expr := range dateSnippetRegexes {
		for _, loc := range expr.FindAllStringIndex(text, -1) {
			parsed, err := ParseDeadline(text[loc[0]:loc[1]])
			if err != nil {
				continue
			}
			if parsed.After(latest) {
				latest = parsed
			}
			start := loc[0] - 80
			if start < 0 {
				start = 0
			}
			window := strings.ToLower(text[start:loc[0]])
			for _, hint := range deadlineLabelHints {
				if strings.Contains(window, hint) && (labelledAt < 0 || loc[0] < labelledAt) {
					labelled, labelledAt = parsed, loc[0]
				}
			}
		}
	}
	switch {
	case !labelled.IsZero():
		return labelled, true
	case !latest.IsZero():
		return latest, true
	}
	return time.Time{}, false
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}
	return strings.TrimSpace(s[:cut]) + "…"
}
