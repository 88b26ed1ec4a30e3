package leads

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// Selectors are the CSS selectors used to read a listing page. Title, Buyer and Deadline may
// list alternatives separated by commas; the first non-empty match inside a row wins.
type Selectors struct {
	Container string
	Title     string
	Buyer     string
	Deadline  string
	Link      string
}

// Listing is one tender row read off a source page.
type Listing struct {
	Title    string
	Buyer    string
	Deadline *time.Time
	URL      string
}

var textPolicy = bluemonday.StrictPolicy()

// ExtractListings reads tender rows from a listing page. Relative links resolve against pageURL.
func ExtractListings(body []byte, pageURL string, sel Selectors) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var out []Listing
	seen := make(map[string]bool)
	doc.Find(sel.Container).Each(func(_ int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return
		}
		l := Listing{
			Title: firstText(row, sel.Title),
			Buyer: firstText(row, sel.Buyer),
		}
		if l.Title == "" {
			return
		}
		if href, ok := row.Find(sel.Link).First().Attr("href"); ok {
			l.URL = resolveLink(base, href)
		}
		if raw := firstText(row, sel.Deadline); raw != "" {
			if t, err := ParseDeadline(raw); err == nil {
				l.Deadline = &t
			}
		}
		if l.Deadline == nil {
			if t, ok := findDate(cleanText(row.Text())); ok {
				l.Deadline = &t
			}
		}

		key := strings.ToLower(l.Title + "|" + l.URL)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, l)
	})
	return out, nil
}

func firstText(row *goquery.Selection, selectors string) string {
	for _, s := range strings.Split(selectors, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if text := cleanText(row.Find(s).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// cleanText strips markup, decodes entities and collapses whitespace.
func cleanText(s string) string {
	return normalizeSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}
