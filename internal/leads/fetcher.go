// Package leads finds new RFP leads on the configured tender portals.
package leads

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/david/rfp-desk/internal/logger"
)

// Document is one fetched page or file.
type Document struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// IsPDF reports whether the document is a PDF by content type or file signature.
func (d *Document) IsPDF() bool {
	if strings.Contains(strings.ToLower(d.ContentType), "application/pdf") {
		return true
	}
	return len(d.Body) >= 5 && string(d.Body[:5]) == "%PDF-"
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// CollyFetcher fetches through a colly collector with per-domain rate limiting and retries.
type CollyFetcher struct {
	UserAgent      string
	MaxRetries     int
	RequestTimeout time.Duration
	DomainDelay    time.Duration
	MaxBodySize    int
	Log            *logger.Logger
}

func NewCollyFetcher(userAgent string, timeout time.Duration, maxBody int64, log *logger.Logger) *CollyFetcher {
	if userAgent == "" {
		userAgent = "rfp-desk-scanner/1.0"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CollyFetcher{
		UserAgent:      userAgent,
		MaxRetries:     2,
		RequestTimeout: timeout,
		DomainDelay:    500 * time.Millisecond,
		MaxBodySize:    int(maxBody),
		Log:            log,
	}
}

func (f *CollyFetcher) buildCollector(ctx context.Context, host string) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowedDomains(host),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.StdlibContext(ctx),
	)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
	})
	c.SetRequestTimeout(f.RequestTimeout)
	return c
}

// Fetch visits the URL synchronously. Non-2xx responses are errors.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*Document, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", targetURL)
	}
	c := f.buildCollector(ctx, parsed.Hostname())

	var doc *Document
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		doc = &Document{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
			FetchedAt:   time.Now(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries, _ := r.Request.Ctx.GetAny("retries").(int)
		if retries < f.MaxRetries && ctx.Err() == nil && retryable(r.StatusCode) {
			r.Request.Ctx.Put("retries", retries+1)
			f.Log.Warn("retrying lead source fetch", "url", r.Request.URL.String(), "attempt", retries+1, "error", err)
			time.Sleep(time.Duration(retries+1) * time.Second)
			if retryErr := r.Request.Retry(); retryErr == nil {
				return
			}
		}
		fetchErr = fmt.Errorf("fetch %s (status %d): %w", r.Request.URL, r.StatusCode, err)
	})

	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("visit %s: %w", targetURL, err)
	}
	if fetchErr != nil && doc == nil {
		return nil, fetchErr
	}
	if doc == nil {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}
	return doc, nil
}

// retryable is true for transport errors (status 0), throttling and server errors.
func retryable(status int) bool {
	return status == 0 || status == 429 || status >= 500
}
