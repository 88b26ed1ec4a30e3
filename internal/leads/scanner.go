package leads

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/david/rfp-desk/internal/config"
	"github.com/david/rfp-desk/internal/logger"
	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

// Store is the persistence the scanner needs.
type Store interface {
	ActiveLeadSources(ctx context.Context) ([]models.LeadSource, error)
	InsertLeads(ctx context.Context, leads []models.Lead) (int, error)
}

// SourceError records a lead source that could not be scanned.
type SourceError struct {
	SourceName string `json:"source_name"`
	URL        string `json:"url"`
	Error      string `json:"error"`
}

// ScanResult summarises one scan.
type ScanResult struct {
	Leads    []models.Lead `json:"data"`
	Count    int           `json:"count"`
	Inserted int           `json:"inserted"`
	Sources  int           `json:"sources"`
	Errors   []SourceError `json:"errors,omitempty"`
	Fallback bool          `json:"fallback"`
}

// Scanner walks the active lead sources and stores what it finds.
type Scanner struct {
	Store        Store
	Fetcher      Fetcher
	Selectors    Selectors
	Parallelism  int
	DemoFallback bool
	MaxPDFBytes  int64
	Log          *logger.Logger
	Now          func() time.Time
}

// NewScanner wires a colly-backed scanner from the scan configuration.
func NewScanner(store Store, cfg config.ScanConfig, log *logger.Logger) *Scanner {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Scanner{
		Store:   store,
		Fetcher: NewCollyFetcher(cfg.UserAgent, timeout, cfg.MaxPDFBytes, log),
		Selectors: Selectors{
			Container: cfg.Selectors.Container,
			Title:     cfg.Selectors.Title,
			Buyer:     cfg.Selectors.Buyer,
			Deadline:  cfg.Selectors.Deadline,
			Link:      cfg.Selectors.Link,
		},
		Parallelism:  cfg.Parallelism,
		DemoFallback: cfg.DemoFallback,
		MaxPDFBytes:  cfg.MaxPDFBytes,
		Log:          log,
	}
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Scan fetches every active source in parallel. A failing source is reported in the result
// and does not stop the others; only store failures abort the scan.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	log := s.Log
	if log == nil {
		log = logger.Nop()
	}
	sources, err := s.Store.ActiveLeadSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load lead sources: %w", err)
	}

	res := &ScanResult{Sources: len(sources)}
	found := make([][]models.Lead, len(sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := s.Parallelism
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, src := range sources {
		g.Go(func() error {
			leads, err := s.scanSource(gctx, src)
			if err != nil {
				log.Warn("lead source scan failed", "source", src.SourceName, "url", src.URL, "error", err)
				mu.Lock()
				res.Errors = append(res.Errors, SourceError{SourceName: src.SourceName, URL: src.URL, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			found[i] = leads
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	var leads []models.Lead
	for _, batch := range found {
		leads = append(leads, batch...)
	}
	for i := range leads {
		leads[i].RfpID = fmt.Sprintf("RFP-SCAN-%d-%d", now.UnixMilli(), i+1)
	}

	if len(leads) == 0 && s.DemoFallback {
		sourceName := DefaultScanSource
		if len(sources) > 0 && sources[0].SourceName != "" {
			sourceName = sources[0].SourceName
		}
		leads = SampleLeads(now, sourceName)
		res.Fallback = true
	}

	inserted, err := s.Store.InsertLeads(ctx, leads)
	if err != nil {
		return nil, fmt.Errorf("store scanned leads: %w", err)
	}
	res.Leads = leads
	res.Count = len(leads)
	res.Inserted = inserted
	log.Info("lead scan finished", "sources", res.Sources, "found", res.Count, "inserted", inserted, "failed_sources", len(res.Errors), "fallback", res.Fallback)
	return res, nil
}

func (s *Scanner) scanSource(ctx context.Context, src models.LeadSource) ([]models.Lead, error) {
	doc, err := s.Fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	if doc.IsPDF() {
		tender, err := s.readPDF(doc)
		if err != nil {
			return nil, err
		}
		l := s.toLead(src, Listing{Title: src.SourceName + " tender notice", URL: doc.URL, Deadline: tender.Deadline})
		l.Requirements = tender.Requirements
		return []models.Lead{l}, nil
	}

	listings, err := ExtractListings(doc.Body, doc.URL, s.Selectors)
	if err != nil {
		return nil, err
	}
	out := make([]models.Lead, 0, len(listings))
	for _, item := range listings {
		l := s.toLead(src, item)
		if isPDFLink(item.URL) {
			s.enrichFromPDF(ctx, &l)
		}
		out = append(out, l)
	}
	return out, nil
}

// enrichFromPDF fills requirements, and the deadline when the listing had none, from a linked
// notice. Failures only cost the enrichment.
func (s *Scanner) enrichFromPDF(ctx context.Context, l *models.Lead) {
	doc, err := s.Fetcher.Fetch(ctx, l.URL)
	if err != nil || !doc.IsPDF() {
		return
	}
	tender, err := s.readPDF(doc)
	if err != nil {
		if s.Log != nil {
			s.Log.Debug("tender pdf unreadable", "url", l.URL, "error", err)
		}
		return
	}
	l.Requirements = tender.Requirements
	if l.Deadline == nil {
		l.Deadline = tender.Deadline
	}
}

func (s *Scanner) readPDF(doc *Document) (*TenderDocument, error) {
	if s.MaxPDFBytes > 0 && int64(len(doc.Body)) > s.MaxPDFBytes {
		return nil, fmt.Errorf("pdf %s is %d bytes, over the %d byte limit", doc.URL, len(doc.Body), s.MaxPDFBytes)
	}
	return ReadTenderPDF(doc.Body)
}

func (s *Scanner) toLead(src models.LeadSource, item Listing) models.Lead {
	return models.Lead{
		Title:      item.Title,
		Buyer:      item.Buyer,
		Deadline:   item.Deadline,
		URL:        item.URL,
		SourceName: src.SourceName,
		Status:     string(normalize.LeadNew),
	}
}

func isPDFLink(u string) bool {
	path := strings.ToLower(u)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".pdf")
}
