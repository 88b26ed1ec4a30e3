package leads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/rfp-desk/internal/models"
)

func TestParseDeadline(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-03-15", "2026-03-15"},
		{"Closing date: 15/03/2026", "2026-03-15"},
		{"04/05/2026", "2026-05-04"},
		{"03/25/2026", "2026-03-25"},
		{"15 March 2026", "2026-03-15"},
		{"March 15, 2026", "2026-03-15"},
		{"Tarikh tutup: 7 Ogos 2026", "2026-08-07"},
		{"Submissions close on 12 Sept 2026 at noon", "2026-09-12"},
		{"15.03.2026", "2026-03-15"},
	}
	for _, tt := range tests {
		got, err := ParseDeadline(tt.in)
		if err != nil {
			t.Fatalf("ParseDeadline(%q) returned error: %v", tt.in, err)
		}
		if got.Format("2006-01-02") != tt.want {
			t.Fatalf("ParseDeadline(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
	}
}

func TestParseDeadlineEndOfDayUTC(t *testing.T) {
	got, err := ParseDeadline("2026-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 23, got.Hour())

	_, err = ParseDeadline("to be announced")
	assert.Error(t, err)
	_, err = ParseDeadline("   ")
	assert.Error(t, err)
}

func TestDeadlineFromTextPrefersLabel(t *testing.T) {
	text := "Published 01/02/2026. Site briefing 20 February 2026. Closing date: 10 March 2026. Award expected 30/06/2026."
	got, ok := deadlineFromText(text)
	require.True(t, ok)
	assert.Equal(t, "2026-03-10", got.Format("2006-01-02"))

	got, ok = deadlineFromText("Issued 2026-01-05, valid until 2026-04-30")
	require.True(t, ok)
	assert.Equal(t, "2026-04-30", got.Format("2006-01-02"))

	_, ok = deadlineFromText("no dates here")
	assert.False(t, ok)
}

func TestExtractPDFTextRejectsGarbage(t *testing.T) {
	_, err := ReadTenderPDF([]byte("%PDF-1.4 this is not really a pdf"))
	assert.Error(t, err)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "supply of…", excerpt("supply of cables", 12))

	long := "a" + strings.Repeat("é", 20)
	got := excerpt(long, 12)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "a"+strings.Repeat("é", 5)+"…", got)
}

const listingPage = `<html><body>
<table>
  <tr><th>Title</th><th>Agency</th><th>Closing</th></tr>
  <tr>
    <td><a href="/tenders/101">Supply of &amp; delivery of <b>LV cables</b></a></td>
    <td>TNB   Berhad</td>
    <td>15/03/2026</td>
  </tr>
  <tr>
    <td><a href="https://other.example/notice.pdf">Substation wiring</a></td>
    <td>PowerGrid Corp</td>
    <td>TBA</td>
  </tr>
  <tr><td></td><td>orphan buyer</td><td></td></tr>
  <tr>
    <td><a href="/tenders/101">Supply of &amp; delivery of <b>LV cables</b></a></td>
    <td>TNB Berhad</td>
    <td>15/03/2026</td>
  </tr>
</table>
</body></html>`

var testSelectors = Selectors{
	Container: "table tr",
	Title:     "a, td:nth-child(1)",
	Buyer:     "td:nth-child(2)",
	Deadline:  "td:nth-child(3)",
	Link:      "a[href]",
}

func TestExtractListings(t *testing.T) {
	got, err := ExtractListings([]byte(listingPage), "https://portal.example/list", testSelectors)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Supply of & delivery of LV cables", got[0].Title)
	assert.Equal(t, "TNB Berhad", got[0].Buyer)
	assert.Equal(t, "https://portal.example/tenders/101", got[0].URL)
	require.NotNil(t, got[0].Deadline)
	assert.Equal(t, "2026-03-15", got[0].Deadline.Format("2006-01-02"))

	assert.Equal(t, "https://other.example/notice.pdf", got[1].URL)
	assert.Nil(t, got[1].Deadline)
}

func TestResolveLinkSkipsScripts(t *testing.T) {
	assert.Empty(t, resolveLink(nil, "javascript:void(0)"))
	assert.Empty(t, resolveLink(nil, "#top"))
}

type fakeFetcher struct {
	docs map[string]*Document
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*Document, error) {
	if d, ok := f.docs[url]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("fetch %s: status 404", url)
}

type fakeStore struct {
	mu       sync.Mutex
	sources  []models.LeadSource
	inserted []models.Lead
	err      error
}

func (s *fakeStore) ActiveLeadSources(context.Context) ([]models.LeadSource, error) {
	return s.sources, s.err
}

func (s *fakeStore) InsertLeads(_ context.Context, leads []models.Lead) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, leads...)
	return len(leads), nil
}

var fixedNow = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

func TestScannerCollectsListings(t *testing.T) {
	store := &fakeStore{sources: []models.LeadSource{
		{ID: 1, SourceName: "Portal", URL: "https://portal.example/list", Active: true},
		{ID: 2, SourceName: "Broken", URL: "https://broken.example/", Active: true},
	}}
	fetcher := &fakeFetcher{docs: map[string]*Document{
		"https://portal.example/list": {URL: "https://portal.example/list", ContentType: "text/html", Body: []byte(listingPage)},
		"https://other.example/notice.pdf": {URL: "https://other.example/notice.pdf", ContentType: "application/pdf", Body: []byte("%PDF-broken")},
	}}
	s := &Scanner{Store: store, Fetcher: fetcher, Selectors: testSelectors, Parallelism: 2, DemoFallback: true, Now: func() time.Time { return fixedNow }}

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, 2, res.Sources)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Broken", res.Errors[0].SourceName)

	for i, l := range res.Leads {
		assert.Equal(t, fmt.Sprintf("RFP-SCAN-%d-%d", fixedNow.UnixMilli(), i+1), l.RfpID)
		assert.Equal(t, "Portal", l.SourceName)
		assert.Equal(t, "new", l.Status)
	}
	assert.Empty(t, res.Leads[1].Requirements)
	assert.Len(t, store.inserted, 2)
}

func TestScannerDemoFallback(t *testing.T) {
	store := &fakeStore{sources: []models.LeadSource{{ID: 1, SourceName: "Gov Portal", URL: "https://down.example/", Active: true}}}
	s := &Scanner{Store: store, Fetcher: &fakeFetcher{}, DemoFallback: true, Now: func() time.Time { return fixedNow }}

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	require.Len(t, res.Leads, 2)
	assert.Equal(t, "Supply of Electrical Cables - Phase 2", res.Leads[0].Title)
	assert.Equal(t, "TNB Berhad", res.Leads[0].Buyer)
	assert.Equal(t, "Gov Portal", res.Leads[0].SourceName)
	assert.Equal(t, fixedNow.AddDate(0, 0, 20), *res.Leads[0].Deadline)
	assert.Equal(t, "Petronas Chemicals", res.Leads[1].Buyer)
	assert.Equal(t, fixedNow.AddDate(0, 0, 28), *res.Leads[1].Deadline)
}

func TestScannerNoSourcesNoFallback(t *testing.T) {
	s := &Scanner{Store: &fakeStore{}, Fetcher: &fakeFetcher{}}
	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.False(t, res.Fallback)
}

func TestScannerStoreFailure(t *testing.T) {
	s := &Scanner{Store: &fakeStore{err: errors.New("db down")}, Fetcher: &fakeFetcher{}}
	_, err := s.Scan(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestSampleLeadsDefaultSource(t *testing.T) {
	leads := SampleLeads(fixedNow, "")
	assert.Equal(t, DefaultScanSource, leads[0].SourceName)
	assert.NotEqual(t, leads[0].URL, leads[1].URL)
	assert.True(t, strings.HasPrefix(leads[0].RfpID, "RFP-SCAN-"))
}

func TestDemoRFPs(t *testing.T) {
	demo := DemoRFPs()
	require.Len(t, demo, 2)
	assert.Equal(t, "RFP-DEMO-001", demo[0].RfpID)
	assert.Equal(t, "PowerGrid Corp", demo[1].Buyer)
}

func TestCollyFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(listingPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewCollyFetcher("test-agent", 5*time.Second, 0, nil)
	f.DomainDelay = 0
	f.MaxRetries = 0

	doc, err := f.Fetch(context.Background(), srv.URL+"/list")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.False(t, doc.IsPDF())
	assert.Contains(t, string(doc.Body), "LV cables")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestDocumentIsPDF(t *testing.T) {
	assert.True(t, (&Document{Body: []byte("%PDF-1.7")}).IsPDF())
	assert.True(t, (&Document{ContentType: "application/pdf; charset=binary"}).IsPDF())
	assert.False(t, (&Document{ContentType: "text/html", Body: []byte("<html>")}).IsPDF())
	assert.True(t, isPDFLink("https://x.example/a/NOTICE.PDF?dl=1"))
}
