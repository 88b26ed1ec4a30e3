package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/rfp-desk/internal/analysis"
	"github.com/david/rfp-desk/internal/config"
	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/leads"
	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	runs     []models.RfpRun
	leads    []models.Lead
	profile  *models.CompanyProfile
	skus     []models.SkuStock
	sources  []models.LeadSource
	advanced map[uuid.UUID]normalize.LeadState
}

func newMemStore() *memStore {
	return &memStore{advanced: map[uuid.UUID]normalize.LeadState{}}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) InsertRuns(_ context.Context, payloads []map[string]interface{}) ([]models.RfpRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RfpRun
	for _, p := range payloads {
		rec := normalize.Record(p)
		rfpID, _ := normalize.ResolveString(rec, normalize.RfpID)
		buyer, _ := normalize.ResolveString(rec, normalize.Buyer)
		r := models.RfpRun{ID: uuid.New(), RfpID: rfpID, BuyerName: buyer, Payload: p, CreatedAt: time.Now()}
		m.runs = append([]models.RfpRun{r}, m.runs...)
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) ListRuns(_ context.Context, limit int) ([]models.RfpRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *memStore) LatestRun(_ context.Context, rfpID string) (*models.RfpRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].RfpID == rfpID {
			return &m.runs[i], nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) UpdateFeedback(ctx context.Context, f models.Feedback) (*models.RfpRun, error) {
	r, err := m.LatestRun(ctx, f.RfpID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.Label != nil {
		r.FeedbackLabel = f.Label
	}
	if f.Notes != nil {
		r.FeedbackNotes = f.Notes
	}
	if f.Rating != nil {
		r.FeedbackRating = f.Rating
	} else if f.ClearRating {
		r.FeedbackRating = nil
	}
	return r, nil
}

func (m *memStore) Buyers(context.Context) ([]string, error) {
	return []string{"Metro Rail Corp", "TNB Berhad"}, nil
}

func (m *memStore) ListLeads(_ context.Context, since time.Time, limit int) ([]models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lead
	for _, l := range m.leads {
		if l.CreatedAt.Before(since) || len(out) == limit {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *memStore) GetLead(_ context.Context, id uuid.UUID) (*models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.leads {
		if m.leads[i].ID == id {
			return &m.leads[i], nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) InsertLeads(_ context.Context, ls []models.Lead) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range ls {
		dup := false
		for _, existing := range m.leads {
			if ls[i].URL != "" && existing.URL == ls[i].URL && existing.SourceName == ls[i].SourceName {
				dup = true
			}
		}
		if dup {
			continue
		}
		if ls[i].ID == uuid.Nil {
			ls[i].ID = uuid.New()
		}
		if ls[i].CreatedAt.IsZero() {
			ls[i].CreatedAt = time.Now()
		}
		m.leads = append(m.leads, ls[i])
		n++
	}
	return n, nil
}

func (m *memStore) AdvanceLead(_ context.Context, id uuid.UUID, next normalize.LeadState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanced[id] = next
	return true, nil
}

func (m *memStore) GetCompanyProfile(context.Context) (*models.CompanyProfile, error) {
	if m.profile == nil {
		return nil, db.ErrNotFound
	}
	return m.profile, nil
}

func (m *memStore) SaveCompanyProfile(_ context.Context, p models.CompanyProfile) (*models.CompanyProfile, error) {
	p.UpdatedAt = time.Now()
	m.profile = &p
	return m.profile, nil
}

func (m *memStore) ListSkuStock(context.Context) ([]models.SkuStock, error) { return m.skus, nil }

func (m *memStore) UpsertSkuStock(_ context.Context, skus []models.SkuStock) ([]models.SkuStock, error) {
	m.skus = append(m.skus, skus...)
	return m.skus, nil
}

func (m *memStore) ListLeadSources(context.Context) ([]models.LeadSource, error) { return m.sources, nil }

func (m *memStore) ReplaceLeadSources(_ context.Context, sources []models.LeadSource) ([]models.LeadSource, error) {
	for i := range sources {
		sources[i].ID = i + 1
	}
	m.sources = sources
	return sources, nil
}

type scanFunc func(ctx context.Context) (*leads.ScanResult, error)

func (f scanFunc) Scan(ctx context.Context) (*leads.ScanResult, error) { return f(ctx) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadWith(func(string) string { return "" }, nil)
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, store *memStore, an analysis.Analyzer, sc Scanner) *Server {
	t.Helper()
	if an == nil {
		an = analysis.AnalyzerFunc(func(context.Context, analysis.Request) (*analysis.Result, error) {
			return nil, &analysis.UpstreamError{Details: "not configured"}
		})
	}
	if sc == nil {
		sc = scanFunc(func(context.Context) (*leads.ScanResult, error) { return &leads.ScanResult{}, nil })
	}
	return NewServer(testConfig(t), Deps{Store: store, Analyzer: an, Scanner: sc})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func staticAnalyzer(body string) analysis.Analyzer {
	return analysis.AnalyzerFunc(func(_ context.Context, req analysis.Request) (*analysis.Result, error) {
		return analysis.DecodeResult([]byte(body))
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil, nil)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestAnalyzeStoresRunAndRelaysResult(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, store, staticAnalyzer(`{"estimated_win_probability":64,"buyer_name":"Metro Rail Corp"}`), nil)

	rec := do(t, s, http.MethodPost, "/api/rfp/analyze", `{"rfp_id":"RFP-1","buyer_name":"Ignored","quantity":10,"base_price":45}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"estimated_win_probability":64,"buyer_name":"Metro Rail Corp"}`, rec.Body.String())

	require.Len(t, store.runs, 1)
	assert.Equal(t, "RFP-1", store.runs[0].RfpID)
	assert.Equal(t, "Metro Rail Corp", store.runs[0].BuyerName)
}

func TestAnalyzeErrors(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil, nil)

	rec := do(t, s, http.MethodPost, "/api/rfp/analyze", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/rfp/analyze", `{"rfp_id":"RFP-1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "n8n workflow failed", body["error"])
	assert.Equal(t, "not configured", body["details"])
}

func TestFeedback(t *testing.T) {
	store := newMemStore()
	_, _ = store.InsertRuns(context.Background(), []map[string]interface{}{{"rfp_id": "RFP-1"}})
	s := newTestServer(t, store, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/rfp/feedback", `{"feedback_label":"win"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rfp_id is required", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/rfp/feedback", `{"rfp_id":"RFP-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No feedback data provided", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/rfp/feedback", `{"rfp_id":"RFP-404","feedback_label":"win"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RFP not found", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/rfp/feedback", `{"rfp_id":"RFP-1","feedback_label":"win","feedback_score":"4.5"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "win", data["feedback_label"])
	assert.Equal(t, 4.5, data["feedback_rating"])
}

func TestParseFeedback(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(t *testing.T, f models.Feedback)
	}{
		{"empty label clears", `{"rfp_id":"A","feedback_label":""}`, false, func(t *testing.T, f models.Feedback) {
			require.NotNil(t, f.Label)
			assert.Empty(t, *f.Label)
		}},
		{"null rating clears", `{"rfp_id":"A","feedback_rating":null}`, false, func(t *testing.T, f models.Feedback) {
			assert.Nil(t, f.Rating)
			assert.True(t, f.ClearRating)
		}},
		{"rating wins over legacy score", `{"rfp_id":"A","feedback_rating":3,"feedback_score":5}`, false, func(t *testing.T, f models.Feedback) {
			assert.Equal(t, 3.0, *f.Rating)
		}},
		{"untouched fields stay nil", `{"rfp_id":"A","feedback_notes":"call back"}`, false, func(t *testing.T, f models.Feedback) {
			assert.Nil(t, f.Label)
			assert.Nil(t, f.Rating)
			assert.False(t, f.ClearRating)
		}},
		{"bad rating", `{"rfp_id":"A","feedback_rating":"great"}`, true, nil},
		{"missing id", `{"feedback_label":"win"}`, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.body), &body))
			f, err := parseFeedback(body)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestGetRunAndHistory(t *testing.T) {
	store := newMemStore()
	_, _ = store.InsertRuns(context.Background(), []map[string]interface{}{{"rfp_id": "RFP-1", "buyer_name": "Acme"}})
	s := newTestServer(t, store, nil, nil)

	rec := do(t, s, http.MethodGet, "/api/rfp/RFP-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme", decode(t, rec)["data"].(map[string]interface{})["buyer_name"])

	rec = do(t, s, http.MethodGet, "/api/rfp/RFP-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/rfp/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)

	rec = do(t, s, http.MethodGet, "/api/rfp/buyers", "")
	assert.Len(t, decode(t, rec)["data"], 2)
}

func TestManualLeads(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, store, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/leads/manual", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rfp_id is required", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/leads/manual", `{"rfp_id":"RFP-9","title":"LV cables","buyer":"TNB Berhad","deadline":"2026-02-15","url":"https://x.example/1","source_name":"Manual"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "new", data["status"])
	assert.Equal(t, "RFP-9", data["rfp_id"])

	rec = do(t, s, http.MethodPost, "/api/leads/manual", `{"rfp_id":"RFP-9","url":"https://x.example/1","source_name":"Manual"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/leads/manual", `{"rfp_id":"RFP-10","deadline":"someday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/leads/manual?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)
}

func TestAnalyzeLead(t *testing.T) {
	store := newMemStore()
	lead := models.Lead{Title: "HT cables", Buyer: "PowerGrid Corp"}
	_, _ = store.InsertLeads(context.Background(), []models.Lead{lead})
	id := store.leads[0].ID

	var got analysis.Request
	an := analysis.AnalyzerFunc(func(_ context.Context, req analysis.Request) (*analysis.Result, error) {
		got = req
		return analysis.DecodeResult([]byte(`{"estimated_win_probability":55}`))
	})
	s := newTestServer(t, store, an, nil)

	rec := do(t, s, http.MethodPost, "/api/leads/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "leadId is required", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/leads/analyze", `{"leadId":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Lead not found", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/leads/analyze", `{"leadId":"`+id.String()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"estimated_win_probability":55}`, rec.Body.String())
	assert.Equal(t, "LEAD-"+id.String(), got.RfpID)
	assert.Equal(t, 45.0, got.BasePrice)
	assert.Equal(t, normalize.LeadAnalyzed, store.advanced[id])
	require.Len(t, store.runs, 1)
	assert.Equal(t, "LEAD-"+id.String(), store.runs[0].RfpID)
}

func TestAnalyzeLeadUpstreamFailure(t *testing.T) {
	store := newMemStore()
	_, _ = store.InsertLeads(context.Background(), []models.Lead{{Title: "x"}})
	s := newTestServer(t, store, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/leads/analyze", `{"leadId":"`+store.leads[0].ID.String()+`"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Analyze API failed", decode(t, rec)["error"])
	assert.Empty(t, store.advanced)
}

func TestScanSync(t *testing.T) {
	sc := scanFunc(func(context.Context) (*leads.ScanResult, error) {
		return &leads.ScanResult{Leads: []models.Lead{{Title: "a"}}, Count: 1, Inserted: 1}, nil
	})
	s := newTestServer(t, newMemStore(), nil, sc)

	rec := do(t, s, http.MethodPost, "/api/leads/scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Scan completed", body["message"])
	assert.Equal(t, 1.0, body["count"])
	assert.Len(t, body["data"], 1)
}

func TestScanAsyncJob(t *testing.T) {
	release := make(chan struct{})
	sc := scanFunc(func(context.Context) (*leads.ScanResult, error) {
		<-release
		return &leads.ScanResult{Count: 2}, nil
	})
	s := newTestServer(t, newMemStore(), nil, sc)

	rec := do(t, s, http.MethodPost, "/api/leads/scan?async=true", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode(t, rec)["job_id"].(string)

	rec = do(t, s, http.MethodPost, "/api/leads/scan?async=true", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/leads/scan/"+jobID, "")
	assert.Equal(t, "running", decode(t, rec)["status"])

	close(release)
	require.Eventually(t, func() bool {
		rec := do(t, s, http.MethodGet, "/api/leads/scan/"+jobID, "")
		return decode(t, rec)["status"] == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	rec = do(t, s, http.MethodGet, "/api/leads/scan/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettings(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, store, nil, nil)

	rec := do(t, s, http.MethodGet, "/api/settings/company-profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["data"])

	rec = do(t, s, http.MethodPost, "/api/settings/company-profile", `{"company_name":"Cable Co","region":"MY"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cable Co", store.profile.CompanyName)

	rec = do(t, s, http.MethodPost, "/api/settings/sku-stock", `{"skus":{"sku":"A"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "skus must be an array", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/settings/sku-stock", `{"skus":[{"sku":"CBL-1","stock_available":1200,"rack_id":"R1"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1200.0, store.skus[0].StockAvailable)

	rec = do(t, s, http.MethodPost, "/api/settings/lead-sources", `{"sources":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sources must be an array", decode(t, rec)["error"])

	rec = do(t, s, http.MethodPost, "/api/settings/lead-sources", `{"sources":[{"source_name":"A","url":"https://a.example"},{"source_name":"B","active":false}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.sources, 2)
	assert.True(t, store.sources[0].Active)
	assert.False(t, store.sources[1].Active)
	assert.Equal(t, 2, store.sources[1].ID)
}

func TestDemoRFPsIsBareArray(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil, nil)
	rec := do(t, s, http.MethodGet, "/api/demo-rfps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "RFP-DEMO-001", out[0]["rfp_id"])
}

func TestViews(t *testing.T) {
	store := newMemStore()
	_, _ = store.InsertRuns(context.Background(), []map[string]interface{}{
		{"rfp_id": "RFP-A1234567", "buyer_name": "Metro Rail Corp", "estimated_win_probability": 70, "feedback_label": "win"},
		{"rfp_id": "RFP-B", "buyer_name": "PowerGrid Corp", "estimated_win_probability": 40},
	})
	s := newTestServer(t, store, nil, nil)

	rec := do(t, s, http.MethodGet, "/api/views/dashboard?buyer=metro%20rail%20corp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["cards"], 1)
	assert.Equal(t, 2.0, body["kpis"].(map[string]interface{})["total_rfps"])

	rec = do(t, s, http.MethodGet, "/api/views/history?filter=win", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["rows"], 1)

	rec = do(t, s, http.MethodGet, "/api/views/rfp/RFP-B", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "recommendation")

	rec = do(t, s, http.MethodGet, "/api/views/rfp/RFP-404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/views/rankings?sort=estimated_win_probability&order=asc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode(t, rec)["data"].([]interface{})
	require.Len(t, rows, 2)
	assert.Equal(t, "PowerGrid Corp", rows[0].(map[string]interface{})["buyer"])

	rec = do(t, s, http.MethodGet, "/api/views/home", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "kpis")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, newMemStore(), nil, nil)
	rec := do(t, s, http.MethodDelete, "/api/settings/sku-stock", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decode(t, rec)["error"])
}
