package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/rfp-desk/internal/models"
)

func TestN8NClientPostsRequest(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rfp_id":"RFP-1","estimated_win_probability":72}`))
	}))
	defer srv.Close()

	c := NewN8NClient(srv.URL, time.Second)
	res, err := c.Analyze(context.Background(), Request{RfpID: "RFP-1", BuyerName: "Acme", Quantity: 10, BasePrice: 45})
	require.NoError(t, err)

	assert.Equal(t, "Acme", got.BuyerName)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 72.0, res.Records[0]["estimated_win_probability"])
	assert.JSONEq(t, `{"rfp_id":"RFP-1","estimated_win_probability":72}`, string(res.Raw))
}

func TestN8NClientUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewN8NClient(srv.URL, time.Second).Analyze(context.Background(), Request{RfpID: "x"})
	require.Error(t, err)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	var up *UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, http.StatusInternalServerError, up.Status)
	assert.Equal(t, "workflow crashed", up.Details)
}

func TestN8NClientNotConfigured(t *testing.T) {
	_, err := NewN8NClient("", 0).Analyze(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		records int
		wantErr bool
	}{
		{"object", `{"a":1}`, 1, false},
		{"array", `[{"a":1},{"b":2},"skip"]`, 2, false},
		{"fenced", "```json\n{\"a\":1}\n```", 1, false},
		{"chatter", `Here you go: {"a":{"b":"}"}} thanks`, 1, false},
		{"empty", "  ", 0, true},
		{"text", "nope", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DecodeResult([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, res.Records, tt.records)
		})
	}
}

func TestRequestFromLead(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	deadline := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	req := RequestFromLead(models.Lead{ID: id, Title: "LV cables", Buyer: "TNB Berhad", Deadline: &deadline})
	assert.Equal(t, "LEAD-"+id.String(), req.RfpID)
	assert.Equal(t, "TNB Berhad", req.BuyerName)
	assert.Equal(t, 1.0, req.Quantity)
	assert.Equal(t, 45.0, req.BasePrice)
	assert.Equal(t, "LV cables for TNB Berhad due on 2026-02-15", req.Requirements)

	qty := 500.0
	req = RequestFromLead(models.Lead{ID: id, RfpID: "RFP-7", Quantity: &qty, Requirements: "spec sheet"})
	assert.Equal(t, "RFP-7", req.RfpID)
	assert.Equal(t, DefaultBuyer, req.BuyerName)
	assert.Equal(t, 500.0, req.Quantity)
	assert.Equal(t, "spec sheet", req.Requirements)
}

func TestWithRequestIdentity(t *testing.T) {
	req := Request{RfpID: "RFP-9", BuyerName: "TNB Berhad"}

	rec := map[string]interface{}{"recommended_price": 41.5}
	out := WithRequestIdentity(rec, req)
	assert.Equal(t, "RFP-9", out["rfp_id"])
	assert.Equal(t, "TNB Berhad", out["buyer_name"])
	assert.NotContains(t, rec, "rfp_id")

	out = WithRequestIdentity(map[string]interface{}{"rfp_id": "RFP-1", "buyer_name": "Petronas"}, req)
	assert.Equal(t, "RFP-1", out["rfp_id"])
	assert.Equal(t, "Petronas", out["buyer_name"])

	out = WithRequestIdentity(map[string]interface{}{}, Request{})
	assert.Empty(t, out)
}

func TestAnalyzerFunc(t *testing.T) {
	var a Analyzer = AnalyzerFunc(func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Records: []map[string]interface{}{{"rfp_id": req.RfpID}}}, nil
	})
	res, err := a.Analyze(context.Background(), Request{RfpID: "RFP-2"})
	require.NoError(t, err)
	assert.Equal(t, "RFP-2", res.Records[0]["rfp_id"])
}
