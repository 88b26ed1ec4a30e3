package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/rfp-desk/internal/analysis"
	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/leads"
	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

func (s *Server) handleListLeads(c echo.Context) error {
	limit := s.leadsCfg.ListLimit
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	since := s.now().AddDate(0, 0, -s.leadsCfg.ListDays)

	list, err := s.Store.ListLeads(c.Request().Context(), since, limit)
	if err != nil {
		return s.internalError(c, "Failed to load leads", err)
	}
	if list == nil {
		list = []models.Lead{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": list})
}

type createLeadRequest struct {
	RfpID        string   `json:"rfp_id"`
	Title        string   `json:"title"`
	Buyer        string   `json:"buyer"`
	Deadline     string   `json:"deadline"`
	URL          string   `json:"url"`
	SourceName   string   `json:"source_name"`
	Requirements string   `json:"requirements"`
	Quantity     *float64 `json:"quantity"`
	BasePrice    *float64 `json:"base_price"`
}

func (s *Server) handleCreateLead(c echo.Context) error {
	var req createLeadRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid JSON body")
	}
	if strings.TrimSpace(req.RfpID) == "" {
		return jsonError(c, http.StatusBadRequest, "rfp_id is required")
	}

	lead := models.Lead{
		RfpID:        strings.TrimSpace(req.RfpID),
		Title:        strings.TrimSpace(req.Title),
		Buyer:        strings.TrimSpace(req.Buyer),
		URL:          strings.TrimSpace(req.URL),
		SourceName:   strings.TrimSpace(req.SourceName),
		Status:       string(normalize.LeadNew),
		Requirements: req.Requirements,
		Quantity:     req.Quantity,
		BasePrice:    req.BasePrice,
	}
	if d := strings.TrimSpace(req.Deadline); d != "" {
		t, err := leads.ParseDeadline(d)
		if err != nil {
			return jsonError(c, http.StatusBadRequest, "deadline is not a valid date", d)
		}
		lead.Deadline = &t
	}

	batch := []models.Lead{lead}
	n, err := s.Store.InsertLeads(c.Request().Context(), batch)
	if err != nil {
		return s.internalError(c, "Failed to create lead", err)
	}
	if n == 0 {
		return jsonError(c, http.StatusConflict, "Lead already exists", lead.URL)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": batch[0]})
}

type scanResponse struct {
	Message string `json:"message"`
	*leads.ScanResult
}

func (s *Server) handleScan(c echo.Context) error {
	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		return s.startScanJob(c)
	}
	ctx := c.Request().Context()
	res, err := s.Scanner.Scan(ctx)
	if err != nil {
		return s.internalError(c, "Scan failed", err)
	}
	return c.JSON(http.StatusOK, scanResponse{Message: "Scan completed", ScanResult: res})
}

type analyzeLeadRequest struct {
	LeadID string `json:"leadId"`
}

func (s *Server) handleAnalyzeLead(c echo.Context) error {
	var req analyzeLeadRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid JSON body")
	}
	if strings.TrimSpace(req.LeadID) == "" {
		return jsonError(c, http.StatusBadRequest, "leadId is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(req.LeadID))
	if err != nil {
		return jsonError(c, http.StatusNotFound, "Lead not found")
	}

	ctx := c.Request().Context()
	lead, err := s.Store.GetLead(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "Lead not found")
	}
	if err != nil {
		return s.internalError(c, "Failed to load lead", err)
	}

	areq := analysis.RequestFromLead(*lead)
	res, err := s.Analyzer.Analyze(ctx, areq)
	if err != nil {
		var up *analysis.UpstreamError
		if errors.As(err, &up) {
			s.Log.Warn("lead analysis failed", "lead_id", id, "status", up.Status, "error", up.Details)
			return jsonError(c, http.StatusBadGateway, "Analyze API failed", up.Details)
		}
		return s.internalError(c, "Internal server error", err)
	}

	payloads := make([]map[string]interface{}, 0, len(res.Records))
	for _, rec := range res.Records {
		payloads = append(payloads, analysis.WithRequestIdentity(rec, areq))
	}
	if _, err := s.Store.InsertRuns(ctx, payloads); err != nil {
		s.Log.Error("failed to store lead analysis", "lead_id", id, "error", err)
	}
	if _, err := s.Store.AdvanceLead(ctx, id, normalize.LeadAnalyzed); err != nil {
		s.Log.Error("failed to mark lead analyzed", "lead_id", id, "error", err)
	}
	return c.JSONBlob(http.StatusOK, res.Raw)
}
