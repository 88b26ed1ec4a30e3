package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/rfp-desk/internal/analysis"
	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/models"
)

func (s *Server) handleAnalyze(c echo.Context) error {
	var req analysis.Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid JSON body")
	}
	return s.analyze(c, req)
}

// analyze runs req through the workflow, stores the result as new runs and relays the
// workflow's JSON untouched.
func (s *Server) analyze(c echo.Context, req analysis.Request) error {
	ctx := c.Request().Context()
	res, err := s.Analyzer.Analyze(ctx, req)
	if err != nil {
		var up *analysis.UpstreamError
		if errors.As(err, &up) {
			s.Log.Warn("analysis workflow failed", "rfp_id", req.RfpID, "status", up.Status, "error", up.Details)
			return jsonError(c, http.StatusBadGateway, "n8n workflow failed", up.Details)
		}
		return s.internalError(c, "Internal server error", err)
	}

	payloads := make([]map[string]interface{}, 0, len(res.Records))
	for _, rec := range res.Records {
		payloads = append(payloads, analysis.WithRequestIdentity(rec, req))
	}
	if _, err := s.Store.InsertRuns(ctx, payloads); err != nil {
		s.Log.Error("failed to store analysis", "rfp_id", req.RfpID, "error", err)
	}
	return c.JSONBlob(http.StatusOK, res.Raw)
}

func (s *Server) handleFeedback(c echo.Context) error {
	var body map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid JSON body")
	}
	f, err := parseFeedback(body)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	if f.Empty() {
		return jsonError(c, http.StatusBadRequest, "No feedback data provided")
	}

	run, err := s.Store.UpdateFeedback(c.Request().Context(), f)
	if errors.Is(err, db.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "RFP not found")
	}
	if err != nil {
		return s.internalError(c, "Failed to update feedback", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": run.Record()})
}

// parseFeedback reads a feedback body. Only supplied keys are updated; empty values, null and
// a zero rating clear the column. feedback_score is the legacy name of feedback_rating.
func parseFeedback(body map[string]interface{}) (models.Feedback, error) {
	rfpID := strings.TrimSpace(stringValue(body["rfp_id"]))
	if rfpID == "" {
		return models.Feedback{}, errors.New("rfp_id is required")
	}
	f := models.Feedback{RfpID: rfpID}

	if v, ok := body["feedback_label"]; ok {
		label := strings.TrimSpace(stringValue(v))
		f.Label = &label
	}
	if v, ok := body["feedback_notes"]; ok {
		notes := stringValue(v)
		f.Notes = &notes
	}

	raw, ok := body["feedback_rating"]
	if !ok {
		raw, ok = body["feedback_score"]
	}
	if ok {
		rating, present, err := ratingValue(raw)
		if err != nil {
			return f, err
		}
		if present {
			f.Rating = &rating
		} else {
			f.ClearRating = true
		}
	}
	return f, nil
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func ratingValue(v interface{}) (float64, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return t, t != 0, nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false, errors.New("feedback_rating must be a number")
		}
		return f, f != 0, nil
	}
	return 0, false, errors.New("feedback_rating must be a number")
}

func (s *Server) handleHistory(c echo.Context) error {
	runs, err := s.Store.ListRuns(c.Request().Context(), s.leadsCfg.HistoryLimit)
	if err != nil {
		return s.internalError(c, "Failed to load history", err)
	}
	data := make([]map[string]interface{}, 0, len(runs))
	for _, r := range runs {
		data = append(data, r.Record())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": data})
}

func (s *Server) handleBuyers(c echo.Context) error {
	buyers, err := s.Store.Buyers(c.Request().Context())
	if err != nil {
		return s.internalError(c, "Internal server error", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": buyers})
}

func (s *Server) handleGetRun(c echo.Context) error {
	rfpID := strings.TrimSpace(c.Param("rfp_id"))
	if rfpID == "" {
		return jsonError(c, http.StatusBadRequest, "rfp_id is required")
	}
	run, err := s.Store.LatestRun(c.Request().Context(), rfpID)
	if errors.Is(err, db.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "RFP not found")
	}
	if err != nil {
		return s.internalError(c, "Internal server error", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": run.Record()})
}
