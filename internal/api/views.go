package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

// View endpoints return page-ready view models built by the normalization layer.

func (s *Server) runRecords(c echo.Context) ([]normalize.Record, error) {
	runs, err := s.Store.ListRuns(c.Request().Context(), s.leadsCfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return recordsOf(runs, models.RfpRun.Record), nil
}

func recordsOf[T any](items []T, record func(T) map[string]interface{}) []normalize.Record {
	out := make([]normalize.Record, 0, len(items))
	for _, it := range items {
		out = append(out, normalize.Record(record(it)))
	}
	return out
}

func (s *Server) handleDashboardView(c echo.Context) error {
	runs, err := s.runRecords(c)
	if err != nil {
		return s.internalError(c, "Failed to load runs", err)
	}
	return c.JSON(http.StatusOK, s.Assembler.Dashboard(runs, c.QueryParam("buyer")))
}

func (s *Server) handleHistoryView(c echo.Context) error {
	runs, err := s.runRecords(c)
	if err != nil {
		return s.internalError(c, "Failed to load runs", err)
	}
	filter := normalize.ParseHistoryFilter(c.QueryParam("filter"))
	return c.JSON(http.StatusOK, s.Assembler.History(runs, filter))
}

func (s *Server) handleDetailView(c echo.Context) error {
	rfpID := strings.TrimSpace(c.Param("rfp_id"))
	if rfpID == "" {
		return jsonError(c, http.StatusBadRequest, "rfp_id is required")
	}
	run, err := s.Store.LatestRun(c.Request().Context(), rfpID)
	if errors.Is(err, db.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "RFP not found")
	}
	if err != nil {
		return s.internalError(c, "Failed to load RFP", err)
	}
	return c.JSON(http.StatusOK, s.Assembler.Detail(normalize.Record(run.Record())))
}

func (s *Server) handleHomeView(c echo.Context) error {
	ctx := c.Request().Context()
	since := s.now().AddDate(0, 0, -s.leadsCfg.ListDays)
	leadList, err := s.Store.ListLeads(ctx, since, s.leadsCfg.ListLimit)
	if err != nil {
		return s.internalError(c, "Failed to load leads", err)
	}
	runs, err := s.runRecords(c)
	if err != nil {
		return s.internalError(c, "Failed to load runs", err)
	}
	return c.JSON(http.StatusOK, s.Assembler.Home(recordsOf(leadList, models.Lead.Record), runs))
}

func (s *Server) handleRankingsView(c echo.Context) error {
	runs, err := s.runRecords(c)
	if err != nil {
		return s.internalError(c, "Failed to load runs", err)
	}
	by := normalize.ParseRankingSort(c.QueryParam("sort"))
	desc := normalize.ParseDescending(c.QueryParam("order"))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sort": by,
		"data": s.Assembler.Rankings(runs, by, desc),
	})
}
