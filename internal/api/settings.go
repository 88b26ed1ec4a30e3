package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/leads"
	"github.com/david/rfp-desk/internal/models"
)

func (s *Server) handleGetCompanyProfile(c echo.Context) error {
	p, err := s.Store.GetCompanyProfile(c.Request().Context())
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusOK, map[string]interface{}{"data": nil})
	}
	if err != nil {
		return s.internalError(c, "Failed to load company profile", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": p})
}

func (s *Server) handleSaveCompanyProfile(c echo.Context) error {
	var p models.CompanyProfile
	if err := json.NewDecoder(c.Request().Body).Decode(&p); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid JSON body")
	}
	saved, err := s.Store.SaveCompanyProfile(c.Request().Context(), p)
	if err != nil {
		return s.internalError(c, "Failed to save company profile", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": saved})
}

func (s *Server) handleListSkuStock(c echo.Context) error {
	skus, err := s.Store.ListSkuStock(c.Request().Context())
	if err != nil {
		return s.internalError(c, "Failed to load SKU stock", err)
	}
	if skus == nil {
		skus = []models.SkuStock{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": skus})
}

// decodeArrayField reads {"<field>": [...]} into out. ok is false when the field is missing or
// not an array.
func decodeArrayField(c echo.Context, field string, out interface{}) (bool, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return false, err
	}
	raw := bytes.TrimSpace(body[field])
	if len(raw) == 0 || raw[0] != '[' {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

type skuInput struct {
	SKU            string  `json:"sku"`
	Description    string  `json:"description"`
	StockAvailable float64 `json:"stock_available"`
	RackID         string  `json:"rack_id"`
}

func (s *Server) handleUpsertSkuStock(c echo.Context) error {
	var in []skuInput
	ok, err := decodeArrayField(c, "skus", &in)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid JSON body", err.Error())
	}
	if !ok {
		return jsonError(c, http.StatusBadRequest, "skus must be an array")
	}

	skus := make([]models.SkuStock, 0, len(in))
	for _, item := range in {
		sku := strings.TrimSpace(item.SKU)
		if sku == "" {
			return jsonError(c, http.StatusBadRequest, "sku is required")
		}
		skus = append(skus, models.SkuStock{
			SKU:            sku,
			Description:    item.Description,
			StockAvailable: item.StockAvailable,
			RackID:         item.RackID,
		})
	}
	saved, err := s.Store.UpsertSkuStock(c.Request().Context(), skus)
	if err != nil {
		return s.internalError(c, "Failed to save SKU stock", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": saved})
}

func (s *Server) handleListLeadSources(c echo.Context) error {
	sources, err := s.Store.ListLeadSources(c.Request().Context())
	if err != nil {
		return s.internalError(c, "Failed to load lead sources", err)
	}
	if sources == nil {
		sources = []models.LeadSource{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": sources})
}

type leadSourceInput struct {
	SourceName string `json:"source_name"`
	URL        string `json:"url"`
	Tags       string `json:"tags"`
	Active     *bool  `json:"active"`
}

func (s *Server) handleReplaceLeadSources(c echo.Context) error {
	var in []leadSourceInput
	ok, err := decodeArrayField(c, "sources", &in)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid JSON body", err.Error())
	}
	if !ok {
		return jsonError(c, http.StatusBadRequest, "sources must be an array")
	}

	sources := make([]models.LeadSource, 0, len(in))
	for _, item := range in {
		active := true
		if item.Active != nil {
			active = *item.Active
		}
		sources = append(sources, models.LeadSource{
			SourceName: strings.TrimSpace(item.SourceName),
			URL:        strings.TrimSpace(item.URL),
			Tags:       item.Tags,
			Active:     active,
		})
	}
	saved, err := s.Store.ReplaceLeadSources(c.Request().Context(), sources)
	if err != nil {
		return s.internalError(c, "Failed to save lead sources", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": saved})
}

func (s *Server) handleDemoRFPs(c echo.Context) error {
	return c.JSON(http.StatusOK, leads.DemoRFPs())
}
