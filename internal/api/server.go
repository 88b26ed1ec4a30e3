// Package api serves the RFP desk HTTP API.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/rfp-desk/internal/analysis"
	"github.com/david/rfp-desk/internal/config"
	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/leads"
	"github.com/david/rfp-desk/internal/logger"
	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

// Store is everything the handlers read and write. *db.Store satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	InsertRuns(ctx context.Context, payloads []map[string]interface{}) ([]models.RfpRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.RfpRun, error)
	LatestRun(ctx context.Context, rfpID string) (*models.RfpRun, error)
	UpdateFeedback(ctx context.Context, f models.Feedback) (*models.RfpRun, error)
	Buyers(ctx context.Context) ([]string, error)

	ListLeads(ctx context.Context, since time.Time, limit int) ([]models.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	InsertLeads(ctx context.Context, leads []models.Lead) (int, error)
	AdvanceLead(ctx context.Context, id uuid.UUID, next normalize.LeadState) (bool, error)

	GetCompanyProfile(ctx context.Context) (*models.CompanyProfile, error)
	SaveCompanyProfile(ctx context.Context, p models.CompanyProfile) (*models.CompanyProfile, error)
	ListSkuStock(ctx context.Context) ([]models.SkuStock, error)
	UpsertSkuStock(ctx context.Context, skus []models.SkuStock) ([]models.SkuStock, error)
	ListLeadSources(ctx context.Context) ([]models.LeadSource, error)
	ReplaceLeadSources(ctx context.Context, sources []models.LeadSource) ([]models.LeadSource, error)
}

// Scanner runs one lead scan.
type Scanner interface {
	Scan(ctx context.Context) (*leads.ScanResult, error)
}

var _ Store = (*db.Store)(nil)

type Server struct {
	Store     Store
	Analyzer  analysis.Analyzer
	Scanner   Scanner
	Assembler *normalize.Assembler
	Echo      *echo.Echo
	Log       *logger.Logger

	leadsCfg config.LeadsConfig
	scanTTL  time.Duration
	now      func() time.Time

	// Background scan tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

// Deps are the collaborators a server is built from.
type Deps struct {
	Store    Store
	Analyzer analysis.Analyzer
	Scanner  Scanner
	Log      *logger.Logger
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			kv := []interface{}{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency.String()}
			if v.Error != nil {
				log.Warn("request failed", append(kv, "error", v.Error)...)
				return nil
			}
			log.Debug("request", kv...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{
		Store:     deps.Store,
		Analyzer:  deps.Analyzer,
		Scanner:   deps.Scanner,
		Assembler: normalize.NewAssembler(cfg.Classifier()),
		Echo:      e,
		Log:       log,
		leadsCfg:  cfg.Leads,
		scanTTL:   cfg.ScanTimeout(),
		now:       time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api")
	api.GET("/demo-rfps", s.handleDemoRFPs)

	rfp := api.Group("/rfp")
	rfp.POST("/analyze", s.handleAnalyze)
	rfp.POST("/feedback", s.handleFeedback)
	rfp.GET("/history", s.handleHistory)
	rfp.GET("/buyers", s.handleBuyers)
	rfp.GET("/:rfp_id", s.handleGetRun)

	ld := api.Group("/leads")
	ld.GET("/manual", s.handleListLeads)
	ld.POST("/manual", s.handleCreateLead)
	ld.POST("/scan", s.handleScan)
	ld.GET("/scan/:id", s.handleScanJob)
	ld.POST("/analyze", s.handleAnalyzeLead)

	settings := api.Group("/settings")
	settings.GET("/company-profile", s.handleGetCompanyProfile)
	settings.POST("/company-profile", s.handleSaveCompanyProfile)
	settings.GET("/sku-stock", s.handleListSkuStock)
	settings.POST("/sku-stock", s.handleUpsertSkuStock)
	settings.GET("/lead-sources", s.handleListLeadSources)
	settings.POST("/lead-sources", s.handleReplaceLeadSources)

	views := api.Group("/views")
	views.GET("/dashboard", s.handleDashboardView)
	views.GET("/history", s.handleHistoryView)
	views.GET("/rfp/:rfp_id", s.handleDetailView)
	views.GET("/home", s.handleHomeView)
	views.GET("/rankings", s.handleRankingsView)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.Store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelJob()
	return s.Echo.Shutdown(ctx)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func jsonError(c echo.Context, status int, msg string, details ...string) error {
	body := errorBody{Error: msg}
	if len(details) > 0 {
		body.Details = details[0]
	}
	return c.JSON(status, body)
}

// internalError logs err and answers 500 with msg, or 404 when err is a missing row.
func (s *Server) internalError(c echo.Context, msg string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return jsonError(c, http.StatusNotFound, "Not found")
	}
	s.Log.Error(msg, "path", c.Path(), "error", err)
	return jsonError(c, http.StatusInternalServerError, msg, err.Error())
}

// errorHandler renders router and middleware errors (404, 405, bad binds) in the same JSON shape.
func errorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "Internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			switch m := he.Message.(type) {
			case string:
				msg = m
			default:
				msg = http.StatusText(status)
			}
		}
		if status == http.StatusMethodNotAllowed {
			msg = "Method not allowed"
		}
		if status >= 500 {
			log.Error("unhandled error", "path", c.Path(), "error", err)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorBody{Error: msg})
	}
}
