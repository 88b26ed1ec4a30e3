package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/rfp-desk/internal/analysis"
	"github.com/david/rfp-desk/internal/api"
	"github.com/david/rfp-desk/internal/config"
	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/leads"
	"github.com/david/rfp-desk/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal("failed to connect to database", "dsn", cfg.Database.URL, "error", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Fatal("migration failed", "error", err)
	}

	store := db.NewStore(pool)
	if cfg.Analysis.WebhookURL == "" {
		log.Warn("N8N_ANALYZE_URL is not set; analysis requests will fail with 502")
	}
	srv := api.NewServer(cfg, api.Deps{
		Store:    store,
		Analyzer: analysis.NewN8NClient(cfg.Analysis.WebhookURL, cfg.AnalysisTimeout()),
		Scanner:  leads.NewScanner(store, cfg.Scan, log.With("component", "scanner")),
		Log:      log,
	})

	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
