// Command rfpctl inspects and drives the RFP desk from a terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/david/rfp-desk/internal/config"
	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/logger"
	"github.com/david/rfp-desk/internal/normalize"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:           "rfpctl",
		Short:         "Inspect RFP runs and leads, scan sources, run analyses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// env is what every command needs: config, a logger and an open store.
type env struct {
	cfg   *config.Config
	log   *logger.Logger
	pool  *pgxpool.Pool
	store *db.Store
}

func (e *env) Close() {
	e.pool.Close()
	e.log.Sync()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.Nop()
	if verbose {
		if log, err = logger.New("dev"); err != nil {
			return nil, err
		}
	}
	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, pool: pool, store: db.NewStore(pool)}, nil
}

func amountText(a normalize.Amount, format func(float64) string) string {
	if !a.Available {
		return normalize.NotAvailable
	}
	return format(a.Value)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	rootCmd.AddCommand(historyCmd, leadsCmd, scanCmd, analyzeCmd, verifyCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
