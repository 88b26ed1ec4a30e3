package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/rfp-desk/internal/analysis"
	"github.com/david/rfp-desk/internal/db"
	"github.com/david/rfp-desk/internal/leads"
	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

var (
	historyLimit  int
	historyFilter string

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent analysis runs with their outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := e.store.ListRuns(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			recs := make([]normalize.Record, 0, len(runs))
			for _, r := range runs {
				recs = append(recs, r.Record())
			}
			h := normalize.NewAssembler(e.cfg.Classifier()).History(recs, normalize.ParseHistoryFilter(historyFilter))

			t := newTable(table.Row{"Date", "RFP", "Buyer", "SKU", "Win Prob", "Stock", "Outcome", "Score"})
			for _, row := range h.Rows {
				outcome := ""
				if row.Outcome.Rendered() {
					outcome = string(row.Outcome)
				}
				t.AppendRow(table.Row{
					row.Date, row.DisplayID, row.Buyer, row.PrimarySKU,
					amountText(row.WinProbability, normalize.FormatPercent),
					row.Stock.Label, outcome,
					amountText(row.Score, func(v float64) string { return fmt.Sprintf("%.1f", v) }),
				})
			}
			t.AppendFooter(table.Row{"", fmt.Sprintf("%d runs", h.KPIs.TotalRFPs), "",
				"", fmt.Sprintf("win rate %.0f%%", h.KPIs.WinRate), "", "",
				amountText(h.KPIs.AvgFeedbackScore, func(v float64) string { return fmt.Sprintf("avg %.1f", v) })})
			t.Render()
			return nil
		},
	}
)

var (
	leadDays int

	leadsCmd = &cobra.Command{
		Use:   "leads",
		Short: "List recent leads",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			since := time.Now().AddDate(0, 0, -leadDays)
			list, err := e.store.ListLeads(cmd.Context(), since, e.cfg.Leads.ListLimit)
			if err != nil {
				return err
			}
			t := newTable(table.Row{"ID", "RFP", "Title", "Buyer", "Deadline", "Source", "Status"})
			for _, l := range list {
				v := normalize.LeadViewOf(l.Record())
				t.AppendRow(table.Row{v.ID, v.RfpID, v.Title, v.Buyer, v.Deadline, v.SourceName, v.StatusLabel})
			}
			t.Render()
			return nil
		},
	}
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the active lead sources now",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := leads.NewScanner(e.store, e.cfg.Scan, e.log).Scan(cmd.Context())
		if err != nil {
			return err
		}
		t := newTable(table.Row{"RFP", "Title", "Buyer", "Deadline", "Source"})
		for _, l := range res.Leads {
			t.AppendRow(table.Row{l.RfpID, l.Title, l.Buyer, normalize.FormatDate(l.Deadline), l.SourceName})
		}
		t.Render()
		fmt.Printf("%d sources, %d found, %d new", res.Sources, res.Count, res.Inserted)
		if res.Fallback {
			fmt.Print(" (sample leads)")
		}
		fmt.Println()
		for _, se := range res.Errors {
			fmt.Fprintf(os.Stderr, "source %s failed: %s\n", se.SourceName, se.Error)
		}
		return nil
	},
}

var (
	analyzeReq analysis.Request

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Send an RFP to the analysis workflow and store the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if analyzeReq.RfpID == "" {
				return fmt.Errorf("--rfp-id is required")
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			client := analysis.NewN8NClient(e.cfg.Analysis.WebhookURL, e.cfg.AnalysisTimeout())
			res, err := client.Analyze(cmd.Context(), analyzeReq)
			if err != nil {
				return err
			}
			payloads := make([]map[string]interface{}, 0, len(res.Records))
			for _, rec := range res.Records {
				payloads = append(payloads, analysis.WithRequestIdentity(rec, analyzeReq))
			}
			runs, err := e.store.InsertRuns(cmd.Context(), payloads)
			if err != nil {
				return fmt.Errorf("store analysis: %w", err)
			}
			printRuns(e, runs)
			return nil
		},
	}
)

func printRuns(e *env, runs []models.RfpRun) {
	a := normalize.NewAssembler(e.cfg.Classifier())
	for _, r := range runs {
		d := a.Detail(r.Record())
		t := newTable(table.Row{"Field", "Value"})
		t.AppendRows([]table.Row{
			{"RFP", d.Summary.RfpID},
			{"Buyer", d.Summary.Buyer},
			{"Recommended price", d.Recommendation.PriceDisplay},
			{"Competitor range", d.Recommendation.CompetitorRange},
			{"Stock", d.Inventory.Stock.Label},
			{"Summary", d.Rationale.Summary},
		})
		t.Render()
	}
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the database connection and schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := db.ApplyMigrations(cmd.Context(), e.pool, e.log); err != nil {
			return err
		}
		t := newTable(table.Row{"Table", "Rows"})
		for _, name := range []string{"rfp_runs", "manual_leads", "lead_sources", "sku_stock", "company_profile"} {
			var n int
			if err := e.pool.QueryRow(cmd.Context(), "SELECT count(*) FROM "+name).Scan(&n); err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			t.AppendRow(table.Row{name, n})
		}
		t.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "runs to load")
	historyCmd.Flags().StringVar(&historyFilter, "filter", "all", "all, win or loss")

	leadsCmd.Flags().IntVar(&leadDays, "days", 30, "how far back to list")

	analyzeCmd.Flags().StringVar(&analyzeReq.RfpID, "rfp-id", "", "rfp id")
	analyzeCmd.Flags().StringVar(&analyzeReq.BuyerName, "buyer", analysis.DefaultBuyer, "buyer name")
	analyzeCmd.Flags().Float64Var(&analyzeReq.Quantity, "quantity", analysis.DefaultQuantity, "quantity")
	analyzeCmd.Flags().Float64Var(&analyzeReq.BasePrice, "base-price", analysis.DefaultBasePrice, "base unit price")
	analyzeCmd.Flags().StringVar(&analyzeReq.Requirements, "requirements", "", "requirements text")
}
