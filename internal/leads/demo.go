package leads

import (
	"fmt"
	"time"

	"github.com/david/rfp-desk/internal/models"
	"github.com/david/rfp-desk/internal/normalize"
)

// DefaultScanSource names scanned leads when no lead source is configured.
const DefaultScanSource = "Auto Scan"

// SampleLeads are inserted when a scan finds nothing and the demo fallback is on. Each call
// yields fresh rfp ids and urls so repeated scans are not collapsed by the (source, url) index.
func SampleLeads(now time.Time, sourceName string) []models.Lead {
	if sourceName == "" {
		sourceName = DefaultScanSource
	}
	ms := now.UnixMilli()
	samples := []struct {
		title string
		buyer string
		days  int
	}{
		{"Supply of Electrical Cables - Phase 2", "TNB Berhad", 20},
		{"Industrial Wiring Tender Q1 2026", "Petronas Chemicals", 28},
	}

	out := make([]models.Lead, 0, len(samples))
	for i, s := range samples {
		deadline := now.AddDate(0, 0, s.days).UTC()
		out = append(out, models.Lead{
			RfpID:      fmt.Sprintf("RFP-SCAN-%d-%d", ms, i+1),
			Title:      s.title,
			Buyer:      s.buyer,
			Deadline:   &deadline,
			URL:        fmt.Sprintf("https://example.com/rfp/%d?scan=%d", i+1, ms),
			SourceName: sourceName,
			Status:     string(normalize.LeadNew),
			CreatedAt:  now.UTC(),
		})
	}
	return out
}

// DemoRFP is a static lead shown by the demo feed.
type DemoRFP struct {
	RfpID    string `json:"rfp_id"`
	Title    string `json:"title"`
	Buyer    string `json:"buyer"`
	Deadline string `json:"deadline"`
	URL      string `json:"url"`
}

func DemoRFPs() []DemoRFP {
	return []DemoRFP{
		{
			RfpID:    "RFP-DEMO-001",
			Title:    "Supply of LV Power Cables for Metro Line 3",
			Buyer:    "Metro Rail Corp",
			Deadline: "2026-02-15",
			URL:      "https://example.com/rfp-demo-001",
		},
		{
			RfpID:    "RFP-DEMO-002",
			Title:    "HT Cables for 132 kV Substation",
			Buyer:    "PowerGrid Corp",
			Deadline: "2026-03-10",
			URL:      "https://example.com/rfp-demo-002",
		},
	}
}
