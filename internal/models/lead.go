package models

import (
	"time"

	"github.com/google/uuid"
)

type Lead struct {
	ID           uuid.UUID  `json:"id"`
	RfpID        string     `json:"rfp_id"`
	Title        string     `json:"title"`
	Buyer        string     `json:"buyer"`
	Deadline     *time.Time `json:"deadline"`
	URL          string     `json:"url"`
	SourceName   string     `json:"source_name"`
	Status       string     `json:"status"`
	Requirements string     `json:"requirements"`
	Quantity     *float64   `json:"quantity"`
	BasePrice    *float64   `json:"base_price"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Record exposes the lead to the normalization layer.
func (l Lead) Record() map[string]interface{} {
	rec := map[string]interface{}{
		"id":           l.ID.String(),
		"title":        l.Title,
		"buyer":        l.Buyer,
		"url":          l.URL,
		"source_name":  l.SourceName,
		"status":       l.Status,
		"requirements": l.Requirements,
	}
	if l.RfpID != "" {
		rec["rfp_id"] = l.RfpID
	}
	if l.Deadline != nil {
		rec["deadline"] = *l.Deadline
	}
	if l.Quantity != nil {
		rec["quantity"] = *l.Quantity
	}
	if l.BasePrice != nil {
		rec["base_price"] = *l.BasePrice
	}
	if !l.CreatedAt.IsZero() {
		rec["created_at"] = l.CreatedAt
	}
	return rec
}

type LeadSource struct {
	ID         int    `json:"id"`
	SourceName string `json:"source_name"`
	URL        string `json:"url"`
	Tags       string `json:"tags"`
	Active     bool   `json:"active"`
}

type SkuStock struct {
	SKU            string    `json:"sku"`
	Description    string    `json:"description"`
	StockAvailable float64   `json:"stock_available"`
	RackID         string    `json:"rack_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CompanyProfile struct {
	CompanyName  string    `json:"company_name"`
	Segment      string    `json:"segment"`
	Region       string    `json:"region"`
	ContactEmail string    `json:"contact_email"`
	UpdatedAt    time.Time `json:"updated_at"`
}
