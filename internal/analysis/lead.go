package analysis

import (
	"fmt"

	"github.com/david/rfp-desk/internal/models"
)

// Defaults used when a lead is analysed before anyone filled in the commercial details.
const (
	DefaultBuyer     = "Unknown Buyer"
	DefaultQuantity  = 1
	DefaultBasePrice = 45
)

// WithRequestIdentity returns a copy of a stored payload with the request's rfp id and buyer
// filled in where the workflow left them out.
func WithRequestIdentity(rec map[string]interface{}, req Request) map[string]interface{} {
	out := make(map[string]interface{}, len(rec)+2)
	for k, v := range rec {
		out[k] = v
	}
	if _, ok := out["rfp_id"]; !ok && req.RfpID != "" {
		out["rfp_id"] = req.RfpID
	}
	if _, ok := out["buyer_name"]; !ok && req.BuyerName != "" {
		out["buyer_name"] = req.BuyerName
	}
	return out
}

// RequestFromLead builds the analysis payload for a lead.
func RequestFromLead(l models.Lead) Request {
	req := Request{
		RfpID:        l.RfpID,
		BuyerName:    l.Buyer,
		Quantity:     DefaultQuantity,
		BasePrice:    DefaultBasePrice,
		Requirements: l.Requirements,
	}
	if req.RfpID == "" {
		req.RfpID = "LEAD-" + l.ID.String()
	}
	if req.BuyerName == "" {
		req.BuyerName = DefaultBuyer
	}
	if l.Quantity != nil {
		req.Quantity = *l.Quantity
	}
	if l.BasePrice != nil {
		req.BasePrice = *l.BasePrice
	}
	if req.Requirements == "" {
		deadline := ""
		if l.Deadline != nil {
			deadline = l.Deadline.UTC().Format("2006-01-02")
		}
		req.Requirements = fmt.Sprintf("%s for %s due on %s", l.Title, l.Buyer, deadline)
	}
	return req
}
