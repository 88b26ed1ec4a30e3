package normalize

import (
	"strings"
)

// StockCategory is the dashboard view of stock: healthy, low or out.
type StockCategory string

const (
	StockHealthy StockCategory = "healthy"
	StockLow     StockCategory = "low"
	StockOut     StockCategory = "out"
)

// Availability is the detail/history view of stock, where low stock still counts as in stock.
type Availability string

const (
	InStock    Availability = "in-stock"
	OutOfStock Availability = "out-of-stock"
)

// Outcome is the recorded result of a submitted RFP response.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomePending Outcome = "pending"
)

// Rendered reports whether the outcome is shown as a badge. Pending is not.
func (o Outcome) Rendered() bool {
	return o == OutcomeWin || o == OutcomeLoss
}

type rule[T any] struct {
	hints  []string
	result T
}

// stockRules is ordered: "out_of_stock" must hit "out" before "stock", and "unavailable"
// before "available".
var stockRules = []rule[StockCategory]{
	{hints: []string{"out", "unavailable"}, result: StockOut},
	{hints: []string{"low"}, result: StockLow},
	{hints: []string{"healthy", "stock", "available"}, result: StockHealthy},
}

var outcomeRules = []rule[Outcome]{
	{hints: []string{"pending"}, result: OutcomePending},
	{hints: []string{"win", "won"}, result: OutcomeWin},
	{hints: []string{"loss", "lost", "lose"}, result: OutcomeLoss},
}

func matchRules[T any](text string, rules []rule[T]) (T, bool) {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, hint := range r.hints {
			if strings.Contains(lower, hint) {
				return r.result, true
			}
		}
	}
	var zero T
	return zero, false
}

// Stock signal fields, in the order the classifier consults them.
const (
	stockEnumKey      = "stockStatus"
	stockAvailableKey = "stock_available"
	stockStatusKey    = "stock_status"
)

// StatusClassifier maps stock and feedback signals onto closed category sets.
//
// MissingStock is what a record with no stock signal at all classifies as. The zero value
// classifier uses StockHealthy, which mirrors the dashboard's historical behaviour; it can hide
// genuinely out-of-stock items, so deployments may configure StockOut instead.
type StatusClassifier struct {
	MissingStock StockCategory
}

// DefaultClassifier keeps the optimistic missing-signal default.
var DefaultClassifier = StatusClassifier{MissingStock: StockHealthy}

func (c StatusClassifier) missingStock() StockCategory {
	switch c.MissingStock {
	case StockHealthy, StockLow, StockOut:
		return c.MissingStock
	}
	return StockHealthy
}

// ParseStockCategory accepts the canonical names; ok is false for anything else.
func ParseStockCategory(s string) (StockCategory, bool) {
	switch StockCategory(strings.ToLower(strings.TrimSpace(s))) {
	case StockHealthy:
		return StockHealthy, true
	case StockLow:
		return StockLow, true
	case StockOut:
		return StockOut, true
	}
	return "", false
}

// ClassifyStockText applies the free-text rules alone. Unknown text is out, never healthy.
func ClassifyStockText(text string) StockCategory {
	if cat, ok := matchRules(text, stockRules); ok {
		return cat
	}
	return StockOut
}

// Stock classifies a record for the dashboard.
func (c StatusClassifier) Stock(rec Record) StockCategory {
	if v, ok := rec.lookup(stockEnumKey); ok {
		if s, ok := v.(string); ok {
			if cat, ok := ParseStockCategory(s); ok {
				return cat
			}
		}
	}
	if cat, ok := c.stockSignal(rec); ok {
		return cat
	}
	return c.missingStock()
}

// stockSignal looks at the availability flag or count, then at the status text.
func (c StatusClassifier) stockSignal(rec Record) (StockCategory, bool) {
	if v, ok := rec.lookup(stockAvailableKey); ok {
		if b, ok := asBool(v); ok {
			if b {
				return StockHealthy, true
			}
			return StockOut, true
		}
		if n, ok := asFloat(v); ok {
			if n > 0 {
				return StockHealthy, true
			}
			return StockOut, true
		}
	}
	// The legacy camelCase enum field sometimes carries the detail-context values.
	for _, key := range []string{stockStatusKey, stockEnumKey} {
		if v, ok := rec.lookup(key); ok {
			if s, ok := asString(v); ok {
				return ClassifyStockText(s), true
			}
		}
	}
	return "", false
}

// StockView is the detail-context classification with its display label.
type StockView struct {
	Status Availability `json:"status"`
	Label  string       `json:"label"`
}

// StockDetail classifies a record for the detail and history views. A canonical
// in-stock/out-of-stock value is taken verbatim.
func (c StatusClassifier) StockDetail(rec Record) StockView {
	if v, ok := rec.lookup(stockEnumKey); ok {
		if s, ok := v.(string); ok {
			switch Availability(strings.ToLower(strings.TrimSpace(s))) {
			case InStock:
				return StockView{Status: InStock, Label: "In Stock"}
			case OutOfStock:
				return StockView{Status: OutOfStock, Label: "Out of Stock"}
			}
		}
	}
	return DetailView(c.Stock(rec))
}

// DetailView collapses a dashboard category into the detail context.
func DetailView(cat StockCategory) StockView {
	switch cat {
	case StockLow:
		return StockView{Status: InStock, Label: "Low Stock"}
	case StockOut:
		return StockView{Status: OutOfStock, Label: "Out of Stock"}
	}
	return StockView{Status: InStock, Label: "In Stock"}
}

// Outcome classifies the feedback of a run. Missing or pending feedback is OutcomePending;
// other unrecognised text counts as a loss so nothing is reported as a win by accident.
func (c StatusClassifier) Outcome(rec Record) Outcome {
	if v, ok := rec.lookup("feedback"); ok {
		if s, ok := v.(string); ok {
			switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
			case OutcomeWin:
				return OutcomeWin
			case OutcomeLoss:
				return OutcomeLoss
			}
		}
	}
	label, ok := ResolveString(rec, FeedbackLabel)
	if !ok {
		return OutcomePending
	}
	return ClassifyOutcomeText(label)
}

// ClassifyOutcomeText applies the feedback rules to a label.
func ClassifyOutcomeText(label string) Outcome {
	if strings.TrimSpace(label) == "" {
		return OutcomePending
	}
	if o, ok := matchRules(label, outcomeRules); ok {
		return o
	}
	return OutcomeLoss
}

// LeadState is the workflow state of a lead. States only move forward.
type LeadState string

const (
	LeadNew        LeadState = "new"
	LeadInProgress LeadState = "in-progress"
	LeadResponded  LeadState = "responded"
	LeadAnalyzed   LeadState = "analyzed"
)

var leadStateOrder = map[LeadState]int{
	LeadNew:        0,
	LeadInProgress: 1,
	LeadResponded:  2,
	LeadAnalyzed:   3,
}

var leadStateLabels = map[LeadState]string{
	LeadNew:        "New",
	LeadInProgress: "In Progress",
	LeadResponded:  "Responded",
	LeadAnalyzed:   "Analyzed",
}

// ParseLeadState normalises a stored status. Unknown or empty values read as new.
func ParseLeadState(s string) LeadState {
	st := LeadState(strings.ToLower(strings.TrimSpace(s)))
	st = LeadState(strings.ReplaceAll(string(st), "_", "-"))
	if _, ok := leadStateOrder[st]; ok {
		return st
	}
	return LeadNew
}

// Label is the display text of the state.
func (s LeadState) Label() string {
	if l, ok := leadStateLabels[s]; ok {
		return l
	}
	return leadStateLabels[LeadNew]
}

// CanAdvance reports whether moving from s to next keeps the lead moving forward.
func (s LeadState) CanAdvance(next LeadState) bool {
	from, ok := leadStateOrder[s]
	if !ok {
		return false
	}
	to, ok := leadStateOrder[next]
	if !ok {
		return false
	}
	return to >= from
}

// Analyzable reports whether the lead may still be sent for analysis.
func (s LeadState) Analyzable() bool {
	return s != LeadAnalyzed
}
