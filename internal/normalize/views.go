package normalize

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"
)

// Amount is a number that may be missing. Missing amounts encode as JSON null so they cannot be
// confused with a real zero.
type Amount struct {
	Value     float64
	Available bool
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Available {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

func amountOf(rec Record, c Concept) Amount {
	v, ok := ResolveNumber(rec, c)
	return Amount{Value: v, Available: ok}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Assembler builds page view models from raw records.
type Assembler struct {
	Classifier StatusClassifier
}

// NewAssembler returns an assembler using the given classifier.
func NewAssembler(c StatusClassifier) *Assembler {
	return &Assembler{Classifier: c}
}

// linkOf returns the detail link id of a record, if it has one.
func linkOf(rec Record) (string, bool) {
	id, err := RequireRfpID(rec)
	if err != nil {
		return "", false
	}
	return id, true
}

// DashboardCard is one run on the dashboard grid.
type DashboardCard struct {
	ID             string        `json:"id,omitempty"`
	DisplayID      string        `json:"display_id"`
	LinkID         string        `json:"link_id,omitempty"`
	Linkable       bool          `json:"linkable"`
	Buyer          string        `json:"buyer"`
	Created        string        `json:"created"`
	WinProbability Amount        `json:"win_probability"`
	Stock          StockCategory `json:"stock"`
	Quantity       Amount        `json:"quantity"`
	BasePrice      Amount        `json:"base_price"`
}

func (a *Assembler) DashboardCard(rec Record) DashboardCard {
	id, _ := ResolveString(rec, ID)
	link, linkable := linkOf(rec)
	buyer, _ := ResolveString(rec, Buyer)
	created, _ := ResolveDate(rec, Created)
	return DashboardCard{
		ID:             id,
		DisplayID:      DisplayRfpID(rec),
		LinkID:         link,
		Linkable:       linkable,
		Buyer:          buyer,
		Created:        created,
		WinProbability: amountOf(rec, WinProbability),
		Stock:          a.Classifier.Stock(rec),
		Quantity:       amountOf(rec, Quantity),
		BasePrice:      amountOf(rec, BasePrice),
	}
}

// DashboardKPIs are computed over every run, regardless of the buyer filter.
type DashboardKPIs struct {
	TotalRFPs         int     `json:"total_rfps"`
	WinRate           float64 `json:"win_rate"`
	AvgWinProbability Amount  `json:"avg_win_probability"`
	AvgFeedbackScore  Amount  `json:"avg_feedback_score"`
}

type Dashboard struct {
	Buyer string          `json:"buyer,omitempty"`
	Cards []DashboardCard `json:"cards"`
	KPIs  DashboardKPIs   `json:"kpis"`
}

// Dashboard builds the dashboard. An empty buyer keeps every run.
func (a *Assembler) Dashboard(runs []Record, buyer string) Dashboard {
	buyer = strings.TrimSpace(buyer)
	d := Dashboard{Buyer: buyer, Cards: make([]DashboardCard, 0, len(runs))}
	for _, rec := range runs {
		card := a.DashboardCard(rec)
		if buyer != "" && !strings.EqualFold(card.Buyer, buyer) {
			continue
		}
		d.Cards = append(d.Cards, card)
	}

	d.KPIs.TotalRFPs = len(runs)
	wins := 0
	var prob, score average
	for _, rec := range runs {
		if a.Classifier.Outcome(rec) == OutcomeWin {
			wins++
		}
		prob.add(amountOf(rec, WinProbability))
		score.add(amountOf(rec, FeedbackRating))
	}
	if len(runs) > 0 {
		d.KPIs.WinRate = math.Round(float64(wins) / float64(len(runs)) * 100)
	}
	d.KPIs.AvgWinProbability = prob.result(math.Round)
	d.KPIs.AvgFeedbackScore = score.result(round1)
	return d
}

// average ignores missing amounts.
type average struct {
	sum float64
	n   int
}

func (a *average) add(v Amount) {
	if !v.Available {
		return
	}
	a.sum += v.Value
	a.n++
}

func (a average) result(round func(float64) float64) Amount {
	if a.n == 0 {
		return Amount{}
	}
	return Amount{Value: round(a.sum / float64(a.n)), Available: true}
}

// HistoryFilter selects history rows by outcome.
type HistoryFilter string

const (
	FilterAll  HistoryFilter = "all"
	FilterWin  HistoryFilter = "win"
	FilterLoss HistoryFilter = "loss"
)

// ParseHistoryFilter is case-insensitive; anything unknown means all.
func ParseHistoryFilter(s string) HistoryFilter {
	switch HistoryFilter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterWin:
		return FilterWin
	case FilterLoss:
		return FilterLoss
	}
	return FilterAll
}

func (f HistoryFilter) keep(o Outcome) bool {
	switch f {
	case FilterWin:
		return o == OutcomeWin
	case FilterLoss:
		return o == OutcomeLoss
	}
	return true
}

type HistoryRow struct {
	ID             string    `json:"id,omitempty"`
	Date           string    `json:"date"`
	DisplayID      string    `json:"display_id"`
	LinkID         string    `json:"link_id,omitempty"`
	Linkable       bool      `json:"linkable"`
	Buyer          string    `json:"buyer"`
	PrimarySKU     string    `json:"primary_sku"`
	WinProbability Amount    `json:"win_probability"`
	Stock          StockView `json:"stock"`
	Outcome        Outcome   `json:"outcome"`
	Score          Amount    `json:"score"`
}

func (a *Assembler) HistoryRow(rec Record) HistoryRow {
	id, _ := ResolveString(rec, ID)
	link, linkable := linkOf(rec)
	date, _ := ResolveDate(rec, Created)
	buyer, _ := ResolveString(rec, Buyer)
	sku, _ := ResolveString(rec, PrimarySKU)
	return HistoryRow{
		ID:             id,
		Date:           date,
		DisplayID:      DisplayRfpID(rec),
		LinkID:         link,
		Linkable:       linkable,
		Buyer:          buyer,
		PrimarySKU:     sku,
		WinProbability: amountOf(rec, WinProbability),
		Stock:          a.Classifier.StockDetail(rec),
		Outcome:        a.Classifier.Outcome(rec),
		Score:          amountOf(rec, FeedbackRating),
	}
}

type HistoryKPIs struct {
	TotalRFPs        int     `json:"total_rfps"`
	WinRate          float64 `json:"win_rate"`
	AvgFeedbackScore Amount  `json:"avg_feedback_score"`
}

type History struct {
	Filter HistoryFilter `json:"filter"`
	Rows   []HistoryRow  `json:"rows"`
	KPIs   HistoryKPIs   `json:"kpis"`
}

// History builds the history table. KPIs cover every run, not only the filtered rows.
func (a *Assembler) History(runs []Record, filter HistoryFilter) History {
	h := History{Filter: filter, Rows: make([]HistoryRow, 0, len(runs))}
	wins := 0
	var score average
	for _, rec := range runs {
		row := a.HistoryRow(rec)
		if row.Outcome == OutcomeWin {
			wins++
		}
		score.add(row.Score)
		if filter.keep(row.Outcome) {
			h.Rows = append(h.Rows, row)
		}
	}
	h.KPIs.TotalRFPs = len(runs)
	if len(runs) > 0 {
		h.KPIs.WinRate = math.Round(float64(wins) / float64(len(runs)) * 100)
	}
	h.KPIs.AvgFeedbackScore = score.result(round1)
	return h
}

type SummaryCard struct {
	Buyer        string `json:"buyer"`
	RfpID        string `json:"rfp_id"`
	Quantity     string `json:"quantity"`
	BasePrice    string `json:"base_price"`
	Created      string `json:"created"`
	Requirements string `json:"requirements"`
}

type RecommendationCard struct {
	WinProbability  Amount `json:"win_probability"`
	SKU             string `json:"sku"`
	SKUName         string `json:"sku_name"`
	MatchPercent    Amount `json:"match_percent"`
	Confidence      string `json:"confidence"`
	Scenario        string `json:"scenario"`
	Price           Amount `json:"price"`
	PriceDisplay    string `json:"price_display"`
	CompetitorMin   Amount `json:"competitor_min"`
	CompetitorMax   Amount `json:"competitor_max"`
	CompetitorRange string `json:"competitor_range"`
}

// StockLevel compares what is on hand with what the RFP asks for.
type StockLevel struct {
	Current  float64 `json:"current"`
	Required float64 `json:"required"`
	Percent  float64 `json:"percent"`
	Display  string  `json:"display"`
}

type InventoryCard struct {
	Level       *StockLevel `json:"level,omitempty"`
	Location    string      `json:"location"`
	Stock       StockView   `json:"stock"`
	ReadyToShip bool        `json:"ready_to_ship"`
}

type FeedbackCard struct {
	Outcome  Outcome `json:"outcome"`
	Rendered bool    `json:"rendered"`
	Label    string  `json:"label,omitempty"`
	Notes    string  `json:"notes,omitempty"`
	Rating   Amount  `json:"rating"`
}

// Detail is the single-run page.
type Detail struct {
	Summary        SummaryCard        `json:"summary"`
	Recommendation RecommendationCard `json:"recommendation"`
	Inventory      InventoryCard      `json:"inventory"`
	Rationale      Narrative          `json:"rationale"`
	Feedback       FeedbackCard       `json:"feedback"`
}

func (a *Assembler) Detail(rec Record) Detail {
	return Detail{
		Summary:        summaryCard(rec),
		Recommendation: recommendationCard(rec),
		Inventory:      a.inventoryCard(rec),
		Rationale:      NarrativeOf(rec),
		Feedback:       a.feedbackCard(rec),
	}
}

func summaryCard(rec Record) SummaryCard {
	buyer, _ := ResolveString(rec, Buyer)
	created, _ := ResolveDate(rec, Created)
	reqs, ok := ResolveString(rec, Requirements)
	if !ok {
		reqs = NotAvailable
	}
	s := SummaryCard{
		Buyer:        buyer,
		RfpID:        DisplayRfpID(rec),
		Quantity:     NotAvailable,
		BasePrice:    NotAvailable,
		Created:      created,
		Requirements: reqs,
	}
	if q, ok := ResolveNumber(rec, Quantity); ok {
		s.Quantity = FormatUnits(q)
	}
	if p, ok := ResolveNumber(rec, BasePrice); ok {
		s.BasePrice = FormatDollars(p)
	}
	return s
}

func recommendationCard(rec Record) RecommendationCard {
	sku, _ := ResolveString(rec, PrimarySKU)
	name, _ := ResolveString(rec, PrimaryName)
	conf, _ := ResolveString(rec, PrimaryConfidence)
	scenario, _ := ResolveString(rec, RecommendedScenario)
	r := RecommendationCard{
		WinProbability:  amountOf(rec, WinProbability),
		SKU:             sku,
		SKUName:         name,
		MatchPercent:    amountOf(rec, PrimaryMatchPercent),
		Confidence:      conf,
		Scenario:        scenario,
		PriceDisplay:    NotAvailable,
		CompetitorMin:   amountOf(rec, CompetitorMin),
		CompetitorMax:   amountOf(rec, CompetitorMax),
		CompetitorRange: NotAvailable,
	}
	if price, ok := RecommendedPrice(rec); ok {
		r.Price = Amount{Value: price, Available: true}
		r.PriceDisplay = FormatUSD(price)
	}
	if r.CompetitorMin.Available && r.CompetitorMax.Available {
		r.CompetitorRange = FormatUSD(r.CompetitorMin.Value) + " - " + FormatUSD(r.CompetitorMax.Value)
	}
	return r
}

func (a *Assembler) inventoryCard(rec Record) InventoryCard {
	loc, _ := ResolveString(rec, Location)
	inv := InventoryCard{
		Level:    stockLevel(rec),
		Location: loc,
		Stock:    a.Classifier.StockDetail(rec),
	}
	for _, key := range []string{"readyToShip", "ready_to_ship"} {
		if v, ok := rec.lookup(key); ok {
			if b, ok := asBool(v); ok {
				inv.ReadyToShip = b
				break
			}
		}
	}
	return inv
}

// stockLevel reads an explicit {current, required} pair, else a numeric stock_available count
// against the quantity. Nothing is shown unless both sides are positive.
func stockLevel(rec Record) *StockLevel {
	var current, required float64
	if v, ok := rec.lookup("stockLevel"); ok {
		if m, ok := v.(map[string]any); ok {
			current, _ = asFloat(m["current"])
			required, _ = asFloat(m["required"])
		}
	} else if v, ok := rec.lookup(stockAvailableKey); ok {
		if _, isBool := asBool(v); !isBool {
			current, _ = asFloat(v)
			required, _ = ResolveNumber(rec, Quantity)
		}
	}
	if current <= 0 || required <= 0 {
		return nil
	}
	return &StockLevel{
		Current:  current,
		Required: required,
		Percent:  math.Min(current/required*100, 100),
		Display:  FormatCompact(current) + " / " + FormatCompact(required) + " units",
	}
}

func (a *Assembler) feedbackCard(rec Record) FeedbackCard {
	outcome := a.Classifier.Outcome(rec)
	label, _ := ResolveString(rec, FeedbackLabel)
	notes, _ := ResolveString(rec, FeedbackNotes)
	return FeedbackCard{
		Outcome:  outcome,
		Rendered: outcome.Rendered(),
		Label:    label,
		Notes:    notes,
		Rating:   amountOf(rec, FeedbackRating),
	}
}

// LeadView is one lead row on the home page.
type LeadView struct {
	ID          string    `json:"id,omitempty"`
	RfpID       string    `json:"rfp_id,omitempty"`
	Title       string    `json:"title"`
	Buyer       string    `json:"buyer"`
	Deadline    string    `json:"deadline"`
	SourceName  string    `json:"source_name"`
	Status      LeadState `json:"status"`
	StatusLabel string    `json:"status_label"`
	Analyzable  bool      `json:"analyzable"`
	Created     string    `json:"created"`
}

func LeadViewOf(rec Record) LeadView {
	id, _ := ResolveString(rec, ID)
	rfpID, ok := ResolveString(rec, RfpID)
	if !ok {
		rfpID = ""
	}
	title, _ := ResolveString(rec, LeadTitle)
	buyer, _ := ResolveString(rec, LeadBuyer)
	deadline, _ := ResolveDate(rec, Deadline)
	source, _ := ResolveString(rec, SourceName)
	status, _ := ResolveString(rec, LeadStatus)
	created, _ := ResolveDate(rec, Created)
	st := ParseLeadState(status)
	return LeadView{
		ID:          id,
		RfpID:       rfpID,
		Title:       title,
		Buyer:       buyer,
		Deadline:    deadline,
		SourceName:  source,
		Status:      st,
		StatusLabel: st.Label(),
		Analyzable:  st.Analyzable(),
		Created:     created,
	}
}

type HomeKPIs struct {
	TotalLeads int    `json:"total_leads"`
	ActiveRFPs int    `json:"active_rfps"`
	WinRate    Amount `json:"win_rate"`
}

type Insight struct {
	Title   string `json:"title"`
	Details string `json:"details"`
}

type Home struct {
	Leads    []LeadView `json:"leads"`
	KPIs     HomeKPIs   `json:"kpis"`
	Insights []Insight  `json:"insights"`
}

// HomeLeadLimit is how many leads the home page lists.
const HomeLeadLimit = 10

// Home builds the landing page. Both slices are expected newest first. The win rate only
// counts runs with a decided outcome.
func (a *Assembler) Home(leads, runs []Record) Home {
	h := Home{Leads: make([]LeadView, 0, min(len(leads), HomeLeadLimit)), Insights: []Insight{}}
	for i, rec := range leads {
		if i == HomeLeadLimit {
			break
		}
		h.Leads = append(h.Leads, LeadViewOf(rec))
	}
	h.KPIs.TotalLeads = len(leads)
	h.KPIs.ActiveRFPs = len(runs)

	wins, losses := 0, 0
	skuWins := map[string]int{}
	var skuOrder []string
	for _, rec := range runs {
		switch a.Classifier.Outcome(rec) {
		case OutcomeWin:
			wins++
			if sku, ok := ResolveString(rec, PrimarySKU); ok {
				if skuWins[sku] == 0 {
					skuOrder = append(skuOrder, sku)
				}
				skuWins[sku]++
			}
		case OutcomeLoss:
			losses++
		}
	}
	if wins+losses > 0 {
		h.KPIs.WinRate = Amount{Value: math.Round(float64(wins) / float64(wins+losses) * 100), Available: true}
	}

	if len(runs) == 0 {
		return h
	}
	h.Insights = append(h.Insights, latestInsight(runs[0]))
	if len(skuOrder) > 0 {
		top := skuOrder[0]
		for _, sku := range skuOrder[1:] {
			if skuWins[sku] > skuWins[top] {
				top = sku
			}
		}
		unit := "wins"
		if skuWins[top] == 1 {
			unit = "win"
		}
		h.Insights = append(h.Insights, Insight{
			Title:   "Top SKU in Recent Wins",
			Details: top + " • " + FormatCount(float64(skuWins[top])) + " " + unit,
		})
	}
	return h
}

func latestInsight(rec Record) Insight {
	rfpID, _ := ResolveString(rec, RfpID)
	buyer, _ := ResolveString(rec, Buyer)
	parts := []string{rfpID, buyer}
	if p, ok := ResolveNumber(rec, WinProbability); ok && p > 0 {
		parts = append(parts, FormatPercent(p)+" win prob")
	}
	return Insight{Title: "Latest RFP Analyzed", Details: strings.Join(parts, " • ")}
}

// RankingSort is the column the rankings page orders by.
type RankingSort string

const (
	SortCreated        RankingSort = "created_at"
	SortWinProbability RankingSort = "estimated_win_probability"
)

func ParseRankingSort(s string) RankingSort {
	if RankingSort(strings.TrimSpace(s)) == SortWinProbability {
		return SortWinProbability
	}
	return SortCreated
}

// ParseDescending treats anything but "asc" as descending.
func ParseDescending(order string) bool {
	return !strings.EqualFold(strings.TrimSpace(order), "asc")
}

type RankingRow struct {
	Rank int `json:"rank"`
	DashboardCard
	Outcome Outcome `json:"outcome"`
}

// Rankings orders runs by the chosen column. Runs missing the column always sort last;
// ties keep their input order.
func (a *Assembler) Rankings(runs []Record, by RankingSort, descending bool) []RankingRow {
	type keyed struct {
		rec Record
		key float64
		ok  bool
	}
	items := make([]keyed, len(runs))
	for i, rec := range runs {
		k := keyed{rec: rec}
		switch by {
		case SortWinProbability:
			k.key, k.ok = ResolveNumber(rec, WinProbability)
		default:
			var t time.Time
			t, k.ok = ResolveTime(rec, Created)
			k.key = float64(t.UnixNano())
		}
		items[i] = k
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ok != items[j].ok {
			return items[i].ok
		}
		if descending {
			return items[i].key > items[j].key
		}
		return items[i].key < items[j].key
	})

	rows := make([]RankingRow, len(items))
	for i, it := range items {
		rows[i] = RankingRow{
			Rank:          i + 1,
			DashboardCard: a.DashboardCard(it.rec),
			Outcome:       a.Classifier.Outcome(it.rec),
		}
	}
	return rows
}
