package normalize

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var aliasesYAML []byte

// Kind is the declared type a concept is coerced to.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
)

// Concept is one semantic field together with every name it has been stored under.
type Concept struct {
	Name    string   `yaml:"name"`
	Kind    Kind     `yaml:"kind"`
	Default string   `yaml:"default,omitempty"`
	Aliases []string `yaml:"aliases"`
}

type conceptTable map[string]Concept

func loadConcepts(data []byte) (conceptTable, error) {
	var doc struct {
		Concepts []Concept `yaml:"concepts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse alias table: %w", err)
	}

	table := make(conceptTable, len(doc.Concepts))
	for _, c := range doc.Concepts {
		if c.Name == "" || len(c.Aliases) == 0 {
			return nil, fmt.Errorf("concept %q has no aliases", c.Name)
		}
		switch c.Kind {
		case KindString, KindNumber, KindDate:
		default:
			return nil, fmt.Errorf("concept %q: unknown kind %q", c.Name, c.Kind)
		}
		if _, dup := table[c.Name]; dup {
			return nil, fmt.Errorf("concept %q declared twice", c.Name)
		}
		table[c.Name] = c
	}
	return table, nil
}

func mustLoadConcepts(data []byte) conceptTable {
	table, err := loadConcepts(data)
	if err != nil {
		panic(err)
	}
	return table
}

func (t conceptTable) must(name string) Concept {
	c, ok := t[name]
	if !ok {
		panic(fmt.Sprintf("normalize: concept %q missing from aliases.yaml", name))
	}
	return c
}

var concepts = mustLoadConcepts(aliasesYAML)

// LookupConcept returns a concept by its name in the alias table.
func LookupConcept(name string) (Concept, bool) {
	c, ok := concepts[name]
	return c, ok
}

// RfpRun and Lead concepts.
var (
	ID                  = concepts.must("id")
	RfpID               = concepts.must("rfp_id")
	Buyer               = concepts.must("buyer")
	Created             = concepts.must("created")
	Quantity            = concepts.must("quantity")
	BasePrice           = concepts.must("base_price")
	Requirements        = concepts.must("requirements")
	PrimarySKU          = concepts.must("primary_sku")
	PrimaryName         = concepts.must("primary_name")
	PrimaryMatchPercent = concepts.must("primary_match_percent")
	PrimaryConfidence   = concepts.must("primary_confidence")
	RecommendedScenario = concepts.must("recommended_scenario")
	RecommendedTotal    = concepts.must("recommended_price")
	CompetitorMin       = concepts.must("competitor_range_min")
	CompetitorMax       = concepts.must("competitor_range_max")
	WinProbability      = concepts.must("win_probability")
	Location            = concepts.must("location")
	FeedbackLabel       = concepts.must("feedback_label")
	FeedbackNotes       = concepts.must("feedback_notes")
	FeedbackRating      = concepts.must("feedback_rating")

	LeadTitle  = concepts.must("lead_title")
	LeadBuyer  = concepts.must("lead_buyer")
	Deadline   = concepts.must("deadline")
	SourceName = concepts.must("source_name")
	LeadStatus = concepts.must("lead_status")

	scenarioTotals = [3]Concept{
		concepts.must("scenario_1_total"),
		concepts.must("scenario_2_total"),
		concepts.must("scenario_3_total"),
	}
)
