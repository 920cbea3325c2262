package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RuleKind tags which lead/source/activity field a scoring rule inspects.
// The engine dispatches on this closed set; conditions stored with a kind
// outside it unmarshal cleanly and are ignored by the catch-all arm.
type RuleKind string

const (
	RuleBudgetMin       RuleKind = "budget_min"
	RuleSource          RuleKind = "source"
	RuleNationality     RuleKind = "nationality"
	RulePropertyType    RuleKind = "property_type"
	RulePreferredAreas  RuleKind = "preferred_areas"
	RuleReferral        RuleKind = "referral"
	RuleActivityOutcome RuleKind = "activity_outcome"
	RuleActivityType    RuleKind = "activity_type"
	RuleInactivityDays  RuleKind = "inactivity_days"
	RuleResponseTime    RuleKind = "response_time"
)

// RuleCondition is the tagged variant stored in the rules table's JSONB
// condition column. Which fields are meaningful is fully determined by Kind:
//
//	budget_min, inactivity_days  -> Threshold
//	source, activity_*           -> Value
//	nationality                  -> Values
//	response_time                -> MaxHours or MinHours
//	property_type, preferred_areas, referral -> no payload
type RuleCondition struct {
	Kind      RuleKind
	Value     string
	Values    []string
	Threshold int64
	MaxHours  *int
	MinHours  *int
}

// conditionJSON is the wire/storage shape of a RuleCondition.
type conditionJSON struct {
	Type      RuleKind `json:"type"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
	Threshold *int64   `json:"threshold,omitempty"`
	MaxHours  *int     `json:"max_hours,omitempty"`
	MinHours  *int     `json:"min_hours,omitempty"`
}

// MarshalJSON writes the storage shape, omitting payload fields the kind
// does not use.
func (c RuleCondition) MarshalJSON() ([]byte, error) {
	out := conditionJSON{Type: c.Kind, Value: c.Value, Values: c.Values, MaxHours: c.MaxHours, MinHours: c.MinHours}
	switch c.Kind {
	case RuleBudgetMin, RuleInactivityDays:
		th := c.Threshold
		out.Threshold = &th
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any condition document. Unknown kinds are preserved
// verbatim so the engine can skip them rather than fail the whole rule load.
func (c *RuleCondition) UnmarshalJSON(data []byte) error {
	var in conditionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Kind = in.Type
	c.Value = in.Value
	c.Values = in.Values
	c.MaxHours = in.MaxHours
	c.MinHours = in.MinHours
	if in.Threshold != nil {
		c.Threshold = *in.Threshold
	}
	return nil
}

// ScoringRule is a named condition/adjustment pair. Rules are seeded once at
// bootstrap and read-only afterwards; rule authoring is out of scope.
type ScoringRule struct {
	ID         uuid.UUID     `json:"rule_id"`
	Name       string        `json:"rule_name"`
	Adjustment int           `json:"score_adjustment"`
	Condition  RuleCondition `json:"condition"`
	CreatedAt  time.Time     `json:"created_at"`
}

func intPtr(v int) *int { return &v }

// DefaultScoringRules is the canonical rule seed, inserted exactly once when
// the rules table is empty. Adjustments are the contract the tests in
// internal/scoring pin down; change them and historical scores drift.
var DefaultScoringRules = []ScoringRule{
	{Name: "High Budget (>10M AED)", Adjustment: 20, Condition: RuleCondition{Kind: RuleBudgetMin, Threshold: 10_000_000}},
	{Name: "Medium-High Budget (>5M AED)", Adjustment: 15, Condition: RuleCondition{Kind: RuleBudgetMin, Threshold: 5_000_000}},
	{Name: "Medium Budget (>2M AED)", Adjustment: 10, Condition: RuleCondition{Kind: RuleBudgetMin, Threshold: 2_000_000}},
	{Name: "Low Budget (default)", Adjustment: 5, Condition: RuleCondition{Kind: RuleBudgetMin, Threshold: 0}},
	{Name: "Referral Source", Adjustment: 95, Condition: RuleCondition{Kind: RuleSource, Value: "referral"}},
	{Name: "Bayut Source", Adjustment: 90, Condition: RuleCondition{Kind: RuleSource, Value: "bayut"}},
	{Name: "PropertyFinder Source", Adjustment: 85, Condition: RuleCondition{Kind: RuleSource, Value: "propertyfinder"}},
	{Name: "Website Source", Adjustment: 80, Condition: RuleCondition{Kind: RuleSource, Value: "website"}},
	{Name: "Dubizzle Source", Adjustment: 75, Condition: RuleCondition{Kind: RuleSource, Value: "dubizzle"}},
	{Name: "Walk-in Source", Adjustment: 70, Condition: RuleCondition{Kind: RuleSource, Value: "walk_in"}},
	{Name: "UAE/Emirati Nationality", Adjustment: 10, Condition: RuleCondition{Kind: RuleNationality, Values: []string{"UAE", "Emirati"}}},
	{Name: "GCC Nationality", Adjustment: 5, Condition: RuleCondition{Kind: RuleNationality, Values: []string{"Saudi", "Kuwait", "Bahrain", "Qatar", "Oman"}}},
	{Name: "Has Property Type", Adjustment: 5, Condition: RuleCondition{Kind: RulePropertyType}},
	{Name: "Has Preferred Areas", Adjustment: 5, Condition: RuleCondition{Kind: RulePreferredAreas}},
	{Name: "Referral Bonus", Adjustment: 10, Condition: RuleCondition{Kind: RuleReferral}},
	{Name: "Positive Interaction", Adjustment: 5, Condition: RuleCondition{Kind: RuleActivityOutcome, Value: "positive"}},
	{Name: "Property Viewing", Adjustment: 10, Condition: RuleCondition{Kind: RuleActivityType, Value: "viewing"}},
	{Name: "Offer Made", Adjustment: 20, Condition: RuleCondition{Kind: RuleActivityType, Value: "offer_made"}},
	{Name: "No Response 7 Days", Adjustment: -10, Condition: RuleCondition{Kind: RuleInactivityDays, Threshold: 7}},
	{Name: "Response Time <= 1 Hour", Adjustment: 15, Condition: RuleCondition{Kind: RuleResponseTime, MaxHours: intPtr(1)}},
	{Name: "Response Time <= 4 Hours", Adjustment: 10, Condition: RuleCondition{Kind: RuleResponseTime, MaxHours: intPtr(4)}},
	{Name: "Response Time <= 24 Hours", Adjustment: 5, Condition: RuleCondition{Kind: RuleResponseTime, MaxHours: intPtr(24)}},
	{Name: "Response Time <= 72 Hours", Adjustment: 0, Condition: RuleCondition{Kind: RuleResponseTime, MaxHours: intPtr(72)}},
	{Name: "Response Time > 72 Hours", Adjustment: -10, Condition: RuleCondition{Kind: RuleResponseTime, MinHours: intPtr(72)}},
}
