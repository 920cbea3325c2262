package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleConditionJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want RuleCondition
	}{
		{
			name: "budget tier",
			raw:  `{"type":"budget_min","threshold":10000000}`,
			want: RuleCondition{Kind: RuleBudgetMin, Threshold: 10_000_000},
		},
		{
			name: "source",
			raw:  `{"type":"source","value":"bayut"}`,
			want: RuleCondition{Kind: RuleSource, Value: "bayut"},
		},
		{
			name: "nationality list",
			raw:  `{"type":"nationality","values":["UAE","Emirati"]}`,
			want: RuleCondition{Kind: RuleNationality, Values: []string{"UAE", "Emirati"}},
		},
		{
			name: "presence check without payload",
			raw:  `{"type":"preferred_areas"}`,
			want: RuleCondition{Kind: RulePreferredAreas},
		},
		{
			name: "response time upper bound",
			raw:  `{"type":"response_time","max_hours":4}`,
			want: RuleCondition{Kind: RuleResponseTime, MaxHours: intPtr(4)},
		},
		{
			name: "response time lower bound",
			raw:  `{"type":"response_time","min_hours":72}`,
			want: RuleCondition{Kind: RuleResponseTime, MinHours: intPtr(72)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got RuleCondition
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)

			// Round-trip through the storage shape.
			out, err := json.Marshal(got)
			require.NoError(t, err)
			var back RuleCondition
			require.NoError(t, json.Unmarshal(out, &back))
			assert.Equal(t, got, back)
		})
	}
}

func TestRuleConditionUnknownKindPreserved(t *testing.T) {
	var c RuleCondition
	require.NoError(t, json.Unmarshal([]byte(`{"type":"lunar_phase","value":"full"}`), &c))
	assert.Equal(t, RuleKind("lunar_phase"), c.Kind)
	assert.Equal(t, "full", c.Value)
}

func TestDefaultScoringRulesSeed(t *testing.T) {
	assert.Len(t, DefaultScoringRules, 24)

	// Exactly four budget tiers, highest first in the canonical ordering.
	var thresholds []int64
	for _, r := range DefaultScoringRules {
		if r.Condition.Kind == RuleBudgetMin {
			thresholds = append(thresholds, r.Condition.Threshold)
		}
	}
	assert.Equal(t, []int64{10_000_000, 5_000_000, 2_000_000, 0}, thresholds)

	// Every rule's condition survives a JSONB round-trip.
	for _, r := range DefaultScoringRules {
		raw, err := json.Marshal(r.Condition)
		require.NoError(t, err, r.Name)
		var back RuleCondition
		require.NoError(t, json.Unmarshal(raw, &back), r.Name)
		assert.Equal(t, r.Condition, back, r.Name)
	}
}
