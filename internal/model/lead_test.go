package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StatusNew, StatusContacted))
	assert.NoError(t, ValidateTransition(StatusViewingScheduled, StatusQualified))
	assert.NoError(t, ValidateTransition(StatusNegotiation, StatusConverted))

	err := ValidateTransition(StatusNew, StatusConverted)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	// Terminal states admit nothing.
	for _, terminal := range []LeadStatus{StatusConverted, StatusLost} {
		assert.True(t, terminal.Terminal())
		assert.ErrorIs(t, ValidateTransition(terminal, StatusNew), ErrInvalidStatusTransition)
	}
}

func TestValidateLead(t *testing.T) {
	lo, hi := int64(1_000_000), int64(500_000)
	bad := Lead{SourceType: SourceWebsite, BudgetMin: &lo, BudgetMax: &hi}
	assert.ErrorIs(t, ValidateLead(bad), ErrInvalidLeadData)

	bad.SourceType = "carrier_pigeon"
	bad.BudgetMax = nil
	bad.BudgetMin = nil
	assert.ErrorIs(t, ValidateLead(bad), ErrInvalidLeadData)

	ok := Lead{SourceType: SourceBayut, BudgetMin: &hi, BudgetMax: &lo}
	assert.NoError(t, ValidateLead(ok))
}

func TestLatestMetric(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rate1, rate2 := 12.5, 31.0
	a := Agent{Metrics: []PerformanceMetric{
		{ConversionRate: &rate1, UpdatedAt: base},
		{ConversionRate: &rate2, UpdatedAt: base.Add(48 * time.Hour)},
	}}
	m := a.LatestMetric()
	require.NotNil(t, m)
	assert.Equal(t, rate2, *m.ConversionRate)

	assert.Nil(t, Agent{}.LatestMetric())
}
