package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxActiveLeadsPerAgent is the hard workload cap. The agents table enforces
// it with a CHECK constraint and a trigger; the assignment manager treats it
// as a soft pre-filter and surfaces trigger rejections as ErrAgentOverloaded.
const MaxActiveLeadsPerAgent = 50

// Agent is a human agent who receives lead assignments.
type Agent struct {
	ID                          uuid.UUID `json:"agent_id"`
	FullName                    string    `json:"full_name"`
	Email                       string    `json:"email"`
	Phone                       string    `json:"phone"`
	SpecializationPropertyTypes []string  `json:"specialization_property_types"`
	SpecializationAreas         []string  `json:"specialization_areas"`
	LanguageSkills              []string  `json:"language_skills"`
	ActiveLeadsCount            int       `json:"active_leads_count"`
	CreatedAt                   time.Time `json:"created_at"`
	UpdatedAt                   time.Time `json:"updated_at"`

	// Metrics is populated by AvailableAgents so the assignment manager can
	// factor in conversion rates without extra queries.
	Metrics []PerformanceMetric `json:"performance_metrics,omitempty"`
}

// PerformanceMetric is a rolling performance snapshot for an agent.
type PerformanceMetric struct {
	ID             uuid.UUID `json:"metric_id"`
	AgentID        uuid.UUID `json:"agent_id"`
	ConversionRate *float64  `json:"conversion_rate,omitempty"` // percentage, 0-100
	AvgDealSize    *float64  `json:"average_deal_size,omitempty"`
	AvgResponse    *float64  `json:"average_response_hours,omitempty"`
	LeadsHandled   int       `json:"leads_handled"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LatestMetric returns the most recently updated performance metric,
// or nil when the agent has none.
func (a Agent) LatestMetric() *PerformanceMetric {
	var latest *PerformanceMetric
	for i := range a.Metrics {
		m := &a.Metrics[i]
		if latest == nil || m.UpdatedAt.After(latest.UpdatedAt) {
			latest = m
		}
	}
	return latest
}
