// Package assign implements weighted lead-to-agent assignment with
// distributed round-robin tie-breaking.
//
// Agent selection is a pure ranking over the available-agent snapshot; ties
// on the weighted score rotate through a shared counter so concurrent
// instances spread equally-matched leads fairly. The counter lives in the
// cache store; when it is unreachable the manager falls back to a
// process-local counter and keeps assigning.
package assign

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thinkrealty/leadflow/internal/cache"
	"github.com/thinkrealty/leadflow/internal/model"
	"github.com/thinkrealty/leadflow/internal/telemetry"
)

// roundRobinKeyPrefix namespaces the per-score rotation counters.
const roundRobinKeyPrefix = "assignment-roundrobin:"

// Weighted-match contributions. An agent's total is the sum of every
// dimension that matches the lead.
const (
	weightPropertyType   = 3
	weightAreaOverlap    = 2
	weightLanguage       = 2
	weightConversionHigh = 3 // conversion rate >= 30%
	weightConversionMid  = 2 // conversion rate >= 20%
	weightConversionLow  = 1 // any positive conversion rate
)

// AgentDirectory supplies the agent snapshots selection ranks over.
type AgentDirectory interface {
	// AvailableAgents returns agents below the workload cap, each with
	// current active_leads_count and latest performance metrics.
	AvailableAgents(ctx context.Context) ([]model.Agent, error)

	// GetAgent returns a single agent by ID.
	GetAgent(ctx context.Context, agentID uuid.UUID) (model.Agent, error)
}

// AssignmentStore reads and atomically rewrites the lead's current assignment.
type AssignmentStore interface {
	// AgentForLead returns the currently assigned agent, or
	// model.ErrNoAgentAssigned when the lead is unassigned.
	AgentForLead(ctx context.Context, leadID uuid.UUID) (uuid.UUID, error)

	// Reassign atomically moves the lead from one agent to another,
	// recording the reason and adjusting both workload counters.
	Reassign(ctx context.Context, leadID, fromAgent, toAgent uuid.UUID, reason string) (model.Assignment, error)
}

// LeadSource fetches the stored lead so reassignment can re-rank against
// its real preferences.
type LeadSource interface {
	GetLead(ctx context.Context, leadID uuid.UUID) (model.Lead, error)
}

// Manager selects agents for leads and orchestrates reassignment.
type Manager struct {
	agents      AgentDirectory
	assignments AssignmentStore
	leads       LeadSource
	scoreboard  cache.Store
	logger      *slog.Logger
	counterTTL  time.Duration

	// Process-local rotation counters, used only while the scoreboard is
	// unreachable. Fairness degrades to per-instance but never stops.
	mu    sync.Mutex
	local map[string]int64

	assignTotal metric.Int64Counter
	fallbacks   metric.Int64Counter
}

// NewManager creates an assignment manager. counterTTL bounds how long an
// idle rotation counter survives before fairness resets.
func NewManager(agents AgentDirectory, assignments AssignmentStore, leads LeadSource, scoreboard cache.Store, counterTTL time.Duration, logger *slog.Logger) *Manager {
	meter := telemetry.Meter("leadflow/assign")
	total, _ := meter.Int64Counter("leadflow.assign.total",
		metric.WithDescription("Lead assignment attempts by outcome"),
	)
	fallbacks, _ := meter.Int64Counter("leadflow.assign.scoreboard_fallbacks",
		metric.WithDescription("Round-robin ticks served by the process-local counter"),
	)
	return &Manager{
		agents:      agents,
		assignments: assignments,
		leads:       leads,
		scoreboard:  scoreboard,
		logger:      logger,
		counterTTL:  counterTTL,
		local:       make(map[string]int64),
		assignTotal: total,
		fallbacks:   fallbacks,
	}
}

// AssignLead picks the best available agent for the lead. When every agent
// sits at the workload cap it fails with model.ErrAgentOverloaded and never
// returns an agent ID.
func (m *Manager) AssignLead(ctx context.Context, lead model.Lead) (uuid.UUID, error) {
	agent, err := m.selectBestAgent(ctx, lead)
	if err != nil {
		return uuid.Nil, err
	}
	if agent == nil {
		m.logger.Warn("assign: no agent below capacity", "lead_id", lead.ID)
		m.assignTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "overloaded")))
		return uuid.Nil, model.ErrAgentOverloaded
	}
	m.assignTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "assigned")))
	return agent.ID, nil
}

// ReassignLead moves the lead to newAgentID, or to the best alternative when
// newAgentID is uuid.Nil. The target must differ from the current agent and
// have capacity; both are verified before any state changes.
func (m *Manager) ReassignLead(ctx context.Context, leadID, newAgentID uuid.UUID, reason string) (model.Assignment, error) {
	current, err := m.assignments.AgentForLead(ctx, leadID)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assign: current agent for lead %s: %w", leadID, err)
	}

	if newAgentID != uuid.Nil {
		if newAgentID == current {
			return model.Assignment{}, model.ErrSameAgentReassignment
		}
		target, err := m.agents.GetAgent(ctx, newAgentID)
		if err != nil {
			return model.Assignment{}, fmt.Errorf("assign: target agent %s: %w", newAgentID, err)
		}
		if target.ActiveLeadsCount >= model.MaxActiveLeadsPerAgent {
			return model.Assignment{}, model.ErrAgentOverloaded
		}
	} else {
		lead, err := m.leads.GetLead(ctx, leadID)
		if err != nil {
			return model.Assignment{}, fmt.Errorf("assign: load lead %s: %w", leadID, err)
		}
		// Re-run the full selection, current holder included. If the
		// algorithm still lands on the same agent the lead is already in
		// the best hands and the reassignment is rejected rather than
		// forced onto a worse match.
		agent, err := m.selectBestAgent(ctx, lead)
		if err != nil {
			return model.Assignment{}, err
		}
		if agent == nil || agent.ID == current {
			return model.Assignment{}, model.ErrNoAlternativeAgent
		}
		newAgentID = agent.ID
	}

	assignment, err := m.assignments.Reassign(ctx, leadID, current, newAgentID, reason)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assign: reassign lead %s: %w", leadID, err)
	}

	m.logger.Info("assign: lead reassigned",
		"lead_id", leadID, "from_agent", current, "to_agent", newAgentID, "reason", reason)
	m.assignTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "reassigned")))
	return assignment, nil
}

// selectBestAgent ranks the available agents against the lead and resolves
// score ties with the shared round-robin counter. A nil result with nil
// error means no candidate is below the cap.
func (m *Manager) selectBestAgent(ctx context.Context, lead model.Lead) (*model.Agent, error) {
	agents, err := m.agents.AvailableAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("assign: list available agents: %w", err)
	}

	var candidates []model.Agent
	for _, a := range agents {
		// The directory already filters by capacity, but the snapshot may
		// be stale by the time we rank it.
		if a.ActiveLeadsCount >= model.MaxActiveLeadsPerAgent {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := -1
	var group []model.Agent
	for _, a := range candidates {
		score := matchScore(a, lead)
		switch {
		case score > best:
			best = score
			group = []model.Agent{a}
		case score == best:
			group = append(group, a)
		}
	}

	if len(group) == 1 {
		return &group[0], nil
	}

	// Ties rotate through the tied group ordered by workload, so the least
	// busy agent is always first in the cycle.
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].ActiveLeadsCount != group[j].ActiveLeadsCount {
			return group[i].ActiveLeadsCount < group[j].ActiveLeadsCount
		}
		return group[i].ID.String() < group[j].ID.String()
	})

	tick := m.nextTick(ctx, fmt.Sprintf("%s%d", roundRobinKeyPrefix, best))
	idx := int((tick - 1) % int64(len(group)))
	return &group[idx], nil
}

// nextTick advances the rotation counter for key, preferring the shared
// scoreboard and falling back to the process-local counter on failure.
func (m *Manager) nextTick(ctx context.Context, key string) int64 {
	tick, err := m.scoreboard.Increment(ctx, key, m.counterTTL)
	if err == nil {
		return tick
	}

	m.logger.Warn("assign: scoreboard unavailable, using local rotation", "key", key, "error", err)
	m.fallbacks.Add(ctx, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[key]++
	return m.local[key]
}

// matchScore is the weighted specialization match between agent and lead.
func matchScore(agent model.Agent, lead model.Lead) int {
	score := 0
	if lead.PropertyType != "" && containsFold(agent.SpecializationPropertyTypes, lead.PropertyType) {
		score += weightPropertyType
	}
	if overlapsFold(agent.SpecializationAreas, lead.PreferredAreas) {
		score += weightAreaOverlap
	}
	if lead.LanguagePreference != "" && containsFold(agent.LanguageSkills, lead.LanguagePreference) {
		score += weightLanguage
	}
	if pm := agent.LatestMetric(); pm != nil && pm.ConversionRate != nil {
		switch rate := *pm.ConversionRate; {
		case rate >= 30:
			score += weightConversionHigh
		case rate >= 20:
			score += weightConversionMid
		case rate > 0:
			score += weightConversionLow
		}
	}
	return score
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func overlapsFold(a, b []string) bool {
	for _, v := range b {
		if containsFold(a, v) {
			return true
		}
	}
	return false
}
