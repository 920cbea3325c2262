package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thinkrealty/leadflow/internal/model"
)

// GetAgent retrieves an agent by ID, including performance metrics.
func (db *DB) GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error) {
	var a model.Agent
	err := db.pool.QueryRow(ctx,
		`SELECT id, full_name, email, phone, specialization_property_types,
		 specialization_areas, language_skills, active_leads_count, created_at, updated_at
		 FROM agents WHERE id = $1`, id,
	).Scan(
		&a.ID, &a.FullName, &a.Email, &a.Phone, &a.SpecializationPropertyTypes,
		&a.SpecializationAreas, &a.LanguageSkills, &a.ActiveLeadsCount,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, model.ErrAgentNotFound
		}
		return model.Agent{}, fmt.Errorf("storage: get agent: %w", err)
	}

	metrics, err := db.agentMetrics(ctx, []uuid.UUID{a.ID})
	if err != nil {
		return model.Agent{}, err
	}
	a.Metrics = metrics[a.ID]
	return a, nil
}

// AvailableAgents returns every agent below the workload cap, with their
// performance metrics attached for ranking.
func (db *DB) AvailableAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, full_name, email, phone, specialization_property_types,
		 specialization_areas, language_skills, active_leads_count, created_at, updated_at
		 FROM agents
		 WHERE active_leads_count < $1
		 ORDER BY active_leads_count ASC, id ASC`,
		model.MaxActiveLeadsPerAgent,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list available agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	var ids []uuid.UUID
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(
			&a.ID, &a.FullName, &a.Email, &a.Phone, &a.SpecializationPropertyTypes,
			&a.SpecializationAreas, &a.LanguageSkills, &a.ActiveLeadsCount,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan agent: %w", err)
		}
		agents = append(agents, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate agents: %w", err)
	}

	metrics, err := db.agentMetrics(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		agents[i].Metrics = metrics[agents[i].ID]
	}
	return agents, nil
}

// agentMetrics loads performance metrics for the given agents in one query.
func (db *DB) agentMetrics(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]model.PerformanceMetric, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, agent_id, conversion_rate, average_deal_size, average_response_hours,
		 leads_handled, updated_at
		 FROM agent_performance_metrics
		 WHERE agent_id = ANY($1)
		 ORDER BY updated_at DESC`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load agent metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]model.PerformanceMetric)
	for rows.Next() {
		var m model.PerformanceMetric
		if err := rows.Scan(&m.ID, &m.AgentID, &m.ConversionRate, &m.AvgDealSize, &m.AvgResponse, &m.LeadsHandled, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan metric: %w", err)
		}
		out[m.AgentID] = append(out[m.AgentID], m)
	}
	return out, rows.Err()
}

// incrementActiveLeads bumps an agent's workload inside tx. The capacity
// CHECK and trigger reject increments past the cap; those rejections come
// back as model.ErrAgentOverloaded.
func incrementActiveLeads(ctx context.Context, tx pgx.Tx, agentID uuid.UUID) error {
	tag, err := tx.Exec(ctx,
		`UPDATE agents SET active_leads_count = active_leads_count + 1, updated_at = now()
		 WHERE id = $1`, agentID,
	)
	if err != nil {
		return translateCapacity(fmt.Errorf("storage: increment workload: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAgentNotFound
	}
	return nil
}

// decrementActiveLeads lowers an agent's workload inside tx, floored at zero.
func decrementActiveLeads(ctx context.Context, tx pgx.Tx, agentID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE agents SET active_leads_count = GREATEST(active_leads_count - 1, 0), updated_at = now()
		 WHERE id = $1`, agentID,
	)
	if err != nil {
		return fmt.Errorf("storage: decrement workload: %w", err)
	}
	return nil
}
