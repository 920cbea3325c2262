package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thinkrealty/leadflow/internal/model"
)

// CreateAssignment inserts the lead's assignment and bumps the agent's
// workload in one transaction. The capacity trigger can reject the bump, in
// which case nothing is persisted and model.ErrAgentOverloaded is returned.
func (db *DB) CreateAssignment(ctx context.Context, leadID, agentID uuid.UUID, reason string) (model.Assignment, error) {
	a := model.Assignment{
		ID:         uuid.New(),
		LeadID:     leadID,
		AgentID:    agentID,
		AssignedAt: time.Now().UTC(),
		Reason:     reason,
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("storage: begin assignment: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := incrementActiveLeads(ctx, tx, agentID); err != nil {
		return model.Assignment{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO lead_assignments (id, lead_id, agent_id, assigned_at, reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.LeadID, a.AgentID, a.AssignedAt, a.Reason,
	)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("storage: create assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Assignment{}, fmt.Errorf("storage: commit assignment: %w", err)
	}
	return a, nil
}

// AgentForLead returns the agent currently holding the lead, or
// model.ErrNoAgentAssigned when the lead is unassigned.
func (db *DB) AgentForLead(ctx context.Context, leadID uuid.UUID) (uuid.UUID, error) {
	var agentID uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT agent_id FROM lead_assignments WHERE lead_id = $1`, leadID,
	).Scan(&agentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, model.ErrNoAgentAssigned
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: agent for lead: %w", err)
	}
	return agentID, nil
}

// GetAssignment returns the lead's current assignment record.
func (db *DB) GetAssignment(ctx context.Context, leadID uuid.UUID) (model.Assignment, error) {
	var a model.Assignment
	err := db.pool.QueryRow(ctx,
		`SELECT id, lead_id, agent_id, assigned_at, reassigned_at, reason
		 FROM lead_assignments WHERE lead_id = $1`, leadID,
	).Scan(&a.ID, &a.LeadID, &a.AgentID, &a.AssignedAt, &a.ReassignedAt, &a.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Assignment{}, model.ErrAssignmentNotFound
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("storage: get assignment: %w", err)
	}
	return a, nil
}

// Reassign atomically moves a lead between agents: the assignment row is
// rewritten and both workload counters adjust in the same transaction, so a
// capacity rejection on the new agent leaves everything untouched.
// Serialization conflicts are retried by the caller via WithRetry.
func (db *DB) Reassign(ctx context.Context, leadID, fromAgent, toAgent uuid.UUID, reason string) (model.Assignment, error) {
	now := time.Now().UTC()

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("storage: begin reassign: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := incrementActiveLeads(ctx, tx, toAgent); err != nil {
		return model.Assignment{}, err
	}
	if err := decrementActiveLeads(ctx, tx, fromAgent); err != nil {
		return model.Assignment{}, err
	}

	var a model.Assignment
	err = tx.QueryRow(ctx,
		`UPDATE lead_assignments
		 SET agent_id = $2, reassigned_at = $3, reason = $4
		 WHERE lead_id = $1 AND agent_id = $5
		 RETURNING id, lead_id, agent_id, assigned_at, reassigned_at, reason`,
		leadID, toAgent, now, reason, fromAgent,
	).Scan(&a.ID, &a.LeadID, &a.AgentID, &a.AssignedAt, &a.ReassignedAt, &a.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		// The assignment changed under us; the caller retries or gives up.
		return model.Assignment{}, model.ErrAssignmentNotFound
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("storage: reassign lead: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Assignment{}, fmt.Errorf("storage: commit reassign: %w", err)
	}
	return a, nil
}

// StaleAssignedLeads returns leads still in play that were assigned more
// than olderThan ago and have had zero activity since the assignment. An
// agent who responded at all, however long ago, keeps the lead. Feeds the
// periodic auto-reassignment sweep.
func (db *DB) StaleAssignedLeads(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT la.lead_id
		 FROM lead_assignments la
		 JOIN leads l ON l.id = la.lead_id
		 WHERE l.status NOT IN ('converted', 'lost')
		 AND la.assigned_at < now() - $1::interval
		 AND NOT EXISTS (
		     SELECT 1 FROM lead_activities a
		     WHERE a.lead_id = la.lead_id
		     AND a.activity_at >= la.assigned_at
		 )
		 ORDER BY la.assigned_at ASC
		 LIMIT $2`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: stale assigned leads: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan stale lead: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
