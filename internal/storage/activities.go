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

// CreateActivity records an interaction on a lead.
func (db *DB) CreateActivity(ctx context.Context, act model.Activity) (model.Activity, error) {
	if act.ID == uuid.Nil {
		act.ID = uuid.New()
	}
	if act.ActivityAt.IsZero() {
		act.ActivityAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO lead_activities (id, lead_id, agent_id, activity_type, outcome, notes, activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		act.ID, act.LeadID, act.AgentID, act.Type, act.Outcome, act.Notes, act.ActivityAt,
	)
	if err != nil {
		return model.Activity{}, fmt.Errorf("storage: create activity: %w", err)
	}
	return act, nil
}

// FirstContactActivity returns the earliest outbound-contact activity for
// the lead, or nil if the lead has not been contacted yet.
func (db *DB) FirstContactActivity(ctx context.Context, leadID uuid.UUID) (*model.Activity, error) {
	var a model.Activity
	err := db.pool.QueryRow(ctx,
		`SELECT id, lead_id, agent_id, activity_type, outcome, notes, activity_at
		 FROM lead_activities
		 WHERE lead_id = $1 AND activity_type IN ('call', 'email', 'whatsapp', 'meeting')
		 ORDER BY activity_at ASC
		 LIMIT 1`, leadID,
	).Scan(&a.ID, &a.LeadID, &a.AgentID, &a.Type, &a.Outcome, &a.Notes, &a.ActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: first contact activity: %w", err)
	}
	return &a, nil
}

// ActivityCount returns the number of recorded activities for the lead.
func (db *DB) ActivityCount(ctx context.Context, leadID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM lead_activities WHERE lead_id = $1`, leadID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: activity count: %w", err)
	}
	return n, nil
}

// LastActivityAt returns the timestamp of the most recent activity, or nil
// when the lead has none.
func (db *DB) LastActivityAt(ctx context.Context, leadID uuid.UUID) (*time.Time, error) {
	var at time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT activity_at FROM lead_activities
		 WHERE lead_id = $1
		 ORDER BY activity_at DESC
		 LIMIT 1`, leadID,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: last activity: %w", err)
	}
	return &at, nil
}
