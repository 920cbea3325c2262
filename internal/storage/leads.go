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

// CreateLead inserts a lead and its source details in one transaction.
func (db *DB) CreateLead(ctx context.Context, lead model.Lead, src model.SourceDetails) (model.Lead, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Lead{}, fmt.Errorf("storage: begin create lead: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO leads (id, source_type, first_name, last_name, email, phone,
		 nationality, language_preference, budget_min, budget_max, property_type,
		 preferred_areas, status, score, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		lead.ID, lead.SourceType, lead.FirstName, lead.LastName, lead.Email, lead.Phone,
		lead.Nationality, lead.LanguagePreference, lead.BudgetMin, lead.BudgetMax,
		lead.PropertyType, lead.PreferredAreas, lead.Status, lead.Score,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return model.Lead{}, fmt.Errorf("storage: create lead: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO lead_sources (id, lead_id, source_type, campaign_id,
		 referrer_agent_id, property_id, utm_source, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), lead.ID, src.SourceType, src.CampaignID,
		src.ReferrerAgentID, src.PropertyID, src.UTMSource, now,
	)
	if err != nil {
		return model.Lead{}, fmt.Errorf("storage: create lead source: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Lead{}, fmt.Errorf("storage: commit create lead: %w", err)
	}
	return lead, nil
}

// GetLead retrieves a lead by ID.
func (db *DB) GetLead(ctx context.Context, id uuid.UUID) (model.Lead, error) {
	var l model.Lead
	err := db.pool.QueryRow(ctx,
		`SELECT id, source_type, first_name, last_name, email, phone, nationality,
		 language_preference, budget_min, budget_max, property_type, preferred_areas,
		 status, score, created_at, updated_at
		 FROM leads WHERE id = $1`, id,
	).Scan(
		&l.ID, &l.SourceType, &l.FirstName, &l.LastName, &l.Email, &l.Phone,
		&l.Nationality, &l.LanguagePreference, &l.BudgetMin, &l.BudgetMax,
		&l.PropertyType, &l.PreferredAreas, &l.Status, &l.Score,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Lead{}, model.ErrLeadNotFound
		}
		return model.Lead{}, fmt.Errorf("storage: get lead: %w", err)
	}
	return l, nil
}

// UpdateLeadScore persists a recomputed score.
func (db *DB) UpdateLeadScore(ctx context.Context, id uuid.UUID, score int) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE leads SET score = $2, updated_at = now() WHERE id = $1`, id, score,
	)
	if err != nil {
		return fmt.Errorf("storage: update lead score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrLeadNotFound
	}
	return nil
}

// UpdateLeadStatus persists a status change. Transition legality is the
// service layer's call; this just writes.
func (db *DB) UpdateLeadStatus(ctx context.Context, id uuid.UUID, status model.LeadStatus) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE leads SET status = $2, updated_at = now() WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("storage: update lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrLeadNotFound
	}
	return nil
}

// FindRecentLead returns the ID of a lead captured within the window that
// shares the email or phone, used as the durable duplicate check behind the
// cache. Empty contact fields never match: leads captured with only a phone
// must not collide on their blank emails. The second result is false when no
// duplicate exists.
func (db *DB) FindRecentLead(ctx context.Context, email, phone string, window time.Duration) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM leads
		 WHERE (($1 <> '' AND email = $1) OR ($2 <> '' AND phone = $2))
		 AND created_at > now() - $3::interval
		 ORDER BY created_at DESC
		 LIMIT 1`,
		email, phone, window,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("storage: find recent lead: %w", err)
	}
	return id, true, nil
}
