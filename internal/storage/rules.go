package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thinkrealty/leadflow/internal/model"
)

// ActiveRules loads every active scoring rule. The condition column is JSONB
// and unmarshals through model.RuleCondition, which tolerates unknown kinds.
func (db *DB) ActiveRules(ctx context.Context) ([]model.ScoringRule, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, rule_name, score_adjustment, condition, created_at
		 FROM lead_scoring_rules
		 WHERE is_active
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load scoring rules: %w", err)
	}
	defer rows.Close()

	var rules []model.ScoringRule
	for rows.Next() {
		var r model.ScoringRule
		if err := rows.Scan(&r.ID, &r.Name, &r.Adjustment, &r.Condition, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan scoring rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// SeedDefaultRules inserts the canonical rule set if the table is empty.
// Idempotent: a populated table is left exactly as is, so operator edits
// survive restarts.
func (db *DB) SeedDefaultRules(ctx context.Context) error {
	var count int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM lead_scoring_rules`).Scan(&count); err != nil {
		return fmt.Errorf("storage: count scoring rules: %w", err)
	}
	if count > 0 {
		db.logger.Debug("scoring rules already seeded", "count", count)
		return nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin rule seed: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range model.DefaultScoringRules {
		if _, err := tx.Exec(ctx,
			`INSERT INTO lead_scoring_rules (id, rule_name, score_adjustment, condition, is_active, created_at)
			 VALUES ($1, $2, $3, $4, TRUE, $5)`,
			uuid.New(), r.Name, r.Adjustment, r.Condition, now,
		); err != nil {
			return fmt.Errorf("storage: seed rule %q: %w", r.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit rule seed: %w", err)
	}
	db.logger.Info("seeded default scoring rules", "count", len(model.DefaultScoringRules))
	return nil
}
