package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thinkrealty/leadflow/internal/model"
)

// CreateFollowUpTask schedules a follow-up on a lead.
func (db *DB) CreateFollowUpTask(ctx context.Context, task model.FollowUpTask) (model.FollowUpTask, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = model.TaskPending
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO follow_up_tasks (id, lead_id, agent_id, task_type, due_date, priority, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.LeadID, task.AgentID, task.Type, task.DueDate, task.Priority, task.Status,
	)
	if err != nil {
		return model.FollowUpTask{}, fmt.Errorf("storage: create follow-up task: %w", err)
	}
	return task, nil
}

// ConflictingTasks returns the agent's pending tasks due within the window
// around due. Used to reject double-booked follow-ups.
func (db *DB) ConflictingTasks(ctx context.Context, agentID uuid.UUID, due time.Time, window time.Duration) ([]model.FollowUpTask, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, lead_id, agent_id, task_type, due_date, priority, status
		 FROM follow_up_tasks
		 WHERE agent_id = $1
		 AND status = 'pending'
		 AND due_date BETWEEN $2 AND $3
		 ORDER BY due_date ASC`,
		agentID, due.Add(-window), due.Add(window),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: conflicting tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.FollowUpTask
	for rows.Next() {
		var t model.FollowUpTask
		if err := rows.Scan(&t.ID, &t.LeadID, &t.AgentID, &t.Type, &t.DueDate, &t.Priority, &t.Status); err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PendingTasksForLead returns the lead's open follow-ups, soonest first.
func (db *DB) PendingTasksForLead(ctx context.Context, leadID uuid.UUID) ([]model.FollowUpTask, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, lead_id, agent_id, task_type, due_date, priority, status
		 FROM follow_up_tasks
		 WHERE lead_id = $1 AND status = 'pending'
		 ORDER BY due_date ASC`, leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.FollowUpTask
	for rows.Next() {
		var t model.FollowUpTask
		if err := rows.Scan(&t.ID, &t.LeadID, &t.AgentID, &t.Type, &t.DueDate, &t.Priority, &t.Status); err != nil {
			return nil, fmt.Errorf("storage: scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
