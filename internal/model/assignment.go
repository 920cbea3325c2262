package model

import (
	"time"

	"github.com/google/uuid"
)

// Assignment links a lead to its current agent. One row per lead; a
// reassignment updates the row in place and stamps ReassignedAt.
type Assignment struct {
	ID           uuid.UUID  `json:"assignment_id"`
	LeadID       uuid.UUID  `json:"lead_id"`
	AgentID      uuid.UUID  `json:"agent_id"`
	AssignedAt   time.Time  `json:"assigned_at"`
	ReassignedAt *time.Time `json:"reassigned_at,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// TaskPriority for follow-up tasks.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// TaskStatus for follow-up tasks.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskOverdue   TaskStatus = "overdue"
)

// FollowUpTask schedules the next touch-point on a lead.
type FollowUpTask struct {
	ID       uuid.UUID    `json:"task_id"`
	LeadID   uuid.UUID    `json:"lead_id"`
	AgentID  uuid.UUID    `json:"agent_id"`
	Type     ActivityType `json:"type"`
	DueDate  time.Time    `json:"due_date"`
	Priority TaskPriority `json:"priority"`
	Status   TaskStatus   `json:"status"`
}
