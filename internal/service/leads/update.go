package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thinkrealty/leadflow/internal/model"
)

// followUpConflictWindow is how close two pending tasks for one agent may
// sit before the second is rejected as double-booking.
const followUpConflictWindow = 30 * time.Minute

// ActivityRecord is a recorded interaction submitted with an update. The
// acting agent is not part of the record: activities always belong to the
// lead's currently assigned agent.
type ActivityRecord struct {
	Type    model.ActivityType
	Outcome model.ActivityOutcome
	Notes   string
}

// FollowUpRequest schedules a new follow-up task with an update.
type FollowUpRequest struct {
	AgentID  uuid.UUID
	Type     model.ActivityType
	DueDate  time.Time
	Priority model.TaskPriority
}

// UpdateInput carries the optional pieces of a lead update. Absent pieces
// are skipped; present pieces apply in order: status, activity, follow-up.
type UpdateInput struct {
	LeadID   uuid.UUID
	Activity *ActivityRecord
	Status   *model.LeadStatus
	FollowUp *FollowUpRequest
}

// UpdateResult is the lead after the update, with whatever was created.
type UpdateResult struct {
	Lead     model.Lead
	Activity *model.Activity
	Task     *model.FollowUpTask
}

// Update applies an activity, a status transition, and/or a follow-up to an
// existing lead. The activity rescores the lead; an illegal status move or a
// double-booked follow-up rejects that piece with a sentinel error.
func (s *Service) Update(ctx context.Context, in UpdateInput) (UpdateResult, error) {
	lead, err := s.store.GetLead(ctx, in.LeadID)
	if err != nil {
		return UpdateResult{}, err
	}
	result := UpdateResult{Lead: lead}

	// Status moves first: an illegal transition rejects the whole update
	// before any activity lands.
	if in.Status != nil {
		if err := model.ValidateTransition(result.Lead.Status, *in.Status); err != nil {
			return UpdateResult{}, err
		}
		if err := s.store.UpdateLeadStatus(ctx, in.LeadID, *in.Status); err != nil {
			return UpdateResult{}, fmt.Errorf("leads: update status: %w", err)
		}
		result.Lead.Status = *in.Status
	}

	if in.Activity != nil {
		if err := s.applyActivity(ctx, &result, *in.Activity); err != nil {
			return UpdateResult{}, err
		}
	}

	if in.FollowUp != nil {
		if err := s.scheduleFollowUp(ctx, &result, *in.FollowUp); err != nil {
			return UpdateResult{}, err
		}
	}

	return result, nil
}

// applyActivity records the interaction under the lead's assigned agent and
// rescores the lead. An unassigned lead cannot log activity. The previous
// last-activity timestamp feeds the inactivity decay, so it is read before
// the new activity lands.
func (s *Service) applyActivity(ctx context.Context, result *UpdateResult, rec ActivityRecord) error {
	if !model.ValidActivityType(rec.Type) {
		return fmt.Errorf("%w: unknown activity type %q", model.ErrInvalidLeadData, rec.Type)
	}
	if !model.ValidActivityOutcome(rec.Outcome) {
		return fmt.Errorf("%w: unknown outcome %q", model.ErrInvalidLeadData, rec.Outcome)
	}

	agentID, err := s.store.AgentForLead(ctx, result.Lead.ID)
	if err != nil {
		if errors.Is(err, model.ErrNoAgentAssigned) {
			return fmt.Errorf("leads: record activity: %w", model.ErrNoAgentAssigned)
		}
		return fmt.Errorf("leads: assignment lookup: %w", err)
	}

	lastActivityAt, err := s.store.LastActivityAt(ctx, result.Lead.ID)
	if err != nil {
		return fmt.Errorf("leads: last activity: %w", err)
	}

	act, err := s.store.CreateActivity(ctx, model.Activity{
		LeadID:  result.Lead.ID,
		AgentID: agentID,
		Type:    rec.Type,
		Outcome: rec.Outcome,
		Notes:   rec.Notes,
	})
	if err != nil {
		return fmt.Errorf("leads: record activity: %w", err)
	}
	result.Activity = &act

	score, err := s.scorer.UpdateLeadScore(ctx, result.Lead.ID,
		model.ActivityInput{Type: rec.Type, Outcome: rec.Outcome}, lastActivityAt)
	if err != nil {
		return fmt.Errorf("leads: rescore: %w", err)
	}
	if err := s.store.UpdateLeadScore(ctx, result.Lead.ID, score); err != nil {
		return fmt.Errorf("leads: persist score: %w", err)
	}
	result.Lead.Score = score
	return nil
}

// scheduleFollowUp creates the task unless the agent already has a pending
// task within the conflict window.
func (s *Service) scheduleFollowUp(ctx context.Context, result *UpdateResult, req FollowUpRequest) error {
	conflicts, err := s.store.ConflictingTasks(ctx, req.AgentID, req.DueDate, followUpConflictWindow)
	if err != nil {
		return fmt.Errorf("leads: follow-up conflict check: %w", err)
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: agent %s has %d task(s) near %s",
			model.ErrFollowUpConflict, req.AgentID, len(conflicts), req.DueDate.Format(time.RFC3339))
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	task, err := s.store.CreateFollowUpTask(ctx, model.FollowUpTask{
		LeadID:   result.Lead.ID,
		AgentID:  req.AgentID,
		Type:     req.Type,
		DueDate:  req.DueDate,
		Priority: priority,
		Status:   model.TaskPending,
	})
	if err != nil {
		return fmt.Errorf("leads: schedule follow-up: %w", err)
	}
	result.Task = &task
	return nil
}

// Detail is a lead with its current assignment and open follow-ups.
type Detail struct {
	Lead    model.Lead
	AgentID uuid.UUID // uuid.Nil when unassigned
	Tasks   []model.FollowUpTask
}

// Get returns the lead with its assignment and pending follow-ups.
func (s *Service) Get(ctx context.Context, leadID uuid.UUID) (Detail, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{Lead: lead}
	agentID, err := s.store.AgentForLead(ctx, leadID)
	switch {
	case errors.Is(err, model.ErrNoAgentAssigned):
		// Unassigned is a valid state.
	case err != nil:
		return Detail{}, fmt.Errorf("leads: assignment lookup: %w", err)
	default:
		d.AgentID = agentID
	}

	tasks, err := s.store.PendingTasksForLead(ctx, leadID)
	if err != nil {
		return Detail{}, fmt.Errorf("leads: pending tasks: %w", err)
	}
	d.Tasks = tasks
	return d, nil
}

// Reassign moves the lead to the named agent, or to the best alternative
// when newAgentID is uuid.Nil. The lead must exist.
func (s *Service) Reassign(ctx context.Context, leadID, newAgentID uuid.UUID, reason string) (model.Assignment, error) {
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		return model.Assignment{}, err
	}
	if reason == "" {
		reason = "manual"
	}
	return s.assigner.ReassignLead(ctx, leadID, newAgentID, reason)
}
