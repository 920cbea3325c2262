package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thinkrealty/leadflow/internal/model"
)

// duplicateKeyPrefix namespaces the fast-path duplicate markers in the cache.
const duplicateKeyPrefix = "lead-duplicate:"

// followUpDue is how soon the automatic first follow-up call is scheduled.
const followUpDue = 24 * time.Hour

// hotLeadThreshold marks the score above which the first follow-up is
// high priority.
const hotLeadThreshold = 80

// CaptureInput is a new lead plus its source attribution.
type CaptureInput struct {
	Lead   model.Lead
	Source model.SourceDetails
}

// CaptureResult is the persisted lead and what happened downstream.
type CaptureResult struct {
	Lead       model.Lead
	AgentID    uuid.UUID
	Assignment *model.Assignment
	Task       *model.FollowUpTask
}

// Capture runs the full intake pipeline: validate, reject duplicates, score,
// assign, persist, and schedule the first follow-up.
//
// Scoring degrades rather than fails (an unreachable rule store yields the
// neutral score), but assignment does not: a fully loaded agent pool rejects
// the capture with model.ErrAgentOverloaded before anything is written.
func (s *Service) Capture(ctx context.Context, in CaptureInput) (CaptureResult, error) {
	if err := model.ValidateLead(in.Lead); err != nil {
		return CaptureResult{}, err
	}

	if err := s.checkDuplicate(ctx, in.Lead.Email, in.Lead.Phone); err != nil {
		s.duplicates.Add(ctx, 1)
		return CaptureResult{}, err
	}

	in.Lead.Score = s.scorer.CalculateInitialScore(ctx, in.Lead, in.Source)
	in.Lead.Status = model.StatusNew

	agentID, err := s.assigner.AssignLead(ctx, in.Lead)
	if err != nil {
		if errors.Is(err, model.ErrAgentOverloaded) {
			s.countCapture(ctx, "overloaded")
		}
		return CaptureResult{}, fmt.Errorf("leads: assign: %w", err)
	}

	lead, err := s.store.CreateLead(ctx, in.Lead, in.Source)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("leads: persist lead: %w", err)
	}

	result := CaptureResult{Lead: lead}

	assignment, err := s.store.CreateAssignment(ctx, lead.ID, agentID, "initial")
	switch {
	case errors.Is(err, model.ErrAgentOverloaded):
		// The snapshot went stale between selection and persistence and the
		// workload trigger rejected the insert. The lead row stands for a
		// retry, but the capture itself reports the overload.
		s.logger.Warn("leads: selected agent filled up between selection and persistence",
			"lead_id", lead.ID, "agent_id", agentID)
		s.countCapture(ctx, "capacity_race")
		return CaptureResult{}, fmt.Errorf("leads: persist assignment: %w", err)
	case err != nil:
		return CaptureResult{}, fmt.Errorf("leads: persist assignment: %w", err)
	}

	result.AgentID = agentID
	result.Assignment = &assignment
	s.countCapture(ctx, "assigned")
	s.scheduleFirstFollowUp(ctx, &result)

	s.markDuplicate(ctx, lead.Email, lead.Phone)

	s.logger.Info("leads: lead captured",
		"lead_id", lead.ID, "source", lead.SourceType, "score", lead.Score, "agent_id", result.AgentID)
	return result, nil
}

// checkDuplicate consults the cache first, then the durable store. A cache
// failure falls through to the database rather than letting duplicates in.
func (s *Service) checkDuplicate(ctx context.Context, email, phone string) error {
	key := duplicateKey(email, phone)
	if _, found, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("leads: duplicate cache unavailable, falling back to database", "error", err)
	} else if found {
		return model.ErrDuplicateLead
	}

	if _, found, err := s.store.FindRecentLead(ctx, email, phone, s.duplicateWindow); err != nil {
		return fmt.Errorf("leads: duplicate check: %w", err)
	} else if found {
		return model.ErrDuplicateLead
	}
	return nil
}

// markDuplicate records the capture in the cache so the next attempt inside
// the window short-circuits. Best effort: the database check still backstops.
func (s *Service) markDuplicate(ctx context.Context, email, phone string) {
	if err := s.cache.Set(ctx, duplicateKey(email, phone), "1", s.duplicateWindow); err != nil {
		s.logger.Warn("leads: duplicate marker not cached", "error", err)
	}
}

// scheduleFirstFollowUp creates the automatic intake call for a freshly
// assigned lead. Failure is logged, not raised: the assignment stands.
func (s *Service) scheduleFirstFollowUp(ctx context.Context, result *CaptureResult) {
	priority := model.PriorityMedium
	if result.Lead.Score >= hotLeadThreshold {
		priority = model.PriorityHigh
	}
	task, err := s.store.CreateFollowUpTask(ctx, model.FollowUpTask{
		LeadID:   result.Lead.ID,
		AgentID:  result.AgentID,
		Type:     model.ActivityCall,
		DueDate:  time.Now().UTC().Add(followUpDue),
		Priority: priority,
		Status:   model.TaskPending,
	})
	if err != nil {
		s.logger.Warn("leads: first follow-up not scheduled", "lead_id", result.Lead.ID, "error", err)
		return
	}
	result.Task = &task
}

func duplicateKey(email, phone string) string {
	return duplicateKeyPrefix + email + ":" + phone
}
