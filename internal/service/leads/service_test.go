package leads

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinkrealty/leadflow/internal/cache"
	"github.com/thinkrealty/leadflow/internal/model"
)

type fakeStore struct {
	leads       map[uuid.UUID]model.Lead
	assignments map[uuid.UUID]uuid.UUID
	activities  []model.Activity
	tasks       []model.FollowUpTask
	stale       []uuid.UUID

	duplicateID   uuid.UUID
	hasDuplicate  bool
	lastActivity  *time.Time
	createLeadErr error
	assignErr     error
	conflicts     []model.FollowUpTask
	conflictsErr  error
	createTaskErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads:       make(map[uuid.UUID]model.Lead),
		assignments: make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeStore) CreateLead(_ context.Context, lead model.Lead, _ model.SourceDetails) (model.Lead, error) {
	if f.createLeadErr != nil {
		return model.Lead{}, f.createLeadErr
	}
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	lead.CreatedAt = time.Now().UTC()
	f.leads[lead.ID] = lead
	return lead, nil
}

func (f *fakeStore) GetLead(_ context.Context, id uuid.UUID) (model.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return model.Lead{}, model.ErrLeadNotFound
	}
	return lead, nil
}

func (f *fakeStore) UpdateLeadScore(_ context.Context, id uuid.UUID, score int) error {
	lead, ok := f.leads[id]
	if !ok {
		return model.ErrLeadNotFound
	}
	lead.Score = score
	f.leads[id] = lead
	return nil
}

func (f *fakeStore) UpdateLeadStatus(_ context.Context, id uuid.UUID, status model.LeadStatus) error {
	lead, ok := f.leads[id]
	if !ok {
		return model.ErrLeadNotFound
	}
	lead.Status = status
	f.leads[id] = lead
	return nil
}

func (f *fakeStore) FindRecentLead(context.Context, string, string, time.Duration) (uuid.UUID, bool, error) {
	return f.duplicateID, f.hasDuplicate, nil
}

func (f *fakeStore) CreateAssignment(_ context.Context, leadID, agentID uuid.UUID, _ string) (model.Assignment, error) {
	if f.assignErr != nil {
		return model.Assignment{}, f.assignErr
	}
	f.assignments[leadID] = agentID
	return model.Assignment{ID: uuid.New(), LeadID: leadID, AgentID: agentID, AssignedAt: time.Now()}, nil
}

func (f *fakeStore) AgentForLead(_ context.Context, leadID uuid.UUID) (uuid.UUID, error) {
	agentID, ok := f.assignments[leadID]
	if !ok {
		return uuid.Nil, model.ErrNoAgentAssigned
	}
	return agentID, nil
}

func (f *fakeStore) CreateActivity(_ context.Context, act model.Activity) (model.Activity, error) {
	if act.ID == uuid.Nil {
		act.ID = uuid.New()
	}
	act.ActivityAt = time.Now().UTC()
	f.activities = append(f.activities, act)
	return act, nil
}

func (f *fakeStore) LastActivityAt(context.Context, uuid.UUID) (*time.Time, error) {
	return f.lastActivity, nil
}

func (f *fakeStore) CreateFollowUpTask(_ context.Context, task model.FollowUpTask) (model.FollowUpTask, error) {
	if f.createTaskErr != nil {
		return model.FollowUpTask{}, f.createTaskErr
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	f.tasks = append(f.tasks, task)
	return task, nil
}

func (f *fakeStore) ConflictingTasks(context.Context, uuid.UUID, time.Time, time.Duration) ([]model.FollowUpTask, error) {
	return f.conflicts, f.conflictsErr
}

func (f *fakeStore) PendingTasksForLead(_ context.Context, leadID uuid.UUID) ([]model.FollowUpTask, error) {
	var out []model.FollowUpTask
	for _, t := range f.tasks {
		if t.LeadID == leadID && t.Status == model.TaskPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) StaleAssignedLeads(context.Context, time.Duration, int) ([]uuid.UUID, error) {
	return f.stale, nil
}

type fakeScorer struct {
	initial int
	updated int
	err     error
}

func (f *fakeScorer) CalculateInitialScore(context.Context, model.Lead, model.SourceDetails) int {
	return f.initial
}

func (f *fakeScorer) UpdateLeadScore(context.Context, uuid.UUID, model.ActivityInput, *time.Time) (int, error) {
	return f.updated, f.err
}

type fakeAssigner struct {
	agentID   uuid.UUID
	assignErr error

	mu           sync.Mutex // sweep reassigns concurrently
	reassigned   []uuid.UUID
	reassignErr  error
	lastReason   string
	lastNewAgent uuid.UUID
}

func (f *fakeAssigner) AssignLead(context.Context, model.Lead) (uuid.UUID, error) {
	return f.agentID, f.assignErr
}

func (f *fakeAssigner) ReassignLead(_ context.Context, leadID, newAgentID uuid.UUID, reason string) (model.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reassignErr != nil {
		return model.Assignment{}, f.reassignErr
	}
	f.reassigned = append(f.reassigned, leadID)
	f.lastReason = reason
	f.lastNewAgent = newAgentID
	return model.Assignment{ID: uuid.New(), LeadID: leadID, AgentID: newAgentID}, nil
}

func newTestService(store *fakeStore, scorer *fakeScorer, assigner *fakeAssigner) *Service {
	return New(store, scorer, assigner, cache.NewMemory(), 24*time.Hour, slog.New(slog.DiscardHandler))
}

func validCapture() CaptureInput {
	return CaptureInput{
		Lead: model.Lead{
			SourceType: model.SourceWebsite,
			FirstName:  "Sara",
			LastName:   "Ali",
			Email:      "sara@example.com",
			Phone:      "+971501112223",
		},
		Source: model.SourceDetails{SourceType: model.SourceWebsite},
	}
}

func TestCaptureAssignsAndSchedules(t *testing.T) {
	store := newFakeStore()
	agentID := uuid.New()
	svc := newTestService(store, &fakeScorer{initial: 85}, &fakeAssigner{agentID: agentID})

	result, err := svc.Capture(context.Background(), validCapture())
	require.NoError(t, err)

	assert.Equal(t, 85, result.Lead.Score)
	assert.Equal(t, model.StatusNew, result.Lead.Status)
	assert.Equal(t, agentID, result.AgentID)
	require.NotNil(t, result.Assignment)
	require.NotNil(t, result.Task)
	assert.Equal(t, model.PriorityHigh, result.Task.Priority, "score 85 is a hot lead")
	assert.Equal(t, model.ActivityCall, result.Task.Type)
}

func TestCaptureMediumScoreGetsMediumPriority(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeScorer{initial: 60}, &fakeAssigner{agentID: uuid.New()})

	result, err := svc.Capture(context.Background(), validCapture())
	require.NoError(t, err)
	require.NotNil(t, result.Task)
	assert.Equal(t, model.PriorityMedium, result.Task.Priority)
}

func TestCaptureInvalidLead(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeScorer{}, &fakeAssigner{})

	in := validCapture()
	lo, hi := int64(5_000_000), int64(1_000_000)
	in.Lead.BudgetMin, in.Lead.BudgetMax = &lo, &hi

	_, err := svc.Capture(context.Background(), in)
	assert.ErrorIs(t, err, model.ErrInvalidLeadData)
}

func TestCaptureDuplicateFromStore(t *testing.T) {
	store := newFakeStore()
	store.hasDuplicate = true
	store.duplicateID = uuid.New()
	svc := newTestService(store, &fakeScorer{initial: 50}, &fakeAssigner{})

	_, err := svc.Capture(context.Background(), validCapture())
	assert.ErrorIs(t, err, model.ErrDuplicateLead)
	assert.Empty(t, store.leads, "duplicate must not be persisted")
}

func TestCaptureDuplicateFromCache(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeScorer{initial: 50}, &fakeAssigner{agentID: uuid.New()})
	ctx := context.Background()

	_, err := svc.Capture(ctx, validCapture())
	require.NoError(t, err)

	// Second capture with identical contact details hits the cache marker.
	_, err = svc.Capture(ctx, validCapture())
	assert.ErrorIs(t, err, model.ErrDuplicateLead)
}

func TestCaptureNoAgentAvailable(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeScorer{initial: 70}, &fakeAssigner{assignErr: model.ErrAgentOverloaded})

	_, err := svc.Capture(context.Background(), validCapture())
	assert.ErrorIs(t, err, model.ErrAgentOverloaded)
	assert.Empty(t, store.leads, "nothing is persisted when the pool is full")
	assert.Empty(t, store.tasks)
}

func TestCaptureCapacityRaceSurfacesOverload(t *testing.T) {
	// The selected agent fills up between selection and the assignment
	// insert. The rejection must reach the caller, not vanish.
	store := newFakeStore()
	store.assignErr = model.ErrAgentOverloaded
	svc := newTestService(store, &fakeScorer{initial: 70}, &fakeAssigner{agentID: uuid.New()})

	_, err := svc.Capture(context.Background(), validCapture())
	assert.ErrorIs(t, err, model.ErrAgentOverloaded)
	assert.Len(t, store.leads, 1, "the lead row stands for a retry")
	assert.Empty(t, store.tasks, "no follow-up without an assignment")
}

func TestUpdateActivityRescores(t *testing.T) {
	store := newFakeStore()
	lead, _ := store.CreateLead(context.Background(), model.Lead{Status: model.StatusContacted, Score: 50}, model.SourceDetails{})
	agentID := uuid.New()
	store.assignments[lead.ID] = agentID
	svc := newTestService(store, &fakeScorer{updated: 65}, &fakeAssigner{})

	result, err := svc.Update(context.Background(), UpdateInput{
		LeadID: lead.ID,
		Activity: &ActivityRecord{
			Type:    model.ActivityViewing,
			Outcome: model.OutcomePositive,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 65, result.Lead.Score)
	require.NotNil(t, result.Activity)
	require.Len(t, store.activities, 1)
	assert.Equal(t, agentID, store.activities[0].AgentID, "activity lands on the assigned agent")
	assert.Equal(t, 65, store.leads[lead.ID].Score)
}

func TestUpdateActivityOnUnassignedLead(t *testing.T) {
	store := newFakeStore()
	lead, _ := store.CreateLead(context.Background(), model.Lead{Status: model.StatusContacted, Score: 50}, model.SourceDetails{})
	svc := newTestService(store, &fakeScorer{updated: 65}, &fakeAssigner{})

	_, err := svc.Update(context.Background(), UpdateInput{
		LeadID: lead.ID,
		Activity: &ActivityRecord{
			Type:    model.ActivityCall,
			Outcome: model.OutcomeNeutral,
		},
	})
	assert.ErrorIs(t, err, model.ErrNoAgentAssigned)
	assert.Empty(t, store.activities)
}

func TestUpdateStatusTransition(t *testing.T) {
	store := newFakeStore()
	lead, _ := store.CreateLead(context.Background(), model.Lead{Status: model.StatusNew, Score: 50}, model.SourceDetails{})
	svc := newTestService(store, &fakeScorer{}, &fakeAssigner{})

	next := model.StatusContacted
	result, err := svc.Update(context.Background(), UpdateInput{LeadID: lead.ID, Status: &next})
	require.NoError(t, err)
	assert.Equal(t, model.StatusContacted, result.Lead.Status)

	// Skipping straight to negotiation is not a legal move from contacted.
	bad := model.StatusNegotiation
	_, err = svc.Update(context.Background(), UpdateInput{LeadID: lead.ID, Status: &bad})
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
	assert.Equal(t, model.StatusContacted, store.leads[lead.ID].Status, "rejected move changes nothing")
}

func TestUpdateIllegalStatusBlocksActivity(t *testing.T) {
	// Status moves first: a rejected transition aborts the whole update
	// before any activity is recorded.
	store := newFakeStore()
	lead, _ := store.CreateLead(context.Background(), model.Lead{Status: model.StatusNew, Score: 50}, model.SourceDetails{})
	store.assignments[lead.ID] = uuid.New()
	svc := newTestService(store, &fakeScorer{updated: 60}, &fakeAssigner{})

	bad := model.StatusNegotiation
	_, err := svc.Update(context.Background(), UpdateInput{
		LeadID: lead.ID,
		Status: &bad,
		Activity: &ActivityRecord{
			Type:    model.ActivityCall,
			Outcome: model.OutcomePositive,
		},
	})
	assert.ErrorIs(t, err, model.ErrInvalidStatusTransition)
	assert.Empty(t, store.activities)
	assert.Equal(t, model.StatusNew, store.leads[lead.ID].Status)
}

func TestUpdateUnknownLead(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeScorer{}, &fakeAssigner{})

	next := model.StatusContacted
	_, err := svc.Update(context.Background(), UpdateInput{LeadID: uuid.New(), Status: &next})
	assert.ErrorIs(t, err, model.ErrLeadNotFound)
}

func TestUpdateFollowUpConflict(t *testing.T) {
	store := newFakeStore()
	lead, _ := store.CreateLead(context.Background(), model.Lead{Status: model.StatusQualified}, model.SourceDetails{})
	store.conflicts = []model.FollowUpTask{{ID: uuid.New()}}
	svc := newTestService(store, &fakeScorer{}, &fakeAssigner{})

	_, err := svc.Update(context.Background(), UpdateInput{
		LeadID: lead.ID,
		FollowUp: &FollowUpRequest{
			AgentID: uuid.New(),
			Type:    model.ActivityViewing,
			DueDate: time.Now().Add(24 * time.Hour),
		},
	})
	assert.ErrorIs(t, err, model.ErrFollowUpConflict)
	assert.Empty(t, store.tasks)
}

func TestReassignUnknownLead(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeScorer{}, &fakeAssigner{})

	_, err := svc.Reassign(context.Background(), uuid.New(), uuid.New(), "manual")
	assert.ErrorIs(t, err, model.ErrLeadNotFound)
}

func TestReassignDefaultsReason(t *testing.T) {
	store := newFakeStore()
	lead, _ := store.CreateLead(context.Background(), model.Lead{Status: model.StatusContacted}, model.SourceDetails{})
	assigner := &fakeAssigner{}
	svc := newTestService(store, &fakeScorer{}, assigner)

	target := uuid.New()
	_, err := svc.Reassign(context.Background(), lead.ID, target, "")
	require.NoError(t, err)
	assert.Equal(t, "manual", assigner.lastReason)
	assert.Equal(t, target, assigner.lastNewAgent)
}

func TestGetIncludesAssignmentAndTasks(t *testing.T) {
	store := newFakeStore()
	agentID := uuid.New()
	svc := newTestService(store, &fakeScorer{initial: 85}, &fakeAssigner{agentID: agentID})

	captured, err := svc.Capture(context.Background(), validCapture())
	require.NoError(t, err)

	detail, err := svc.Get(context.Background(), captured.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, captured.Lead.ID, detail.Lead.ID)
	assert.Equal(t, agentID, detail.AgentID)
	require.Len(t, detail.Tasks, 1)
}

func TestGetUnassignedLead(t *testing.T) {
	store := newFakeStore()
	lead, _ := store.CreateLead(context.Background(), model.Lead{Status: model.StatusNew}, model.SourceDetails{})
	svc := newTestService(store, &fakeScorer{}, &fakeAssigner{})

	detail, err := svc.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, detail.AgentID)
	assert.Empty(t, detail.Tasks)
}

func TestReassignerSweep(t *testing.T) {
	store := newFakeStore()
	staleLead := uuid.New()
	store.stale = []uuid.UUID{staleLead}
	assigner := &fakeAssigner{}
	svc := newTestService(store, &fakeScorer{}, assigner)

	r := NewReassigner(svc, time.Hour, 24*time.Hour, slog.New(slog.DiscardHandler))
	r.sweep(context.Background())

	require.Len(t, assigner.reassigned, 1)
	assert.Equal(t, staleLead, assigner.reassigned[0])
	assert.Equal(t, staleReason, assigner.lastReason)
	assert.Equal(t, uuid.Nil, assigner.lastNewAgent, "sweep auto-selects the target")
}

func TestReassignerSweepToleratesNoAlternative(t *testing.T) {
	store := newFakeStore()
	store.stale = []uuid.UUID{uuid.New(), uuid.New()}
	assigner := &fakeAssigner{reassignErr: model.ErrNoAlternativeAgent}
	svc := newTestService(store, &fakeScorer{}, assigner)

	r := NewReassigner(svc, time.Hour, 24*time.Hour, slog.New(slog.DiscardHandler))
	// Must not panic or abort; failures are logged and skipped.
	r.sweep(context.Background())
	assert.Empty(t, assigner.reassigned)
}

func TestReassignerRunStopsOnCancel(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeScorer{}, &fakeAssigner{})
	r := NewReassigner(svc, 10*time.Millisecond, 24*time.Hour, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reassigner did not stop on cancel")
	}
}
