// Package leads provides the business logic for lead capture, update, and
// reassignment.
//
// The HTTP handlers and the background reassigner both delegate here, so
// the capture pipeline (validate, dedupe, score, assign, schedule) behaves
// identically regardless of which surface triggered it.
package leads

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thinkrealty/leadflow/internal/cache"
	"github.com/thinkrealty/leadflow/internal/model"
	"github.com/thinkrealty/leadflow/internal/telemetry"
)

// Store is the slice of the storage layer the lead service uses.
type Store interface {
	CreateLead(ctx context.Context, lead model.Lead, src model.SourceDetails) (model.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (model.Lead, error)
	UpdateLeadScore(ctx context.Context, id uuid.UUID, score int) error
	UpdateLeadStatus(ctx context.Context, id uuid.UUID, status model.LeadStatus) error
	FindRecentLead(ctx context.Context, email, phone string, window time.Duration) (uuid.UUID, bool, error)

	CreateAssignment(ctx context.Context, leadID, agentID uuid.UUID, reason string) (model.Assignment, error)
	AgentForLead(ctx context.Context, leadID uuid.UUID) (uuid.UUID, error)

	CreateActivity(ctx context.Context, act model.Activity) (model.Activity, error)
	LastActivityAt(ctx context.Context, leadID uuid.UUID) (*time.Time, error)

	CreateFollowUpTask(ctx context.Context, task model.FollowUpTask) (model.FollowUpTask, error)
	ConflictingTasks(ctx context.Context, agentID uuid.UUID, due time.Time, window time.Duration) ([]model.FollowUpTask, error)
	PendingTasksForLead(ctx context.Context, leadID uuid.UUID) ([]model.FollowUpTask, error)

	StaleAssignedLeads(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}

// Scorer computes lead scores.
type Scorer interface {
	CalculateInitialScore(ctx context.Context, lead model.Lead, src model.SourceDetails) int
	UpdateLeadScore(ctx context.Context, leadID uuid.UUID, activity model.ActivityInput, lastActivityAt *time.Time) (int, error)
}

// Assigner selects and moves agents for leads.
type Assigner interface {
	AssignLead(ctx context.Context, lead model.Lead) (uuid.UUID, error)
	ReassignLead(ctx context.Context, leadID, newAgentID uuid.UUID, reason string) (model.Assignment, error)
}

// Service encapsulates the lead pipelines shared by HTTP and the reassigner.
type Service struct {
	store           Store
	scorer          Scorer
	assigner        Assigner
	cache           cache.Store
	logger          *slog.Logger
	duplicateWindow time.Duration

	captured   metric.Int64Counter
	duplicates metric.Int64Counter
}

// New creates the lead service. duplicateWindow bounds how far back capture
// looks for a matching email or phone before rejecting a lead as duplicate.
func New(store Store, scorer Scorer, assigner Assigner, c cache.Store, duplicateWindow time.Duration, logger *slog.Logger) *Service {
	meter := telemetry.Meter("leadflow/leads")
	captured, _ := meter.Int64Counter("leadflow.leads.captured",
		metric.WithDescription("Leads captured, by assignment outcome"),
	)
	duplicates, _ := meter.Int64Counter("leadflow.leads.duplicates",
		metric.WithDescription("Capture attempts rejected as duplicates"),
	)
	return &Service{
		store:           store,
		scorer:          scorer,
		assigner:        assigner,
		cache:           c,
		logger:          logger,
		duplicateWindow: duplicateWindow,
		captured:        captured,
		duplicates:      duplicates,
	}
}

func (s *Service) countCapture(ctx context.Context, outcome string) {
	s.captured.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
