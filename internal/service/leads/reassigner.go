package leads

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/thinkrealty/leadflow/internal/model"
	"github.com/thinkrealty/leadflow/internal/telemetry"
)

// staleReason tags assignments moved by the sweep, distinguishing them from
// manual reassignments in the audit trail.
const staleReason = "Auto-reassigned: no response within 24 hours"

// sweepBatchSize caps how many stale leads one sweep touches.
const sweepBatchSize = 100

// sweepConcurrency bounds parallel reassignments so one sweep can't
// saturate the pool's connections.
const sweepConcurrency = 4

// Reassigner periodically moves leads whose agent has gone quiet.
type Reassigner struct {
	service    *Service
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger

	swept metric.Int64Counter
}

// NewReassigner creates the stale-lead sweeper. interval is how often it
// runs; staleAfter is how long a lead may sit without activity before it
// moves.
func NewReassigner(service *Service, interval, staleAfter time.Duration, logger *slog.Logger) *Reassigner {
	meter := telemetry.Meter("leadflow/leads")
	swept, _ := meter.Int64Counter("leadflow.reassigner.swept",
		metric.WithDescription("Stale leads processed by the reassignment sweep"),
	)
	return &Reassigner{
		service:    service,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
		swept:      swept,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. One failing
// lead never aborts the sweep; the error is logged and the loop moves on.
func (r *Reassigner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reassigner started", "interval", r.interval, "stale_after", r.staleAfter)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reassigner stopped")
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep reassigns every currently stale lead once.
func (r *Reassigner) sweep(ctx context.Context) {
	stale, err := r.service.store.StaleAssignedLeads(ctx, r.staleAfter, sweepBatchSize)
	if err != nil {
		r.logger.Error("reassigner: stale lead query failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	r.logger.Info("reassigner: sweeping stale leads", "count", len(stale))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, leadID := range stale {
		g.Go(func() error {
			r.swept.Add(gctx, 1)
			_, err := r.service.assigner.ReassignLead(gctx, leadID, uuid.Nil, staleReason)
			switch {
			case err == nil:
				r.logger.Info("reassigner: lead moved", "lead_id", leadID)
			case errors.Is(err, model.ErrNoAlternativeAgent):
				// Nobody else can take it; it will come up again next sweep.
				r.logger.Warn("reassigner: no alternative agent", "lead_id", leadID)
			default:
				r.logger.Error("reassigner: reassignment failed", "lead_id", leadID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
