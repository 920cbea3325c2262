// Package scoring implements the rule-driven lead scoring engine.
//
// Both entry points are pure computation over data fetched from the rule and
// activity collaborators: they never persist anything. Collaborator failures
// degrade to documented fallbacks (neutral score, fixed default weights)
// instead of propagating, so a scoring outage can never abort a capture or
// update transaction.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/thinkrealty/leadflow/internal/model"
	"github.com/thinkrealty/leadflow/internal/telemetry"
)

// RuleSource loads the active scoring rules.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]model.ScoringRule, error)
}

// ActivityHistory exposes the activity lookups the engine needs.
type ActivityHistory interface {
	// FirstContactActivity returns the earliest outbound-contact activity
	// (call/email/whatsapp/meeting) for the lead, or nil if none exists.
	FirstContactActivity(ctx context.Context, leadID uuid.UUID) (*model.Activity, error)

	// ActivityCount returns the total number of activities for the lead.
	ActivityCount(ctx context.Context, leadID uuid.UUID) (int, error)
}

// LeadReader fetches the stored lead for update-time scoring.
type LeadReader interface {
	GetLead(ctx context.Context, leadID uuid.UUID) (model.Lead, error)
}

// Engine computes lead scores from the active rule set.
type Engine struct {
	rules      RuleSource
	activities ActivityHistory
	leads      LeadReader
	logger     *slog.Logger
	now        func() time.Time

	scoreDuration metric.Float64Histogram
	ruleFallbacks metric.Int64Counter
}

// NewEngine creates a scoring engine.
func NewEngine(rules RuleSource, activities ActivityHistory, leads LeadReader, logger *slog.Logger) *Engine {
	meter := telemetry.Meter("leadflow/scoring")
	dur, _ := meter.Float64Histogram("leadflow.scoring.duration",
		metric.WithDescription("Time to compute a lead score (ms)"),
		metric.WithUnit("ms"),
	)
	fallbacks, _ := meter.Int64Counter("leadflow.scoring.rule_fallbacks",
		metric.WithDescription("Scoring calls that used fixed default weights because the rule store was unreachable"),
	)
	return &Engine{
		rules:         rules,
		activities:    activities,
		leads:         leads,
		logger:        logger,
		now:           time.Now,
		scoreDuration: dur,
		ruleFallbacks: fallbacks,
	}
}

// CalculateInitialScore computes the capture-time score for a lead.
//
// If the rule store is unreachable the engine returns the fixed neutral
// score immediately: capture availability beats scoring precision. The
// accumulated total is clamped to [0,100] only as the final step, so a large
// tier never masks a later negative adjustment mid-computation.
func (e *Engine) CalculateInitialScore(ctx context.Context, lead model.Lead, src model.SourceDetails) int {
	start := e.now()
	defer func() {
		e.scoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("op", "initial")))
	}()

	rules, err := e.rules.ActiveRules(ctx)
	if err != nil {
		e.logger.Warn("scoring: rule store unreachable, using neutral score", "error", err)
		e.ruleFallbacks.Add(ctx, 1)
		return model.NeutralScore
	}

	total := e.budgetTierAdjustment(rules, lead.BudgetMax)

	for _, r := range rules {
		switch r.Condition.Kind {
		case model.RuleSource:
			if strings.EqualFold(r.Condition.Value, string(src.SourceType)) {
				total += r.Adjustment
			}
		case model.RuleNationality:
			if nationalityMatches(lead.Nationality, r.Condition.Values) {
				total += r.Adjustment
			}
		case model.RulePropertyType:
			if lead.PropertyType != "" {
				total += r.Adjustment
			}
		case model.RulePreferredAreas:
			if len(lead.PreferredAreas) > 0 {
				total += r.Adjustment
			}
		case model.RuleReferral:
			if src.ReferrerAgentID != nil {
				total += r.Adjustment
			}
		default:
			// budget_min and response_time are handled out of band;
			// activity and inactivity rules only apply on updates;
			// unknown kinds are ignored, not errors.
		}
	}

	if lead.ID != uuid.Nil && !lead.CreatedAt.IsZero() {
		total += e.responseTimeBonus(ctx, rules, lead.ID, lead.CreatedAt)
	}

	return clampScore(total)
}

// UpdateLeadScore computes a lead's new score after an activity. The caller
// persists the result; this engine only computes it.
//
// lastActivityAt is the most recent prior activity timestamp, used for the
// inactivity decay; nil means no history to decay against.
func (e *Engine) UpdateLeadScore(ctx context.Context, leadID uuid.UUID, activity model.ActivityInput, lastActivityAt *time.Time) (int, error) {
	start := e.now()
	defer func() {
		e.scoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("op", "update")))
	}()

	lead, err := e.leads.GetLead(ctx, leadID)
	if err != nil {
		return 0, fmt.Errorf("scoring: load lead %s: %w", leadID, err)
	}

	rules, err := e.rules.ActiveRules(ctx)
	if err != nil {
		e.logger.Warn("scoring: rule store unreachable, using default weights", "error", err, "lead_id", leadID)
		e.ruleFallbacks.Add(ctx, 1)
		rules = nil
	}

	adjustment := activityAdjustment(rules, activity)
	adjustment += inactivityAdjustment(rules, lastActivityAt, e.now())

	// The very first activity also settles the response-time bonus that the
	// initial score could not award yet.
	count, cerr := e.activities.ActivityCount(ctx, leadID)
	if cerr != nil {
		e.logger.Warn("scoring: activity count unavailable, skipping response bonus", "error", cerr, "lead_id", leadID)
	} else if count == 1 {
		adjustment += e.responseTimeBonus(ctx, rules, leadID, lead.CreatedAt)
	}

	return clampScore(lead.Score + adjustment), nil
}

// budgetTierAdjustment applies the single highest qualifying budget tier.
// Tiers are evaluated by descending threshold and only the first match
// counts; the threshold-0 tier is the catch-all for any set budget.
func (e *Engine) budgetTierAdjustment(rules []model.ScoringRule, budgetMax *int64) int {
	if budgetMax == nil {
		return 0
	}
	var tiers []model.ScoringRule
	for _, r := range rules {
		if r.Condition.Kind == model.RuleBudgetMin {
			tiers = append(tiers, r)
		}
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Condition.Threshold > tiers[j].Condition.Threshold
	})
	for _, r := range tiers {
		if *budgetMax > r.Condition.Threshold || r.Condition.Threshold == 0 {
			return r.Adjustment
		}
	}
	return 0
}

// responseTimeBonus scores how quickly the first outbound contact happened.
// With no contact yet, leads older than 72 hours take the late penalty and
// younger leads take no bonus at all.
func (e *Engine) responseTimeBonus(ctx context.Context, rules []model.ScoringRule, leadID uuid.UUID, createdAt time.Time) int {
	first, err := e.activities.FirstContactActivity(ctx, leadID)
	if err != nil {
		e.logger.Warn("scoring: first contact lookup failed, skipping response bonus", "error", err, "lead_id", leadID)
		return 0
	}

	if first == nil {
		if e.now().Sub(createdAt) > 72*time.Hour {
			return latePenalty(rules)
		}
		return 0
	}

	hours := first.ActivityAt.Sub(createdAt).Hours()
	return responseTimeAdjustment(rules, hours)
}

// responseTimeAdjustment resolves the response-time tier for the given
// elapsed hours: rules with max_hours sorted ascending, first match wins,
// then the min_hours (late) rule, then the fixed fallback table.
func responseTimeAdjustment(rules []model.ScoringRule, hours float64) int {
	var bounded []model.ScoringRule
	found := false
	for _, r := range rules {
		if r.Condition.Kind != model.RuleResponseTime {
			continue
		}
		found = true
		if r.Condition.MaxHours != nil {
			bounded = append(bounded, r)
		}
	}
	if !found {
		return fallbackResponseAdjustment(hours)
	}

	sort.SliceStable(bounded, func(i, j int) bool {
		return *bounded[i].Condition.MaxHours < *bounded[j].Condition.MaxHours
	})
	for _, r := range bounded {
		if hours <= float64(*r.Condition.MaxHours) {
			return r.Adjustment
		}
	}
	for _, r := range rules {
		if r.Condition.Kind == model.RuleResponseTime && r.Condition.MinHours != nil && hours > float64(*r.Condition.MinHours) {
			return r.Adjustment
		}
	}
	return 0
}

// latePenalty is the adjustment for leads past every response-time tier.
func latePenalty(rules []model.ScoringRule) int {
	for _, r := range rules {
		if r.Condition.Kind == model.RuleResponseTime && r.Condition.MinHours != nil {
			return r.Adjustment
		}
	}
	return fallbackLatePenalty
}

// activityAdjustment sums the outcome- and type-based rules matching the
// activity. With no rules loaded it falls back to the fixed defaults.
func activityAdjustment(rules []model.ScoringRule, activity model.ActivityInput) int {
	if len(rules) == 0 {
		adj := 0
		if activity.Outcome == model.OutcomePositive {
			adj += fallbackPositiveOutcome
		}
		switch activity.Type {
		case model.ActivityViewing:
			adj += fallbackViewing
		case model.ActivityOfferMade:
			adj += fallbackOfferMade
		}
		return adj
	}

	adj := 0
	for _, r := range rules {
		switch r.Condition.Kind {
		case model.RuleActivityOutcome:
			if strings.EqualFold(r.Condition.Value, string(activity.Outcome)) {
				adj += r.Adjustment
			}
		case model.RuleActivityType:
			if strings.EqualFold(r.Condition.Value, string(activity.Type)) {
				adj += r.Adjustment
			}
		}
	}
	return adj
}

// inactivityAdjustment applies decay rules whose day threshold has elapsed
// since the last recorded activity.
func inactivityAdjustment(rules []model.ScoringRule, lastActivityAt *time.Time, now time.Time) int {
	if lastActivityAt == nil {
		return 0
	}
	days := now.Sub(*lastActivityAt).Hours() / 24

	if len(rules) == 0 {
		if days >= fallbackInactivityDays {
			return fallbackInactivityPenalty
		}
		return 0
	}

	adj := 0
	for _, r := range rules {
		if r.Condition.Kind == model.RuleInactivityDays && days >= float64(r.Condition.Threshold) {
			adj += r.Adjustment
		}
	}
	return adj
}

// Fixed defaults used when the rule store is unreachable. They mirror the
// canonical seed so degraded scoring stays consistent with rule-driven scoring.
const (
	fallbackPositiveOutcome   = 5
	fallbackViewing           = 10
	fallbackOfferMade         = 20
	fallbackInactivityDays    = 7
	fallbackInactivityPenalty = -10
	fallbackLatePenalty       = -10
)

// fallbackResponseAdjustment is the fixed response-time tier table.
func fallbackResponseAdjustment(hours float64) int {
	switch {
	case hours <= 1:
		return 15
	case hours <= 4:
		return 10
	case hours <= 24:
		return 5
	case hours <= 72:
		return 0
	default:
		return fallbackLatePenalty
	}
}

// nationalityMatches reports whether the lead's free-text nationality
// contains any of the rule's values, case-insensitively. Intake forms send
// variants like "Emirati national", so containment beats equality here.
func nationalityMatches(nationality string, values []string) bool {
	if nationality == "" {
		return false
	}
	lowered := strings.ToLower(nationality)
	for _, v := range values {
		if v != "" && strings.Contains(lowered, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func clampScore(score int) int {
	if score < model.MinLeadScore {
		return model.MinLeadScore
	}
	if score > model.MaxLeadScore {
		return model.MaxLeadScore
	}
	return score
}
