package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/thinkrealty/leadflow/internal/model"
	"github.com/thinkrealty/leadflow/internal/service/leads"
)

// Pinger reports storage connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	svc                 *leads.Service
	pinger              Pinger
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	LeadSvc             *leads.Service
	Pinger              Pinger
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		svc:                 d.LeadSvc,
		pinger:              d.Pinger,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

type captureLeadRequest struct {
	FirstName          string               `json:"first_name"`
	LastName           string               `json:"last_name"`
	Email              string               `json:"email"`
	Phone              string               `json:"phone"`
	Nationality        string               `json:"nationality,omitempty"`
	LanguagePreference string               `json:"language_preference,omitempty"`
	BudgetMin          *int64               `json:"budget_min,omitempty"`
	BudgetMax          *int64               `json:"budget_max,omitempty"`
	PropertyType       string               `json:"property_type,omitempty"`
	PreferredAreas     []string             `json:"preferred_areas,omitempty"`
	Source             sourceDetailsRequest `json:"source"`
}

type sourceDetailsRequest struct {
	SourceType      string     `json:"source_type"`
	CampaignID      *string    `json:"campaign_id,omitempty"`
	ReferrerAgentID *uuid.UUID `json:"referrer_agent_id,omitempty"`
	PropertyID      *uuid.UUID `json:"property_id,omitempty"`
	UTMSource       *string    `json:"utm_source,omitempty"`
}

type captureLeadResponse struct {
	Lead    model.Lead          `json:"lead"`
	AgentID *uuid.UUID          `json:"assigned_agent_id,omitempty"`
	Task    *model.FollowUpTask `json:"follow_up_task,omitempty"`
}

// HandleCaptureLead handles POST /api/v1/leads.
func (h *Handlers) HandleCaptureLead(w http.ResponseWriter, r *http.Request) {
	var req captureLeadRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if req.FirstName == "" || req.LastName == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "first_name and last_name are required")
		return
	}
	if req.Email == "" && req.Phone == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "email or phone is required")
		return
	}

	result, err := h.svc.Capture(r.Context(), leads.CaptureInput{
		Lead: model.Lead{
			SourceType:         model.SourceType(req.Source.SourceType),
			FirstName:          req.FirstName,
			LastName:           req.LastName,
			Email:              req.Email,
			Phone:              req.Phone,
			Nationality:        req.Nationality,
			LanguagePreference: req.LanguagePreference,
			BudgetMin:          req.BudgetMin,
			BudgetMax:          req.BudgetMax,
			PropertyType:       req.PropertyType,
			PreferredAreas:     req.PreferredAreas,
		},
		Source: model.SourceDetails{
			SourceType:      model.SourceType(req.Source.SourceType),
			CampaignID:      req.Source.CampaignID,
			ReferrerAgentID: req.Source.ReferrerAgentID,
			PropertyID:      req.Source.PropertyID,
			UTMSource:       req.Source.UTMSource,
		},
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := captureLeadResponse{Lead: result.Lead, Task: result.Task}
	if result.AgentID != uuid.Nil {
		resp.AgentID = &result.AgentID
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

type updateLeadRequest struct {
	Status   *string          `json:"status,omitempty"`
	Activity *activityRequest `json:"activity,omitempty"`
	FollowUp *followUpRequest `json:"follow_up,omitempty"`
}

type activityRequest struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
	Notes   string `json:"notes,omitempty"`
}

type followUpRequest struct {
	AgentID  uuid.UUID `json:"agent_id"`
	Type     string    `json:"type"`
	DueDate  time.Time `json:"due_date"`
	Priority string    `json:"priority,omitempty"`
}

type updateLeadResponse struct {
	Lead     model.Lead          `json:"lead"`
	Activity *model.Activity     `json:"activity,omitempty"`
	Task     *model.FollowUpTask `json:"follow_up_task,omitempty"`
}

// HandleUpdateLead handles PUT /api/v1/leads/{lead_id}/update.
func (h *Handlers) HandleUpdateLead(w http.ResponseWriter, r *http.Request) {
	leadID, ok := pathUUID(w, r, "lead_id")
	if !ok {
		return
	}

	var req updateLeadRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.Status == nil && req.Activity == nil && req.FollowUp == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "nothing to update")
		return
	}

	in := leads.UpdateInput{LeadID: leadID}
	if req.Status != nil {
		status := model.LeadStatus(*req.Status)
		in.Status = &status
	}
	if req.Activity != nil {
		in.Activity = &leads.ActivityRecord{
			Type:    model.ActivityType(req.Activity.Type),
			Outcome: model.ActivityOutcome(req.Activity.Outcome),
			Notes:   req.Activity.Notes,
		}
	}
	if req.FollowUp != nil {
		in.FollowUp = &leads.FollowUpRequest{
			AgentID:  req.FollowUp.AgentID,
			Type:     model.ActivityType(req.FollowUp.Type),
			DueDate:  req.FollowUp.DueDate,
			Priority: model.TaskPriority(req.FollowUp.Priority),
		}
	}

	result, err := h.svc.Update(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, updateLeadResponse{
		Lead:     result.Lead,
		Activity: result.Activity,
		Task:     result.Task,
	})
}

type reassignLeadRequest struct {
	NewAgentID *uuid.UUID `json:"new_agent_id,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// HandleReassignLead handles POST /api/v1/leads/{lead_id}/reassign.
// Omitting new_agent_id asks the assignment manager to pick the best
// alternative itself.
func (h *Handlers) HandleReassignLead(w http.ResponseWriter, r *http.Request) {
	leadID, ok := pathUUID(w, r, "lead_id")
	if !ok {
		return
	}

	var req reassignLeadRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	target := uuid.Nil
	if req.NewAgentID != nil {
		target = *req.NewAgentID
	}

	assignment, err := h.svc.Reassign(r.Context(), leadID, target, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, assignment)
}

type leadDetailResponse struct {
	Lead    model.Lead           `json:"lead"`
	AgentID *uuid.UUID           `json:"assigned_agent_id,omitempty"`
	Tasks   []model.FollowUpTask `json:"pending_tasks,omitempty"`
}

// HandleGetLead handles GET /api/v1/leads/{lead_id}.
func (h *Handlers) HandleGetLead(w http.ResponseWriter, r *http.Request) {
	leadID, ok := pathUUID(w, r, "lead_id")
	if !ok {
		return
	}

	detail, err := h.svc.Get(r.Context(), leadID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := leadDetailResponse{Lead: detail.Lead, Tasks: detail.Tasks}
	if detail.AgentID != uuid.Nil {
		resp.AgentID = &detail.AgentID
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_seconds"`
	Database string `json:"database"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Version:  h.version,
		UptimeS:  int64(time.Since(h.startedAt).Seconds()),
		Database: "ok",
	}
	status := http.StatusOK
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Error("health: database unreachable", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, r, status, resp)
}

// pathUUID parses a UUID path parameter, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service-layer sentinels onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidLeadData),
		errors.Is(err, model.ErrInvalidStatusTransition),
		errors.Is(err, model.ErrSameAgentReassignment),
		errors.Is(err, model.ErrNoAlternativeAgent):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, model.ErrDuplicateLead),
		errors.Is(err, model.ErrFollowUpConflict):
		writeError(w, r, http.StatusConflict, model.ErrCodeDuplicate, err.Error())
	case errors.Is(err, model.ErrLeadNotFound),
		errors.Is(err, model.ErrAgentNotFound),
		errors.Is(err, model.ErrAssignmentNotFound),
		errors.Is(err, model.ErrNoAgentAssigned):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, err.Error())
	case errors.Is(err, model.ErrAgentOverloaded):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeOverloaded, err.Error())
	default:
		h.logger.Error("unhandled service error", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
	}
}
