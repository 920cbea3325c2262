// Package model defines the domain types shared by the storage layer,
// the scoring engine, and the assignment manager.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Score bounds for a lead. Every scoring path clamps into this range as its
// final step; the database enforces the same range with a CHECK constraint.
const (
	MinLeadScore = 0
	MaxLeadScore = 100
)

// NeutralScore is returned by the scoring engine when the rule store is
// unreachable. Capture availability takes priority over scoring precision.
const NeutralScore = 50

// SourceType identifies the channel a lead arrived through.
type SourceType string

const (
	SourceBayut          SourceType = "bayut"
	SourcePropertyFinder SourceType = "propertyfinder"
	SourceWebsite        SourceType = "website"
	SourceDubizzle       SourceType = "dubizzle"
	SourceWalkIn         SourceType = "walk_in"
	SourceReferral       SourceType = "referral"
)

// ValidSourceType reports whether s is a known source channel.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourceBayut, SourcePropertyFinder, SourceWebsite, SourceDubizzle, SourceWalkIn, SourceReferral:
		return true
	}
	return false
}

// LeadStatus is the lifecycle state of a lead.
type LeadStatus string

const (
	StatusNew              LeadStatus = "new"
	StatusContacted        LeadStatus = "contacted"
	StatusQualified        LeadStatus = "qualified"
	StatusViewingScheduled LeadStatus = "viewing_scheduled"
	StatusNegotiation      LeadStatus = "negotiation"
	StatusConverted        LeadStatus = "converted"
	StatusLost             LeadStatus = "lost"
)

// allowedTransitions is the canonical lead status machine.
// Converted and lost are terminal.
var allowedTransitions = map[LeadStatus][]LeadStatus{
	StatusNew:              {StatusContacted, StatusLost},
	StatusContacted:        {StatusQualified, StatusLost},
	StatusQualified:        {StatusViewingScheduled, StatusLost},
	StatusViewingScheduled: {StatusNegotiation, StatusQualified, StatusLost},
	StatusNegotiation:      {StatusConverted, StatusLost},
	StatusConverted:        {},
	StatusLost:             {},
}

// Terminal reports whether s admits no further transitions.
func (s LeadStatus) Terminal() bool {
	return s == StatusConverted || s == StatusLost
}

// ValidateTransition returns ErrInvalidStatusTransition when moving from
// current to next is not allowed by the status machine.
func ValidateTransition(current, next LeadStatus) error {
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatusTransition, current, next)
}

// Lead is a captured business lead.
type Lead struct {
	ID                 uuid.UUID  `json:"lead_id"`
	SourceType         SourceType `json:"source_type"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	Nationality        string     `json:"nationality,omitempty"`
	LanguagePreference string     `json:"language_preference,omitempty"`
	BudgetMin          *int64     `json:"budget_min,omitempty"`
	BudgetMax          *int64     `json:"budget_max,omitempty"`
	PropertyType       string     `json:"property_type,omitempty"`
	PreferredAreas     []string   `json:"preferred_areas,omitempty"`
	Status             LeadStatus `json:"status"`
	Score              int        `json:"score"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// SourceDetails carries the capture-time source attributes that are stored
// alongside a lead and feed the scoring engine.
type SourceDetails struct {
	SourceType      SourceType `json:"source_type"`
	CampaignID      *string    `json:"campaign_id,omitempty"`
	ReferrerAgentID *uuid.UUID `json:"referrer_agent_id,omitempty"`
	PropertyID      *uuid.UUID `json:"property_id,omitempty"`
	UTMSource       *string    `json:"utm_source,omitempty"`
}

// ValidateLead checks cross-field business rules. Field presence and
// formats are the transport's problem.
func ValidateLead(l Lead) error {
	if l.BudgetMin != nil && l.BudgetMax != nil && *l.BudgetMin >= *l.BudgetMax {
		return fmt.Errorf("%w: budget_min must be less than budget_max", ErrInvalidLeadData)
	}
	if !ValidSourceType(l.SourceType) {
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidLeadData, l.SourceType)
	}
	return nil
}
