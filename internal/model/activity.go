package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies an interaction between an agent and a lead.
type ActivityType string

const (
	ActivityCall      ActivityType = "call"
	ActivityEmail     ActivityType = "email"
	ActivityWhatsApp  ActivityType = "whatsapp"
	ActivityViewing   ActivityType = "viewing"
	ActivityMeeting   ActivityType = "meeting"
	ActivityOfferMade ActivityType = "offer_made"
)

// ValidActivityType reports whether t is a known activity type.
func ValidActivityType(t ActivityType) bool {
	switch t {
	case ActivityCall, ActivityEmail, ActivityWhatsApp, ActivityViewing, ActivityMeeting, ActivityOfferMade:
		return true
	}
	return false
}

// IsOutboundContact reports whether t counts as the agent reaching out to
// the lead. Only these types qualify for the response-time bonus.
func (t ActivityType) IsOutboundContact() bool {
	switch t {
	case ActivityCall, ActivityEmail, ActivityWhatsApp, ActivityMeeting:
		return true
	}
	return false
}

// ActivityOutcome is the result of an interaction.
type ActivityOutcome string

const (
	OutcomePositive ActivityOutcome = "positive"
	OutcomeNegative ActivityOutcome = "negative"
	OutcomeNeutral  ActivityOutcome = "neutral"
)

// ValidActivityOutcome reports whether o is a known outcome.
func ValidActivityOutcome(o ActivityOutcome) bool {
	return o == OutcomePositive || o == OutcomeNegative || o == OutcomeNeutral
}

// Activity is a recorded interaction on a lead.
type Activity struct {
	ID         uuid.UUID       `json:"activity_id"`
	LeadID     uuid.UUID       `json:"lead_id"`
	AgentID    uuid.UUID       `json:"agent_id"`
	Type       ActivityType    `json:"type"`
	Outcome    ActivityOutcome `json:"outcome"`
	Notes      string          `json:"notes,omitempty"`
	ActivityAt time.Time       `json:"activity_at"`
}

// ActivityInput is the caller-supplied slice of an activity that the scoring
// engine needs: what happened and how it went.
type ActivityInput struct {
	Type    ActivityType    `json:"type"`
	Outcome ActivityOutcome `json:"outcome"`
}
