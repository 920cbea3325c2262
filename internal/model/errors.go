package model

import "errors"

// Domain error sentinels. Handlers map these to HTTP statuses; services wrap
// them with context via fmt.Errorf("...: %w", err) so errors.Is still matches.
//
// Collaborator outages (rule store, activity store, scoreboard) are not part
// of this taxonomy: the engines recover from them locally with documented
// fallbacks and only log.
var (
	// ErrLeadNotFound is returned when the requested lead does not exist.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrAgentNotFound is returned when the requested agent does not exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAssignmentNotFound is returned when the lead has no assignment record.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrNoAgentAssigned is returned by operations that require an assigned agent.
	ErrNoAgentAssigned = errors.New("no agent assigned to lead")

	// ErrAgentOverloaded is returned when no agent is below the workload cap,
	// or the store rejected a selection that raced past it. The message matches
	// the Postgres workload trigger so every enforcement layer reads the same.
	ErrAgentOverloaded = errors.New("agent has reached maximum capacity of 50 active leads")

	// ErrSameAgentReassignment is returned for reassignments targeting the
	// lead's current agent.
	ErrSameAgentReassignment = errors.New("lead is already assigned to this agent")

	// ErrNoAlternativeAgent is returned when auto-reassignment found nobody
	// but the current agent.
	ErrNoAlternativeAgent = errors.New("no alternative agent available")

	// ErrDuplicateLead is returned for a repeat capture of the same contact
	// within the duplicate window.
	ErrDuplicateLead = errors.New("duplicate lead detected")

	// ErrInvalidLeadData is returned when business-rule validation fails.
	ErrInvalidLeadData = errors.New("invalid lead data")

	// ErrInvalidStatusTransition is returned for a disallowed lead status move.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrFollowUpConflict is returned when the agent already has a follow-up
	// within 30 minutes of the requested slot.
	ErrFollowUpConflict = errors.New("conflicting follow-up schedule")
)
