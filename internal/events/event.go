// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"salesops_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when intake creates a brand-new lead.
type LeadCreated struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Phone  string    `json:"phone"`
	Name   string    `json:"name,omitempty"`
	Source string    `json:"source"`
	Funnel string    `json:"funnel"`
	Score  float64   `json:"score"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// =============================================================================
// Intake Domain Events
// =============================================================================

// IntakeEventFailed is published when processing of an admitted inbound
// event fails and the row is parked for replay.
type IntakeEventFailed struct {
	BaseEvent
	EventID  uuid.UUID `json:"eventId"`
	DedupKey string    `json:"dedupKey"`
	Source   string    `json:"source"`
	Reason   string    `json:"reason"`
}

func (e IntakeEventFailed) EventName() string { return "intake.event.failed" }

// =============================================================================
// Commitment Domain Events
// =============================================================================

// CommitmentBreached is published when a response commitment passes its
// deadline without being completed.
type CommitmentBreached struct {
	BaseEvent
	CommitmentID   uuid.UUID `json:"commitmentId"`
	LeadID         uuid.UUID `json:"leadId"`
	CommitmentType string    `json:"commitmentType"`
	Deadline       time.Time `json:"deadline"`
}

func (e CommitmentBreached) EventName() string { return "commitments.commitment.breached" }

// CommitmentEscalated is published when a breached commitment is escalated
// to the next level of the chain.
type CommitmentEscalated struct {
	BaseEvent
	CommitmentID   uuid.UUID `json:"commitmentId"`
	LeadID         uuid.UUID `json:"leadId"`
	CommitmentType string    `json:"commitmentType"`
	Level          int       `json:"level"`
}

func (e CommitmentEscalated) EventName() string { return "commitments.commitment.escalated" }

// =============================================================================
// Sequence Domain Events
// =============================================================================

// SequenceCompleted is published when every step of a follow-up sequence
// has been dispatched.
type SequenceCompleted struct {
	BaseEvent
	ExecutionID uuid.UUID `json:"executionId"`
	LeadID      uuid.UUID `json:"leadId"`
	SequenceKey string    `json:"sequenceKey"`
	Steps       int       `json:"steps"`
}

func (e SequenceCompleted) EventName() string { return "sequences.sequence.completed" }

// SequenceCancelled is published when an active follow-up sequence is
// stopped before exhausting its steps.
type SequenceCancelled struct {
	BaseEvent
	ExecutionID uuid.UUID `json:"executionId"`
	LeadID      uuid.UUID `json:"leadId"`
	SequenceKey string    `json:"sequenceKey"`
	Reason      string    `json:"reason"`
}

func (e SequenceCancelled) EventName() string { return "sequences.sequence.cancelled" }
