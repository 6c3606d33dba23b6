// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"pipeline_backend/platform/events"

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
// Opportunity Domain Events
// =============================================================================

// OpportunityCreated is published when a new opportunity enters the pipeline.
type OpportunityCreated struct {
	BaseEvent
	OpportunityID uuid.UUID `json:"opportunityId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	ContactName   string    `json:"contactName"`
	ContactPhone  string    `json:"contactPhone"`
	ContactEmail  string    `json:"contactEmail"`
	Source        string    `json:"source,omitempty"`
}

func (e OpportunityCreated) EventName() string { return "opportunities.created" }

// StageChanged is published whenever an opportunity moves to a new stage.
// Automation subscribes to this to run the playbook for the entered stage.
type StageChanged struct {
	BaseEvent
	OpportunityID uuid.UUID  `json:"opportunityId"`
	OwnerID       uuid.UUID  `json:"ownerId"`
	FromStage     string     `json:"fromStage"`
	ToStage       string     `json:"toStage"`
	Trigger       string     `json:"trigger"`
	ActorID       *uuid.UUID `json:"actorId,omitempty"`
	BookingID     *uuid.UUID `json:"bookingId,omitempty"`
}

func (e StageChanged) EventName() string { return "opportunities.stage.changed" }

// OpportunityLost is published when an opportunity is closed as lost.
type OpportunityLost struct {
	BaseEvent
	OpportunityID uuid.UUID  `json:"opportunityId"`
	OwnerID       uuid.UUID  `json:"ownerId"`
	Reason        string     `json:"reason,omitempty"`
	ActorID       *uuid.UUID `json:"actorId,omitempty"`
}

func (e OpportunityLost) EventName() string { return "opportunities.lost" }

// =============================================================================
// Booking Domain Events
// =============================================================================

// BookingCreated is published when a booking is persisted. The automation
// dispatcher consumes this to sync the calendar, create the prep task, and
// queue confirmations.
type BookingCreated struct {
	BaseEvent
	BookingID     uuid.UUID `json:"bookingId"`
	OpportunityID uuid.UUID `json:"opportunityId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	Type          string    `json:"type"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	ContactName   string    `json:"contactName,omitempty"`
	ContactPhone  string    `json:"contactPhone,omitempty"`
	ContactEmail  string    `json:"contactEmail,omitempty"`
	Location      string    `json:"location,omitempty"`
	Channel       string    `json:"channel"`
}

func (e BookingCreated) EventName() string { return "bookings.created" }

// BookingOutcomeRecorded is published when a booking outcome is set
// (completed, no_show, rescheduled, cancelled).
type BookingOutcomeRecorded struct {
	BaseEvent
	BookingID     uuid.UUID  `json:"bookingId"`
	OpportunityID uuid.UUID  `json:"opportunityId"`
	OwnerID       uuid.UUID  `json:"ownerId"`
	OldOutcome    string     `json:"oldOutcome"`
	NewOutcome    string     `json:"newOutcome"`
	ActorID       *uuid.UUID `json:"actorId,omitempty"`
}

func (e BookingOutcomeRecorded) EventName() string { return "bookings.outcome.recorded" }

// BookingReminderDue is published by the scheduler when a booking reminder
// should be sent.
type BookingReminderDue struct {
	BaseEvent
	BookingID     uuid.UUID `json:"bookingId"`
	OpportunityID uuid.UUID `json:"opportunityId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	Type          string    `json:"type"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	ContactName   string    `json:"contactName,omitempty"`
	ContactPhone  string    `json:"contactPhone,omitempty"`
	ContactEmail  string    `json:"contactEmail,omitempty"`
	Location      string    `json:"location,omitempty"`
}

func (e BookingReminderDue) EventName() string { return "bookings.reminder.due" }

// =============================================================================
// Suggestion Domain Events
// =============================================================================

// SuggestionCreated is published when post-call analysis produces a stage
// suggestion awaiting human review.
type SuggestionCreated struct {
	BaseEvent
	SuggestionID  uuid.UUID `json:"suggestionId"`
	BookingID     uuid.UUID `json:"bookingId"`
	OpportunityID uuid.UUID `json:"opportunityId"`
	OwnerID       uuid.UUID `json:"ownerId"`
	SuggestedStage string   `json:"suggestedStage"`
	Confidence    int       `json:"confidence"`
}

func (e SuggestionCreated) EventName() string { return "suggestions.created" }

// SuggestionResolved is published when a reviewer confirms or overrides a
// suggestion.
type SuggestionResolved struct {
	BaseEvent
	SuggestionID  uuid.UUID `json:"suggestionId"`
	BookingID     uuid.UUID `json:"bookingId"`
	OpportunityID uuid.UUID `json:"opportunityId"`
	Resolution    string    `json:"resolution"` // "confirmed" or "overridden"
	AppliedStage  string    `json:"appliedStage,omitempty"`
	ActorID       uuid.UUID `json:"actorId"`
}

func (e SuggestionResolved) EventName() string { return "suggestions.resolved" }

// =============================================================================
// Automation Domain Events
// =============================================================================

// OutboxMessageDue is published by the scheduler when an outbox record should
// be processed.
type OutboxMessageDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e OutboxMessageDue) EventName() string { return "automation.outbox.due" }

// TaskCreated is published when automation or a staff member creates a task.
type TaskCreated struct {
	BaseEvent
	TaskID        uuid.UUID  `json:"taskId"`
	OpportunityID *uuid.UUID `json:"opportunityId,omitempty"`
	AssigneeID    uuid.UUID  `json:"assigneeId"`
	Title         string     `json:"title"`
	DueAt         *time.Time `json:"dueAt,omitempty"`
}

func (e TaskCreated) EventName() string { return "tasks.created" }
