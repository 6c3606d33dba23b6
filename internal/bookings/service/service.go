// Package service implements the booking creation flow: conflict check,
// guarded store write, stage transition, then detached automation. No
// booking is ever written after a detected conflict, and the booking row is
// committed before any calendar sync or automation is attempted.
package service

import (
	"context"
	"fmt"
	"time"

	"pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/calendar"
	"pipeline_backend/internal/events"
	"pipeline_backend/internal/opportunities/domain"
	opprepo "pipeline_backend/internal/opportunities/repository"
	oppsvc "pipeline_backend/internal/opportunities/service"
	"pipeline_backend/platform/apperr"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultDurationMinutes = 30
	minDurationMinutes     = 10
	maxDurationMinutes     = 180

	// ChannelStaff marks bookings created by authenticated staff.
	ChannelStaff = "staff"
	// ChannelPublic marks bookings created through a public booking link.
	ChannelPublic = "public"
)

// Store is the persistence surface the service depends on.
type Store interface {
	CreateWithSlotGuard(ctx context.Context, p repository.CreateParams) (*repository.Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Booking, error)
	ListNearby(ctx context.Context, ownerID uuid.UUID, from, to time.Time, margin time.Duration) ([]repository.Booking, error)
	ListForOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]repository.Booking, error)
	UpdateOutcome(ctx context.Context, id uuid.UUID, outcome repository.Outcome) (repository.Outcome, error)
	SetNotes(ctx context.Context, id uuid.UUID, notes string) error
	SetCalendarSync(ctx context.Context, id uuid.UUID, eventID string, meetingLink *string) error
}

// CalendarReader is the free/busy slice of the calendar client.
type CalendarReader interface {
	FreeBusy(ctx context.Context, from, to time.Time) ([]calendar.BusyInterval, error)
}

// OpportunityGateway is the slice of the opportunities service the booking
// flow needs.
type OpportunityGateway interface {
	GetByID(ctx context.Context, id uuid.UUID) (*opprepo.Opportunity, error)
	GetByPublicToken(ctx context.Context, token string) (*opprepo.Opportunity, error)
	ApplyTransition(ctx context.Context, p oppsvc.TransitionParams) (*oppsvc.TransitionResult, error)
}

// Dispatcher runs the post-booking automations. Implementations must return
// immediately and do their work detached from the request.
type Dispatcher interface {
	Dispatch(booking *repository.Booking, opportunity *opprepo.Opportunity, stage domain.Stage)
}

type Service struct {
	repo          Store
	calendar      CalendarReader
	opportunities OpportunityGateway
	dispatcher    Dispatcher
	bus           events.Bus
	log           *logger.Logger
	linkTTL       time.Duration
}

func NewService(repo Store, cal CalendarReader, opportunities OpportunityGateway, dispatcher Dispatcher, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:          repo,
		calendar:      cal,
		opportunities: opportunities,
		dispatcher:    dispatcher,
		bus:           bus,
		log:           log,
	}
}

// CreateParams describes one booking request.
type CreateParams struct {
	OpportunityID   uuid.UUID
	Type            string
	StartTime       time.Time
	DurationMinutes int
	Channel         string
	ActorID         *uuid.UUID
}

// CreateResult is the outcome of a successful booking request.
type CreateResult struct {
	Booking  *repository.Booking
	Stage    domain.Stage
	Warnings []string
}

// Create runs the booking flow: validate, conflict-check, guarded write,
// stage transition, detached automation. The returned warnings surface
// degraded conflict checking and terminal-stage no-ops.
func (s *Service) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	targetStage, ok := domain.StageForBookingType(p.Type)
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown booking type %q", p.Type))
	}

	duration := p.DurationMinutes
	if duration == 0 {
		duration = defaultDurationMinutes
	}
	if duration < minDurationMinutes || duration > maxDurationMinutes {
		return nil, apperr.Validation(fmt.Sprintf("duration must be between %d and %d minutes", minDurationMinutes, maxDurationMinutes))
	}
	if p.StartTime.IsZero() {
		return nil, apperr.Validation("start time is required")
	}

	opp, err := s.opportunities.GetByID(ctx, p.OpportunityID)
	if err != nil {
		return nil, err
	}

	var warnings []string
	start := p.StartTime.UTC()
	end := start.Add(time.Duration(duration) * time.Minute)

	check, err := s.CheckConflict(ctx, opp.OwnerID, start, end)
	if err != nil {
		return nil, err
	}
	if check.Conflict {
		return nil, apperr.Conflict("slot unavailable")
	}
	warnings = append(warnings, check.Warnings...)

	channel := p.Channel
	if channel == "" {
		channel = ChannelStaff
	}

	booking, err := s.repo.CreateWithSlotGuard(ctx, repository.CreateParams{
		OpportunityID: opp.ID,
		OwnerID:       opp.OwnerID,
		Type:          p.Type,
		StartTime:     start,
		EndTime:       end,
		Channel:       channel,
	})
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("%s booked for %s", p.Type, start.Format(time.RFC3339))
	transition, err := s.opportunities.ApplyTransition(ctx, oppsvc.TransitionParams{
		OpportunityID: opp.ID,
		ToStage:       targetStage,
		Trigger:       domain.TriggerBookingCreated,
		ActorID:       p.ActorID,
		Note:          &note,
		BookingID:     &booking.ID,
	})
	if err != nil {
		// The booking row is already committed; surface the stage failure
		// without pretending the booking does not exist.
		s.log.Error("stage transition failed after booking commit", "booking_id", booking.ID, "error", err)
		return nil, err
	}

	stage := transition.ToStage
	if !transition.Applied {
		warnings = append(warnings, transition.Warning)
		stage = transition.FromStage
	}

	s.bus.Publish(ctx, events.BookingCreated{
		BaseEvent:     events.NewBaseEvent(),
		BookingID:     booking.ID,
		OpportunityID: opp.ID,
		OwnerID:       opp.OwnerID,
		Type:          booking.Type,
		StartTime:     booking.StartTime,
		EndTime:       booking.EndTime,
		ContactName:   opp.ContactName,
		ContactPhone:  deref(opp.ContactPhone),
		ContactEmail:  deref(opp.ContactEmail),
		Channel:       channel,
	})

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(booking, opp, stage)
	}

	return &CreateResult{
		Booking:  booking,
		Stage:    stage,
		Warnings: warnings,
	}, nil
}

// SetPublicLinkTTL bounds how long a booking link stays usable, measured
// from the opportunity's creation. Zero disables the bound.
func (s *Service) SetPublicLinkTTL(ttl time.Duration) {
	s.linkTTL = ttl
}

func (s *Service) checkLinkAge(opp *opprepo.Opportunity) error {
	if s.linkTTL > 0 && time.Since(opp.CreatedAt) > s.linkTTL {
		return apperr.Gone("booking link has expired")
	}
	return nil
}

// ResolvePublicLink resolves a booking link token to its opportunity and the
// opportunity's existing bookings. An unknown token is a plain not-found; the
// token itself is the only credential a customer holds.
func (s *Service) ResolvePublicLink(ctx context.Context, token string) (*opprepo.Opportunity, []repository.Booking, error) {
	opp, err := s.opportunities.GetByPublicToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkLinkAge(opp); err != nil {
		return nil, nil, err
	}
	bookings, err := s.repo.ListForOpportunity(ctx, opp.ID)
	if err != nil {
		return nil, nil, err
	}
	return opp, bookings, nil
}

// CreateFromPublicToken books a slot on behalf of the customer holding the
// link token. The opportunity is resolved from the token, never from the
// request body.
func (s *Service) CreateFromPublicToken(ctx context.Context, token string, p CreateParams) (*CreateResult, error) {
	opp, err := s.opportunities.GetByPublicToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.checkLinkAge(opp); err != nil {
		return nil, err
	}
	p.OpportunityID = opp.ID
	p.Channel = ChannelPublic
	p.ActorID = nil
	return s.Create(ctx, p)
}

// CheckAvailability runs the conflict check for a proposed window on the
// opportunity owner's calendar without writing anything.
func (s *Service) CheckAvailability(ctx context.Context, opportunityID uuid.UUID, start time.Time, duration time.Duration) (*ConflictResult, error) {
	if duration < minDurationMinutes*time.Minute || duration > maxDurationMinutes*time.Minute {
		return nil, apperr.Validation(fmt.Sprintf("duration must be between %d and %d minutes", minDurationMinutes, maxDurationMinutes))
	}

	opp, err := s.opportunities.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	start = start.UTC()
	return s.CheckConflict(ctx, opp.OwnerID, start, start.Add(duration))
}

// GetByID fetches a single booking.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*repository.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// SetNotes stores free-text post-call notes on a booking.
func (s *Service) SetNotes(ctx context.Context, id uuid.UUID, notes string) error {
	return s.repo.SetNotes(ctx, id, notes)
}

// ListForOpportunity returns the bookings linked to an opportunity.
func (s *Service) ListForOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]repository.Booking, error) {
	if _, err := s.opportunities.GetByID(ctx, opportunityID); err != nil {
		return nil, err
	}
	return s.repo.ListForOpportunity(ctx, opportunityID)
}

// RecordOutcome sets the post-appointment outcome of a booking.
func (s *Service) RecordOutcome(ctx context.Context, bookingID uuid.UUID, outcome repository.Outcome, actorID *uuid.UUID) (*repository.Booking, error) {
	if !repository.IsKnownOutcome(outcome) || outcome == repository.OutcomePending {
		return nil, apperr.Validation(fmt.Sprintf("invalid booking outcome %q", outcome))
	}

	previous, err := s.repo.UpdateOutcome(ctx, bookingID, outcome)
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if previous != outcome {
		s.bus.Publish(ctx, events.BookingOutcomeRecorded{
			BaseEvent:     events.NewBaseEvent(),
			BookingID:     booking.ID,
			OpportunityID: booking.OpportunityID,
			OwnerID:       booking.OwnerID,
			OldOutcome:    string(previous),
			NewOutcome:    string(outcome),
			ActorID:       actorID,
		})
	}

	return booking, nil
}

// Reschedule marks the old booking rescheduled and creates a replacement at
// the new time. The old booking is never deleted; it simply stops occupying
// the calendar.
func (s *Service) Reschedule(ctx context.Context, bookingID uuid.UUID, newStart time.Time, durationMinutes int, actorID *uuid.UUID) (*CreateResult, error) {
	old, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if old.Outcome != repository.OutcomePending {
		return nil, apperr.Validation(fmt.Sprintf("only pending bookings can be rescheduled, outcome is %s", old.Outcome))
	}

	if _, err := s.repo.UpdateOutcome(ctx, bookingID, repository.OutcomeRescheduled); err != nil {
		return nil, err
	}

	result, err := s.Create(ctx, CreateParams{
		OpportunityID:   old.OpportunityID,
		Type:            old.Type,
		StartTime:       newStart,
		DurationMinutes: durationMinutes,
		Channel:         old.Channel,
		ActorID:         actorID,
	})
	if err != nil {
		// Best effort: give the old booking its slot back so the failed
		// reschedule does not silently free the calendar.
		if _, restoreErr := s.repo.UpdateOutcome(ctx, bookingID, repository.OutcomePending); restoreErr != nil {
			s.log.Error("failed to restore booking after reschedule failure", "booking_id", bookingID, "error", restoreErr)
		}
		return nil, err
	}

	return result, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
