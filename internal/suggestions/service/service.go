// Package service implements the post-call suggestion workflow: notes come
// in for a completed booking, the analyzer proposes a stage, and a human
// reviewer confirms, overrides, or dismisses the proposal exactly once.
package service

import (
	"context"
	"fmt"

	bookrepo "pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/events"
	"pipeline_backend/internal/opportunities/domain"
	opprepo "pipeline_backend/internal/opportunities/repository"
	oppsvc "pipeline_backend/internal/opportunities/service"
	"pipeline_backend/internal/suggestions/analyzer"
	"pipeline_backend/internal/suggestions/repository"
	"pipeline_backend/platform/apperr"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Create(ctx context.Context, p repository.CreateParams) (*repository.Suggestion, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Suggestion, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*repository.Suggestion, error)
	ListPending(ctx context.Context) ([]repository.Suggestion, error)
	ClaimForResolution(ctx context.Context, id uuid.UUID, resolution repository.Resolution, appliedStage *string, resolvedBy *uuid.UUID) (*repository.Suggestion, error)
}

// BookingGateway is the slice of the booking service the workflow needs.
type BookingGateway interface {
	GetByID(ctx context.Context, id uuid.UUID) (*bookrepo.Booking, error)
	SetNotes(ctx context.Context, id uuid.UUID, notes string) error
}

// OpportunityGateway drives stage transitions on review decisions.
type OpportunityGateway interface {
	GetByID(ctx context.Context, id uuid.UUID) (*opprepo.Opportunity, error)
	ApplyTransition(ctx context.Context, p oppsvc.TransitionParams) (*oppsvc.TransitionResult, error)
}

// Analyst produces a stage suggestion from call notes.
type Analyst interface {
	Analyze(ctx context.Context, input analyzer.Input) (*analyzer.Result, error)
}

type Service struct {
	repo          Store
	bookings      BookingGateway
	opportunities OpportunityGateway
	analyst       Analyst
	bus           events.Bus
	log           *logger.Logger
}

func NewService(repo Store, bookings BookingGateway, opportunities OpportunityGateway, analyst Analyst, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:          repo,
		bookings:      bookings,
		opportunities: opportunities,
		analyst:       analyst,
		bus:           bus,
		log:           log,
	}
}

// SubmitNotes stores post-call notes on a completed booking and runs the
// analyst over them. Notes are only accepted once per booking; the analyst
// being down is a retryable upstream failure, not a lost submission.
func (s *Service) SubmitNotes(ctx context.Context, bookingID uuid.UUID, notes string) (*repository.Suggestion, error) {
	if notes == "" {
		return nil, apperr.Validation("notes are required")
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Outcome != bookrepo.OutcomeCompleted {
		return nil, apperr.Validation(fmt.Sprintf("notes require a completed booking, outcome is %s", booking.Outcome))
	}

	if _, err := s.repo.GetByBookingID(ctx, bookingID); err == nil {
		return nil, apperr.Conflict("a suggestion already exists for this booking")
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	cleaned := sanitize.Text(notes)
	if err := s.bookings.SetNotes(ctx, bookingID, cleaned); err != nil {
		return nil, err
	}

	opp, err := s.opportunities.GetByID(ctx, booking.OpportunityID)
	if err != nil {
		return nil, err
	}

	if s.analyst == nil {
		return nil, apperr.Unavailable("suggestion analysis is not configured")
	}

	result, err := s.analyst.Analyze(ctx, analyzer.Input{
		ContactName:  opp.ContactName,
		CurrentStage: opp.Stage,
		BookingType:  booking.Type,
		Notes:        cleaned,
	})
	if err != nil {
		s.log.Error("suggestion analysis failed", "booking_id", bookingID, "error", err)
		return nil, apperr.Unavailable("suggestion analysis failed; notes are saved, submit again to retry")
	}

	suggestion, err := s.repo.Create(ctx, repository.CreateParams{
		BookingID:      booking.ID,
		OpportunityID:  booking.OpportunityID,
		SuggestedStage: result.Stage,
		Confidence:     result.Confidence,
		Reasoning:      result.Reasoning,
		Sentiment:      result.Sentiment,
		Objections:     result.Objections,
		Followups:      result.Followups,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.SuggestionCreated{
		BaseEvent:      events.NewBaseEvent(),
		SuggestionID:   suggestion.ID,
		BookingID:      suggestion.BookingID,
		OpportunityID:  suggestion.OpportunityID,
		OwnerID:        opp.OwnerID,
		SuggestedStage: suggestion.SuggestedStage,
		Confidence:     suggestion.Confidence,
	})

	return suggestion, nil
}

// GetByID fetches a single suggestion.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*repository.Suggestion, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForBooking fetches the suggestion attached to a booking.
func (s *Service) GetForBooking(ctx context.Context, bookingID uuid.UUID) (*repository.Suggestion, error) {
	return s.repo.GetByBookingID(ctx, bookingID)
}

// ListPending returns the review queue.
func (s *Service) ListPending(ctx context.Context) ([]repository.Suggestion, error) {
	return s.repo.ListPending(ctx)
}

// ReviewResult reports what a review decision did.
type ReviewResult struct {
	Suggestion *repository.Suggestion
	Applied    bool
	Stage      domain.Stage
	Warning    string
}

// Confirm accepts the analyst's proposal. The transition is recorded as a
// system action; the reviewer only unblocked it. A no-change proposal
// resolves without touching the stage.
func (s *Service) Confirm(ctx context.Context, suggestionID uuid.UUID, reviewerID uuid.UUID) (*ReviewResult, error) {
	suggestion, err := s.repo.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}

	noChange := suggestion.SuggestedStage == analyzer.NoChange
	if !noChange {
		opp, err := s.opportunities.GetByID(ctx, suggestion.OpportunityID)
		if err != nil {
			return nil, err
		}
		noChange = suggestion.SuggestedStage == string(opp.Stage)
	}

	if noChange {
		claimed, err := s.repo.ClaimForResolution(ctx, suggestionID, repository.ResolutionConfirmed, nil, &reviewerID)
		if err != nil {
			return nil, err
		}
		s.publishResolved(ctx, claimed, "confirmed", "", reviewerID)
		return &ReviewResult{Suggestion: claimed, Applied: false}, nil
	}

	applied := suggestion.SuggestedStage
	claimed, err := s.repo.ClaimForResolution(ctx, suggestionID, repository.ResolutionConfirmed, &applied, &reviewerID)
	if err != nil {
		return nil, err
	}

	return s.applyReviewTransition(ctx, claimed, domain.Stage(applied), domain.TriggerSuggestionConfirmed, nil, reviewerID, "confirmed", claimed.Reasoning)
}

// Override resolves the suggestion with a stage the reviewer chose instead.
// Unlike Confirm, the transition carries the reviewer as actor.
func (s *Service) Override(ctx context.Context, suggestionID uuid.UUID, toStage domain.Stage, reviewerID uuid.UUID) (*ReviewResult, error) {
	if !domain.IsKnownStage(toStage) {
		return nil, apperr.Validation(fmt.Sprintf("unknown stage %q", toStage))
	}

	applied := string(toStage)
	claimed, err := s.repo.ClaimForResolution(ctx, suggestionID, repository.ResolutionOverridden, &applied, &reviewerID)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("overrode post-call suggestion of %s (confidence %d)", claimed.SuggestedStage, claimed.Confidence)
	return s.applyReviewTransition(ctx, claimed, toStage, domain.TriggerSuggestionOverridden, &reviewerID, reviewerID, "overridden", note)
}

// Dismiss resolves the suggestion without any stage change.
func (s *Service) Dismiss(ctx context.Context, suggestionID uuid.UUID, reviewerID uuid.UUID) (*ReviewResult, error) {
	claimed, err := s.repo.ClaimForResolution(ctx, suggestionID, repository.ResolutionDismissed, nil, &reviewerID)
	if err != nil {
		return nil, err
	}
	s.publishResolved(ctx, claimed, "dismissed", "", reviewerID)
	return &ReviewResult{Suggestion: claimed, Applied: false}, nil
}

func (s *Service) applyReviewTransition(ctx context.Context, suggestion *repository.Suggestion, toStage domain.Stage, trigger domain.Trigger, actorID *uuid.UUID, reviewerID uuid.UUID, resolution, note string) (*ReviewResult, error) {
	transition, err := s.opportunities.ApplyTransition(ctx, oppsvc.TransitionParams{
		OpportunityID: suggestion.OpportunityID,
		ToStage:       toStage,
		Trigger:       trigger,
		ActorID:       actorID,
		Note:          &note,
		BookingID:     &suggestion.BookingID,
	})
	if err != nil {
		// The suggestion is already resolved; surface the transition failure
		// rather than pretending the stage moved.
		s.log.Error("stage transition failed after suggestion resolution", "suggestion_id", suggestion.ID, "error", err)
		return nil, err
	}

	result := &ReviewResult{
		Suggestion: suggestion,
		Applied:    transition.Applied,
		Stage:      transition.ToStage,
	}
	if !transition.Applied {
		result.Stage = transition.FromStage
		result.Warning = transition.Warning
	}

	appliedStage := ""
	if transition.Applied {
		appliedStage = string(toStage)
	}
	s.publishResolved(ctx, suggestion, resolution, appliedStage, reviewerID)

	return result, nil
}

func (s *Service) publishResolved(ctx context.Context, suggestion *repository.Suggestion, resolution, appliedStage string, reviewerID uuid.UUID) {
	s.bus.Publish(ctx, events.SuggestionResolved{
		BaseEvent:     events.NewBaseEvent(),
		SuggestionID:  suggestion.ID,
		BookingID:     suggestion.BookingID,
		OpportunityID: suggestion.OpportunityID,
		Resolution:    resolution,
		AppliedStage:  appliedStage,
		ActorID:       reviewerID,
	})
}
