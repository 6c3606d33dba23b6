// Package service implements opportunity lifecycle operations. All stage
// mutations flow through ApplyTransition; no other code path writes the
// stage field.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"pipeline_backend/internal/events"
	"pipeline_backend/internal/opportunities/domain"
	"pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/platform/apperr"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/phone"
	"pipeline_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Create(ctx context.Context, p repository.CreateParams) (*repository.Opportunity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Opportunity, error)
	GetByPublicToken(ctx context.Context, token string) (*repository.Opportunity, error)
	List(ctx context.Context, p repository.ListParams) ([]repository.Opportunity, int, error)
	ApplyStage(ctx context.Context, p repository.ApplyStageParams) (repository.ApplyStageResult, error)
	ListStageLog(ctx context.Context, opportunityID uuid.UUID) ([]repository.StageLogEntry, error)
}

type Service struct {
	repo Store
	bus  events.Bus
	log  *logger.Logger
}

func NewService(repo Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// CreateParams holds the fields for opening a new opportunity.
type CreateParams struct {
	OwnerID            uuid.UUID
	ContactName        string
	ContactPhone       *string
	ContactEmail       *string
	ValueEstimateCents *int64
}

// Create opens a new opportunity in the new_enquiry stage.
func (s *Service) Create(ctx context.Context, p CreateParams) (*repository.Opportunity, error) {
	if p.ContactName == "" {
		return nil, apperr.Validation("contact name is required")
	}

	contactPhone := p.ContactPhone
	if contactPhone != nil {
		normalized := phone.NormalizeE164(*contactPhone)
		contactPhone = &normalized
	}

	opp, err := s.repo.Create(ctx, repository.CreateParams{
		OwnerID:            p.OwnerID,
		ContactName:        sanitize.Text(p.ContactName),
		ContactPhone:       contactPhone,
		ContactEmail:       p.ContactEmail,
		ValueEstimateCents: p.ValueEstimateCents,
		PublicToken:        newPublicToken(),
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.OpportunityCreated{
		BaseEvent:     events.NewBaseEvent(),
		OpportunityID: opp.ID,
		OwnerID:       opp.OwnerID,
		ContactName:   opp.ContactName,
		ContactPhone:  deref(opp.ContactPhone),
		ContactEmail:  deref(opp.ContactEmail),
	})

	return opp, nil
}

// GetByID fetches a single opportunity.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*repository.Opportunity, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByPublicToken resolves a public booking token to its opportunity.
func (s *Service) GetByPublicToken(ctx context.Context, token string) (*repository.Opportunity, error) {
	if token == "" {
		return nil, apperr.NotFound("opportunity not found")
	}
	return s.repo.GetByPublicToken(ctx, token)
}

// List returns opportunities matching the filters.
func (s *Service) List(ctx context.Context, p repository.ListParams) ([]repository.Opportunity, int, error) {
	return s.repo.List(ctx, p)
}

// GetStageLog returns the ordered transition history.
func (s *Service) GetStageLog(ctx context.Context, opportunityID uuid.UUID) ([]repository.StageLogEntry, error) {
	if _, err := s.repo.GetByID(ctx, opportunityID); err != nil {
		return nil, err
	}
	return s.repo.ListStageLog(ctx, opportunityID)
}

// TransitionParams describes one requested stage transition.
type TransitionParams struct {
	OpportunityID uuid.UUID
	ToStage       domain.Stage
	Trigger       domain.Trigger
	ActorID       *uuid.UUID
	Note          *string
	LostReason    *string
	BookingID     *uuid.UUID
}

// TransitionResult reports what a transition request did. Applied=false with
// a warning means the opportunity was already in a terminal stage and the
// request was ignored.
type TransitionResult struct {
	Applied   bool
	FromStage domain.Stage
	ToStage   domain.Stage
	Warning   string
}

// ApplyTransition is the single gateway for stage mutation. It validates
// the trigger's allow-list, writes the stage and the audit entry atomically,
// and publishes the stage-changed event. A terminal current stage turns the
// request into a warning no-op.
func (s *Service) ApplyTransition(ctx context.Context, p TransitionParams) (*TransitionResult, error) {
	if !domain.IsKnownTrigger(p.Trigger) {
		return nil, apperr.Validation(fmt.Sprintf("unknown transition trigger %q", p.Trigger))
	}
	if !domain.TransitionAllowed(p.Trigger, p.ToStage) {
		return nil, apperr.Validation(fmt.Sprintf("trigger %s may not move an opportunity to %s", p.Trigger, p.ToStage))
	}
	if domain.RequiresActor(p.Trigger) && p.ActorID == nil {
		return nil, apperr.Validation(fmt.Sprintf("trigger %s requires a staff actor", p.Trigger))
	}

	result, err := s.repo.ApplyStage(ctx, repository.ApplyStageParams{
		OpportunityID: p.OpportunityID,
		ToStage:       p.ToStage,
		Trigger:       p.Trigger,
		ActorID:       p.ActorID,
		Note:          p.Note,
		LostReason:    p.LostReason,
	})
	if err != nil {
		return nil, err
	}

	if !result.Applied {
		return &TransitionResult{
			Applied:   false,
			FromStage: result.FromStage,
			ToStage:   result.FromStage,
			Warning:   fmt.Sprintf("opportunity is in terminal stage %s; transition to %s ignored", result.FromStage, p.ToStage),
		}, nil
	}

	opp, err := s.repo.GetByID(ctx, p.OpportunityID)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.StageChanged{
		BaseEvent:     events.NewBaseEvent(),
		OpportunityID: p.OpportunityID,
		OwnerID:       opp.OwnerID,
		FromStage:     string(result.FromStage),
		ToStage:       string(p.ToStage),
		Trigger:       string(p.Trigger),
		ActorID:       p.ActorID,
		BookingID:     p.BookingID,
	})

	if p.ToStage == domain.StageLost {
		s.bus.Publish(ctx, events.OpportunityLost{
			BaseEvent:     events.NewBaseEvent(),
			OpportunityID: p.OpportunityID,
			OwnerID:       opp.OwnerID,
			Reason:        deref(p.LostReason),
			ActorID:       p.ActorID,
		})
	}

	return &TransitionResult{
		Applied:   true,
		FromStage: result.FromStage,
		ToStage:   p.ToStage,
	}, nil
}

// MarkLost closes an opportunity as lost with a reason code.
func (s *Service) MarkLost(ctx context.Context, opportunityID uuid.UUID, actorID uuid.UUID, reason string) (*TransitionResult, error) {
	if reason == "" {
		return nil, apperr.Validation("lost reason is required")
	}
	note := "closed as lost: " + reason
	return s.ApplyTransition(ctx, TransitionParams{
		OpportunityID: opportunityID,
		ToStage:       domain.StageLost,
		Trigger:       domain.TriggerMarkLost,
		ActorID:       &actorID,
		Note:          &note,
		LostReason:    &reason,
	})
}

// MarkComplete closes an opportunity as won and delivered.
func (s *Service) MarkComplete(ctx context.Context, opportunityID uuid.UUID, actorID uuid.UUID) (*TransitionResult, error) {
	return s.ApplyTransition(ctx, TransitionParams{
		OpportunityID: opportunityID,
		ToStage:       domain.StageComplete,
		Trigger:       domain.TriggerMarkComplete,
		ActorID:       &actorID,
	})
}

// RecordDepositPaid moves the opportunity to deposit_paid after payment.
func (s *Service) RecordDepositPaid(ctx context.Context, opportunityID uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error) {
	return s.ApplyTransition(ctx, TransitionParams{
		OpportunityID: opportunityID,
		ToStage:       domain.StageDepositPaid,
		Trigger:       domain.TriggerDepositPaid,
		ActorID:       actorID,
	})
}

// RecordOnboardingComplete moves the opportunity to onboarding_complete.
func (s *Service) RecordOnboardingComplete(ctx context.Context, opportunityID uuid.UUID, actorID *uuid.UUID) (*TransitionResult, error) {
	return s.ApplyTransition(ctx, TransitionParams{
		OpportunityID: opportunityID,
		ToStage:       domain.StageOnboardingComplete,
		Trigger:       domain.TriggerOnboardingComplete,
		ActorID:       actorID,
	})
}

// ManualOverride moves the opportunity to an arbitrary stage on behalf of a
// staff member.
func (s *Service) ManualOverride(ctx context.Context, opportunityID uuid.UUID, actorID uuid.UUID, toStage domain.Stage, note *string) (*TransitionResult, error) {
	return s.ApplyTransition(ctx, TransitionParams{
		OpportunityID: opportunityID,
		ToStage:       toStage,
		Trigger:       domain.TriggerManualOverride,
		ActorID:       &actorID,
		Note:          note,
	})
}

// ReplayLog folds the ordered audit entries into the stage they produce.
// The result must always match the opportunity's current stage.
func ReplayLog(entries []repository.StageLogEntry) domain.Stage {
	var current domain.Stage
	for _, entry := range entries {
		current = entry.ToStage
	}
	return current
}

func newPublicToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(buf)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
