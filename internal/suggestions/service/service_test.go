package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	bookrepo "pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/events"
	"pipeline_backend/internal/opportunities/domain"
	opprepo "pipeline_backend/internal/opportunities/repository"
	oppsvc "pipeline_backend/internal/opportunities/service"
	"pipeline_backend/internal/suggestions/analyzer"
	"pipeline_backend/internal/suggestions/repository"
	"pipeline_backend/platform/apperr"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	suggestions map[uuid.UUID]*repository.Suggestion
}

func newFakeStore() *fakeStore {
	return &fakeStore{suggestions: make(map[uuid.UUID]*repository.Suggestion)}
}

func (f *fakeStore) Create(_ context.Context, p repository.CreateParams) (*repository.Suggestion, error) {
	for _, s := range f.suggestions {
		if s.BookingID == p.BookingID {
			return nil, apperr.Conflict("a suggestion already exists for this booking")
		}
	}
	s := &repository.Suggestion{
		ID:             uuid.New(),
		BookingID:      p.BookingID,
		OpportunityID:  p.OpportunityID,
		Status:         repository.StatusSuggested,
		SuggestedStage: p.SuggestedStage,
		Confidence:     p.Confidence,
		Reasoning:      p.Reasoning,
		Sentiment:      p.Sentiment,
		Objections:     p.Objections,
		Followups:      p.Followups,
		CreatedAt:      time.Now(),
	}
	f.suggestions[s.ID] = s
	return s, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*repository.Suggestion, error) {
	s, ok := f.suggestions[id]
	if !ok {
		return nil, apperr.NotFound("suggestion not found")
	}
	return s, nil
}

func (f *fakeStore) GetByBookingID(_ context.Context, bookingID uuid.UUID) (*repository.Suggestion, error) {
	for _, s := range f.suggestions {
		if s.BookingID == bookingID {
			return s, nil
		}
	}
	return nil, apperr.NotFound("suggestion not found")
}

func (f *fakeStore) ListPending(_ context.Context) ([]repository.Suggestion, error) {
	var out []repository.Suggestion
	for _, s := range f.suggestions {
		if s.Status == repository.StatusSuggested {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) ClaimForResolution(_ context.Context, id uuid.UUID, resolution repository.Resolution, appliedStage *string, resolvedBy *uuid.UUID) (*repository.Suggestion, error) {
	s, ok := f.suggestions[id]
	if !ok {
		return nil, apperr.NotFound("suggestion not found")
	}
	if s.Status == repository.StatusResolved {
		return nil, apperr.Conflict("suggestion is already resolved")
	}
	now := time.Now()
	s.Status = repository.StatusResolved
	s.Resolution = &resolution
	s.AppliedStage = appliedStage
	s.ResolvedBy = resolvedBy
	s.ResolvedAt = &now
	return s, nil
}

type fakeBookings struct {
	bookings map[uuid.UUID]*bookrepo.Booking
}

func (f *fakeBookings) GetByID(_ context.Context, id uuid.UUID) (*bookrepo.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking not found")
	}
	return b, nil
}

func (f *fakeBookings) SetNotes(_ context.Context, id uuid.UUID, notes string) error {
	b, ok := f.bookings[id]
	if !ok {
		return apperr.NotFound("booking not found")
	}
	b.Notes = &notes
	return nil
}

type fakeOpportunities struct {
	opportunities map[uuid.UUID]*opprepo.Opportunity
	transitions   []oppsvc.TransitionParams
}

func (f *fakeOpportunities) GetByID(_ context.Context, id uuid.UUID) (*opprepo.Opportunity, error) {
	opp, ok := f.opportunities[id]
	if !ok {
		return nil, apperr.NotFound("opportunity not found")
	}
	return opp, nil
}

func (f *fakeOpportunities) ApplyTransition(_ context.Context, p oppsvc.TransitionParams) (*oppsvc.TransitionResult, error) {
	opp, ok := f.opportunities[p.OpportunityID]
	if !ok {
		return nil, apperr.NotFound("opportunity not found")
	}
	f.transitions = append(f.transitions, p)
	if domain.IsTerminal(opp.Stage) {
		return &oppsvc.TransitionResult{Applied: false, FromStage: opp.Stage, ToStage: opp.Stage, Warning: "terminal"}, nil
	}
	from := opp.Stage
	opp.Stage = p.ToStage
	return &oppsvc.TransitionResult{Applied: true, FromStage: from, ToStage: p.ToStage}, nil
}

type fakeAnalyst struct {
	result *analyzer.Result
	err    error
	calls  int
}

func (f *fakeAnalyst) Analyze(_ context.Context, _ analyzer.Input) (*analyzer.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fixture struct {
	store         *fakeStore
	bookings      *fakeBookings
	opportunities *fakeOpportunities
	analyst       *fakeAnalyst
	svc           *Service
	booking       *bookrepo.Booking
	opp           *opprepo.Opportunity
}

func newFixture(outcome bookrepo.Outcome, stage domain.Stage) *fixture {
	opp := &opprepo.Opportunity{
		ID:          uuid.New(),
		Stage:       stage,
		OwnerID:     uuid.New(),
		ContactName: "Jamie Visser",
	}
	booking := &bookrepo.Booking{
		ID:            uuid.New(),
		OpportunityID: opp.ID,
		OwnerID:       opp.OwnerID,
		Type:          "initial-consultation",
		Outcome:       outcome,
	}

	store := newFakeStore()
	bookings := &fakeBookings{bookings: map[uuid.UUID]*bookrepo.Booking{booking.ID: booking}}
	opportunities := &fakeOpportunities{opportunities: map[uuid.UUID]*opprepo.Opportunity{opp.ID: opp}}
	analyst := &fakeAnalyst{result: &analyzer.Result{
		Stage:      string(domain.StageQualified),
		Confidence: 80,
		Reasoning:  "Budget confirmed.",
		Sentiment:  "positive",
		Objections: []string{},
		Followups:  []string{"Book the design call"},
	}}

	log := logger.New("development")
	svc := NewService(store, bookings, opportunities, analyst, events.NewInMemoryBus(log), log)

	return &fixture{
		store:         store,
		bookings:      bookings,
		opportunities: opportunities,
		analyst:       analyst,
		svc:           svc,
		booking:       booking,
		opp:           opp,
	}
}

func TestSubmitNotesCreatesSuggestion(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)

	suggestion, err := f.svc.SubmitNotes(context.Background(), f.booking.ID, "Great call, budget confirmed.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suggestion.Status != repository.StatusSuggested {
		t.Fatalf("expected suggested status, got %s", suggestion.Status)
	}
	if suggestion.SuggestedStage != string(domain.StageQualified) {
		t.Fatalf("unexpected suggested stage: %s", suggestion.SuggestedStage)
	}
	if f.booking.Notes == nil {
		t.Fatalf("expected notes stored on booking")
	}
}

func TestSubmitNotesRequiresCompletedBooking(t *testing.T) {
	f := newFixture(bookrepo.OutcomePending, domain.StageCall1Scheduled)

	_, err := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitNotesRejectsSecondSubmission(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)

	if _, err := f.svc.SubmitNotes(context.Background(), f.booking.ID, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := f.svc.SubmitNotes(context.Background(), f.booking.ID, "second")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.analyst.calls != 1 {
		t.Fatalf("expected analyst to run once, ran %d times", f.analyst.calls)
	}
}

func TestSubmitNotesAnalyzerFailureIsRetryable(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)
	f.analyst.err = errors.New("model timeout")

	_, err := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if len(f.store.suggestions) != 0 {
		t.Fatalf("expected no suggestion stored on analyzer failure")
	}

	// The failure must not consume the one submission slot.
	f.analyst.err = nil
	if _, err := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestConfirmAppliesSuggestedStage(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)
	suggestion, _ := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")
	reviewer := uuid.New()

	result, err := f.svc.Confirm(context.Background(), suggestion.ID, reviewer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Applied || result.Stage != domain.StageQualified {
		t.Fatalf("expected stage applied, got %+v", result)
	}
	if f.opp.Stage != domain.StageQualified {
		t.Fatalf("expected opportunity moved to qualified, got %s", f.opp.Stage)
	}
	if len(f.opportunities.transitions) != 1 {
		t.Fatalf("expected one transition")
	}
	tr := f.opportunities.transitions[0]
	if tr.Trigger != domain.TriggerSuggestionConfirmed {
		t.Fatalf("unexpected trigger: %s", tr.Trigger)
	}
	if tr.ActorID != nil {
		t.Fatalf("confirm must be recorded as a system action")
	}
	if tr.Note == nil || *tr.Note != "Budget confirmed." {
		t.Fatalf("confirm note must carry the suggestion reasoning, got %v", tr.Note)
	}
}

func TestResolutionIsOneShot(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)
	suggestion, _ := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")
	reviewer := uuid.New()

	if _, err := f.svc.Confirm(context.Background(), suggestion.ID, reviewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.svc.Confirm(context.Background(), suggestion.ID, reviewer); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on second confirm, got %v", err)
	}
	if _, err := f.svc.Override(context.Background(), suggestion.ID, domain.StageLost, reviewer); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on override after confirm, got %v", err)
	}
	if _, err := f.svc.Dismiss(context.Background(), suggestion.ID, reviewer); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on dismiss after confirm, got %v", err)
	}
	if len(f.opportunities.transitions) != 1 {
		t.Fatalf("expected exactly one transition, got %d", len(f.opportunities.transitions))
	}
}

func TestOverrideUsesReviewerStageAndActor(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)
	suggestion, _ := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")
	reviewer := uuid.New()

	result, err := f.svc.Override(context.Background(), suggestion.ID, domain.StageProposalAgreed, reviewer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Applied || result.Stage != domain.StageProposalAgreed {
		t.Fatalf("expected proposal_agreed applied, got %+v", result)
	}
	tr := f.opportunities.transitions[0]
	if tr.Trigger != domain.TriggerSuggestionOverridden {
		t.Fatalf("unexpected trigger: %s", tr.Trigger)
	}
	if tr.ActorID == nil || *tr.ActorID != reviewer {
		t.Fatalf("override must carry the reviewer as actor")
	}
	if tr.Note == nil || !strings.Contains(*tr.Note, string(domain.StageQualified)) {
		t.Fatalf("override note must record the overridden proposal, got %v", tr.Note)
	}
}

func TestConfirmNoChangeSkipsTransition(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)
	f.analyst.result = &analyzer.Result{
		Stage:      analyzer.NoChange,
		Confidence: 55,
		Reasoning:  "Nothing decided.",
		Sentiment:  "neutral",
		Objections: []string{},
		Followups:  []string{},
	}
	suggestion, _ := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")

	result, err := f.svc.Confirm(context.Background(), suggestion.ID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied {
		t.Fatalf("no-change confirm must not apply a stage")
	}
	if len(f.opportunities.transitions) != 0 {
		t.Fatalf("expected no transitions, got %d", len(f.opportunities.transitions))
	}
	if f.opp.Stage != domain.StageCall1Scheduled {
		t.Fatalf("expected stage unchanged")
	}
}

func TestConfirmCurrentStageSkipsTransition(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)
	f.analyst.result = &analyzer.Result{
		Stage:      string(domain.StageCall1Scheduled),
		Confidence: 70,
		Reasoning:  "Call went ahead as planned.",
		Sentiment:  "neutral",
		Objections: []string{},
		Followups:  []string{},
	}
	suggestion, _ := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")

	result, err := f.svc.Confirm(context.Background(), suggestion.ID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied {
		t.Fatalf("confirming the current stage must not apply a transition")
	}
	if len(f.opportunities.transitions) != 0 {
		t.Fatalf("expected no transitions, got %d", len(f.opportunities.transitions))
	}
	if result.Suggestion.Resolution == nil || *result.Suggestion.Resolution != repository.ResolutionConfirmed {
		t.Fatalf("expected suggestion resolved as confirmed")
	}
}

func TestConfirmOnTerminalOpportunityWarns(t *testing.T) {
	f := newFixture(bookrepo.OutcomeCompleted, domain.StageCall1Scheduled)
	suggestion, _ := f.svc.SubmitNotes(context.Background(), f.booking.ID, "notes")
	f.opp.Stage = domain.StageLost

	result, err := f.svc.Confirm(context.Background(), suggestion.ID, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied {
		t.Fatalf("expected no-op on terminal opportunity")
	}
	if result.Warning == "" {
		t.Fatalf("expected a warning")
	}
}
