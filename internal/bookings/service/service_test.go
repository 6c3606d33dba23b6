package service

import (
	"context"
	"errors"
	"testing"
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

type fakeStore struct {
	bookings map[uuid.UUID]*repository.Booking
}

func newFakeStore() *fakeStore {
	return &fakeStore{bookings: make(map[uuid.UUID]*repository.Booking)}
}

func (f *fakeStore) occupies(b *repository.Booking) bool {
	switch b.Outcome {
	case repository.OutcomeRescheduled, repository.OutcomeNoShow, repository.OutcomeCancelled:
		return false
	default:
		return true
	}
}

func (f *fakeStore) CreateWithSlotGuard(_ context.Context, p repository.CreateParams) (*repository.Booking, error) {
	for _, b := range f.bookings {
		if b.OwnerID == p.OwnerID && f.occupies(b) && p.StartTime.Before(b.EndTime) && p.EndTime.After(b.StartTime) {
			return nil, apperr.Conflict("slot unavailable")
		}
	}
	booking := &repository.Booking{
		ID:              uuid.New(),
		OpportunityID:   p.OpportunityID,
		OwnerID:         p.OwnerID,
		Type:            p.Type,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		DurationMinutes: int(p.EndTime.Sub(p.StartTime) / time.Minute),
		Outcome:         repository.OutcomePending,
		Channel:         p.Channel,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	f.bookings[booking.ID] = booking
	return booking, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*repository.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking not found")
	}
	return b, nil
}

func (f *fakeStore) ListNearby(_ context.Context, ownerID uuid.UUID, from, to time.Time, margin time.Duration) ([]repository.Booking, error) {
	var out []repository.Booking
	for _, b := range f.bookings {
		if b.OwnerID != ownerID || !f.occupies(b) {
			continue
		}
		if b.StartTime.Before(to.Add(margin)) && b.EndTime.After(from.Add(-margin)) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListForOpportunity(_ context.Context, opportunityID uuid.UUID) ([]repository.Booking, error) {
	var out []repository.Booking
	for _, b := range f.bookings {
		if b.OpportunityID == opportunityID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateOutcome(_ context.Context, id uuid.UUID, outcome repository.Outcome) (repository.Outcome, error) {
	b, ok := f.bookings[id]
	if !ok {
		return "", apperr.NotFound("booking not found")
	}
	previous := b.Outcome
	b.Outcome = outcome
	return previous, nil
}

func (f *fakeStore) SetNotes(_ context.Context, id uuid.UUID, notes string) error {
	b, ok := f.bookings[id]
	if !ok {
		return apperr.NotFound("booking not found")
	}
	b.Notes = &notes
	return nil
}

func (f *fakeStore) SetCalendarSync(_ context.Context, id uuid.UUID, eventID string, meetingLink *string) error {
	b, ok := f.bookings[id]
	if !ok {
		return apperr.NotFound("booking not found")
	}
	b.CalendarEventID = &eventID
	b.MeetingLink = meetingLink
	return nil
}

type fakeCalendar struct {
	busy []calendar.BusyInterval
	err  error
}

func (f *fakeCalendar) FreeBusy(_ context.Context, _, _ time.Time) ([]calendar.BusyInterval, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.busy, nil
}

type fakeGateway struct {
	opportunities map[uuid.UUID]*opprepo.Opportunity
	transitions   []oppsvc.TransitionParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{opportunities: make(map[uuid.UUID]*opprepo.Opportunity)}
}

func (f *fakeGateway) seed(stage domain.Stage) *opprepo.Opportunity {
	opp := &opprepo.Opportunity{
		ID:          uuid.New(),
		Stage:       stage,
		OwnerID:     uuid.New(),
		ContactName: "Jamie Visser",
		PublicToken: uuid.NewString(),
	}
	f.opportunities[opp.ID] = opp
	return opp
}

func (f *fakeGateway) GetByID(_ context.Context, id uuid.UUID) (*opprepo.Opportunity, error) {
	opp, ok := f.opportunities[id]
	if !ok {
		return nil, apperr.NotFound("opportunity not found")
	}
	return opp, nil
}

func (f *fakeGateway) GetByPublicToken(_ context.Context, token string) (*opprepo.Opportunity, error) {
	for _, opp := range f.opportunities {
		if opp.PublicToken == token {
			return opp, nil
		}
	}
	return nil, apperr.NotFound("opportunity not found")
}

func (f *fakeGateway) ApplyTransition(_ context.Context, p oppsvc.TransitionParams) (*oppsvc.TransitionResult, error) {
	opp, ok := f.opportunities[p.OpportunityID]
	if !ok {
		return nil, apperr.NotFound("opportunity not found")
	}
	f.transitions = append(f.transitions, p)
	if domain.IsTerminal(opp.Stage) {
		return &oppsvc.TransitionResult{
			Applied:   false,
			FromStage: opp.Stage,
			ToStage:   opp.Stage,
			Warning:   "opportunity is in terminal stage",
		}, nil
	}
	from := opp.Stage
	opp.Stage = p.ToStage
	return &oppsvc.TransitionResult{Applied: true, FromStage: from, ToStage: p.ToStage}, nil
}

type fakeDispatcher struct {
	calls int
}

func (f *fakeDispatcher) Dispatch(_ *repository.Booking, _ *opprepo.Opportunity, _ domain.Stage) {
	f.calls++
}

func newTestService(store *fakeStore, cal *fakeCalendar, gateway *fakeGateway, dispatcher Dispatcher) *Service {
	log := logger.New("development")
	return NewService(store, cal, gateway, dispatcher, events.NewInMemoryBus(log), log)
}

func TestCreateBookingAdvancesStage(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	dispatcher := &fakeDispatcher{}
	svc := newTestService(store, &fakeCalendar{}, gateway, dispatcher)
	opp := gateway.seed(domain.StageNewEnquiry)

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	result, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: opp.ID,
		Type:          "initial-consultation",
		StartTime:     start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Booking.Outcome != repository.OutcomePending {
		t.Fatalf("expected pending outcome, got %s", result.Booking.Outcome)
	}
	if result.Booking.DurationMinutes != 30 {
		t.Fatalf("expected default 30 minute duration, got %d", result.Booking.DurationMinutes)
	}
	if result.Stage != domain.StageCall1Scheduled {
		t.Fatalf("expected stage call1_scheduled, got %s", result.Stage)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
	if dispatcher.calls != 1 {
		t.Fatalf("expected dispatcher to be invoked once, got %d", dispatcher.calls)
	}
	if len(gateway.transitions) != 1 || gateway.transitions[0].Trigger != domain.TriggerBookingCreated {
		t.Fatalf("expected one booking_created transition")
	}
}

func TestCreateBookingOverlapConflicts(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, nil)
	oppA := gateway.seed(domain.StageNewEnquiry)
	oppB := gateway.seed(domain.StageNewEnquiry)
	oppB.OwnerID = oppA.OwnerID

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppA.ID,
		Type:          "initial-consultation",
		StartTime:     start,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppB.ID,
		Type:          "initial-consultation",
		StartTime:     start.Add(15 * time.Minute),
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if len(store.bookings) != 1 {
		t.Fatalf("expected no booking row after conflict, got %d", len(store.bookings))
	}
	if oppB.Stage != domain.StageNewEnquiry {
		t.Fatalf("expected stage unchanged after conflict, got %s", oppB.Stage)
	}
}

func TestCreateBookingBackToBackIsAllowed(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, nil)
	oppA := gateway.seed(domain.StageNewEnquiry)
	oppB := gateway.seed(domain.StageNewEnquiry)
	oppB.OwnerID = oppA.OwnerID

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppA.ID,
		Type:          "initial-consultation",
		StartTime:     start,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppB.ID,
		Type:          "initial-consultation",
		StartTime:     start.Add(30 * time.Minute),
	}); err != nil {
		t.Fatalf("expected back-to-back booking to succeed, got %v", err)
	}
}

func TestCreateBookingIgnoresRescheduledSlots(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, nil)
	oppA := gateway.seed(domain.StageNewEnquiry)
	oppB := gateway.seed(domain.StageNewEnquiry)
	oppB.OwnerID = oppA.OwnerID

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	first, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppA.ID,
		Type:          "initial-consultation",
		StartTime:     start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.bookings[first.Booking.ID].Outcome = repository.OutcomeRescheduled

	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppB.ID,
		Type:          "initial-consultation",
		StartTime:     start,
	}); err != nil {
		t.Fatalf("expected rescheduled slot to be free, got %v", err)
	}
}

func TestCreateBookingCalendarBusyConflicts(t *testing.T) {
	gateway := newFakeGateway()
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	cal := &fakeCalendar{busy: []calendar.BusyInterval{{Start: start, End: start.Add(30 * time.Minute)}}}
	svc := newTestService(newFakeStore(), cal, gateway, nil)
	opp := gateway.seed(domain.StageNewEnquiry)

	_, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: opp.ID,
		Type:          "initial-consultation",
		StartTime:     start.Add(15 * time.Minute),
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict from calendar busy interval, got %v", err)
	}
}

func TestCreateBookingDegradesWhenCalendarDown(t *testing.T) {
	gateway := newFakeGateway()
	cal := &fakeCalendar{err: errors.New("connection refused")}
	svc := newTestService(newFakeStore(), cal, gateway, nil)
	opp := gateway.seed(domain.StageNewEnquiry)

	result, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: opp.ID,
		Type:          "initial-consultation",
		StartTime:     time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected calendar outage to degrade, got %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected degraded-check warning, got %v", result.Warnings)
	}
}

func TestCreateBookingValidation(t *testing.T) {
	gateway := newFakeGateway()
	svc := newTestService(newFakeStore(), &fakeCalendar{}, gateway, nil)
	opp := gateway.seed(domain.StageNewEnquiry)
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: opp.ID,
		Type:          "site-survey",
		StartTime:     start,
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}

	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID:   opp.ID,
		Type:            "initial-consultation",
		StartTime:       start,
		DurationMinutes: 5,
	}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for short duration, got %v", err)
	}

	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: uuid.New(),
		Type:          "initial-consultation",
		StartTime:     start,
	}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown opportunity, got %v", err)
	}
}

func TestCreateBookingTerminalOpportunityWarns(t *testing.T) {
	gateway := newFakeGateway()
	svc := newTestService(newFakeStore(), &fakeCalendar{}, gateway, nil)
	opp := gateway.seed(domain.StageLost)

	result, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: opp.ID,
		Type:          "initial-consultation",
		StartTime:     time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected exactly one terminal-stage warning, got %v", result.Warnings)
	}
	if result.Stage != domain.StageLost {
		t.Fatalf("expected stage to remain lost, got %s", result.Stage)
	}
	if opp.Stage != domain.StageLost {
		t.Fatalf("expected opportunity stage unchanged")
	}
}

func TestPublicBookingResolvesTokenOpportunity(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, &fakeDispatcher{})
	opp := gateway.seed(domain.StageNewEnquiry)
	opp.CreatedAt = time.Now()

	result, err := svc.CreateFromPublicToken(context.Background(), opp.PublicToken, CreateParams{
		Type:      "initial-consultation",
		StartTime: time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Booking.OpportunityID != opp.ID {
		t.Fatalf("expected booking on token opportunity")
	}
	if result.Booking.Channel != ChannelPublic {
		t.Fatalf("expected public channel, got %s", result.Booking.Channel)
	}

	if _, err := svc.CreateFromPublicToken(context.Background(), "no-such-token", CreateParams{
		Type:      "initial-consultation",
		StartTime: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown token, got %v", err)
	}
}

func TestExpiredPublicLinkIsRejected(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, &fakeDispatcher{})
	svc.SetPublicLinkTTL(14 * 24 * time.Hour)
	opp := gateway.seed(domain.StageNewEnquiry)
	opp.CreatedAt = time.Now().Add(-15 * 24 * time.Hour)

	if _, _, err := svc.ResolvePublicLink(context.Background(), opp.PublicToken); !apperr.Is(err, apperr.KindGone) {
		t.Fatalf("expected gone for expired link, got %v", err)
	}
	if _, err := svc.CreateFromPublicToken(context.Background(), opp.PublicToken, CreateParams{
		Type:      "initial-consultation",
		StartTime: time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	}); !apperr.Is(err, apperr.KindGone) {
		t.Fatalf("expected gone for expired link, got %v", err)
	}
	if len(store.bookings) != 0 {
		t.Fatalf("expected no booking through an expired link")
	}
}

func TestRecordOutcomeValidation(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, nil)
	opp := gateway.seed(domain.StageNewEnquiry)

	result, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: opp.ID,
		Type:          "initial-consultation",
		StartTime:     time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.RecordOutcome(context.Background(), result.Booking.ID, "missed", nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown outcome, got %v", err)
	}
	if _, err := svc.RecordOutcome(context.Background(), result.Booking.ID, repository.OutcomePending, nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for pending outcome, got %v", err)
	}

	booking, err := svc.RecordOutcome(context.Background(), result.Booking.ID, repository.OutcomeCompleted, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Outcome != repository.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s", booking.Outcome)
	}
}

func TestRescheduleCreatesReplacement(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, nil)
	opp := gateway.seed(domain.StageNewEnquiry)

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	first, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: opp.ID,
		Type:          "initial-consultation",
		StartTime:     start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replacement, err := svc.Reschedule(context.Background(), first.Booking.ID, start.Add(2*time.Hour), 30, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.bookings[first.Booking.ID].Outcome != repository.OutcomeRescheduled {
		t.Fatalf("expected old booking marked rescheduled")
	}
	if replacement.Booking.ID == first.Booking.ID {
		t.Fatalf("expected a new booking row")
	}
	if len(store.bookings) != 2 {
		t.Fatalf("expected 2 booking rows, got %d", len(store.bookings))
	}
}

func TestRescheduleRestoresOldBookingOnConflict(t *testing.T) {
	store := newFakeStore()
	gateway := newFakeGateway()
	svc := newTestService(store, &fakeCalendar{}, gateway, nil)
	oppA := gateway.seed(domain.StageNewEnquiry)
	oppB := gateway.seed(domain.StageNewEnquiry)
	oppB.OwnerID = oppA.OwnerID

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	first, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppA.ID,
		Type:          "initial-consultation",
		StartTime:     start,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocker := start.Add(3 * time.Hour)
	if _, err := svc.Create(context.Background(), CreateParams{
		OpportunityID: oppB.ID,
		Type:          "initial-consultation",
		StartTime:     blocker,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Reschedule(context.Background(), first.Booking.ID, blocker, 30, nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if store.bookings[first.Booking.ID].Outcome != repository.OutcomePending {
		t.Fatalf("expected old booking restored to pending, got %s", store.bookings[first.Booking.ID].Outcome)
	}
}
