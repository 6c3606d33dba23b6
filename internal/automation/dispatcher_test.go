package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pipeline_backend/internal/automation/outbox"
	bookrepo "pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/calendar"
	"pipeline_backend/internal/events"
	"pipeline_backend/internal/opportunities/domain"
	opprepo "pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/internal/scheduler"
	taskrepo "pipeline_backend/internal/tasks/repository"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

type stubCalendar struct {
	err    error
	result calendar.EventResult
	calls  int
}

func (s *stubCalendar) CreateEvent(_ context.Context, _ calendar.EventParams) (*calendar.EventResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &s.result, nil
}

type stubSyncStore struct {
	mu          sync.Mutex
	eventID     string
	meetingLink *string
	err         error
}

func (s *stubSyncStore) SetCalendarSync(_ context.Context, _ uuid.UUID, eventID string, meetingLink *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.eventID = eventID
	s.meetingLink = meetingLink
	return nil
}

type stubTasks struct {
	mu      sync.Mutex
	created []taskrepo.CreateParams
	err     error
}

func (s *stubTasks) Create(_ context.Context, p taskrepo.CreateParams) (*taskrepo.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, p)
	return &taskrepo.Task{ID: uuid.New(), Title: p.Title}, nil
}

type stubQueue struct {
	mu       sync.Mutex
	inserted []outbox.InsertParams
	err      error
}

func (s *stubQueue) Insert(_ context.Context, p outbox.InsertParams) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return uuid.Nil, s.err
	}
	s.inserted = append(s.inserted, p)
	return uuid.New(), nil
}

func testFixtures() (*bookrepo.Booking, *opprepo.Opportunity) {
	start := time.Now().Add(72 * time.Hour).UTC()
	phone := "+31612345678"
	booking := &bookrepo.Booking{
		ID:            uuid.New(),
		OpportunityID: uuid.New(),
		OwnerID:       uuid.New(),
		Type:          "initial-consultation",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Outcome:       bookrepo.OutcomePending,
	}
	opp := &opprepo.Opportunity{
		ID:           booking.OpportunityID,
		Stage:        domain.StageCall1Scheduled,
		OwnerID:      booking.OwnerID,
		ContactName:  "Jamie Visser",
		ContactPhone: &phone,
	}
	return booking, opp
}

func TestDispatcherRunsAllSteps(t *testing.T) {
	cal := &stubCalendar{result: calendar.EventResult{EventID: "evt_1", MeetingLink: "https://meet.example.com/x"}}
	store := &stubSyncStore{}
	tasks := &stubTasks{}
	queue := &stubQueue{}
	d := NewDispatcher(cal, store, tasks, queue, DefaultPlaybook(), logger.New("development"))

	booking, opp := testFixtures()
	d.run(booking, opp, domain.StageCall1Scheduled)

	if cal.calls != 1 {
		t.Fatalf("expected one calendar event, got %d", cal.calls)
	}
	if store.eventID != "evt_1" {
		t.Fatalf("expected calendar sync recorded, got %q", store.eventID)
	}
	if store.meetingLink == nil || *store.meetingLink != "https://meet.example.com/x" {
		t.Fatalf("expected meeting link recorded")
	}
	if len(tasks.created) != 1 {
		t.Fatalf("expected one prep task, got %d", len(tasks.created))
	}
	if tasks.created[0].Title != "Prepare discovery questions for Jamie Visser" {
		t.Fatalf("unexpected prep task title: %q", tasks.created[0].Title)
	}
	if len(queue.inserted) != 2 {
		t.Fatalf("expected confirmation and reminder messages, got %d", len(queue.inserted))
	}
	for _, msg := range queue.inserted {
		if msg.Channel != "whatsapp" {
			t.Fatalf("expected whatsapp channel for contact with phone, got %q", msg.Channel)
		}
	}
}

func TestDispatcherStepFailuresAreIsolated(t *testing.T) {
	cal := &stubCalendar{err: errors.New("calendar down")}
	store := &stubSyncStore{}
	tasks := &stubTasks{err: errors.New("tasks table locked")}
	queue := &stubQueue{}
	d := NewDispatcher(cal, store, tasks, queue, DefaultPlaybook(), logger.New("development"))

	booking, opp := testFixtures()
	d.run(booking, opp, domain.StageCall1Scheduled)

	// Calendar and task failures must not stop the messages.
	if len(queue.inserted) != 2 {
		t.Fatalf("expected messages despite sibling failures, got %d", len(queue.inserted))
	}
}

func TestDispatcherSkipsPastReminder(t *testing.T) {
	queue := &stubQueue{}
	d := NewDispatcher(&stubCalendar{}, &stubSyncStore{}, &stubTasks{}, queue, DefaultPlaybook(), logger.New("development"))

	booking, opp := testFixtures()
	booking.StartTime = time.Now().Add(2 * time.Hour).UTC()
	booking.EndTime = booking.StartTime.Add(30 * time.Minute)
	d.run(booking, opp, domain.StageCall1Scheduled)

	// Reminder would fire 24h before a booking 2h away, which is in the past.
	if len(queue.inserted) != 1 {
		t.Fatalf("expected confirmation only, got %d messages", len(queue.inserted))
	}
	if queue.inserted[0].Template != "booking_confirmation" {
		t.Fatalf("unexpected template: %q", queue.inserted[0].Template)
	}
}

type stubReminders struct {
	mu     sync.Mutex
	runAts []time.Time
	ids    []string
}

func (s *stubReminders) ScheduleBookingReminder(_ context.Context, payload scheduler.BookingReminderPayload, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, payload.BookingID)
	s.runAts = append(s.runAts, runAt)
	return nil
}

func TestDispatcherSchedulesStaffReminder(t *testing.T) {
	reminders := &stubReminders{}
	d := NewDispatcher(&stubCalendar{}, &stubSyncStore{}, &stubTasks{}, &stubQueue{}, DefaultPlaybook(), logger.New("development"))
	d.SetReminderScheduler(reminders)

	booking, opp := testFixtures()
	d.run(booking, opp, domain.StageCall1Scheduled)

	if len(reminders.ids) != 1 {
		t.Fatalf("expected one staff reminder, got %d", len(reminders.ids))
	}
	if reminders.ids[0] != booking.ID.String() {
		t.Fatalf("unexpected booking id: %s", reminders.ids[0])
	}
	want := booking.StartTime.Add(-staffReminderLeadTime)
	if !reminders.runAts[0].Equal(want) {
		t.Fatalf("expected reminder at %v, got %v", want, reminders.runAts[0])
	}
}

func TestDispatcherSkipsStaffReminderForImminentBooking(t *testing.T) {
	reminders := &stubReminders{}
	d := NewDispatcher(&stubCalendar{}, &stubSyncStore{}, &stubTasks{}, &stubQueue{}, DefaultPlaybook(), logger.New("development"))
	d.SetReminderScheduler(reminders)

	booking, opp := testFixtures()
	booking.StartTime = time.Now().Add(30 * time.Minute).UTC()
	booking.EndTime = booking.StartTime.Add(30 * time.Minute)
	d.run(booking, opp, domain.StageCall1Scheduled)

	if len(reminders.ids) != 0 {
		t.Fatalf("expected no staff reminder, got %d", len(reminders.ids))
	}
}

func TestEngineQueuesStageMessages(t *testing.T) {
	queue := &stubQueue{}
	_, opp := testFixtures()
	reader := &stubOpportunityReader{opp: opp}
	engine := NewEngine(reader, queue, DefaultPlaybook(), logger.New("development"))

	engine.handleStageChanged(context.Background(), stageChangedEvent(opp.ID, string(domain.StageAwaitingDeposit)))

	if len(queue.inserted) != 1 {
		t.Fatalf("expected one stage message, got %d", len(queue.inserted))
	}
	if queue.inserted[0].Template != "deposit_instructions" {
		t.Fatalf("unexpected template: %q", queue.inserted[0].Template)
	}
	if queue.inserted[0].Channel != "email" {
		t.Fatalf("expected explicit email channel, got %q", queue.inserted[0].Channel)
	}
}

func TestEngineIgnoresStagesWithoutMessages(t *testing.T) {
	queue := &stubQueue{}
	_, opp := testFixtures()
	engine := NewEngine(&stubOpportunityReader{opp: opp}, queue, DefaultPlaybook(), logger.New("development"))

	engine.handleStageChanged(context.Background(), stageChangedEvent(opp.ID, string(domain.StageQualified)))

	if len(queue.inserted) != 0 {
		t.Fatalf("expected no messages, got %d", len(queue.inserted))
	}
}

type stubOpportunityReader struct {
	opp *opprepo.Opportunity
}

func (s *stubOpportunityReader) GetByID(_ context.Context, _ uuid.UUID) (*opprepo.Opportunity, error) {
	return s.opp, nil
}

func stageChangedEvent(opportunityID uuid.UUID, toStage string) events.StageChanged {
	return events.StageChanged{
		BaseEvent:     events.NewBaseEvent(),
		OpportunityID: opportunityID,
		ToStage:       toStage,
	}
}
