// Package automation runs the fire-and-forget steps that follow a booking
// or a stage change: calendar sync, preparation tasks, and queued customer
// messages. Nothing here may fail a request; every error is logged and
// swallowed.
package automation

import (
	"context"
	"time"

	"pipeline_backend/internal/automation/outbox"
	bookrepo "pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/calendar"
	"pipeline_backend/internal/opportunities/domain"
	opprepo "pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/internal/scheduler"
	taskrepo "pipeline_backend/internal/tasks/repository"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// dispatchTimeout bounds one detached automation run.
const dispatchTimeout = 2 * time.Minute

// staffReminderLeadTime is how long before the booking the owner gets their
// heads-up.
const staffReminderLeadTime = time.Hour

// CalendarWriter is the event-creation slice of the calendar client.
type CalendarWriter interface {
	CreateEvent(ctx context.Context, p calendar.EventParams) (*calendar.EventResult, error)
}

// BookingSyncStore records the mirrored calendar event on the booking row.
type BookingSyncStore interface {
	SetCalendarSync(ctx context.Context, id uuid.UUID, eventID string, meetingLink *string) error
}

// TaskCreator opens preparation tasks for the booking owner.
type TaskCreator interface {
	Create(ctx context.Context, p taskrepo.CreateParams) (*taskrepo.Task, error)
}

// MessageQueue persists outgoing customer messages for later delivery.
type MessageQueue interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// MessagePayload is the template data stored with each outbox record.
type MessagePayload struct {
	ContactName  string     `json:"contactName"`
	ContactPhone string     `json:"contactPhone,omitempty"`
	ContactEmail string     `json:"contactEmail,omitempty"`
	BookingType  string     `json:"bookingType,omitempty"`
	StartTime    *time.Time `json:"startTime,omitempty"`
	MeetingLink  string     `json:"meetingLink,omitempty"`
	Stage        string     `json:"stage,omitempty"`
}

// Dispatcher runs post-booking automation detached from the request that
// triggered it.
type Dispatcher struct {
	calendar  CalendarWriter
	bookings  BookingSyncStore
	tasks     TaskCreator
	queue     MessageQueue
	playbook  *Playbook
	reminders scheduler.ReminderScheduler
	log       *logger.Logger
}

func NewDispatcher(cal CalendarWriter, bookings BookingSyncStore, tasks TaskCreator, queue MessageQueue, playbook *Playbook, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		calendar: cal,
		bookings: bookings,
		tasks:    tasks,
		queue:    queue,
		playbook: playbook,
		log:      log,
	}
}

// SetReminderScheduler enables staff reminders ahead of each booking. A nil
// scheduler disables them.
func (d *Dispatcher) SetReminderScheduler(reminders scheduler.ReminderScheduler) {
	d.reminders = reminders
}

// Dispatch starts the automation for a freshly committed booking and returns
// immediately. The run is bounded by its own timeout and never reports back
// to the caller.
func (d *Dispatcher) Dispatch(booking *bookrepo.Booking, opp *opprepo.Opportunity, stage domain.Stage) {
	go d.run(booking, opp, stage)
}

func (d *Dispatcher) run(booking *bookrepo.Booking, opp *opprepo.Opportunity, stage domain.Stage) {
	defer func() {
		if r := recover(); r != nil {
			d.log.AutomationFailure("panic", booking.ID.String(), nil)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	play := d.playbook.Play(booking.Type)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.syncCalendar(ctx, booking, opp, play)
		return nil
	})
	g.Go(func() error {
		d.createPrepTask(ctx, booking, opp, play)
		return nil
	})
	g.Go(func() error {
		d.queueMessages(ctx, booking, opp, play)
		return nil
	})
	g.Go(func() error {
		d.scheduleStaffReminder(ctx, booking)
		return nil
	})
	_ = g.Wait()
}

func (d *Dispatcher) scheduleStaffReminder(ctx context.Context, booking *bookrepo.Booking) {
	if d.reminders == nil {
		return
	}

	runAt := booking.StartTime.Add(-staffReminderLeadTime)
	if !runAt.After(time.Now()) {
		return
	}

	err := d.reminders.ScheduleBookingReminder(ctx, scheduler.BookingReminderPayload{
		BookingID: booking.ID.String(),
	}, runAt)
	if err != nil {
		d.log.AutomationFailure("staff_reminder", booking.ID.String(), err)
	}
}

func (d *Dispatcher) syncCalendar(ctx context.Context, booking *bookrepo.Booking, opp *opprepo.Opportunity, play BookingPlay) {
	result, err := d.calendar.CreateEvent(ctx, calendar.EventParams{
		Title:           render(play.CalendarTitle, opp.ContactName),
		Start:           booking.StartTime,
		End:             booking.EndTime,
		AttendeeName:    opp.ContactName,
		AttendeeEmail:   deref(opp.ContactEmail),
		AttendeePhone:   deref(opp.ContactPhone),
		WithMeetingLink: play.MeetingLink,
	})
	if err != nil {
		d.log.AutomationFailure("calendar_sync", booking.ID.String(), err)
		return
	}

	var meetingLink *string
	if result.MeetingLink != "" {
		meetingLink = &result.MeetingLink
	}
	if err := d.bookings.SetCalendarSync(ctx, booking.ID, result.EventID, meetingLink); err != nil {
		d.log.AutomationFailure("calendar_sync", booking.ID.String(), err)
	}
}

func (d *Dispatcher) createPrepTask(ctx context.Context, booking *bookrepo.Booking, opp *opprepo.Opportunity, play BookingPlay) {
	if play.PrepTaskTitle == "" {
		return
	}

	dueAt := booking.StartTime.Add(-time.Duration(play.PrepTaskHoursBefore) * time.Hour)
	_, err := d.tasks.Create(ctx, taskrepo.CreateParams{
		OpportunityID: &booking.OpportunityID,
		BookingID:     &booking.ID,
		AssigneeID:    booking.OwnerID,
		Title:         render(play.PrepTaskTitle, opp.ContactName),
		DueAt:         &dueAt,
	})
	if err != nil {
		d.log.AutomationFailure("prep_task", booking.ID.String(), err)
	}
}

func (d *Dispatcher) queueMessages(ctx context.Context, booking *bookrepo.Booking, opp *opprepo.Opportunity, play BookingPlay) {
	payload := MessagePayload{
		ContactName:  opp.ContactName,
		ContactPhone: deref(opp.ContactPhone),
		ContactEmail: deref(opp.ContactEmail),
		BookingType:  booking.Type,
		StartTime:    &booking.StartTime,
	}

	if play.ConfirmationTemplate != "" {
		_, err := d.queue.Insert(ctx, outbox.InsertParams{
			OpportunityID: booking.OpportunityID,
			BookingID:     &booking.ID,
			Channel:       preferredChannel(opp),
			Template:      play.ConfirmationTemplate,
			Payload:       payload,
		})
		if err != nil {
			d.log.AutomationFailure("confirmation_message", booking.ID.String(), err)
		}
	}

	if play.ReminderTemplate != "" && play.ReminderHoursBefore > 0 {
		runAt := booking.StartTime.Add(-time.Duration(play.ReminderHoursBefore) * time.Hour)
		if runAt.After(time.Now()) {
			_, err := d.queue.Insert(ctx, outbox.InsertParams{
				OpportunityID: booking.OpportunityID,
				BookingID:     &booking.ID,
				Channel:       preferredChannel(opp),
				Template:      play.ReminderTemplate,
				Payload:       payload,
				RunAt:         runAt,
			})
			if err != nil {
				d.log.AutomationFailure("reminder_message", booking.ID.String(), err)
			}
		}
	}
}

// preferredChannel picks WhatsApp when a phone number exists, email
// otherwise.
func preferredChannel(opp *opprepo.Opportunity) string {
	if opp.ContactPhone != nil && *opp.ContactPhone != "" {
		return "whatsapp"
	}
	return "email"
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
