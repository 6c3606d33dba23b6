package scheduler

import (
	"context"
	"fmt"

	bookrepo "pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/events"
	opprepo "pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/platform/config"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Worker struct {
	server        *asynq.Server
	mux           *asynq.ServeMux
	bookings      *bookrepo.Repository
	opportunities *opprepo.Repository
	bus           events.Bus
	log           *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:        server,
		mux:           mux,
		bookings:      bookrepo.New(pool),
		opportunities: opprepo.New(pool),
		bus:           bus,
		log:           log,
	}

	mux.HandleFunc(TaskBookingReminder, w.handleBookingReminder)
	mux.HandleFunc(TaskOutboxMessageDue, w.handleOutboxMessageDue)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleOutboxMessageDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseOutboxMessageDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.OutboxMessageDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}

// handleBookingReminder fires the staff reminder for a booking that is still
// pending. Bookings that were cancelled or rescheduled since the reminder was
// queued are silently dropped.
func (w *Worker) handleBookingReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBookingReminderPayload(task)
	if err != nil {
		return err
	}

	bookingID, err := uuid.Parse(payload.BookingID)
	if err != nil {
		return err
	}

	booking, err := w.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Outcome != bookrepo.OutcomePending {
		return nil
	}

	opp, err := w.opportunities.GetByID(ctx, booking.OpportunityID)
	if err != nil {
		return err
	}

	if w.bus == nil {
		return nil
	}

	w.bus.Publish(ctx, events.BookingReminderDue{
		BaseEvent:     events.NewBaseEvent(),
		BookingID:     booking.ID,
		OpportunityID: booking.OpportunityID,
		OwnerID:       booking.OwnerID,
		Type:          booking.Type,
		StartTime:     booking.StartTime,
		EndTime:       booking.EndTime,
		ContactName:   opp.ContactName,
		ContactPhone:  optionalString(opp.ContactPhone),
		ContactEmail:  optionalString(opp.ContactEmail),
	})

	return nil
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
