// Package messaging renders and delivers queued customer messages over
// email and WhatsApp. It drains the automation outbox; delivery retries go
// back through the outbox rather than the job queue.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"pipeline_backend/internal/automation"
	"pipeline_backend/internal/automation/outbox"
	"pipeline_backend/internal/events"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

// maxAttempts bounds delivery retries per record.
const maxAttempts = 3

// OutboxStore is the outbox surface the processor depends on.
type OutboxStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// Processor consumes due outbox records and delivers them.
type Processor struct {
	store    OutboxStore
	email    EmailSender
	whatsapp *WhatsAppClient
	log      *logger.Logger
}

func NewProcessor(store OutboxStore, email EmailSender, whatsapp *WhatsAppClient, log *logger.Logger) *Processor {
	return &Processor{
		store:    store,
		email:    email,
		whatsapp: whatsapp,
		log:      log,
	}
}

// Subscribe registers the processor on the event bus.
func (p *Processor) Subscribe(bus events.Bus) {
	bus.Subscribe(events.OutboxMessageDue{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		due, ok := event.(events.OutboxMessageDue)
		if !ok {
			return nil
		}
		return p.Process(ctx, due.OutboxID)
	}))
}

// Process delivers one outbox record. A failed delivery goes back to
// pending until the attempt budget runs out, then the record is parked as
// failed. Process itself only errors on infrastructure problems; delivery
// failures are absorbed by the outbox state machine.
func (p *Processor) Process(ctx context.Context, outboxID uuid.UUID) error {
	rec, err := p.store.GetByID(ctx, outboxID)
	if err != nil {
		return fmt.Errorf("load outbox record: %w", err)
	}

	switch rec.Status {
	case outbox.StatusSucceeded, outbox.StatusFailed:
		return nil
	}

	if err := p.store.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}
	rec.Attempts++

	if err := p.deliver(ctx, rec); err != nil {
		p.log.Warn("message delivery failed", "outbox_id", rec.ID, "channel", rec.Channel, "attempts", rec.Attempts, "error", err)
		msg := err.Error()
		if rec.Attempts >= maxAttempts {
			return p.store.MarkFailed(ctx, rec.ID, msg)
		}
		return p.store.MarkPending(ctx, rec.ID, &msg)
	}

	return p.store.MarkSucceeded(ctx, rec.ID)
}

func (p *Processor) deliver(ctx context.Context, rec outbox.Record) error {
	var payload automation.MessagePayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	msg, err := Render(rec.Template, payload)
	if err != nil {
		return err
	}

	switch rec.Channel {
	case "whatsapp":
		if p.whatsapp != nil && payload.ContactPhone != "" {
			return p.whatsapp.SendWhatsApp(ctx, payload.ContactPhone, msg.Text)
		}
		// No gateway or no phone number; fall through to email.
		fallthrough
	case "email":
		if payload.ContactEmail == "" {
			return fmt.Errorf("no email address on record")
		}
		return p.email.SendEmail(ctx, payload.ContactEmail, msg)
	default:
		return fmt.Errorf("unknown channel %q", rec.Channel)
	}
}
