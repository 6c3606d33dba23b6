package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pipeline_backend/internal/automation"
	"pipeline_backend/internal/automation/outbox"
	"pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeOutboxStore struct {
	records map[uuid.UUID]*outbox.Record
}

func newFakeOutboxStore() *fakeOutboxStore {
	return &fakeOutboxStore{records: make(map[uuid.UUID]*outbox.Record)}
}

func (f *fakeOutboxStore) add(template, channel string, payload automation.MessagePayload) uuid.UUID {
	raw, _ := json.Marshal(payload)
	id := uuid.New()
	f.records[id] = &outbox.Record{
		ID:            id,
		OpportunityID: uuid.New(),
		Channel:       channel,
		Template:      template,
		Payload:       raw,
		RunAt:         time.Now(),
		Status:        outbox.StatusEnqueued,
	}
	return id
}

func (f *fakeOutboxStore) GetByID(_ context.Context, id uuid.UUID) (outbox.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return outbox.Record{}, errors.New("record not found")
	}
	return *rec, nil
}

func (f *fakeOutboxStore) MarkProcessing(_ context.Context, id uuid.UUID) error {
	f.records[id].Status = outbox.StatusProcessing
	f.records[id].Attempts++
	return nil
}

func (f *fakeOutboxStore) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	f.records[id].Status = outbox.StatusSucceeded
	return nil
}

func (f *fakeOutboxStore) MarkFailed(_ context.Context, id uuid.UUID, _ string) error {
	f.records[id].Status = outbox.StatusFailed
	return nil
}

func (f *fakeOutboxStore) MarkPending(_ context.Context, id uuid.UUID, _ *string) error {
	f.records[id].Status = outbox.StatusPending
	return nil
}

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, toEmail string, _ Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, toEmail)
	return nil
}

func payloadFor(email string) automation.MessagePayload {
	start := time.Now().Add(48 * time.Hour)
	return automation.MessagePayload{
		ContactName:  "Jamie Visser",
		ContactEmail: email,
		BookingType:  "initial-consultation",
		StartTime:    &start,
	}
}

func TestProcessDeliversEmail(t *testing.T) {
	store := newFakeOutboxStore()
	email := &fakeEmail{}
	proc := NewProcessor(store, email, nil, logger.New("development"))

	id := store.add("booking_confirmation", "email", payloadFor("jamie@example.com"))
	if err := proc.Process(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.records[id].Status != outbox.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", store.records[id].Status)
	}
	if len(email.sent) != 1 || email.sent[0] != "jamie@example.com" {
		t.Fatalf("expected one email to jamie@example.com, got %v", email.sent)
	}
}

func TestProcessWhatsAppFallsBackToEmail(t *testing.T) {
	store := newFakeOutboxStore()
	email := &fakeEmail{}
	proc := NewProcessor(store, email, nil, logger.New("development"))

	id := store.add("booking_reminder", "whatsapp", payloadFor("jamie@example.com"))
	if err := proc.Process(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected email fallback without a gateway, got %v", email.sent)
	}
}

func TestProcessRetriesThenParksRecord(t *testing.T) {
	store := newFakeOutboxStore()
	email := &fakeEmail{err: errors.New("smtp refused")}
	proc := NewProcessor(store, email, nil, logger.New("development"))

	id := store.add("booking_confirmation", "email", payloadFor("jamie@example.com"))

	for attempt := 1; attempt < maxAttempts; attempt++ {
		if err := proc.Process(context.Background(), id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.records[id].Status != outbox.StatusPending {
			t.Fatalf("attempt %d: expected pending, got %s", attempt, store.records[id].Status)
		}
	}

	if err := proc.Process(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.records[id].Status != outbox.StatusFailed {
		t.Fatalf("expected failed after %d attempts, got %s", maxAttempts, store.records[id].Status)
	}
}

func TestProcessSkipsResolvedRecords(t *testing.T) {
	store := newFakeOutboxStore()
	email := &fakeEmail{}
	proc := NewProcessor(store, email, nil, logger.New("development"))

	id := store.add("booking_confirmation", "email", payloadFor("jamie@example.com"))
	store.records[id].Status = outbox.StatusSucceeded

	if err := proc.Process(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("expected no delivery for resolved record")
	}
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	if _, err := Render("definitely_not_a_template", payloadFor("jamie@example.com")); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestRenderBookingConfirmation(t *testing.T) {
	msg, err := Render("booking_confirmation", payloadFor("jamie@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Subject != "Your initial consultation is booked" {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}
	if msg.HTML == "" || msg.Text == "" {
		t.Fatalf("expected both html and text bodies")
	}
}
