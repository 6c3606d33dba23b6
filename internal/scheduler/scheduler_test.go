package scheduler

import (
	"testing"

	"github.com/hibiken/asynq"
)

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.Addr != "localhost:6380" {
		t.Fatalf("unexpected addr: %s", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Fatalf("unexpected password: %s", opt.Password)
	}
	if opt.DB != 2 {
		t.Fatalf("unexpected db: %d", opt.DB)
	}
	if opt.TLSConfig != nil {
		t.Fatalf("expected no TLS config for redis scheme")
	}
}

func TestRedisClientOptInsecureTLS(t *testing.T) {
	opt, err := redisClientOpt("rediss://localhost:6379", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config")
	}
}

func TestRedisClientOptRejectsBadURL(t *testing.T) {
	if _, err := redisClientOpt("localhost:6379", false); err == nil {
		t.Fatalf("expected error for URL without scheme")
	}
}

func TestBookingReminderPayloadRoundTrip(t *testing.T) {
	task, err := NewBookingReminderTask(BookingReminderPayload{BookingID: "b-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TaskBookingReminder {
		t.Fatalf("unexpected task type: %s", task.Type())
	}

	payload, err := ParseBookingReminderPayload(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.BookingID != "b-1" {
		t.Fatalf("unexpected booking id: %s", payload.BookingID)
	}
}

func TestParseOutboxPayloadRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TaskOutboxMessageDue, []byte("not json"))
	if _, err := ParseOutboxMessageDuePayload(task); err == nil {
		t.Fatalf("expected error")
	}
}
