package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pipeline_backend/platform/config"
	"pipeline_backend/platform/logger"

	"errors"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		CalendarBaseURL: server.URL,
		CalendarAPIKey:  "test-key",
		CalendarTimeout: 2 * time.Second,
	}
	return NewClient(cfg, logger.New("development"))
}

func TestFreeBusyParsesIntervals(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freebusy" {
			t.Fatalf("expected /freebusy path, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("expected bearer auth header")
		}
		if r.URL.Query().Get("from") == "" || r.URL.Query().Get("to") == "" {
			t.Fatalf("expected from/to query params")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"busy":[{"start":"2025-03-03T10:00:00Z","end":"2025-03-03T10:30:00Z"}]}`))
	})

	from := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	busy, err := client.FreeBusy(context.Background(), from, from.Add(4*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(busy) != 1 {
		t.Fatalf("expected 1 busy interval, got %d", len(busy))
	}
	if !busy[0].Start.Equal(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected interval start: %v", busy[0].Start)
	}
}

func TestFreeBusyServerErrorIsUnavailable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FreeBusy(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNilClientIsUnavailable(t *testing.T) {
	var client *Client
	if _, err := client.FreeBusy(context.Background(), time.Now(), time.Now().Add(time.Hour)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for nil client, got %v", err)
	}
	if _, err := client.CreateEvent(context.Background(), EventParams{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for nil client, got %v", err)
	}
}

func TestCreateEventReturnsMeetingLink(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Fatalf("expected /events path, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"eventId":"evt_123","meetingLink":"https://meet.example.com/abc"}`))
	})

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	result, err := client.CreateEvent(context.Background(), EventParams{
		Title:           "Initial consultation",
		Start:           start,
		End:             start.Add(30 * time.Minute),
		AttendeeName:    "Jamie Visser",
		AttendeeEmail:   "jamie@example.com",
		WithMeetingLink: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EventID != "evt_123" {
		t.Fatalf("expected event id evt_123, got %s", result.EventID)
	}
	if result.MeetingLink != "https://meet.example.com/abc" {
		t.Fatalf("unexpected meeting link: %s", result.MeetingLink)
	}
}
