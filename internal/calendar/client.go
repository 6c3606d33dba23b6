// Package calendar integrates with the external calendar service. The
// engine treats it as a best-effort mirror: free/busy reads and event
// creation both degrade gracefully when the service is unreachable.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pipeline_backend/platform/config"
	"pipeline_backend/platform/logger"
)

// ErrUnavailable is returned when the calendar service cannot be reached or
// is not configured. Callers degrade to internal-only behavior.
var ErrUnavailable = errors.New("calendar service unavailable")

// BusyInterval is one occupied window on the external calendar.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// EventParams describes an appointment to mirror onto the calendar.
type EventParams struct {
	Title           string
	Start           time.Time
	End             time.Time
	AttendeeName    string
	AttendeeEmail   string
	AttendeePhone   string
	Location        string
	WithMeetingLink bool
}

// EventResult is the calendar's record of a created event.
type EventResult struct {
	EventID     string `json:"eventId"`
	MeetingLink string `json:"meetingLink,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

// NewClient builds a calendar client, or nil when no calendar is configured.
func NewClient(cfg config.CalendarConfig, log *logger.Logger) *Client {
	if !cfg.IsCalendarEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetCalendarBaseURL(), "/"),
		apiKey:  cfg.GetCalendarAPIKey(),
		http:    &http.Client{Timeout: cfg.GetCalendarTimeout()},
		log:     log,
	}
}

// FreeBusy returns the busy intervals overlapping the window.
func (c *Client) FreeBusy(ctx context.Context, from, to time.Time) ([]BusyInterval, error) {
	if c == nil {
		return nil, ErrUnavailable
	}

	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/freebusy?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: freebusy returned %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload struct {
		Busy []BusyInterval `json:"busy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode freebusy response: %v", ErrUnavailable, err)
	}
	return payload.Busy, nil
}

// CreateEvent mirrors an appointment onto the calendar and returns the event
// identifier plus an optional video-conferencing link.
func (c *Client) CreateEvent(ctx context.Context, p EventParams) (*EventResult, error) {
	if c == nil {
		return nil, ErrUnavailable
	}

	body, err := json.Marshal(map[string]any{
		"title":         p.Title,
		"start":         p.Start.UTC().Format(time.RFC3339),
		"end":           p.End.UTC().Format(time.RFC3339),
		"attendeeName":  p.AttendeeName,
		"attendeeEmail": p.AttendeeEmail,
		"attendeePhone": p.AttendeePhone,
		"location":      p.Location,
		"withMeetingLink": p.WithMeetingLink,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: create event returned %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result EventResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode event response: %v", ErrUnavailable, err)
	}
	return &result, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
