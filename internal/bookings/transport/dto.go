package transport

import (
	"time"

	"pipeline_backend/internal/bookings/repository"
	"pipeline_backend/internal/bookings/service"

	"github.com/google/uuid"
)

// Request DTOs
type CreateBookingRequest struct {
	OpportunityID   uuid.UUID `json:"opportunityId" validate:"required"`
	Type            string    `json:"type" validate:"required,oneof=initial-consultation design-call onboarding-visit"`
	StartTime       time.Time `json:"startTime" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"omitempty,min=10,max=180"`
}

type RecordOutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=completed no_show rescheduled cancelled"`
}

type RescheduleBookingRequest struct {
	StartTime       time.Time `json:"startTime" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"omitempty,min=10,max=180"`
}

// PublicBookRequest is the customer-facing booking request; the opportunity
// is resolved from the link token, never from the body.
type PublicBookRequest struct {
	Type            string    `json:"type" validate:"required,oneof=initial-consultation design-call onboarding-visit"`
	StartTime       time.Time `json:"startTime" validate:"required"`
	DurationMinutes int       `json:"durationMinutes" validate:"omitempty,min=10,max=180"`
}

// Response DTOs
type BookingResponse struct {
	ID              uuid.UUID `json:"id"`
	OpportunityID   uuid.UUID `json:"opportunityId"`
	OwnerID         uuid.UUID `json:"ownerId"`
	Type            string    `json:"type"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Outcome         string    `json:"outcome"`
	Notes           *string   `json:"notes,omitempty"`
	MeetingLink     *string   `json:"meetingLink,omitempty"`
	Channel         string    `json:"channel"`
	CreatedAt       time.Time `json:"createdAt"`
}

type CreateBookingResponse struct {
	Booking  BookingResponse `json:"booking"`
	Stage    string          `json:"stage"`
	Warnings []string        `json:"warnings,omitempty"`
}

type AvailabilityResponse struct {
	Available bool     `json:"available"`
	Source    string   `json:"source,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// PublicLinkResponse describes a booking link to the customer: who it is
// for and which appointment types can currently be booked.
type PublicLinkResponse struct {
	ContactName  string            `json:"contactName"`
	Stage        string            `json:"stage"`
	BookingTypes []string          `json:"bookingTypes"`
	Upcoming     []BookingResponse `json:"upcoming,omitempty"`
}

func NewBookingResponse(b *repository.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		OpportunityID:   b.OpportunityID,
		OwnerID:         b.OwnerID,
		Type:            b.Type,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		DurationMinutes: b.DurationMinutes,
		Outcome:         string(b.Outcome),
		Notes:           b.Notes,
		MeetingLink:     b.MeetingLink,
		Channel:         b.Channel,
		CreatedAt:       b.CreatedAt,
	}
}

func NewBookingResponseList(bookings []repository.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, NewBookingResponse(&bookings[i]))
	}
	return out
}

func NewCreateBookingResponse(result *service.CreateResult) CreateBookingResponse {
	return CreateBookingResponse{
		Booking:  NewBookingResponse(result.Booking),
		Stage:    string(result.Stage),
		Warnings: result.Warnings,
	}
}
