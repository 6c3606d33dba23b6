// Package transport defines the request and response shapes for the
// suggestion review endpoints.
package transport

import (
	"time"

	"pipeline_backend/internal/suggestions/repository"
	"pipeline_backend/internal/suggestions/service"

	"github.com/google/uuid"
)

// SubmitNotesRequest carries the salesperson's post-call notes.
type SubmitNotesRequest struct {
	Notes string `json:"notes" binding:"required,min=1,max=10000"`
}

// OverrideRequest carries the stage a reviewer picked instead of the
// suggested one.
type OverrideRequest struct {
	Stage string `json:"stage" binding:"required"`
}

// SuggestionResponse is the API shape of one suggestion.
type SuggestionResponse struct {
	ID             uuid.UUID  `json:"id"`
	BookingID      uuid.UUID  `json:"bookingId"`
	OpportunityID  uuid.UUID  `json:"opportunityId"`
	Status         string     `json:"status"`
	SuggestedStage string     `json:"suggestedStage"`
	Confidence     int        `json:"confidence"`
	Reasoning      string     `json:"reasoning"`
	Sentiment      string     `json:"sentiment"`
	Objections     []string   `json:"objections"`
	Followups      []string   `json:"followups"`
	Resolution     *string    `json:"resolution,omitempty"`
	AppliedStage   *string    `json:"appliedStage,omitempty"`
	ResolvedBy     *uuid.UUID `json:"resolvedBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// ReviewResponse reports the result of a confirm, override, or dismiss.
type ReviewResponse struct {
	Suggestion SuggestionResponse `json:"suggestion"`
	Applied    bool               `json:"applied"`
	Stage      string             `json:"stage,omitempty"`
	Warning    string             `json:"warning,omitempty"`
}

// SuggestionListResponse wraps the review queue.
type SuggestionListResponse struct {
	Items []SuggestionResponse `json:"items"`
}

func NewSuggestionResponse(s *repository.Suggestion) SuggestionResponse {
	resp := SuggestionResponse{
		ID:             s.ID,
		BookingID:      s.BookingID,
		OpportunityID:  s.OpportunityID,
		Status:         string(s.Status),
		SuggestedStage: s.SuggestedStage,
		Confidence:     s.Confidence,
		Reasoning:      s.Reasoning,
		Sentiment:      s.Sentiment,
		Objections:     s.Objections,
		Followups:      s.Followups,
		AppliedStage:   s.AppliedStage,
		ResolvedBy:     s.ResolvedBy,
		CreatedAt:      s.CreatedAt,
		ResolvedAt:     s.ResolvedAt,
	}
	if s.Resolution != nil {
		value := string(*s.Resolution)
		resp.Resolution = &value
	}
	return resp
}

func NewSuggestionListResponse(suggestions []repository.Suggestion) SuggestionListResponse {
	items := make([]SuggestionResponse, 0, len(suggestions))
	for i := range suggestions {
		items = append(items, NewSuggestionResponse(&suggestions[i]))
	}
	return SuggestionListResponse{Items: items}
}

func NewReviewResponse(result *service.ReviewResult) ReviewResponse {
	resp := ReviewResponse{
		Suggestion: NewSuggestionResponse(result.Suggestion),
		Applied:    result.Applied,
		Warning:    result.Warning,
	}
	if result.Stage != "" {
		resp.Stage = string(result.Stage)
	}
	return resp
}
