package transport

import (
	"time"

	"pipeline_backend/internal/opportunities/repository"
	"pipeline_backend/internal/opportunities/service"

	"github.com/google/uuid"
)

// Request DTOs
type CreateOpportunityRequest struct {
	ContactName        string     `json:"contactName" validate:"required,min=1,max=200"`
	ContactPhone       *string    `json:"contactPhone,omitempty" validate:"omitempty,min=5,max=20"`
	ContactEmail       *string    `json:"contactEmail,omitempty" validate:"omitempty,email"`
	ValueEstimateCents *int64     `json:"valueEstimateCents,omitempty" validate:"omitempty,min=0"`
	OwnerID            *uuid.UUID `json:"ownerId,omitempty"`
}

type OverrideStageRequest struct {
	Stage string  `json:"stage" validate:"required"`
	Note  *string `json:"note,omitempty" validate:"omitempty,max=2000"`
}

type MarkLostRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// Response DTOs
type OpportunityResponse struct {
	ID                 uuid.UUID `json:"id"`
	Stage              string    `json:"stage"`
	OwnerID            uuid.UUID `json:"ownerId"`
	ContactName        string    `json:"contactName"`
	ContactPhone       *string   `json:"contactPhone,omitempty"`
	ContactEmail       *string   `json:"contactEmail,omitempty"`
	ValueEstimateCents *int64    `json:"valueEstimateCents,omitempty"`
	LostReason         *string   `json:"lostReason,omitempty"`
	PublicToken        string    `json:"publicToken"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type OpportunityListResponse struct {
	Items    []OpportunityResponse `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
}

type StageLogEntryResponse struct {
	ID        uuid.UUID  `json:"id"`
	FromStage *string    `json:"fromStage,omitempty"`
	ToStage   string     `json:"toStage"`
	Trigger   string     `json:"trigger"`
	ActorID   *uuid.UUID `json:"actorId,omitempty"`
	Note      *string    `json:"note,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TransitionResponse reports what a stage change request did. A terminal
// no-op comes back with applied=false and a warning instead of an error.
type TransitionResponse struct {
	Applied   bool   `json:"applied"`
	FromStage string `json:"fromStage"`
	ToStage   string `json:"toStage"`
	Warning   string `json:"warning,omitempty"`
}

func NewOpportunityResponse(opp *repository.Opportunity) OpportunityResponse {
	return OpportunityResponse{
		ID:                 opp.ID,
		Stage:              string(opp.Stage),
		OwnerID:            opp.OwnerID,
		ContactName:        opp.ContactName,
		ContactPhone:       opp.ContactPhone,
		ContactEmail:       opp.ContactEmail,
		ValueEstimateCents: opp.ValueEstimateCents,
		LostReason:         opp.LostReason,
		PublicToken:        opp.PublicToken,
		CreatedAt:          opp.CreatedAt,
		UpdatedAt:          opp.UpdatedAt,
	}
}

func NewStageLogResponse(entries []repository.StageLogEntry) []StageLogEntryResponse {
	out := make([]StageLogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		var from *string
		if entry.FromStage != nil {
			value := string(*entry.FromStage)
			from = &value
		}
		out = append(out, StageLogEntryResponse{
			ID:        entry.ID,
			FromStage: from,
			ToStage:   string(entry.ToStage),
			Trigger:   string(entry.Trigger),
			ActorID:   entry.ActorID,
			Note:      entry.Note,
			CreatedAt: entry.CreatedAt,
		})
	}
	return out
}

func NewTransitionResponse(result *service.TransitionResult) TransitionResponse {
	return TransitionResponse{
		Applied:   result.Applied,
		FromStage: string(result.FromStage),
		ToStage:   string(result.ToStage),
		Warning:   result.Warning,
	}
}
