package transport

import (
	"time"

	"pipeline_backend/internal/tasks/repository"

	"github.com/google/uuid"
)

type CreateTaskRequest struct {
	Title         string     `json:"title" validate:"required,min=1,max=300"`
	Description   *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	AssigneeID    *uuid.UUID `json:"assigneeId,omitempty"`
	OpportunityID *uuid.UUID `json:"opportunityId,omitempty"`
	DueAt         *time.Time `json:"dueAt,omitempty"`
}

type TaskResponse struct {
	ID            uuid.UUID  `json:"id"`
	OpportunityID *uuid.UUID `json:"opportunityId,omitempty"`
	BookingID     *uuid.UUID `json:"bookingId,omitempty"`
	AssigneeID    uuid.UUID  `json:"assigneeId"`
	Title         string     `json:"title"`
	Description   *string    `json:"description,omitempty"`
	DueAt         *time.Time `json:"dueAt,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type TaskListResponse struct {
	Items    []TaskResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

func NewTaskResponse(task *repository.Task) TaskResponse {
	return TaskResponse{
		ID:            task.ID,
		OpportunityID: task.OpportunityID,
		BookingID:     task.BookingID,
		AssigneeID:    task.AssigneeID,
		Title:         task.Title,
		Description:   task.Description,
		DueAt:         task.DueAt,
		Status:        string(task.Status),
		CreatedAt:     task.CreatedAt,
	}
}
