// Package service implements task operations for staff work items and the
// automation-created preparation tasks.
package service

import (
	"context"

	"pipeline_backend/internal/events"
	"pipeline_backend/internal/tasks/repository"
	"pipeline_backend/platform/apperr"
	"pipeline_backend/platform/logger"
	"pipeline_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Store is the persistence surface the service depends on.
type Store interface {
	Create(ctx context.Context, p repository.CreateParams) (*repository.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Task, error)
	List(ctx context.Context, p repository.ListParams) ([]repository.Task, int, error)
	SetStatus(ctx context.Context, id uuid.UUID, status repository.Status) error
}

type Service struct {
	repo Store
	bus  events.Bus
	log  *logger.Logger
}

func NewService(repo Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// Create opens a new task and publishes the created event.
func (s *Service) Create(ctx context.Context, p repository.CreateParams) (*repository.Task, error) {
	if p.Title == "" {
		return nil, apperr.Validation("task title is required")
	}
	p.Title = sanitize.Text(p.Title)
	p.Description = sanitize.TextPtr(p.Description)

	task, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.TaskCreated{
		BaseEvent:     events.NewBaseEvent(),
		TaskID:        task.ID,
		OpportunityID: task.OpportunityID,
		AssigneeID:    task.AssigneeID,
		Title:         task.Title,
		DueAt:         task.DueAt,
	})

	return task, nil
}

// GetByID fetches a single task.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*repository.Task, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tasks matching the filters.
func (s *Service) List(ctx context.Context, p repository.ListParams) ([]repository.Task, int, error) {
	return s.repo.List(ctx, p)
}

// Complete marks a task done.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*repository.Task, error) {
	if err := s.repo.SetStatus(ctx, id, repository.StatusDone); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Reopen puts a completed task back on the list.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID) (*repository.Task, error) {
	if err := s.repo.SetStatus(ctx, id, repository.StatusOpen); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}
