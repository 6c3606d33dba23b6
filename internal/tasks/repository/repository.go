// Package repository provides data access for staff tasks.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pipeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen Status = "open"
	StatusDone Status = "done"
)

// Task is the database model for one work item.
type Task struct {
	ID            uuid.UUID
	OpportunityID *uuid.UUID
	BookingID     *uuid.UUID
	AssigneeID    uuid.UUID
	Title         string
	Description   *string
	DueAt         *time.Time
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams holds the fields for inserting a new task.
type CreateParams struct {
	OpportunityID *uuid.UUID
	BookingID     *uuid.UUID
	AssigneeID    uuid.UUID
	Title         string
	Description   *string
	DueAt         *time.Time
}

// ListParams holds optional filters for listing tasks.
type ListParams struct {
	AssigneeID    *uuid.UUID
	OpportunityID *uuid.UUID
	Status        *Status
	Page          int
	PageSize      int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, opportunity_id, booking_id, assignee_id, title, description, due_at, status, created_at, updated_at`

// Create inserts a new open task.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Task, error) {
	var task Task
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tasks (opportunity_id, booking_id, assignee_id, title, description, due_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+taskColumns,
		p.OpportunityID, p.BookingID, p.AssigneeID, p.Title, p.Description, p.DueAt, string(StatusOpen),
	).Scan(
		&task.ID, &task.OpportunityID, &task.BookingID, &task.AssigneeID, &task.Title,
		&task.Description, &task.DueAt, &task.Status, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// GetByID fetches a task by its identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	var task Task
	err := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	).Scan(
		&task.ID, &task.OpportunityID, &task.BookingID, &task.AssigneeID, &task.Title,
		&task.Description, &task.DueAt, &task.Status, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("task not found")
		}
		return nil, err
	}
	return &task, nil
}

// List returns tasks matching the filters, due-date first, then newest.
func (r *Repository) List(ctx context.Context, p ListParams) ([]Task, int, error) {
	where := "TRUE"
	args := []any{}

	addFilter := func(condition string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", condition, len(args))
	}

	if p.AssigneeID != nil {
		addFilter("assignee_id =", *p.AssigneeID)
	}
	if p.OpportunityID != nil {
		addFilter("opportunity_id =", *p.OpportunityID)
	}
	if p.Status != nil {
		addFilter("status =", string(*p.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM tasks WHERE "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)

	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+where+
			fmt.Sprintf(" ORDER BY due_at ASC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(
			&task.ID, &task.OpportunityID, &task.BookingID, &task.AssigneeID, &task.Title,
			&task.Description, &task.DueAt, &task.Status, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

// SetStatus updates the task status.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task not found")
	}
	return nil
}
