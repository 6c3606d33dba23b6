// Package repository provides data access for post-call stage suggestions.
// Resolution is one-shot: the claim update only matches unresolved rows, so
// two reviewers cannot both resolve the same suggestion.
package repository

import (
	"context"
	"errors"
	"time"

	"pipeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the lifecycle state of a suggestion.
type Status string

const (
	StatusSuggested Status = "suggested"
	StatusResolved  Status = "resolved"
)

// Resolution records how a suggestion left the review queue.
type Resolution string

const (
	ResolutionConfirmed  Resolution = "confirmed"
	ResolutionOverridden Resolution = "overridden"
	ResolutionDismissed  Resolution = "dismissed"
)

// Suggestion is the database model for one post-call stage suggestion.
type Suggestion struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	OpportunityID  uuid.UUID
	Status         Status
	SuggestedStage string
	Confidence     int
	Reasoning      string
	Sentiment      string
	Objections     []string
	Followups      []string
	Resolution     *Resolution
	AppliedStage   *string
	ResolvedBy     *uuid.UUID
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// CreateParams holds the fields for inserting a new suggestion.
type CreateParams struct {
	BookingID      uuid.UUID
	OpportunityID  uuid.UUID
	SuggestedStage string
	Confidence     int
	Reasoning      string
	Sentiment      string
	Objections     []string
	Followups      []string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const suggestionColumns = `id, booking_id, opportunity_id, status, suggested_stage, confidence,
	reasoning, sentiment, objections, followups, resolution, applied_stage, resolved_by, created_at, resolved_at`

// Create inserts a new suggestion. The booking_id unique constraint makes a
// second suggestion per booking a conflict.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Suggestion, error) {
	if p.Objections == nil {
		p.Objections = []string{}
	}
	if p.Followups == nil {
		p.Followups = []string{}
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO suggestions (booking_id, opportunity_id, status, suggested_stage, confidence, reasoning, sentiment, objections, followups)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+suggestionColumns,
		p.BookingID, p.OpportunityID, string(StatusSuggested), p.SuggestedStage, p.Confidence,
		p.Reasoning, p.Sentiment, p.Objections, p.Followups,
	)

	suggestion, err := scanSuggestion(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.Conflict("a suggestion already exists for this booking")
		}
		return nil, err
	}
	return suggestion, nil
}

// GetByID fetches a suggestion by its identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Suggestion, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1`, id,
	)
	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("suggestion not found")
		}
		return nil, err
	}
	return suggestion, nil
}

// GetByBookingID fetches the suggestion attached to a booking, if any.
func (r *Repository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*Suggestion, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE booking_id = $1`, bookingID,
	)
	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("suggestion not found")
		}
		return nil, err
	}
	return suggestion, nil
}

// ListPending returns unresolved suggestions, oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]Suggestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+suggestionColumns+` FROM suggestions
		 WHERE status = $1
		 ORDER BY created_at ASC`,
		string(StatusSuggested),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suggestions []Suggestion
	for rows.Next() {
		suggestion, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, *suggestion)
	}
	return suggestions, rows.Err()
}

// ClaimForResolution atomically resolves an unresolved suggestion. A
// suggestion that was already resolved comes back as a conflict, never a
// second resolution.
func (r *Repository) ClaimForResolution(ctx context.Context, id uuid.UUID, resolution Resolution, appliedStage *string, resolvedBy *uuid.UUID) (*Suggestion, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE suggestions
		 SET status = $2, resolution = $3, applied_stage = $4, resolved_by = $5, resolved_at = now()
		 WHERE id = $1 AND status = $6
		 RETURNING `+suggestionColumns,
		id, string(StatusResolved), string(resolution), appliedStage, resolvedBy, string(StatusSuggested),
	)

	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, apperr.Conflict("suggestion is already resolved")
		}
		return nil, err
	}
	return suggestion, nil
}

func scanSuggestion(row pgx.Row) (*Suggestion, error) {
	var (
		s          Suggestion
		resolution *string
	)
	err := row.Scan(
		&s.ID, &s.BookingID, &s.OpportunityID, &s.Status, &s.SuggestedStage, &s.Confidence,
		&s.Reasoning, &s.Sentiment, &s.Objections, &s.Followups, &resolution, &s.AppliedStage,
		&s.ResolvedBy, &s.CreatedAt, &s.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolution != nil {
		value := Resolution(*resolution)
		s.Resolution = &value
	}
	return &s, nil
}
