// Package repository provides data access for opportunities and their
// stage audit log.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pipeline_backend/internal/opportunities/domain"
	"pipeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Opportunity is the database model for one sales engagement.
type Opportunity struct {
	ID                 uuid.UUID
	Stage              domain.Stage
	OwnerID            uuid.UUID
	ContactName        string
	ContactPhone       *string
	ContactEmail       *string
	ValueEstimateCents *int64
	LostReason         *string
	PublicToken        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StageLogEntry is one immutable audit record of a stage transition.
type StageLogEntry struct {
	ID            uuid.UUID
	OpportunityID uuid.UUID
	FromStage     *domain.Stage
	ToStage       domain.Stage
	Trigger       domain.Trigger
	ActorID       *uuid.UUID
	Note          *string
	CreatedAt     time.Time
}

// CreateParams holds the fields for inserting a new opportunity.
type CreateParams struct {
	OwnerID            uuid.UUID
	ContactName        string
	ContactPhone       *string
	ContactEmail       *string
	ValueEstimateCents *int64
	PublicToken        string
}

// ApplyStageParams holds the fields for the transactional stage write.
type ApplyStageParams struct {
	OpportunityID uuid.UUID
	ToStage       domain.Stage
	Trigger       domain.Trigger
	ActorID       *uuid.UUID
	Note          *string
	LostReason    *string
}

// ApplyStageResult reports what the stage write did.
type ApplyStageResult struct {
	Applied   bool
	FromStage domain.Stage
}

// ListParams holds optional filters for listing opportunities.
type ListParams struct {
	OwnerID  *uuid.UUID
	Stage    *domain.Stage
	Page     int
	PageSize int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const opportunityColumns = `id, stage, owner_id, contact_name, contact_phone, contact_email,
	value_estimate_cents, lost_reason, public_token, created_at, updated_at`

// Create inserts a new opportunity in the initial stage and writes the
// opening audit entry.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Opportunity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var opp Opportunity
	err = tx.QueryRow(ctx,
		`INSERT INTO opportunities (stage, owner_id, contact_name, contact_phone, contact_email, value_estimate_cents, public_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+opportunityColumns,
		string(domain.StageNewEnquiry), p.OwnerID, p.ContactName, p.ContactPhone, p.ContactEmail, p.ValueEstimateCents, p.PublicToken,
	).Scan(
		&opp.ID, &opp.Stage, &opp.OwnerID, &opp.ContactName, &opp.ContactPhone, &opp.ContactEmail,
		&opp.ValueEstimateCents, &opp.LostReason, &opp.PublicToken, &opp.CreatedAt, &opp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO stage_log (opportunity_id, from_stage, to_stage, trigger, actor_id, note)
		 VALUES ($1, NULL, $2, $3, $4, NULL)`,
		opp.ID, string(domain.StageNewEnquiry), string(domain.TriggerCreated), p.OwnerID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &opp, nil
}

// GetByID fetches an opportunity by its identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Opportunity, error) {
	return r.getBy(ctx, "id = $1", id)
}

// GetByPublicToken fetches an opportunity by its public booking token.
func (r *Repository) GetByPublicToken(ctx context.Context, token string) (*Opportunity, error) {
	return r.getBy(ctx, "public_token = $1", token)
}

func (r *Repository) getBy(ctx context.Context, where string, arg any) (*Opportunity, error) {
	var opp Opportunity
	err := r.pool.QueryRow(ctx,
		`SELECT `+opportunityColumns+` FROM opportunities WHERE `+where,
		arg,
	).Scan(
		&opp.ID, &opp.Stage, &opp.OwnerID, &opp.ContactName, &opp.ContactPhone, &opp.ContactEmail,
		&opp.ValueEstimateCents, &opp.LostReason, &opp.PublicToken, &opp.CreatedAt, &opp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("opportunity not found")
		}
		return nil, err
	}
	return &opp, nil
}

// List returns opportunities matching the filters, newest first.
func (r *Repository) List(ctx context.Context, p ListParams) ([]Opportunity, int, error) {
	where := "TRUE"
	args := []any{}

	addFilter := func(condition string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", condition, len(args))
	}

	if p.OwnerID != nil {
		addFilter("owner_id =", *p.OwnerID)
	}
	if p.Stage != nil {
		addFilter("stage =", string(*p.Stage))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM opportunities WHERE "+where, args...,
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
		`SELECT `+opportunityColumns+` FROM opportunities WHERE `+where+
			fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Opportunity
	for rows.Next() {
		var opp Opportunity
		if err := rows.Scan(
			&opp.ID, &opp.Stage, &opp.OwnerID, &opp.ContactName, &opp.ContactPhone, &opp.ContactEmail,
			&opp.ValueEstimateCents, &opp.LostReason, &opp.PublicToken, &opp.CreatedAt, &opp.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, opp)
	}
	return items, total, rows.Err()
}

// ApplyStage performs the stage write and audit append in one transaction.
// The current stage is re-read under a row lock so concurrent transitions
// serialize; a terminal current stage leaves the row untouched and reports
// Applied=false.
func (r *Repository) ApplyStage(ctx context.Context, p ApplyStageParams) (ApplyStageResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ApplyStageResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current domain.Stage
	err = tx.QueryRow(ctx,
		`SELECT stage FROM opportunities WHERE id = $1 FOR UPDATE`,
		p.OpportunityID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApplyStageResult{}, apperr.NotFound("opportunity not found")
		}
		return ApplyStageResult{}, err
	}

	if domain.IsTerminal(current) {
		return ApplyStageResult{Applied: false, FromStage: current}, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE opportunities
		 SET stage = $2, lost_reason = COALESCE($3, lost_reason), updated_at = now()
		 WHERE id = $1`,
		p.OpportunityID, string(p.ToStage), p.LostReason,
	)
	if err != nil {
		return ApplyStageResult{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO stage_log (opportunity_id, from_stage, to_stage, trigger, actor_id, note)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.OpportunityID, string(current), string(p.ToStage), string(p.Trigger), p.ActorID, p.Note,
	)
	if err != nil {
		return ApplyStageResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyStageResult{}, err
	}
	return ApplyStageResult{Applied: true, FromStage: current}, nil
}

// ListStageLog returns the ordered transition history for an opportunity.
func (r *Repository) ListStageLog(ctx context.Context, opportunityID uuid.UUID) ([]StageLogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, opportunity_id, from_stage, to_stage, trigger, actor_id, note, created_at
		 FROM stage_log
		 WHERE opportunity_id = $1
		 ORDER BY created_at ASC, id ASC`,
		opportunityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StageLogEntry
	for rows.Next() {
		var entry StageLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.OpportunityID, &entry.FromStage, &entry.ToStage,
			&entry.Trigger, &entry.ActorID, &entry.Note, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
