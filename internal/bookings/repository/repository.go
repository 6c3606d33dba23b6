// Package repository provides data access for bookings. All writes that can
// double-book a slot go through CreateWithSlotGuard, which serializes on an
// advisory lock and re-checks overlap inside the transaction.
package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"pipeline_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome is the post-appointment status of a booking.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeCompleted   Outcome = "completed"
	OutcomeNoShow      Outcome = "no_show"
	OutcomeRescheduled Outcome = "rescheduled"
	OutcomeCancelled   Outcome = "cancelled"
)

// IsKnownOutcome reports whether the value is a valid booking outcome.
func IsKnownOutcome(outcome Outcome) bool {
	switch outcome {
	case OutcomePending, OutcomeCompleted, OutcomeNoShow, OutcomeRescheduled, OutcomeCancelled:
		return true
	default:
		return false
	}
}

// Booking is the database model for one scheduled appointment.
type Booking struct {
	ID              uuid.UUID
	OpportunityID   uuid.UUID
	OwnerID         uuid.UUID
	Type            string
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes int
	Outcome         Outcome
	Notes           *string
	MeetingLink     *string
	CalendarEventID *string
	Channel         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateParams holds the fields for inserting a new booking.
type CreateParams struct {
	OpportunityID uuid.UUID
	OwnerID       uuid.UUID
	Type          string
	StartTime     time.Time
	EndTime       time.Time
	Channel       string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bookingColumns = `id, opportunity_id, owner_id, type, start_time, end_time,
	duration_minutes, outcome, notes, meeting_link, calendar_event_id, channel, created_at, updated_at`

// occupyingOutcomes filters out bookings that no longer hold their slot;
// those are excluded from conflict detection.
const occupyingOutcomes = `outcome NOT IN ('rescheduled', 'no_show', 'cancelled')`

// CreateWithSlotGuard inserts the booking after serializing concurrent
// writers for the same owner and hour buckets on a transaction-scoped
// advisory lock, then re-checking overlap inside the transaction. Two nearly
// simultaneous requests for the same slot cannot both commit.
func (r *Repository) CreateWithSlotGuard(ctx context.Context, p CreateParams) (*Booking, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, key := range slotLockKeys(p.OwnerID, p.StartTime, p.EndTime) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
			return nil, err
		}
	}

	var overlapping int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings
		 WHERE owner_id = $1
		   AND `+occupyingOutcomes+`
		   AND start_time < $3 AND end_time > $2`,
		p.OwnerID, p.StartTime, p.EndTime,
	).Scan(&overlapping)
	if err != nil {
		return nil, err
	}
	if overlapping > 0 {
		return nil, apperr.Conflict("slot unavailable")
	}

	duration := int(p.EndTime.Sub(p.StartTime) / time.Minute)

	var booking Booking
	err = tx.QueryRow(ctx,
		`INSERT INTO bookings (opportunity_id, owner_id, type, start_time, end_time, duration_minutes, outcome, channel)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+bookingColumns,
		p.OpportunityID, p.OwnerID, p.Type, p.StartTime, p.EndTime, duration, string(OutcomePending), p.Channel,
	).Scan(
		&booking.ID, &booking.OpportunityID, &booking.OwnerID, &booking.Type, &booking.StartTime, &booking.EndTime,
		&booking.DurationMinutes, &booking.Outcome, &booking.Notes, &booking.MeetingLink, &booking.CalendarEventID,
		&booking.Channel, &booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByID fetches a booking by its identifier.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	var booking Booking
	err := r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	).Scan(
		&booking.ID, &booking.OpportunityID, &booking.OwnerID, &booking.Type, &booking.StartTime, &booking.EndTime,
		&booking.DurationMinutes, &booking.Outcome, &booking.Notes, &booking.MeetingLink, &booking.CalendarEventID,
		&booking.Channel, &booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("booking not found")
		}
		return nil, err
	}
	return &booking, nil
}

// ListNearby returns committed bookings for the owner whose windows fall
// within a widened margin around [from, to). Bookings that no longer occupy
// the calendar are excluded.
func (r *Repository) ListNearby(ctx context.Context, ownerID uuid.UUID, from, to time.Time, margin time.Duration) ([]Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE owner_id = $1
		   AND `+occupyingOutcomes+`
		   AND start_time < $3 AND end_time > $2
		 ORDER BY start_time ASC`,
		ownerID, from.Add(-margin), to.Add(margin),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBookings(rows)
}

// ListForOpportunity returns all bookings for one opportunity, newest first.
func (r *Repository) ListForOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE opportunity_id = $1
		 ORDER BY start_time DESC`,
		opportunityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBookings(rows)
}

// UpdateOutcome sets the booking outcome and returns the previous value.
func (r *Repository) UpdateOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) (Outcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var previous string
	err = tx.QueryRow(ctx,
		`SELECT outcome FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.NotFound("booking not found")
		}
		return "", err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bookings SET outcome = $2, updated_at = now() WHERE id = $1`,
		id, string(outcome),
	); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return Outcome(previous), nil
}

// SetNotes stores the free-text post-call notes.
func (r *Repository) SetNotes(ctx context.Context, id uuid.UUID, notes string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET notes = $2, updated_at = now() WHERE id = $1`,
		id, notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking not found")
	}
	return nil
}

// SetCalendarSync records the mirrored calendar event and meeting link.
func (r *Repository) SetCalendarSync(ctx context.Context, id uuid.UUID, eventID string, meetingLink *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET calendar_event_id = $2, meeting_link = $3, updated_at = now() WHERE id = $1`,
		id, eventID, meetingLink,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking not found")
	}
	return nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	var bookings []Booking
	for rows.Next() {
		var booking Booking
		if err := rows.Scan(
			&booking.ID, &booking.OpportunityID, &booking.OwnerID, &booking.Type, &booking.StartTime, &booking.EndTime,
			&booking.DurationMinutes, &booking.Outcome, &booking.Notes, &booking.MeetingLink, &booking.CalendarEventID,
			&booking.Channel, &booking.CreatedAt, &booking.UpdatedAt,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

// slotLockKeys derives one advisory lock key per hour bucket the proposed
// window touches, scoped to the owner's calendar. Keys are sorted by bucket
// so concurrent writers acquire them in the same order.
func slotLockKeys(ownerID uuid.UUID, start, end time.Time) []int64 {
	first := start.UTC().Truncate(time.Hour)
	last := end.UTC().Add(-time.Nanosecond).Truncate(time.Hour)

	var keys []int64
	for bucket := first; !bucket.After(last); bucket = bucket.Add(time.Hour) {
		h := fnv.New64a()
		_, _ = h.Write(ownerID[:])
		_, _ = fmt.Fprintf(h, ":%d", bucket.Unix())
		keys = append(keys, int64(h.Sum64()))
	}
	return keys
}
