package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// conflictMargin widens the internal booking scan around the proposed
// window so the query stays bounded without an index on the overlap
// predicate itself.
const conflictMargin = time.Hour

const (
	// SourceCalendar marks a conflict found on the external calendar.
	SourceCalendar = "calendar"
	// SourceInternal marks a conflict found in the booking store.
	SourceInternal = "internal"
)

// ConflictResult reports whether a proposed window collides with an
// existing commitment. Warnings surface degraded checking (e.g. the
// external calendar was unreachable).
type ConflictResult struct {
	Conflict bool
	Source   string
	Warnings []string
}

// CheckConflict tests a proposed window against the external calendar's
// busy intervals and the internal booking store. Calendar unavailability
// never blocks the check: it degrades to internal-only with a surfaced
// warning. An internal store failure is a hard error.
func (s *Service) CheckConflict(ctx context.Context, ownerID uuid.UUID, start, end time.Time) (*ConflictResult, error) {
	result := &ConflictResult{}

	busy, err := s.calendar.FreeBusy(ctx, start.Add(-conflictMargin), end.Add(conflictMargin))
	if err != nil {
		s.log.DegradedDependency("calendar", "free_busy", err)
		result.Warnings = append(result.Warnings, "external calendar unavailable; conflict check covered internal bookings only")
	} else {
		for _, interval := range busy {
			if overlaps(start, end, interval.Start, interval.End) {
				result.Conflict = true
				result.Source = SourceCalendar
				return result, nil
			}
		}
	}

	nearby, err := s.repo.ListNearby(ctx, ownerID, start, end, conflictMargin)
	if err != nil {
		return nil, err
	}
	for _, booking := range nearby {
		if overlaps(start, end, booking.StartTime, booking.EndTime) {
			result.Conflict = true
			result.Source = SourceInternal
			return result, nil
		}
	}

	return result, nil
}

// overlaps is the half-open interval test: back-to-back windows do not
// conflict.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
