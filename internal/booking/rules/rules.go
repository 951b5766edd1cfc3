// Package rules resolves the per-sport-type booking policy and exposes the
// pure predicates the availability resolver evaluates.
package rules

import (
	"time"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
)

// Sport types known to the platform.
const (
	SportTennis = "tennis"
	SportPadel  = "padel"
)

// Default policy values applied when no rule row exists for a sport type.
const (
	DefaultMaxDaysAhead             = 30
	DefaultMaxActiveBookingsPerUser = 4
)

// RuleSet is the effective booking policy for one sport type.
type RuleSet struct {
	SportType                string
	MinAdvanceNotice         time.Duration
	MaxDaysAhead             int
	MaxActiveBookingsPerUser int
	AllowConsecutive         bool
	MinGap                   time.Duration
}

// Defaults returns the documented fallback policy. A missing configuration
// row must never block booking.
func Defaults(sportType string) RuleSet {
	return RuleSet{
		SportType:                sportType,
		MinAdvanceNotice:         0,
		MaxDaysAhead:             DefaultMaxDaysAhead,
		MaxActiveBookingsPerUser: DefaultMaxActiveBookingsPerUser,
		AllowConsecutive:         true,
		MinGap:                   0,
	}
}

// WithinAdvanceWindow reports whether slotStart is at least MinAdvanceNotice
// after now. The exact boundary is admitted.
func (r RuleSet) WithinAdvanceWindow(now, slotStart time.Time) bool {
	return !slotStart.Before(now.Add(r.MinAdvanceNotice))
}

// WithinHorizon reports whether the slot's facility day is no more than
// MaxDaysAhead days after today's facility day.
func (r RuleSet) WithinHorizon(cal *calendar.Calendar, now, slotStart time.Time) bool {
	return cal.DaysUntil(now, slotStart) <= r.MaxDaysAhead
}

// UnderActiveCap reports whether a user with activeCount live bookings may
// take another one.
func (r RuleSet) UnderActiveCap(activeCount int) bool {
	return activeCount < r.MaxActiveBookingsPerUser
}

// AdjacencyResult classifies a candidate slot against the user's existing
// bookings on the same court.
type AdjacencyResult int

const (
	AdjacencyOK AdjacencyResult = iota
	// AdjacencyTouching: consecutive bookings are disallowed and the
	// candidate shares a boundary with an existing booking.
	AdjacencyTouching
	// AdjacencyGapTooSmall: a configured minimum gap is violated.
	AdjacencyGapTooSmall
)

// CheckAdjacency evaluates the consecutive-booking and minimum-gap
// constraints against the user's existing bookings on the candidate's court.
// Overlapping neighbors are skipped: overlap is rejected earlier as a slot
// conflict, not an adjacency violation.
func (r RuleSet) CheckAdjacency(candidate calendar.Interval, existing []calendar.Interval) AdjacencyResult {
	for _, other := range existing {
		if candidate.Overlaps(other) {
			continue
		}
		if !r.AllowConsecutive && candidate.Touches(other) {
			return AdjacencyTouching
		}
		if r.MinGap <= 0 {
			continue
		}
		var gap time.Duration
		if !candidate.End.After(other.Start) {
			gap = other.Start.Sub(candidate.End)
		} else {
			gap = candidate.Start.Sub(other.End)
		}
		if gap < r.MinGap {
			return AdjacencyGapTooSmall
		}
	}
	return AdjacencyOK
}
