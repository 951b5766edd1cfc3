// Package availability is the single admission authority for booking
// requests. Every caller that needs to know whether a slot may be booked
// goes through Evaluate; no other component re-implements conflict or rule
// checks.
package availability

import (
	"time"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/rules"
)

// RejectReason identifies why a candidate slot was not admitted.
type RejectReason string

const (
	ReasonSlotTaken             RejectReason = "slot_taken"
	ReasonInPast                RejectReason = "in_past"
	ReasonBelowAdvanceNotice    RejectReason = "below_advance_notice"
	ReasonBeyondHorizon         RejectReason = "beyond_horizon"
	ReasonActiveCapReached      RejectReason = "active_booking_cap_reached"
	ReasonAdjacencyViolation    RejectReason = "adjacency_violation"
	ReasonGapViolation          RejectReason = "gap_violation"
	ReasonCourtUnderMaintenance RejectReason = "court_under_maintenance"
)

// Decision is the outcome of evaluating a candidate slot. Only the first
// failing check is reported; callers must not assume multiple reasons.
type Decision struct {
	Admitted bool
	Reason   RejectReason
}

func Admit() Decision { return Decision{Admitted: true} }

func Reject(r RejectReason) Decision { return Decision{Reason: r} }

func (d Decision) Rejected() bool { return !d.Admitted }

func (d Decision) Is(r RejectReason) bool { return !d.Admitted && d.Reason == r }

// Bypass selects which timing-window checks a privileged reschedule may
// skip. Conflict, past-slot and maintenance checks are never skippable.
type Bypass struct {
	AdvanceNotice bool
	Horizon       bool
}

// Context carries everything Evaluate needs, already loaded by the caller.
// Live intervals are the court's paid plus not-yet-expired pending bookings
// for the relevant window; expired pending holds must not be included.
type Context struct {
	Now            time.Time
	Rules          rules.RuleSet
	Live           []calendar.Interval
	Maintenance    []calendar.Interval
	UserActive     int
	UserSameCourt  []calendar.Interval
	Bypass         Bypass
}

// Resolver adjudicates candidate slots. A court pre-selected automatically
// by the caller is validated identically to a manually chosen one.
type Resolver struct {
	cal *calendar.Calendar
}

func NewResolver(cal *calendar.Calendar) *Resolver {
	return &Resolver{cal: cal}
}

// SlotFree reports whether the interval conflicts with none of the live
// bookings.
func SlotFree(iv calendar.Interval, live []calendar.Interval) bool {
	for _, other := range live {
		if iv.Overlaps(other) {
			return false
		}
	}
	return true
}

// Evaluate runs the admission pipeline. Check order: maintenance window
// first, then slot conflict, past slot, advance notice, horizon, active
// cap, adjacency. The first failing check short-circuits.
func (r *Resolver) Evaluate(candidate calendar.Slot, ctx Context) Decision {
	for _, window := range ctx.Maintenance {
		if candidate.Overlaps(window) {
			return Reject(ReasonCourtUnderMaintenance)
		}
	}
	if !SlotFree(candidate.Interval, ctx.Live) {
		return Reject(ReasonSlotTaken)
	}
	if !calendar.SlotInFuture(candidate, ctx.Now) {
		return Reject(ReasonInPast)
	}
	if !ctx.Bypass.AdvanceNotice && !ctx.Rules.WithinAdvanceWindow(ctx.Now, candidate.Start) {
		return Reject(ReasonBelowAdvanceNotice)
	}
	if !ctx.Bypass.Horizon && !ctx.Rules.WithinHorizon(r.cal, ctx.Now, candidate.Start) {
		return Reject(ReasonBeyondHorizon)
	}
	if !ctx.Rules.UnderActiveCap(ctx.UserActive) {
		return Reject(ReasonActiveCapReached)
	}
	switch ctx.Rules.CheckAdjacency(candidate.Interval, ctx.UserSameCourt) {
	case rules.AdjacencyTouching:
		return Reject(ReasonAdjacencyViolation)
	case rules.AdjacencyGapTooSmall:
		return Reject(ReasonGapViolation)
	}
	return Admit()
}

// SlotStatus is one entry of a day availability map for UI consumption.
type SlotStatus struct {
	Slot      calendar.Slot
	Available bool
	Reason    RejectReason
}

// DayAvailability produces the per-slot availability of a court for one
// facility day. Only slot-level facts are reported (conflicts, past slots,
// maintenance); per-user rule checks belong to Evaluate at booking time.
func (r *Resolver) DayAvailability(courtID int64, hours calendar.OperatingHours, date, now time.Time, live, maintenance []calendar.Interval) ([]SlotStatus, error) {
	slots, err := r.cal.EnumerateSlots(courtID, hours, date)
	if err != nil {
		return nil, err
	}
	statuses := make([]SlotStatus, 0, len(slots))
	for _, slot := range slots {
		status := SlotStatus{Slot: slot, Available: true}
		switch {
		case !SlotFree(slot.Interval, maintenance):
			status.Available = false
			status.Reason = ReasonCourtUnderMaintenance
		case !SlotFree(slot.Interval, live):
			status.Available = false
			status.Reason = ReasonSlotTaken
		case !calendar.SlotInFuture(slot, now):
			status.Available = false
			status.Reason = ReasonInPast
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
