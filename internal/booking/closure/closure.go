// Package closure computes and resolves conflicts between court closures
// (planned maintenance or emergency) and the paid bookings occupying the
// affected window.
package closure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

var (
	ErrCourtNotFound       = errors.New("court not found")
	ErrNoTransferCourt     = errors.New("no alternate court of the same sport type")
	ErrTransferNeedsCourt  = errors.New("transfer resolution requires an alternate court")
	ErrTransferWrongSport  = errors.New("alternate court has a different sport type")
	ErrUnknownResolution   = errors.New("unknown conflict resolution")
	ErrResolutionMissing   = errors.New("closure has conflicts; an explicit resolution is required")
	ErrWindowNotFound      = errors.New("maintenance window not found")
	ErrTargetCourtRequired = errors.New("closure requires a court or the all-courts flag")
)

// Notifier receives fire-and-forget notifications after a closure commits.
type Notifier interface {
	ClosureCreated(ctx context.Context, window queries.MaintenanceWindow)
}

// Target selects the courts a closure applies to.
type Target struct {
	CourtID   int64
	AllCourts bool
}

func (t Target) nullCourtID() sql.NullInt64 {
	if t.AllCourts {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.CourtID, Valid: true}
}

// Resolution is the operator's explicit choice for handling conflicts.
type Resolution int

const (
	// ResolutionAbort declines the closure; nothing is persisted.
	ResolutionAbort Resolution = iota
	// ResolutionCancelAll cancels every conflicting booking.
	ResolutionCancelAll
	// ResolutionTransfer moves every conflicting booking to an alternate
	// court of the same sport type, times unchanged.
	ResolutionTransfer
)

// Request describes a closure to be applied.
type Request struct {
	Target            Target
	Interval          calendar.Interval
	Reason            string
	Resolution        Resolution
	AlternateCourtID  int64 // required for ResolutionTransfer
	ExpectedReopening *time.Time
}

// TransferFailure reports one booking whose transfer could not be
// completed; the rest of the batch proceeds.
type TransferFailure struct {
	BookingID int64
	Err       error
}

// Result reports what a committed closure did.
type Result struct {
	Window      queries.MaintenanceWindow
	Cancelled   []int64
	Transferred []int64
	Flagged     []int64 // bookings linked for later reschedule (emergency)
	Failures    []TransferFailure
}

// Resolver drives closure conflict resolution against the store.
type Resolver struct {
	db       *db.DB
	cal      *calendar.Calendar
	clock    calendar.Clock
	notifier Notifier
}

func NewResolver(database *db.DB, cal *calendar.Calendar, clock calendar.Clock, notifier Notifier) (*Resolver, error) {
	if database == nil {
		return nil, errors.New("closure resolver requires a database")
	}
	if cal == nil {
		return nil, errors.New("closure resolver requires a calendar")
	}
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Resolver{db: database, cal: cal, clock: clock, notifier: notifier}, nil
}

// FindConflicts returns the paid bookings whose start falls inside the
// closure interval. The list is a fixed snapshot: resolution operates on it
// without re-scanning.
func (r *Resolver) FindConflicts(ctx context.Context, target Target, interval calendar.Interval) ([]queries.Booking, error) {
	if !target.AllCourts && target.CourtID == 0 {
		return nil, ErrTargetCourtRequired
	}
	conflicts, err := r.db.Queries.ListPaidBookingsStartingBetween(ctx, queries.ListPaidBookingsStartingBetweenParams{
		CourtID:   target.nullCourtID(),
		StartTime: interval.Start,
		EndTime:   interval.End,
	})
	if err != nil {
		return nil, fmt.Errorf("list conflicting bookings: %w", err)
	}
	return conflicts, nil
}

// Apply executes a planned (non-emergency) closure. With no conflicts the
// window is created directly; with conflicts the operator's resolution is
// executed first and the window is committed last, so new bookings start
// failing the maintenance check only once the closure is final. Abort
// leaves every booking and the uncommitted window untouched.
func (r *Resolver) Apply(ctx context.Context, req Request) (*Result, error) {
	conflicts, err := r.FindConflicts(ctx, req.Target, req.Interval)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	if len(conflicts) > 0 {
		switch req.Resolution {
		case ResolutionAbort:
			log.Ctx(ctx).Info().
				Int("conflicts", len(conflicts)).
				Msg("Closure aborted by operator")
			return nil, ErrResolutionMissing
		case ResolutionCancelAll:
			if err := r.cancelAll(ctx, conflicts, result); err != nil {
				return nil, err
			}
		case ResolutionTransfer:
			if err := r.transferAll(ctx, req, conflicts, result); err != nil {
				return nil, err
			}
		default:
			return nil, ErrUnknownResolution
		}
	}

	window, err := r.commitWindow(ctx, req, false)
	if err != nil {
		return nil, err
	}
	result.Window = window

	if r.notifier != nil {
		r.notifier.ClosureCreated(ctx, window)
	}
	return result, nil
}

// ApplyEmergency executes an emergency closure: effective immediately,
// lasting until end of the current facility day unless an explicit end is
// given. Conflicting bookings are not cancelled; each is linked to the
// window for later reschedule under relaxed rules.
func (r *Resolver) ApplyEmergency(ctx context.Context, target Target, reason string, expectedReopening *time.Time) (*Result, error) {
	now := r.clock.Now()
	interval := calendar.Interval{Start: now, End: r.cal.DayEnd(now)}

	conflicts, err := r.FindConflicts(ctx, target, interval)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	err = r.db.RunInTx(ctx, func(txdb *db.DB) error {
		var reopening sql.NullTime
		if expectedReopening != nil {
			reopening = sql.NullTime{Time: *expectedReopening, Valid: true}
		}
		window, err := txdb.Queries.InsertMaintenanceWindow(ctx, queries.InsertMaintenanceWindowParams{
			CourtID:           target.nullCourtID(),
			StartTime:         interval.Start,
			EndTime:           interval.End,
			Reason:            reason,
			Emergency:         true,
			ExpectedReopening: reopening,
		})
		if err != nil {
			return fmt.Errorf("insert emergency window: %w", err)
		}
		result.Window = window

		for _, booking := range conflicts {
			if _, err := txdb.Queries.InsertAffectedBooking(ctx, queries.InsertAffectedBookingParams{
				BookingID: booking.ID,
				WindowID:  window.ID,
			}); err != nil {
				return fmt.Errorf("link affected booking %d: %w", booking.ID, err)
			}
			result.Flagged = append(result.Flagged, booking.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Warn().
		Int64("window_id", result.Window.ID).
		Bool("all_courts", target.AllCourts).
		Int("affected", len(result.Flagged)).
		Msg("Emergency closure created")

	if r.notifier != nil {
		r.notifier.ClosureCreated(ctx, result.Window)
	}
	return result, nil
}

// Reopen deactivates the active emergency windows scoped to the court, or
// every active emergency window for an all-courts target. A facility-wide
// window is untouched by a single-court reopen. Emergency windows never
// lapse by time elapsing; this explicit operator action is the only way
// they end.
func (r *Resolver) Reopen(ctx context.Context, target Target) (int, error) {
	windows, err := r.db.Queries.ListActiveEmergencyWindows(ctx, target.nullCourtID())
	if err != nil {
		return 0, fmt.Errorf("list emergency windows: %w", err)
	}
	reopened := 0
	for _, window := range windows {
		if err := r.db.Queries.DeactivateMaintenanceWindow(ctx, window.ID); err != nil {
			return reopened, fmt.Errorf("deactivate window %d: %w", window.ID, err)
		}
		reopened++
	}
	log.Ctx(ctx).Info().
		Int("windows", reopened).
		Bool("all_courts", target.AllCourts).
		Msg("Courts reopened")
	return reopened, nil
}

func (r *Resolver) cancelAll(ctx context.Context, conflicts []queries.Booking, result *Result) error {
	err := r.db.RunInTx(ctx, func(txdb *db.DB) error {
		for _, booking := range conflicts {
			if err := txdb.Queries.UpdateBookingStatus(ctx, queries.UpdateBookingStatusParams{
				ID:     booking.ID,
				Status: queries.BookingStatusCancelled,
			}); err != nil {
				return fmt.Errorf("cancel booking %d: %w", booking.ID, err)
			}
			result.Cancelled = append(result.Cancelled, booking.ID)
		}
		return nil
	})
	if err != nil {
		result.Cancelled = nil
		return err
	}
	log.Ctx(ctx).Info().
		Int("cancelled", len(result.Cancelled)).
		Msg("Closure conflicts cancelled")
	return nil
}

// transferAll moves each conflicting booking to the alternate court. The
// destination is re-validated per booking (active maintenance and live
// conflicts) so the no-double-booking invariant holds on the destination
// court; individual failures are reported without aborting the batch.
func (r *Resolver) transferAll(ctx context.Context, req Request, conflicts []queries.Booking, result *Result) error {
	if req.AlternateCourtID == 0 {
		return ErrTransferNeedsCourt
	}
	if req.Target.AllCourts {
		// An all-courts closure leaves nowhere to transfer to.
		return ErrNoTransferCourt
	}

	source, err := r.db.Queries.GetCourt(ctx, req.Target.CourtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCourtNotFound
		}
		return fmt.Errorf("load court %d: %w", req.Target.CourtID, err)
	}
	alternate, err := r.db.Queries.GetCourt(ctx, req.AlternateCourtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCourtNotFound
		}
		return fmt.Errorf("load court %d: %w", req.AlternateCourtID, err)
	}
	if alternate.SportType != source.SportType {
		return ErrTransferWrongSport
	}
	if !alternate.Active || alternate.ID == source.ID {
		return ErrNoTransferCourt
	}

	now := r.clock.Now()
	for _, booking := range conflicts {
		err := r.db.RunInTx(ctx, func(txdb *db.DB) error {
			windows, err := txdb.Queries.ListActiveWindowsOverlapping(ctx, queries.ListActiveWindowsOverlappingParams{
				CourtID:   alternate.ID,
				StartTime: booking.StartTime,
				EndTime:   booking.EndTime,
			})
			if err != nil {
				return fmt.Errorf("destination maintenance check: %w", err)
			}
			if len(windows) > 0 {
				return fmt.Errorf("destination court %d under maintenance", alternate.ID)
			}
			count, err := txdb.Queries.CountLiveBookingsOverlapping(ctx, queries.CountLiveBookingsOverlappingParams{
				CourtID:   alternate.ID,
				StartTime: booking.StartTime,
				EndTime:   booking.EndTime,
				Now:       now,
			})
			if err != nil {
				return fmt.Errorf("destination conflict check: %w", err)
			}
			if count > 0 {
				return fmt.Errorf("destination slot taken on court %d", alternate.ID)
			}
			return txdb.Queries.UpdateBookingSlot(ctx, queries.UpdateBookingSlotParams{
				ID:        booking.ID,
				CourtID:   alternate.ID,
				StartTime: booking.StartTime,
				EndTime:   booking.EndTime,
			})
		})
		if err != nil {
			result.Failures = append(result.Failures, TransferFailure{BookingID: booking.ID, Err: err})
			continue
		}
		result.Transferred = append(result.Transferred, booking.ID)
	}

	log.Ctx(ctx).Info().
		Int("transferred", len(result.Transferred)).
		Int("failed", len(result.Failures)).
		Int64("alternate_court_id", alternate.ID).
		Msg("Closure conflicts transferred")
	return nil
}

// TransferCandidates lists the active same-sport courts a closure's
// bookings could move to. An empty list means the transfer option must not
// be offered for this court's sport type.
func (r *Resolver) TransferCandidates(ctx context.Context, courtID int64) ([]queries.Court, error) {
	court, err := r.db.Queries.GetCourt(ctx, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourtNotFound
		}
		return nil, fmt.Errorf("load court %d: %w", courtID, err)
	}
	siblings, err := r.db.Queries.ListActiveCourtsBySportType(ctx, court.SportType)
	if err != nil {
		return nil, fmt.Errorf("list sibling courts: %w", err)
	}
	candidates := make([]queries.Court, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID == courtID {
			continue
		}
		candidates = append(candidates, sibling)
	}
	return candidates, nil
}

func (r *Resolver) commitWindow(ctx context.Context, req Request, emergency bool) (queries.MaintenanceWindow, error) {
	var reopening sql.NullTime
	if req.ExpectedReopening != nil {
		reopening = sql.NullTime{Time: *req.ExpectedReopening, Valid: true}
	}
	window, err := r.db.Queries.InsertMaintenanceWindow(ctx, queries.InsertMaintenanceWindowParams{
		CourtID:           req.Target.nullCourtID(),
		StartTime:         req.Interval.Start,
		EndTime:           req.Interval.End,
		Reason:            req.Reason,
		Emergency:         emergency,
		ExpectedReopening: reopening,
	})
	if err != nil {
		return queries.MaintenanceWindow{}, fmt.Errorf("insert maintenance window: %w", err)
	}
	log.Ctx(ctx).Info().
		Int64("window_id", window.ID).
		Time("start", window.StartTime).
		Time("end", window.EndTime).
		Msg("Maintenance window created")
	return window, nil
}
