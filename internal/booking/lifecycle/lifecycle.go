// Package lifecycle orchestrates booking creation, payment confirmation,
// rescheduling and cancellation. It owns the pending_payment -> paid ->
// cancelled state machine and performs the atomic slot claim against the
// store.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/availability"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/rules"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

// DefaultPendingTTL is how long a pending_payment booking holds its slot.
const DefaultPendingTTL = 10 * time.Minute

var (
	ErrNotFound           = errors.New("booking not found")
	ErrCourtNotFound      = errors.New("court not found")
	ErrCourtDisabled      = errors.New("court is disabled")
	ErrBookingCancelled   = errors.New("booking is cancelled")
	ErrBookingExpired     = errors.New("booking hold has expired")
	ErrPaymentRefMismatch = errors.New("booking already paid with a different payment reference")
)

// Notifier receives fire-and-forget notifications after state changes.
// Implementations must never fail the booking flow: they log their own
// errors and return nothing.
type Notifier interface {
	BookingConfirmed(ctx context.Context, booking queries.Booking)
}

// Actor identifies who is performing a privileged operation.
type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) privileged() bool {
	return a.Role == queries.RoleSupervisor || a.Role == queries.RoleAdmin
}

// Result pairs the availability decision with the booking it produced, if
// admitted. A rejected decision is an expected outcome, not an error.
type Result struct {
	Decision availability.Decision
	Booking  queries.Booking
}

// Config tunes the controller. Zero values select defaults.
type Config struct {
	Clock      calendar.Clock
	Notifier   Notifier
	PendingTTL time.Duration
}

type Controller struct {
	db         *db.DB
	cal        *calendar.Calendar
	clock      calendar.Clock
	resolver   *availability.Resolver
	notifier   Notifier
	pendingTTL time.Duration
}

func NewController(database *db.DB, cal *calendar.Calendar, cfg Config) (*Controller, error) {
	if database == nil {
		return nil, errors.New("lifecycle controller requires a database")
	}
	if cal == nil {
		return nil, errors.New("lifecycle controller requires a calendar")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &Controller{
		db:         database,
		cal:        cal,
		clock:      clock,
		resolver:   availability.NewResolver(cal),
		notifier:   cfg.Notifier,
		pendingTTL: ttl,
	}, nil
}

// Resolver exposes the controller's availability resolver so callers (day
// availability views) share the exact admission logic.
func (c *Controller) Resolver() *availability.Resolver { return c.resolver }

// Calendar returns the facility calendar.
func (c *Controller) Calendar() *calendar.Calendar { return c.cal }

// Now returns the controller's current UTC time.
func (c *Controller) Now() time.Time { return c.clock.Now() }

// RulesFor resolves the effective policy for a sport type, falling back to
// documented defaults when no row is configured.
func (c *Controller) RulesFor(ctx context.Context, sportType string) (rules.RuleSet, error) {
	row, err := c.db.Queries.GetBookingRule(ctx, sportType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rules.Defaults(sportType), nil
		}
		return rules.RuleSet{}, fmt.Errorf("load booking rule for %s: %w", sportType, err)
	}
	return rules.RuleSet{
		SportType:                row.SportType,
		MinAdvanceNotice:         time.Duration(row.MinAdvanceMinutes) * time.Minute,
		MaxDaysAhead:             int(row.MaxDaysAhead),
		MaxActiveBookingsPerUser: int(row.MaxActiveBookings),
		AllowConsecutive:         row.AllowConsecutive,
		MinGap:                   time.Duration(row.MinGapMinutes) * time.Minute,
	}, nil
}

// CreatePending admits and claims a slot for a user, producing a booking in
// pending_payment with an expiry hold.
func (c *Controller) CreatePending(ctx context.Context, userID int64, slot calendar.Slot) (Result, error) {
	now := c.clock.Now()
	decision, _, err := c.evaluate(ctx, slot, userID, 0, availability.Bypass{})
	if err != nil {
		return Result{}, err
	}
	if decision.Rejected() {
		return Result{Decision: decision}, nil
	}

	booking, claimErr := c.claim(ctx, queries.InsertBookingParams{
		CourtID:     slot.CourtID,
		UserID:      userID,
		StartTime:   slot.Start,
		EndTime:     slot.End,
		Status:      queries.BookingStatusPendingPayment,
		ExpiresAt:   sql.NullTime{Time: now.Add(c.pendingTTL), Valid: true},
		BookingType: queries.BookingTypeStandard,
	}, now)
	if claimErr != nil {
		if errors.Is(claimErr, errSlotClaimed) {
			return Result{Decision: availability.Reject(availability.ReasonSlotTaken)}, nil
		}
		return Result{}, claimErr
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", booking.ID).
		Int64("court_id", slot.CourtID).
		Int64("user_id", userID).
		Time("start", slot.Start).
		Msg("Pending booking created")
	return Result{Decision: availability.Admit(), Booking: booking}, nil
}

// CreatePaid creates a booking directly in paid state, the operator-entered
// cash payment path. processedBy records the staff member who took payment.
func (c *Controller) CreatePaid(ctx context.Context, userID int64, slot calendar.Slot, processedBy int64) (Result, error) {
	now := c.clock.Now()
	decision, _, err := c.evaluate(ctx, slot, userID, 0, availability.Bypass{})
	if err != nil {
		return Result{}, err
	}
	if decision.Rejected() {
		return Result{Decision: decision}, nil
	}

	params := queries.InsertBookingParams{
		CourtID:     slot.CourtID,
		UserID:      userID,
		StartTime:   slot.Start,
		EndTime:     slot.End,
		Status:      queries.BookingStatusPaid,
		BookingType: queries.BookingTypeStandard,
	}
	if processedBy != 0 {
		params.ProcessedBy = sql.NullInt64{Int64: processedBy, Valid: true}
	}

	booking, claimErr := c.claim(ctx, params, now)
	if claimErr != nil {
		if errors.Is(claimErr, errSlotClaimed) {
			return Result{Decision: availability.Reject(availability.ReasonSlotTaken)}, nil
		}
		return Result{}, claimErr
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", booking.ID).
		Int64("processed_by", processedBy).
		Msg("Paid booking created")
	return Result{Decision: availability.Admit(), Booking: booking}, nil
}

// ConfirmPaid transitions a pending booking to paid. It is idempotent:
// payment callbacks can be delivered more than once, so confirming an
// already-paid booking with the same reference is a no-op success.
func (c *Controller) ConfirmPaid(ctx context.Context, bookingID int64, paymentRef string) (queries.Booking, error) {
	booking, err := c.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return queries.Booking{}, ErrNotFound
		}
		return queries.Booking{}, fmt.Errorf("load booking %d: %w", bookingID, err)
	}

	switch booking.Status {
	case queries.BookingStatusPaid:
		if booking.PaymentRef.Valid && booking.PaymentRef.String == paymentRef {
			return booking, nil
		}
		return queries.Booking{}, ErrPaymentRefMismatch
	case queries.BookingStatusCancelled:
		return queries.Booking{}, ErrBookingCancelled
	}

	if !booking.Live(c.clock.Now()) {
		return queries.Booking{}, ErrBookingExpired
	}

	if err := c.db.Queries.MarkBookingPaid(ctx, queries.MarkBookingPaidParams{
		ID:         bookingID,
		PaymentRef: paymentRef,
	}); err != nil {
		return queries.Booking{}, fmt.Errorf("mark booking %d paid: %w", bookingID, err)
	}

	booking, err = c.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		return queries.Booking{}, fmt.Errorf("reload booking %d: %w", bookingID, err)
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", bookingID).
		Msg("Booking payment confirmed")

	if c.notifier != nil {
		c.notifier.BookingConfirmed(ctx, booking)
	}
	return booking, nil
}

// Reschedule moves a booking to a new slot after re-running admission.
// Supervisors and admins get a bypass of the timing-window rules when the
// booking is same-day or was invalidated by a closure; conflict, past-slot
// and maintenance checks always apply.
func (c *Controller) Reschedule(ctx context.Context, bookingID int64, newSlot calendar.Slot, actor Actor) (Result, error) {
	booking, err := c.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	if booking.Status == queries.BookingStatusCancelled {
		return Result{}, ErrBookingCancelled
	}

	affected, err := c.db.Queries.GetAffectedBookingByBookingID(ctx, bookingID)
	hasAffected := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Result{}, fmt.Errorf("load closure link for booking %d: %w", bookingID, err)
	}

	now := c.clock.Now()
	var bypass availability.Bypass
	if actor.privileged() && (hasAffected || c.cal.SameDay(booking.StartTime, now)) {
		bypass = availability.Bypass{AdvanceNotice: true, Horizon: true}
	}

	decision, _, err := c.evaluate(ctx, newSlot, booking.UserID, bookingID, bypass)
	if err != nil {
		return Result{}, err
	}
	if decision.Rejected() {
		return Result{Decision: decision}, nil
	}

	txErr := c.db.RunInTx(ctx, func(txdb *db.DB) error {
		if err := txdb.Queries.DeleteExpiredPendingOverlapping(ctx, queries.DeleteExpiredPendingOverlappingParams{
			CourtID:   newSlot.CourtID,
			StartTime: newSlot.Start,
			EndTime:   newSlot.End,
			Now:       now,
		}); err != nil {
			return fmt.Errorf("release expired holds: %w", err)
		}
		count, err := txdb.Queries.CountLiveBookingsOverlapping(ctx, queries.CountLiveBookingsOverlappingParams{
			CourtID:   newSlot.CourtID,
			StartTime: newSlot.Start,
			EndTime:   newSlot.End,
			Now:       now,
			ExcludeID: bookingID,
		})
		if err != nil {
			return fmt.Errorf("conflict check: %w", err)
		}
		if count > 0 {
			return errSlotClaimed
		}
		if err := txdb.Queries.UpdateBookingSlot(ctx, queries.UpdateBookingSlotParams{
			ID:        bookingID,
			CourtID:   newSlot.CourtID,
			StartTime: newSlot.Start,
			EndTime:   newSlot.End,
		}); err != nil {
			if isUniqueViolation(err) {
				return errSlotClaimed
			}
			return fmt.Errorf("move booking: %w", err)
		}
		if hasAffected && !affected.Rescheduled {
			if err := txdb.Queries.MarkAffectedRescheduled(ctx, queries.MarkAffectedRescheduledParams{
				ID:            affected.ID,
				RescheduledAt: now,
			}); err != nil {
				return fmt.Errorf("mark rescheduled: %w", err)
			}
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, errSlotClaimed) {
			return Result{Decision: availability.Reject(availability.ReasonSlotTaken)}, nil
		}
		return Result{}, txErr
	}

	booking, err = c.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		return Result{}, fmt.Errorf("reload booking %d: %w", bookingID, err)
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", bookingID).
		Int64("court_id", newSlot.CourtID).
		Time("start", newSlot.Start).
		Bool("bypass", bypass.AdvanceNotice).
		Msg("Booking rescheduled")
	return Result{Decision: availability.Admit(), Booking: booking}, nil
}

// Cancel releases a booking's slot. Cancelling an already-cancelled booking
// is a no-op.
func (c *Controller) Cancel(ctx context.Context, bookingID int64) error {
	booking, err := c.db.Queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	if booking.Status == queries.BookingStatusCancelled {
		return nil
	}
	if err := c.db.Queries.UpdateBookingStatus(ctx, queries.UpdateBookingStatusParams{
		ID:     bookingID,
		Status: queries.BookingStatusCancelled,
	}); err != nil {
		return fmt.Errorf("cancel booking %d: %w", bookingID, err)
	}
	log.Ctx(ctx).Info().Int64("booking_id", bookingID).Msg("Booking cancelled")
	return nil
}

// SweepExpired deletes pending bookings whose hold has lapsed. Availability
// reads already treat them as free; the sweep reclaims the rows.
func (c *Controller) SweepExpired(ctx context.Context) (int, error) {
	now := c.clock.Now()
	expired, err := c.db.Queries.ListExpiredPending(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}
	removed := 0
	for _, booking := range expired {
		if err := c.db.Queries.DeleteBooking(ctx, booking.ID); err != nil {
			log.Ctx(ctx).Error().Err(err).
				Int64("booking_id", booking.ID).
				Msg("Failed to delete expired booking hold")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Ctx(ctx).Info().Int("count", removed).Msg("Expired booking holds swept")
	}
	return removed, nil
}

// evaluate loads everything the resolver needs and runs the admission
// pipeline. excludeID removes one booking (the one being rescheduled) from
// conflict and cap accounting.
func (c *Controller) evaluate(ctx context.Context, slot calendar.Slot, userID, excludeID int64, bypass availability.Bypass) (availability.Decision, queries.Court, error) {
	court, err := c.db.Queries.GetCourt(ctx, slot.CourtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return availability.Decision{}, queries.Court{}, ErrCourtNotFound
		}
		return availability.Decision{}, queries.Court{}, fmt.Errorf("load court %d: %w", slot.CourtID, err)
	}
	if !court.Active {
		return availability.Decision{}, queries.Court{}, ErrCourtDisabled
	}

	policy, err := c.RulesFor(ctx, court.SportType)
	if err != nil {
		return availability.Decision{}, queries.Court{}, err
	}

	now := c.clock.Now()

	windows, err := c.db.Queries.ListActiveWindowsOverlapping(ctx, queries.ListActiveWindowsOverlappingParams{
		CourtID:   slot.CourtID,
		StartTime: slot.Start,
		EndTime:   slot.End,
	})
	if err != nil {
		return availability.Decision{}, queries.Court{}, fmt.Errorf("load maintenance windows: %w", err)
	}

	live, err := c.db.Queries.ListLiveBookings(ctx, queries.ListLiveBookingsParams{
		CourtID:   slot.CourtID,
		StartTime: slot.Start,
		EndTime:   slot.End,
		Now:       now,
	})
	if err != nil {
		return availability.Decision{}, queries.Court{}, fmt.Errorf("load live bookings: %w", err)
	}

	activeCount, err := c.db.Queries.CountUserActiveBookings(ctx, queries.CountUserActiveBookingsParams{
		UserID: userID,
		Now:    now,
	})
	if err != nil {
		return availability.Decision{}, queries.Court{}, fmt.Errorf("count active bookings: %w", err)
	}

	sameCourt, err := c.db.Queries.ListUserLiveBookingsOnCourt(ctx, queries.ListUserLiveBookingsOnCourtParams{
		UserID:  userID,
		CourtID: slot.CourtID,
		Now:     now,
	})
	if err != nil {
		return availability.Decision{}, queries.Court{}, fmt.Errorf("load user bookings: %w", err)
	}

	avCtx := availability.Context{
		Now:        now,
		Rules:      policy,
		UserActive: int(activeCount),
		Bypass:     bypass,
	}
	for _, b := range live {
		if b.ID == excludeID {
			continue
		}
		avCtx.Live = append(avCtx.Live, calendar.Interval{Start: b.StartTime, End: b.EndTime})
	}
	for _, w := range windows {
		avCtx.Maintenance = append(avCtx.Maintenance, calendar.Interval{Start: w.StartTime, End: w.EndTime})
	}
	for _, b := range sameCourt {
		if b.ID == excludeID {
			continue
		}
		avCtx.UserSameCourt = append(avCtx.UserSameCourt, calendar.Interval{Start: b.StartTime, End: b.EndTime})
	}
	if excludeID != 0 && avCtx.UserActive > 0 {
		// The booking being moved does not count against its own cap.
		avCtx.UserActive--
	}

	return c.resolver.Evaluate(slot, avCtx), court, nil
}

// evaluateSlotOnly runs only the slot-level checks: maintenance, conflict
// and in-past. Event series use it because their reference user is
// non-financial and per-user rules do not apply.
func (c *Controller) evaluateSlotOnly(ctx context.Context, slot calendar.Slot) (availability.Decision, error) {
	court, err := c.db.Queries.GetCourt(ctx, slot.CourtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return availability.Decision{}, ErrCourtNotFound
		}
		return availability.Decision{}, fmt.Errorf("load court %d: %w", slot.CourtID, err)
	}
	if !court.Active {
		return availability.Decision{}, ErrCourtDisabled
	}

	now := c.clock.Now()

	windows, err := c.db.Queries.ListActiveWindowsOverlapping(ctx, queries.ListActiveWindowsOverlappingParams{
		CourtID:   slot.CourtID,
		StartTime: slot.Start,
		EndTime:   slot.End,
	})
	if err != nil {
		return availability.Decision{}, fmt.Errorf("load maintenance windows: %w", err)
	}
	live, err := c.db.Queries.ListLiveBookings(ctx, queries.ListLiveBookingsParams{
		CourtID:   slot.CourtID,
		StartTime: slot.Start,
		EndTime:   slot.End,
		Now:       now,
	})
	if err != nil {
		return availability.Decision{}, fmt.Errorf("load live bookings: %w", err)
	}

	avCtx := availability.Context{
		Now:    now,
		Rules:  rules.Defaults(court.SportType),
		Bypass: availability.Bypass{AdvanceNotice: true, Horizon: true},
	}
	for _, w := range windows {
		avCtx.Maintenance = append(avCtx.Maintenance, calendar.Interval{Start: w.StartTime, End: w.EndTime})
	}
	for _, b := range live {
		avCtx.Live = append(avCtx.Live, calendar.Interval{Start: b.StartTime, End: b.EndTime})
	}
	return c.resolver.Evaluate(slot, avCtx), nil
}

// errSlotClaimed is the internal signal that the store rejected the claim.
var errSlotClaimed = errors.New("slot already claimed")

// claim inserts the booking inside one transaction: expired holds on the
// interval are released, the authoritative conflict check runs under the
// store's write lock, and a unique-index violation on insert is mapped to a
// slot conflict rather than a fatal error.
func (c *Controller) claim(ctx context.Context, params queries.InsertBookingParams, now time.Time) (queries.Booking, error) {
	var booking queries.Booking
	err := c.db.RunInTx(ctx, func(txdb *db.DB) error {
		if err := txdb.Queries.DeleteExpiredPendingOverlapping(ctx, queries.DeleteExpiredPendingOverlappingParams{
			CourtID:   params.CourtID,
			StartTime: params.StartTime,
			EndTime:   params.EndTime,
			Now:       now,
		}); err != nil {
			return fmt.Errorf("release expired holds: %w", err)
		}
		count, err := txdb.Queries.CountLiveBookingsOverlapping(ctx, queries.CountLiveBookingsOverlappingParams{
			CourtID:   params.CourtID,
			StartTime: params.StartTime,
			EndTime:   params.EndTime,
			Now:       now,
		})
		if err != nil {
			return fmt.Errorf("conflict check: %w", err)
		}
		if count > 0 {
			return errSlotClaimed
		}
		booking, err = txdb.Queries.InsertBooking(ctx, params)
		if err != nil {
			if isUniqueViolation(err) {
				return errSlotClaimed
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return queries.Booking{}, err
	}
	return booking, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
