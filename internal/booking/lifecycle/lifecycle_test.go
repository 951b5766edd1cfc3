package lifecycle

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/availability"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/recurrence"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/testutil"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type spyNotifier struct {
	mu        sync.Mutex
	confirmed []int64
}

func (n *spyNotifier) BookingConfirmed(_ context.Context, booking queries.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, booking.ID)
}

type fixture struct {
	db    *db.DB
	ctrl  *Controller
	clock *mockClock
	spy   *spyNotifier
	court queries.Court
	user  queries.User
	cal   *calendar.Calendar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	cal, err := calendar.New("")
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	// 10:00 facility time on a Sunday.
	clock := &mockClock{now: time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)}
	spy := &spyNotifier{}

	ctrl, err := NewController(database, cal, Config{Clock: clock, Notifier: spy})
	if err != nil {
		t.Fatalf("create controller: %v", err)
	}

	return &fixture{
		db:    database,
		ctrl:  ctrl,
		clock: clock,
		spy:   spy,
		court: testutil.SeedCourt(t, database, "Court 1", queries.SportTennis),
		user:  testutil.SeedUser(t, database, "Ana", "ana@example.com", queries.RoleUser),
		cal:   cal,
	}
}

// slotAt returns the hourly slot starting at the given facility wall-clock
// hour, daysAhead facility days from the fixture's current time.
func (f *fixture) slotAt(daysAhead, hour int) calendar.Slot {
	day := f.clock.Now().Add(time.Duration(daysAhead) * 24 * time.Hour)
	start := f.cal.At(day, hour, 0)
	return calendar.Slot{
		CourtID:  f.court.ID,
		Interval: calendar.Interval{Start: start, End: start.Add(calendar.SlotDuration)},
	}
}

func TestCreatePendingThenConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slotAt(1, 10)

	result, err := f.ctrl.CreatePending(ctx, f.user.ID, slot)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if result.Decision.Rejected() {
		t.Fatalf("expected admission, got %s", result.Decision.Reason)
	}
	if result.Booking.Status != queries.BookingStatusPendingPayment {
		t.Fatalf("status = %s, want pending_payment", result.Booking.Status)
	}
	if !result.Booking.ExpiresAt.Valid {
		t.Fatal("pending booking must carry an expiry hold")
	}

	confirmed, err := f.ctrl.ConfirmPaid(ctx, result.Booking.ID, "pay_123")
	if err != nil {
		t.Fatalf("confirm paid: %v", err)
	}
	if confirmed.Status != queries.BookingStatusPaid {
		t.Fatalf("status = %s, want paid", confirmed.Status)
	}
	if confirmed.ExpiresAt.Valid {
		t.Error("paid booking must not keep an expiry hold")
	}

	// Duplicate payment callback with the same reference is a no-op.
	again, err := f.ctrl.ConfirmPaid(ctx, result.Booking.ID, "pay_123")
	if err != nil {
		t.Fatalf("idempotent confirm: %v", err)
	}
	if again.Status != queries.BookingStatusPaid {
		t.Fatalf("status = %s after repeat confirm", again.Status)
	}

	// A different reference on an already-paid booking is an error.
	if _, err := f.ctrl.ConfirmPaid(ctx, result.Booking.ID, "pay_999"); err != ErrPaymentRefMismatch {
		t.Fatalf("expected ErrPaymentRefMismatch, got %v", err)
	}

	f.spy.mu.Lock()
	notified := len(f.spy.confirmed)
	f.spy.mu.Unlock()
	if notified != 1 {
		t.Errorf("expected exactly one confirmation notification, got %d", notified)
	}
}

func TestNoDoubleBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slotAt(1, 10)
	rival := testutil.SeedUser(t, f.db, "Luis", "luis@example.com", queries.RoleUser)

	first, err := f.ctrl.CreatePending(ctx, f.user.ID, slot)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Decision.Rejected() {
		t.Fatalf("first claim rejected: %s", first.Decision.Reason)
	}

	second, err := f.ctrl.CreatePending(ctx, rival.ID, slot)
	if err != nil {
		t.Fatalf("second claim errored instead of rejecting: %v", err)
	}
	if !second.Decision.Is(availability.ReasonSlotTaken) {
		t.Fatalf("second claim decision = %+v, want slot_taken", second.Decision)
	}
}

func TestConcurrentClaimsAdmitExactlyOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slotAt(1, 10)

	const claimants = 4
	users := make([]queries.User, claimants)
	for i := range users {
		users[i] = testutil.SeedUser(t, f.db, "User", string(rune('a'+i))+"@example.com", queries.RoleUser)
	}

	results := make([]Result, claimants)
	var g errgroup.Group
	for i := 0; i < claimants; i++ {
		i := i
		g.Go(func() error {
			r, err := f.ctrl.CreatePending(ctx, users[i].ID, slot)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent claim: %v", err)
	}

	admitted := 0
	for _, r := range results {
		if r.Decision.Admitted {
			admitted++
		} else if !r.Decision.Is(availability.ReasonSlotTaken) {
			t.Errorf("loser decision = %+v, want slot_taken", r.Decision)
		}
	}
	if admitted != 1 {
		t.Fatalf("admitted = %d, want exactly 1", admitted)
	}
}

func TestExpiredPendingHoldIsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slotAt(1, 10)
	rival := testutil.SeedUser(t, f.db, "Luis", "luis@example.com", queries.RoleUser)

	hold, err := f.ctrl.CreatePending(ctx, f.user.ID, slot)
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if hold.Decision.Rejected() {
		t.Fatalf("hold rejected: %s", hold.Decision.Reason)
	}

	f.clock.Advance(DefaultPendingTTL + time.Minute)

	claimed, err := f.ctrl.CreatePending(ctx, rival.ID, slot)
	if err != nil {
		t.Fatalf("claim over expired hold: %v", err)
	}
	if claimed.Decision.Rejected() {
		t.Fatalf("expired hold must not block the slot, got %s", claimed.Decision.Reason)
	}

	// The expired hold's payment can no longer land.
	if _, err := f.ctrl.ConfirmPaid(ctx, hold.Booking.ID, "pay_late"); err != ErrNotFound && err != ErrBookingExpired {
		t.Fatalf("late confirm = %v, want expired or gone", err)
	}
}

func TestConfirmExpiredHoldFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hold, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, 10))
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	f.clock.Advance(DefaultPendingTTL + time.Minute)

	if _, err := f.ctrl.ConfirmPaid(ctx, hold.Booking.ID, "pay_123"); err != ErrBookingExpired {
		t.Fatalf("expected ErrBookingExpired, got %v", err)
	}
}

func TestCancelReleasesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slotAt(1, 10)
	rival := testutil.SeedUser(t, f.db, "Luis", "luis@example.com", queries.RoleUser)

	result, err := f.ctrl.CreatePending(ctx, f.user.ID, slot)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.ctrl.Cancel(ctx, result.Booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Cancelling twice is a no-op.
	if err := f.ctrl.Cancel(ctx, result.Booking.ID); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}

	reclaim, err := f.ctrl.CreatePending(ctx, rival.ID, slot)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaim.Decision.Rejected() {
		t.Fatalf("cancelled slot must be free, got %s", reclaim.Decision.Reason)
	}
}

func TestActiveCapRejectsFifthBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for hour := 10; hour < 14; hour++ {
		r, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, hour))
		if err != nil {
			t.Fatalf("booking at %d: %v", hour, err)
		}
		if r.Decision.Rejected() {
			t.Fatalf("booking at %d rejected: %s", hour, r.Decision.Reason)
		}
	}

	fifth, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, 15))
	if err != nil {
		t.Fatalf("fifth booking: %v", err)
	}
	if !fifth.Decision.Is(availability.ReasonActiveCapReached) {
		t.Fatalf("fifth decision = %+v, want active cap reached", fifth.Decision)
	}
}

func TestRescheduleSameDayBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A booking later today; the fixture clock is 10:00 facility time.
	today, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(0, 14))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if today.Decision.Rejected() {
		t.Fatalf("create rejected: %s", today.Decision.Reason)
	}

	beyondHorizon := f.slotAt(40, 10)
	admin := Actor{UserID: 99, Role: queries.RoleAdmin}
	member := Actor{UserID: f.user.ID, Role: queries.RoleUser}

	// A regular member stays bound by the horizon.
	blocked, err := f.ctrl.Reschedule(ctx, today.Booking.ID, beyondHorizon, member)
	if err != nil {
		t.Fatalf("member reschedule: %v", err)
	}
	if !blocked.Decision.Is(availability.ReasonBeyondHorizon) {
		t.Fatalf("member decision = %+v, want beyond_horizon", blocked.Decision)
	}

	// A supervisor moving a same-day booking bypasses the timing rules.
	moved, err := f.ctrl.Reschedule(ctx, today.Booking.ID, beyondHorizon, admin)
	if err != nil {
		t.Fatalf("admin reschedule: %v", err)
	}
	if moved.Decision.Rejected() {
		t.Fatalf("admin reschedule rejected: %s", moved.Decision.Reason)
	}
	if !moved.Booking.StartTime.Equal(beyondHorizon.Start) {
		t.Errorf("booking start = %v, want %v", moved.Booking.StartTime, beyondHorizon.Start)
	}
}

func TestRescheduleAffectedBookingBypassesHorizon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A paid booking two days out, then invalidated by an emergency closure.
	booked, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(2, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if booked.Decision.Rejected() {
		t.Fatalf("create rejected: %s", booked.Decision.Reason)
	}
	if _, err := f.ctrl.ConfirmPaid(ctx, booked.Booking.ID, "pay_1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	window, err := f.db.Queries.InsertMaintenanceWindow(ctx, queries.InsertMaintenanceWindowParams{
		CourtID:   sql.NullInt64{Int64: f.court.ID, Valid: true},
		StartTime: booked.Booking.StartTime,
		EndTime:   booked.Booking.EndTime,
		Reason:    "flooding",
		Emergency: true,
	})
	if err != nil {
		t.Fatalf("insert window: %v", err)
	}
	if _, err := f.db.Queries.InsertAffectedBooking(ctx, queries.InsertAffectedBookingParams{
		BookingID: booked.Booking.ID,
		WindowID:  window.ID,
	}); err != nil {
		t.Fatalf("link affected booking: %v", err)
	}

	beyondHorizon := f.slotAt(40, 10)
	member := Actor{UserID: f.user.ID, Role: queries.RoleUser}
	admin := Actor{UserID: 99, Role: queries.RoleAdmin}

	// The closure link relaxes nothing for a regular member.
	blocked, err := f.ctrl.Reschedule(ctx, booked.Booking.ID, beyondHorizon, member)
	if err != nil {
		t.Fatalf("member reschedule: %v", err)
	}
	if !blocked.Decision.Is(availability.ReasonBeyondHorizon) {
		t.Fatalf("member decision = %+v, want beyond_horizon", blocked.Decision)
	}

	// A supervisor moving a closure-affected booking bypasses the horizon
	// even though the booking is not same-day.
	moved, err := f.ctrl.Reschedule(ctx, booked.Booking.ID, beyondHorizon, admin)
	if err != nil {
		t.Fatalf("admin reschedule: %v", err)
	}
	if moved.Decision.Rejected() {
		t.Fatalf("admin reschedule rejected: %s", moved.Decision.Reason)
	}
	if !moved.Booking.StartTime.Equal(beyondHorizon.Start) {
		t.Errorf("booking start = %v, want %v", moved.Booking.StartTime, beyondHorizon.Start)
	}

	affected, err := f.db.Queries.GetAffectedBookingByBookingID(ctx, booked.Booking.ID)
	if err != nil {
		t.Fatalf("load affected link: %v", err)
	}
	if !affected.Rescheduled {
		t.Error("affected link must be marked rescheduled")
	}
	if !affected.RescheduledAt.Valid {
		t.Error("affected link must record when it was rescheduled")
	}
}

func TestRescheduleBypassNeverSkipsConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rival := testutil.SeedUser(t, f.db, "Luis", "luis@example.com", queries.RoleUser)

	mine, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(0, 14))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	taken := f.slotAt(1, 10)
	if _, err := f.ctrl.CreatePending(ctx, rival.ID, taken); err != nil {
		t.Fatalf("rival create: %v", err)
	}

	admin := Actor{UserID: 99, Role: queries.RoleAdmin}
	result, err := f.ctrl.Reschedule(ctx, mine.Booking.ID, taken, admin)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !result.Decision.Is(availability.ReasonSlotTaken) {
		t.Fatalf("decision = %+v, want slot_taken even under bypass", result.Decision)
	}
}

func TestRescheduleToOwnSlotTimeShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booked, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Moving one hour later must not collide with the booking's own row.
	result, err := f.ctrl.Reschedule(ctx, booked.Booking.ID, f.slotAt(1, 11), Actor{UserID: f.user.ID, Role: queries.RoleUser})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if result.Decision.Rejected() {
		t.Fatalf("reschedule rejected: %s", result.Decision.Reason)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hold, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, 12)); err != nil {
		t.Fatalf("create second: %v", err)
	}

	f.clock.Advance(DefaultPendingTTL + time.Minute)
	// Refresh the second hold so only the first expires.
	second, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, 13))
	if err != nil {
		t.Fatalf("create third: %v", err)
	}

	removed, err := f.ctrl.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, err := f.db.Queries.GetBooking(ctx, hold.Booking.ID); err == nil {
		t.Error("expired hold must be deleted")
	}
	if _, err := f.db.Queries.GetBooking(ctx, second.Booking.ID); err != nil {
		t.Errorf("live hold must survive the sweep: %v", err)
	}
}

func TestCreateSeriesPartialSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	operator := testutil.SeedUser(t, f.db, "Front Desk", "desk@example.com", queries.RoleSupervisor)

	// Occupy one of the occurrence slots in advance.
	anchor := f.cal.Date(2025, 6, 9) // Monday
	taken := calendar.Slot{
		CourtID: f.court.ID,
		Interval: calendar.Interval{
			Start: f.cal.At(anchor.Add(7*24*time.Hour), 18, 0),
			End:   f.cal.At(anchor.Add(7*24*time.Hour), 19, 0),
		},
	}
	if r, err := f.ctrl.CreatePending(ctx, f.user.ID, taken); err != nil || r.Decision.Rejected() {
		t.Fatalf("occupy slot: %v %+v", err, r.Decision)
	}

	intent := recurrence.FromRequest(anchor, []time.Weekday{time.Monday}, 3, nil)

	result, err := f.ctrl.CreateSeries(ctx, intent, SeriesTemplate{
		CourtID:       f.court.ID,
		ReferenceUser: operator.ID,
		Title:         "Junior League",
		EventType:     "tournament",
		StartHour:     18,
		EndHour:       19,
	})
	if err != nil {
		t.Fatalf("create series: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("created = %d, want 2", len(result.Created))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(result.Failed))
	}
	if result.Failed[0].Reason != availability.ReasonSlotTaken {
		t.Errorf("failure reason = %s, want slot_taken", result.Failed[0].Reason)
	}
	for _, b := range result.Created {
		if b.BookingType != queries.BookingTypeSpecial {
			t.Errorf("booking %d type = %s, want special", b.ID, b.BookingType)
		}
		if !b.RecurrenceTag.Valid || b.RecurrenceTag.String != result.Tag {
			t.Errorf("booking %d missing series tag", b.ID)
		}
	}

	if err := f.ctrl.CancelSeries(ctx, result.Tag); err != nil {
		t.Fatalf("cancel series: %v", err)
	}
	remaining, err := f.db.Queries.ListBookingsByRecurrenceTag(ctx, result.Tag)
	if err != nil {
		t.Fatalf("list series: %v", err)
	}
	for _, b := range remaining {
		if b.Status != queries.BookingStatusCancelled {
			t.Errorf("booking %d status = %s after series cancel", b.ID, b.Status)
		}
	}
}

func TestCreateRejectsDisabledCourt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.db.Queries.SetCourtActive(ctx, queries.SetCourtActiveParams{
		ID: f.court.ID, Active: false,
	}); err != nil {
		t.Fatalf("disable court: %v", err)
	}

	if _, err := f.ctrl.CreatePending(ctx, f.user.ID, f.slotAt(1, 10)); err != ErrCourtDisabled {
		t.Fatalf("expected ErrCourtDisabled, got %v", err)
	}
}
