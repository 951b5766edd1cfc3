package queries

import (
	"context"
	"database/sql"
	"time"
)

const bookingColumns = `id, court_id, user_id, start_time, end_time, status,
	expires_at, payment_ref, processed_by, booking_type, title, description,
	event_type, recurrence_tag, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID, &b.CourtID, &b.UserID, &b.StartTime, &b.EndTime, &b.Status,
		&b.ExpiresAt, &b.PaymentRef, &b.ProcessedBy, &b.BookingType,
		&b.Title, &b.Description, &b.EventType, &b.RecurrenceTag,
		&b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func (q *Queries) listBookings(ctx context.Context, query string, args ...interface{}) ([]Booking, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type InsertBookingParams struct {
	CourtID       int64
	UserID        int64
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	ExpiresAt     sql.NullTime
	PaymentRef    sql.NullString
	ProcessedBy   sql.NullInt64
	BookingType   string
	Title         sql.NullString
	Description   sql.NullString
	EventType     sql.NullString
	RecurrenceTag sql.NullString
}

// InsertBooking creates a booking row. The partial unique index on
// (court_id, start_time) for live statuses makes this the atomic slot
// claim; a constraint violation means the slot was just taken.
func (q *Queries) InsertBooking(ctx context.Context, params InsertBookingParams) (Booking, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO bookings (
			court_id, user_id, start_time, end_time, status, expires_at,
			payment_ref, processed_by, booking_type, title, description,
			event_type, recurrence_tag
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		params.CourtID, params.UserID, params.StartTime, params.EndTime,
		params.Status, params.ExpiresAt, params.PaymentRef,
		params.ProcessedBy, params.BookingType, params.Title,
		params.Description, params.EventType, params.RecurrenceTag,
	)
	if err != nil {
		return Booking{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Booking{}, err
	}
	return q.GetBooking(ctx, id)
}

func (q *Queries) GetBooking(ctx context.Context, id int64) (Booking, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	return scanBooking(row)
}

type ListLiveBookingsParams struct {
	CourtID   int64
	StartTime time.Time
	EndTime   time.Time
	Now       time.Time
}

// ListLiveBookings returns the court's bookings overlapping
// [StartTime, EndTime) that currently block their slot: paid, or pending
// payment and not yet expired.
func (q *Queries) ListLiveBookings(ctx context.Context, params ListLiveBookingsParams) ([]Booking, error) {
	return q.listBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE court_id = ?
		  AND start_time < ?
		  AND end_time > ?
		  AND (status = 'paid'
		       OR (status = 'pending_payment'
		           AND (expires_at IS NULL OR expires_at > ?)))
		ORDER BY start_time`,
		params.CourtID, params.EndTime, params.StartTime, params.Now,
	)
}

type CountUserActiveBookingsParams struct {
	UserID int64
	Now    time.Time
}

// CountUserActiveBookings counts the user's live bookings that have not yet
// ended.
func (q *Queries) CountUserActiveBookings(ctx context.Context, params CountUserActiveBookingsParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE user_id = ?
		  AND end_time > ?
		  AND (status = 'paid'
		       OR (status = 'pending_payment'
		           AND (expires_at IS NULL OR expires_at > ?)))`,
		params.UserID, params.Now, params.Now,
	).Scan(&count)
	return count, err
}

type ListUserLiveBookingsOnCourtParams struct {
	UserID  int64
	CourtID int64
	Now     time.Time
}

func (q *Queries) ListUserLiveBookingsOnCourt(ctx context.Context, params ListUserLiveBookingsOnCourtParams) ([]Booking, error) {
	return q.listBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE user_id = ?
		  AND court_id = ?
		  AND end_time > ?
		  AND (status = 'paid'
		       OR (status = 'pending_payment'
		           AND (expires_at IS NULL OR expires_at > ?)))
		ORDER BY start_time`,
		params.UserID, params.CourtID, params.Now, params.Now,
	)
}

type UpdateBookingStatusParams struct {
	ID     int64
	Status string
}

func (q *Queries) UpdateBookingStatus(ctx context.Context, params UpdateBookingStatusParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		params.Status, params.ID,
	)
	return err
}

type MarkBookingPaidParams struct {
	ID         int64
	PaymentRef string
}

// MarkBookingPaid transitions a booking to paid and clears its expiry.
func (q *Queries) MarkBookingPaid(ctx context.Context, params MarkBookingPaidParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'paid',
		    payment_ref = ?,
		    expires_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		params.PaymentRef, params.ID,
	)
	return err
}

type UpdateBookingSlotParams struct {
	ID        int64
	CourtID   int64
	StartTime time.Time
	EndTime   time.Time
}

// UpdateBookingSlot moves a booking to a new court/interval. The partial
// unique index applies to updates too, so a destination conflict surfaces
// as a constraint violation.
func (q *Queries) UpdateBookingSlot(ctx context.Context, params UpdateBookingSlotParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET court_id = ?, start_time = ?, end_time = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		params.CourtID, params.StartTime, params.EndTime, params.ID,
	)
	return err
}

type DeleteExpiredPendingOverlappingParams struct {
	CourtID   int64
	StartTime time.Time
	EndTime   time.Time
	Now       time.Time
}

// DeleteExpiredPendingOverlapping removes expired pending holds intersecting
// the interval so a fresh claim can take their unique index entries. Run
// inside the claim transaction.
func (q *Queries) DeleteExpiredPendingOverlapping(ctx context.Context, params DeleteExpiredPendingOverlappingParams) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM bookings
		WHERE court_id = ?
		  AND start_time < ?
		  AND end_time > ?
		  AND status = 'pending_payment'
		  AND expires_at IS NOT NULL
		  AND expires_at <= ?`,
		params.CourtID, params.EndTime, params.StartTime, params.Now,
	)
	return err
}

type CountLiveBookingsOverlappingParams struct {
	CourtID   int64
	StartTime time.Time
	EndTime   time.Time
	Now       time.Time
	ExcludeID int64
}

// CountLiveBookingsOverlapping counts live bookings intersecting the
// interval, excluding one booking id (0 excludes nothing). Used inside the
// claim transaction as the authoritative conflict check.
func (q *Queries) CountLiveBookingsOverlapping(ctx context.Context, params CountLiveBookingsOverlappingParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE court_id = ?
		  AND id != ?
		  AND start_time < ?
		  AND end_time > ?
		  AND (status = 'paid'
		       OR (status = 'pending_payment'
		           AND (expires_at IS NULL OR expires_at > ?)))`,
		params.CourtID, params.ExcludeID, params.EndTime, params.StartTime, params.Now,
	).Scan(&count)
	return count, err
}

// ListExpiredPending returns pending bookings whose expiry has passed.
func (q *Queries) ListExpiredPending(ctx context.Context, now time.Time) ([]Booking, error) {
	return q.listBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'pending_payment'
		  AND expires_at IS NOT NULL
		  AND expires_at <= ?
		ORDER BY expires_at`,
		now,
	)
}

func (q *Queries) DeleteBooking(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	return err
}

type ListPaidBookingsStartingBetweenParams struct {
	CourtID   sql.NullInt64 // NULL matches every court
	StartTime time.Time
	EndTime   time.Time
}

// ListPaidBookingsStartingBetween returns paid bookings whose start falls in
// [StartTime, EndTime), optionally restricted to one court. This is the
// closure conflict snapshot.
func (q *Queries) ListPaidBookingsStartingBetween(ctx context.Context, params ListPaidBookingsStartingBetweenParams) ([]Booking, error) {
	return q.listBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'paid'
		  AND start_time >= ?
		  AND start_time < ?
		  AND (? IS NULL OR court_id = ?)
		ORDER BY start_time`,
		params.StartTime, params.EndTime, params.CourtID, params.CourtID,
	)
}

func (q *Queries) ListBookingsByRecurrenceTag(ctx context.Context, tag string) ([]Booking, error) {
	return q.listBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE recurrence_tag = ?
		ORDER BY start_time`,
		tag,
	)
}

// CancelBookingsByRecurrenceTag cancels every live occurrence of a series.
func (q *Queries) CancelBookingsByRecurrenceTag(ctx context.Context, tag string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE recurrence_tag = ? AND status != 'cancelled'`,
		tag,
	)
	return err
}
