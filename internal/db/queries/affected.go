package queries

import (
	"context"
	"time"
)

type InsertAffectedBookingParams struct {
	BookingID int64
	WindowID  int64
}

func (q *Queries) InsertAffectedBooking(ctx context.Context, params InsertAffectedBookingParams) (AffectedBooking, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO affected_bookings (booking_id, window_id)
		VALUES (?, ?)`,
		params.BookingID, params.WindowID,
	)
	if err != nil {
		return AffectedBooking{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return AffectedBooking{}, err
	}

	var a AffectedBooking
	err = q.db.QueryRowContext(ctx, `
		SELECT id, booking_id, window_id, rescheduled, rescheduled_at, created_at
		FROM affected_bookings WHERE id = ?`, id,
	).Scan(&a.ID, &a.BookingID, &a.WindowID, &a.Rescheduled, &a.RescheduledAt, &a.CreatedAt)
	return a, err
}

// GetAffectedBookingByBookingID returns the most recent closure link for a
// booking. sql.ErrNoRows means the booking was never affected by a closure.
func (q *Queries) GetAffectedBookingByBookingID(ctx context.Context, bookingID int64) (AffectedBooking, error) {
	var a AffectedBooking
	err := q.db.QueryRowContext(ctx, `
		SELECT id, booking_id, window_id, rescheduled, rescheduled_at, created_at
		FROM affected_bookings
		WHERE booking_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, bookingID,
	).Scan(&a.ID, &a.BookingID, &a.WindowID, &a.Rescheduled, &a.RescheduledAt, &a.CreatedAt)
	return a, err
}

type MarkAffectedRescheduledParams struct {
	ID            int64
	RescheduledAt time.Time
}

func (q *Queries) MarkAffectedRescheduled(ctx context.Context, params MarkAffectedRescheduledParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE affected_bookings
		SET rescheduled = 1, rescheduled_at = ?
		WHERE id = ?`,
		params.RescheduledAt, params.ID,
	)
	return err
}
