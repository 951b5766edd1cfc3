package queries

import "context"

// GetBookingRule loads the rule row for a sport type. Callers fall back to
// documented defaults on sql.ErrNoRows; absence of a row is a valid state.
func (q *Queries) GetBookingRule(ctx context.Context, sportType string) (BookingRule, error) {
	var r BookingRule
	err := q.db.QueryRowContext(ctx, `
		SELECT id, sport_type, min_advance_minutes, max_days_ahead,
		       max_active_bookings, allow_consecutive, min_gap_minutes
		FROM booking_rules WHERE sport_type = ?`,
		sportType,
	).Scan(&r.ID, &r.SportType, &r.MinAdvanceMinutes, &r.MaxDaysAhead,
		&r.MaxActiveBookings, &r.AllowConsecutive, &r.MinGapMinutes)
	return r, err
}

type UpsertBookingRuleParams struct {
	SportType         string
	MinAdvanceMinutes int64
	MaxDaysAhead      int64
	MaxActiveBookings int64
	AllowConsecutive  bool
	MinGapMinutes     int64
}

func (q *Queries) UpsertBookingRule(ctx context.Context, params UpsertBookingRuleParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO booking_rules (
			sport_type, min_advance_minutes, max_days_ahead,
			max_active_bookings, allow_consecutive, min_gap_minutes
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (sport_type) DO UPDATE SET
			min_advance_minutes = excluded.min_advance_minutes,
			max_days_ahead = excluded.max_days_ahead,
			max_active_bookings = excluded.max_active_bookings,
			allow_consecutive = excluded.allow_consecutive,
			min_gap_minutes = excluded.min_gap_minutes`,
		params.SportType, params.MinAdvanceMinutes, params.MaxDaysAhead,
		params.MaxActiveBookings, params.AllowConsecutive, params.MinGapMinutes,
	)
	return err
}
