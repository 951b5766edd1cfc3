package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/availability"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/recurrence"
	"github.com/ahughesmx/ace-booking-system-sub000/internal/db/queries"
)

var ErrInvalidEventHours = errors.New("event end hour must be after start hour")

// SeriesTemplate describes one special (event) booking to be materialized
// on every occurrence date. Hours are facility wall-clock.
type SeriesTemplate struct {
	CourtID       int64
	ReferenceUser int64
	Title         string
	Description   string
	EventType     string
	StartHour     int
	EndHour       int
}

// OccurrenceFailure reports one occurrence that could not be created.
type OccurrenceFailure struct {
	Date   time.Time
	Reason availability.RejectReason
	Err    error
}

// SeriesResult is the partial-success outcome of a batch creation. A
// failure on one occurrence never rolls back previously created ones.
type SeriesResult struct {
	Tag     string
	Created []queries.Booking
	Failed  []OccurrenceFailure
}

// CreateSeries expands the authoring intent and creates one independent
// special booking per occurrence, all sharing a recurrence tag.
// Contradictory intents are rejected before any row is written. Event
// bookings are operator-authored, so the timing-window rules are bypassed;
// conflicts, past slots and maintenance are still enforced per occurrence.
func (c *Controller) CreateSeries(ctx context.Context, intent recurrence.Intent, tmpl SeriesTemplate) (SeriesResult, error) {
	if tmpl.EndHour <= tmpl.StartHour {
		return SeriesResult{}, ErrInvalidEventHours
	}

	dates, err := recurrence.Expand(c.cal, intent)
	if err != nil {
		return SeriesResult{}, err
	}

	result := SeriesResult{Tag: recurrence.NewTag()}
	now := c.clock.Now()

	for _, date := range dates {
		slot := calendar.Slot{
			CourtID: tmpl.CourtID,
			Interval: calendar.Interval{
				Start: c.cal.At(date, tmpl.StartHour, 0),
				End:   c.cal.At(date, tmpl.EndHour, 0),
			},
		}

		decision, err := c.evaluateSlotOnly(ctx, slot)
		if err != nil {
			result.Failed = append(result.Failed, OccurrenceFailure{Date: date, Err: err})
			continue
		}
		if decision.Rejected() {
			result.Failed = append(result.Failed, OccurrenceFailure{Date: date, Reason: decision.Reason})
			continue
		}

		booking, claimErr := c.claim(ctx, queries.InsertBookingParams{
			CourtID:       tmpl.CourtID,
			UserID:        tmpl.ReferenceUser,
			StartTime:     slot.Start,
			EndTime:       slot.End,
			Status:        queries.BookingStatusPaid,
			BookingType:   queries.BookingTypeSpecial,
			Title:         sql.NullString{String: tmpl.Title, Valid: tmpl.Title != ""},
			Description:   sql.NullString{String: tmpl.Description, Valid: tmpl.Description != ""},
			EventType:     sql.NullString{String: tmpl.EventType, Valid: tmpl.EventType != ""},
			RecurrenceTag: sql.NullString{String: result.Tag, Valid: true},
		}, now)
		if claimErr != nil {
			if errors.Is(claimErr, errSlotClaimed) {
				result.Failed = append(result.Failed, OccurrenceFailure{
					Date:   date,
					Reason: availability.ReasonSlotTaken,
				})
				continue
			}
			result.Failed = append(result.Failed, OccurrenceFailure{
				Date: date,
				Err:  fmt.Errorf("create occurrence: %w", claimErr),
			})
			continue
		}
		result.Created = append(result.Created, booking)
	}

	log.Ctx(ctx).Info().
		Str("recurrence_tag", result.Tag).
		Int("created", len(result.Created)).
		Int("failed", len(result.Failed)).
		Msg("Event series created")
	return result, nil
}

// CancelSeries cancels every live occurrence sharing a recurrence tag.
func (c *Controller) CancelSeries(ctx context.Context, tag string) error {
	if err := c.db.Queries.CancelBookingsByRecurrenceTag(ctx, tag); err != nil {
		return fmt.Errorf("cancel series %s: %w", tag, err)
	}
	log.Ctx(ctx).Info().Str("recurrence_tag", tag).Msg("Event series cancelled")
	return nil
}
