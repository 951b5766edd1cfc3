// Package calendar provides the slot grid and interval arithmetic for court
// bookings. All instants are UTC; wall-clock day boundaries are computed in
// the facility's fixed timezone.
package calendar

import (
	"fmt"
	"time"
)

// SlotDuration is the fixed booking granularity.
const SlotDuration = time.Hour

// DefaultTimezone is the facility timezone used when none is configured.
const DefaultTimezone = "America/Mexico_City"

// Clock abstracts time for testable scheduling decisions.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Interval is a half-open [Start, End) time range in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Touching
// endpoints do not overlap, which permits back-to-back bookings.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Touches reports whether the intervals share exactly one boundary.
func (i Interval) Touches(other Interval) bool {
	return i.Start.Equal(other.End) || i.End.Equal(other.Start)
}

// Slot is a bookable interval on a specific court.
type Slot struct {
	CourtID int64
	Interval
}

// OperatingHours is a court's daily window as "HH:MM" wall-clock strings in
// the facility timezone. Empty strings mean the court has no defined hours.
type OperatingHours struct {
	Open  string
	Close string
}

// Validate checks that both bounds are parseable wall-clock times. Fully
// empty hours are valid and mean the court is not bookable.
func (h OperatingHours) Validate() error {
	if h.Open == "" && h.Close == "" {
		return nil
	}
	if _, _, err := parseWallClock(h.Open); err != nil {
		return err
	}
	if _, _, err := parseWallClock(h.Close); err != nil {
		return err
	}
	return nil
}

// Calendar performs facility-timezone day math and slot enumeration.
type Calendar struct {
	loc *time.Location
}

// New loads the facility timezone. An empty name falls back to
// DefaultTimezone.
func New(timezone string) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load facility timezone %q: %w", timezone, err)
	}
	return &Calendar{loc: loc}, nil
}

// Location returns the facility timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// DayStart returns midnight of t's facility-local day, in UTC.
func (c *Calendar) DayStart(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc).UTC()
}

// DayEnd returns midnight of the facility-local day after t, in UTC.
func (c *Calendar) DayEnd(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.loc).UTC()
}

// SameDay reports whether a and b fall on the same facility-local calendar
// day.
func (c *Calendar) SameDay(a, b time.Time) bool {
	al, bl := a.In(c.loc), b.In(c.loc)
	return al.Year() == bl.Year() && al.YearDay() == bl.YearDay()
}

// DaysUntil returns the number of facility-local calendar days from "from"
// to "to". Same day is 0, tomorrow is 1. The local dates are re-anchored at
// UTC midnights before differencing so a DST transition in the facility
// timezone cannot shorten a day below the divisor.
func (c *Calendar) DaysUntil(from, to time.Time) int {
	fl, tl := from.In(c.loc), to.In(c.loc)
	fromDay := time.Date(fl.Year(), fl.Month(), fl.Day(), 0, 0, 0, 0, time.UTC)
	toDay := time.Date(tl.Year(), tl.Month(), tl.Day(), 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay) / (24 * time.Hour))
}

// Date builds midnight of the given facility-local calendar date, in UTC.
func (c *Calendar) Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, c.loc).UTC()
}

// At builds the given facility-local wall-clock time on t's facility day,
// in UTC.
func (c *Calendar) At(t time.Time, hour, minute int) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, c.loc).UTC()
}

// EnumerateSlots produces the ordered hourly slot grid for a court on the
// facility-local day containing date. Slots start at the first top of the
// hour at or after opening and end no later than closing. Courts without
// defined hours yield no slots.
func (c *Calendar) EnumerateSlots(courtID int64, hours OperatingHours, date time.Time) ([]Slot, error) {
	if hours.Open == "" || hours.Close == "" {
		return nil, nil
	}
	openHour, openMin, err := parseWallClock(hours.Open)
	if err != nil {
		return nil, fmt.Errorf("court %d open time: %w", courtID, err)
	}
	closeHour, closeMin, err := parseWallClock(hours.Close)
	if err != nil {
		return nil, fmt.Errorf("court %d close time: %w", courtID, err)
	}

	local := date.In(c.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), openHour, openMin, 0, 0, c.loc)
	closing := time.Date(local.Year(), local.Month(), local.Day(), closeHour, closeMin, 0, 0, c.loc)
	if !closing.After(open) {
		return nil, nil
	}

	// Align to the top of the hour.
	start := open
	if openMin != 0 {
		start = time.Date(local.Year(), local.Month(), local.Day(), openHour+1, 0, 0, 0, c.loc)
	}

	var slots []Slot
	for cur := start; !cur.Add(SlotDuration).After(closing); cur = cur.Add(SlotDuration) {
		slots = append(slots, Slot{
			CourtID: courtID,
			Interval: Interval{
				Start: cur.UTC(),
				End:   cur.Add(SlotDuration).UTC(),
			},
		})
	}
	return slots, nil
}

// SlotInFuture reports whether the slot starts strictly after now. A slot
// starting exactly now is already in the past for booking purposes.
func SlotInFuture(slot Slot, now time.Time) bool {
	return slot.Start.After(now)
}

func parseWallClock(value string) (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid wall-clock time %q", value)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
