// Package recurrence expands a single authoring intent into concrete
// occurrence dates. Expansion is deterministic and idempotent: the same
// intent always yields the same deduplicated, ascending list of dates.
package recurrence

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
)

var (
	ErrEndBeforeStart = errors.New("recurrence: end date before start date")
	ErrNoWeekdays     = errors.New("recurrence: weekly pattern requires at least one weekday")
	ErrNoWeeks        = errors.New("recurrence: weekly pattern requires a positive week count")
	ErrNilIntent      = errors.New("recurrence: intent is required")
)

// Intent is the tagged authoring variant. Exactly one mode applies; the
// variants replace the pair of booleans the booking form uses, so two modes
// can never be active at once.
type Intent interface {
	isIntent()
}

// SingleDate books one occurrence on one date.
type SingleDate struct {
	Date time.Time
}

// WeeklyPattern books the given weekdays for Weeks consecutive weeks,
// anchored at Anchor. When a requested weekday equals the anchor's weekday
// the anchor date itself is the first occurrence; otherwise the first
// occurrence is the next future occurrence of that weekday after the anchor.
type WeeklyPattern struct {
	Anchor   time.Time
	Weekdays []time.Weekday
	Weeks    int
}

// DateRange books every calendar day from Start through End inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (SingleDate) isIntent()    {}
func (WeeklyPattern) isIntent() {}
func (DateRange) isIntent()     {}

// FromRequest maps raw authoring input to an Intent. A populated end date
// selects date-range mode even if weekdays were also submitted; the modes
// are mutually exclusive upstream, but contradictory input must not crash
// the generator.
func FromRequest(date time.Time, weekdays []time.Weekday, weeks int, endDate *time.Time) Intent {
	if endDate != nil {
		return DateRange{Start: date, End: *endDate}
	}
	if len(weekdays) > 0 {
		return WeeklyPattern{Anchor: date, Weekdays: weekdays, Weeks: weeks}
	}
	return SingleDate{Date: date}
}

// NewTag returns the recurrence tag shared by every occurrence of a series,
// used for later bulk operations.
func NewTag() string { return uuid.NewString() }

// Expand generates the occurrence dates for an intent, normalized to
// facility-local midnight, deduplicated by calendar date and sorted
// ascending. Contradictory or invalid input is rejected before any
// occurrence is produced.
func Expand(cal *calendar.Calendar, intent Intent) ([]time.Time, error) {
	switch v := intent.(type) {
	case SingleDate:
		return []time.Time{cal.DayStart(v.Date)}, nil
	case WeeklyPattern:
		return expandWeekly(cal, v)
	case DateRange:
		return expandRange(cal, v)
	case nil:
		return nil, ErrNilIntent
	default:
		return nil, ErrNilIntent
	}
}

func expandWeekly(cal *calendar.Calendar, pattern WeeklyPattern) ([]time.Time, error) {
	if len(pattern.Weekdays) == 0 {
		return nil, ErrNoWeekdays
	}
	if pattern.Weeks <= 0 {
		return nil, ErrNoWeeks
	}

	anchor := cal.DayStart(pattern.Anchor)
	anchorWeekday := anchor.In(cal.Location()).Weekday()

	seen := make(map[string]struct{})
	var dates []time.Time
	for _, weekday := range pattern.Weekdays {
		first := anchor
		if weekday != anchorWeekday {
			// Wrap forward 1-7 days to the next occurrence of the weekday.
			delta := (int(weekday) - int(anchorWeekday) + 7) % 7
			if delta == 0 {
				delta = 7
			}
			first = addDays(cal, anchor, delta)
		}
		for week := 0; week < pattern.Weeks; week++ {
			date := addDays(cal, first, week*7)
			key := date.In(cal.Location()).Format("2006-01-02")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			dates = append(dates, date)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func expandRange(cal *calendar.Calendar, r DateRange) ([]time.Time, error) {
	start := cal.DayStart(r.Start)
	end := cal.DayStart(r.End)
	if end.Before(start) {
		return nil, ErrEndBeforeStart
	}

	var dates []time.Time
	for cur := start; !cur.After(end); cur = addDays(cal, cur, 1) {
		dates = append(dates, cur)
	}
	return dates, nil
}

// addDays advances by whole facility-local calendar days, staying correct
// across DST transitions.
func addDays(cal *calendar.Calendar, t time.Time, days int) time.Time {
	local := t.In(cal.Location())
	return time.Date(local.Year(), local.Month(), local.Day()+days, 0, 0, 0, 0, cal.Location()).UTC()
}
