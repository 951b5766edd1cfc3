package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
)

func newTestCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(calendar.DefaultTimezone)
	if err != nil {
		t.Fatalf("load calendar: %v", err)
	}
	return cal
}

func localDate(cal *calendar.Calendar, year int, month time.Month, day int) time.Time {
	return cal.Date(year, month, day)
}

func TestExpandSingleDate(t *testing.T) {
	cal := newTestCalendar(t)
	date := localDate(cal, 2025, time.June, 4)

	dates, err := Expand(cal, SingleDate{Date: date})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(dates) != 1 || !dates[0].Equal(date) {
		t.Fatalf("expected [%v], got %v", date, dates)
	}
}

func TestExpandWeeklyAnchorCoincidence(t *testing.T) {
	cal := newTestCalendar(t)
	// 2025-06-04 is a Wednesday.
	anchor := localDate(cal, 2025, time.June, 4)

	dates, err := Expand(cal, WeeklyPattern{
		Anchor:   anchor,
		Weekdays: []time.Weekday{time.Monday, time.Wednesday},
		Weeks:    2,
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	want := []time.Time{
		localDate(cal, 2025, time.June, 4),  // anchor Wednesday
		localDate(cal, 2025, time.June, 9),  // following Monday
		localDate(cal, 2025, time.June, 11), // Wednesday week 2
		localDate(cal, 2025, time.June, 16), // Monday week 2
	}
	if len(dates) != len(want) {
		t.Fatalf("expected %d dates, got %d: %v", len(want), len(dates), dates)
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Errorf("date[%d] = %v, want %v", i, dates[i], want[i])
		}
	}
}

func TestExpandWeeklyDeduplicates(t *testing.T) {
	cal := newTestCalendar(t)
	anchor := localDate(cal, 2025, time.June, 4) // Wednesday

	dates, err := Expand(cal, WeeklyPattern{
		Anchor:   anchor,
		Weekdays: []time.Weekday{time.Wednesday, time.Wednesday},
		Weeks:    3,
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("duplicate weekday input must deduplicate, got %d dates", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			t.Errorf("dates not strictly ascending at %d: %v", i, dates)
		}
	}
}

func TestExpandWeeklyValidation(t *testing.T) {
	cal := newTestCalendar(t)
	anchor := localDate(cal, 2025, time.June, 4)

	if _, err := Expand(cal, WeeklyPattern{Anchor: anchor, Weeks: 2}); !errors.Is(err, ErrNoWeekdays) {
		t.Errorf("expected ErrNoWeekdays, got %v", err)
	}
	if _, err := Expand(cal, WeeklyPattern{Anchor: anchor, Weekdays: []time.Weekday{time.Monday}}); !errors.Is(err, ErrNoWeeks) {
		t.Errorf("expected ErrNoWeeks, got %v", err)
	}
}

func TestExpandDateRangeInclusive(t *testing.T) {
	cal := newTestCalendar(t)
	start := localDate(cal, 2025, time.June, 1)
	end := localDate(cal, 2025, time.June, 3)

	dates, err := Expand(cal, DateRange{Start: start, End: end})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	if !dates[0].Equal(start) || !dates[2].Equal(end) {
		t.Errorf("range endpoints wrong: %v", dates)
	}
}

func TestExpandDateRangeSingleDay(t *testing.T) {
	cal := newTestCalendar(t)
	day := localDate(cal, 2025, time.June, 1)

	dates, err := Expand(cal, DateRange{Start: day, End: day})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("expected 1 date, got %d", len(dates))
	}
}

func TestExpandDateRangeRejectsReversedBounds(t *testing.T) {
	cal := newTestCalendar(t)

	dates, err := Expand(cal, DateRange{
		Start: localDate(cal, 2025, time.June, 3),
		End:   localDate(cal, 2025, time.June, 1),
	})
	if !errors.Is(err, ErrEndBeforeStart) {
		t.Fatalf("expected ErrEndBeforeStart, got %v", err)
	}
	if dates != nil {
		t.Fatalf("no occurrences may be generated on invalid input, got %v", dates)
	}
}

func TestFromRequestEndDateWins(t *testing.T) {
	cal := newTestCalendar(t)
	date := localDate(cal, 2025, time.June, 1)
	end := localDate(cal, 2025, time.June, 2)

	// Weekly flags and an end date together: presence of an end date
	// selects date-range mode.
	intent := FromRequest(date, []time.Weekday{time.Monday}, 4, &end)
	if _, ok := intent.(DateRange); !ok {
		t.Fatalf("expected DateRange, got %T", intent)
	}

	intent = FromRequest(date, []time.Weekday{time.Monday}, 4, nil)
	if _, ok := intent.(WeeklyPattern); !ok {
		t.Fatalf("expected WeeklyPattern, got %T", intent)
	}

	intent = FromRequest(date, nil, 0, nil)
	if _, ok := intent.(SingleDate); !ok {
		t.Fatalf("expected SingleDate, got %T", intent)
	}
}

func TestExpandDeterminism(t *testing.T) {
	cal := newTestCalendar(t)
	intent := WeeklyPattern{
		Anchor:   localDate(cal, 2025, time.June, 4),
		Weekdays: []time.Weekday{time.Friday, time.Monday},
		Weeks:    4,
	}

	first, err := Expand(cal, intent)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	second, err := Expand(cal, intent)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expansion not deterministic: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("expansion differs at %d: %v vs %v", i, first[i], second[i])
		}
	}
}
