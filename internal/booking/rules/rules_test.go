package rules

import (
	"testing"
	"time"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
)

func TestDefaults(t *testing.T) {
	r := Defaults(SportTennis)
	if r.MaxActiveBookingsPerUser != 4 {
		t.Errorf("default active cap = %d, want 4", r.MaxActiveBookingsPerUser)
	}
	if r.MaxDaysAhead != 30 {
		t.Errorf("default horizon = %d, want 30", r.MaxDaysAhead)
	}
	if !r.AllowConsecutive {
		t.Error("defaults must allow consecutive bookings")
	}
	if r.MinAdvanceNotice != 0 || r.MinGap != 0 {
		t.Error("defaults must not impose advance notice or gap constraints")
	}
}

func TestWithinAdvanceWindowBoundary(t *testing.T) {
	r := RuleSet{MinAdvanceNotice: 2 * time.Hour}
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	if !r.WithinAdvanceWindow(now, now.Add(2*time.Hour)) {
		t.Error("slot at exactly now+notice must be admitted")
	}
	if r.WithinAdvanceWindow(now, now.Add(2*time.Hour-time.Second)) {
		t.Error("slot one second inside the notice window must be rejected")
	}
	if !r.WithinAdvanceWindow(now, now.Add(3*time.Hour)) {
		t.Error("slot beyond the notice window must be admitted")
	}
}

func TestWithinHorizon(t *testing.T) {
	cal, err := calendar.New(calendar.DefaultTimezone)
	if err != nil {
		t.Fatalf("load calendar: %v", err)
	}
	r := RuleSet{MaxDaysAhead: 7}
	now := cal.At(cal.Date(2025, time.June, 2), 10, 0)

	if !r.WithinHorizon(cal, now, cal.At(cal.Date(2025, time.June, 9), 9, 0)) {
		t.Error("slot exactly MaxDaysAhead days out must be admitted")
	}
	if r.WithinHorizon(cal, now, cal.At(cal.Date(2025, time.June, 10), 9, 0)) {
		t.Error("slot past the horizon must be rejected")
	}
}

func TestUnderActiveCap(t *testing.T) {
	r := RuleSet{MaxActiveBookingsPerUser: 4}
	if !r.UnderActiveCap(3) {
		t.Error("3 of 4 must be under the cap")
	}
	if r.UnderActiveCap(4) {
		t.Error("4 of 4 must be at the cap")
	}
}

func TestCheckAdjacency(t *testing.T) {
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	iv := func(startHour, endHour int) calendar.Interval {
		return calendar.Interval{
			Start: base.Add(time.Duration(startHour) * time.Hour),
			End:   base.Add(time.Duration(endHour) * time.Hour),
		}
	}

	t.Run("touching rejected when consecutive disallowed", func(t *testing.T) {
		r := RuleSet{AllowConsecutive: false}
		if got := r.CheckAdjacency(iv(1, 2), []calendar.Interval{iv(2, 3)}); got != AdjacencyTouching {
			t.Errorf("candidate ending at existing start: got %v, want AdjacencyTouching", got)
		}
		if got := r.CheckAdjacency(iv(3, 4), []calendar.Interval{iv(2, 3)}); got != AdjacencyTouching {
			t.Errorf("candidate starting at existing end: got %v, want AdjacencyTouching", got)
		}
	})

	t.Run("touching admitted when consecutive allowed", func(t *testing.T) {
		r := RuleSet{AllowConsecutive: true}
		if got := r.CheckAdjacency(iv(1, 2), []calendar.Interval{iv(2, 3)}); got != AdjacencyOK {
			t.Errorf("got %v, want AdjacencyOK", got)
		}
	})

	t.Run("minimum gap enforced both directions", func(t *testing.T) {
		r := RuleSet{AllowConsecutive: true, MinGap: 2 * time.Hour}
		if got := r.CheckAdjacency(iv(0, 1), []calendar.Interval{iv(2, 3)}); got != AdjacencyGapTooSmall {
			t.Errorf("1h gap before existing: got %v, want AdjacencyGapTooSmall", got)
		}
		if got := r.CheckAdjacency(iv(4, 5), []calendar.Interval{iv(2, 3)}); got != AdjacencyGapTooSmall {
			t.Errorf("1h gap after existing: got %v, want AdjacencyGapTooSmall", got)
		}
		if got := r.CheckAdjacency(iv(5, 6), []calendar.Interval{iv(2, 3)}); got != AdjacencyOK {
			t.Errorf("2h gap: got %v, want AdjacencyOK", got)
		}
	})

	t.Run("overlap is not an adjacency concern", func(t *testing.T) {
		r := RuleSet{AllowConsecutive: false, MinGap: time.Hour}
		if got := r.CheckAdjacency(iv(2, 3), []calendar.Interval{iv(2, 3)}); got != AdjacencyOK {
			t.Errorf("overlapping neighbor must be skipped: got %v", got)
		}
	})
}
