package apiutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, FieldError{Field: field, Reason: "must be greater than 0"}
	}
	return value, nil
}

// ParseRFC3339Field parses a timestamp field, normalized to UTC.
func ParseRFC3339Field(raw string, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, FieldError{Field: field, Reason: "is required"}
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, FieldError{Field: field, Reason: "must be an RFC 3339 timestamp"}
	}
	return parsed.UTC(), nil
}

// ParseDateField parses a "2006-01-02" calendar date in the given location.
func ParseDateField(raw string, field string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, FieldError{Field: field, Reason: "is required"}
	}
	parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, FieldError{Field: field, Reason: "must be a YYYY-MM-DD date"}
	}
	return parsed.UTC(), nil
}

// ParseWeekdaysField converts weekday numbers (0 = Sunday) into time.Weekday
// values.
func ParseWeekdaysField(raw []int, field string) ([]time.Weekday, error) {
	weekdays := make([]time.Weekday, 0, len(raw))
	for _, v := range raw {
		if v < 0 || v > 6 {
			return nil, FieldError{Field: field, Reason: fmt.Sprintf("has invalid weekday %d", v)}
		}
		weekdays = append(weekdays, time.Weekday(v))
	}
	return weekdays, nil
}
