package shared

import (
	"fmt"
	"time"
)

// Period granularities accepted by report-scoped queries.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// ErrInvalidPeriod indicates an unknown period granularity.
var ErrInvalidPeriod = fmt.Errorf("%w: unknown period", ErrValidation)

// PeriodRange resolves a (period, date) pair into a half-open [start, end)
// interval. Weeks start on Monday.
func PeriodRange(period string, date time.Time) (time.Time, time.Time, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	switch period {
	case PeriodDay:
		return day, day.AddDate(0, 0, 1), nil
	case PeriodWeek:
		offset := int(day.Weekday()) - int(time.Monday)
		if offset < 0 {
			offset += 7
		}
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonth:
		start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}
