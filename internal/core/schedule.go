// Package core provides the domain types and pure schedule math for the
// recurrence and budget engine.
//
// This file contains the advance rule: the single place that knows how a
// recurring item's next due date moves forward by one cycle.
package core

import (
	"fmt"
	"time"
)

// Advance returns the due date one cycle after d for the given frequency.
//
// The result is always midnight-normalized UTC and strictly after d:
//
//	daily   -> +1 day
//	weekly  -> +7 days
//	monthly -> +1 calendar month, same day-of-month; when the target month is
//	           shorter the day clamps to its last day (Jan 31 -> Feb 28/29)
//
// Advance moves by exactly one cycle. An item whose due date is far in the
// past is not backfilled to the present; the caller re-runs it on subsequent
// triggers.
func Advance(d Date, f Frequency) (Date, error) {
	switch f {
	case Daily:
		return Midnight(d.AddDate(0, 0, 1)), nil
	case Weekly:
		return Midnight(d.AddDate(0, 0, 7)), nil
	case Monthly:
		return advanceMonthly(d), nil
	default:
		return Date{}, fmt.Errorf("advance: %w: %q", ErrInvalidFrequency, f)
	}
}

func advanceMonthly(d Date) Date {
	year, month := d.Year(), d.Month()+1
	if month > 12 {
		month = 1
		year++
	}
	day := d.Day()
	// time.Date would normalize Feb 31 into early March; clamp instead.
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
