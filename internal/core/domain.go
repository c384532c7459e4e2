package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// CategoryRecurring tags ledger entries materialized by the scheduler.
const CategoryRecurring = "Recurring"

type (
	// Frequency is the cadence of a recurring item.
	Frequency string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// RecurringItem is a user-defined recurring obligation. NextDue is always
	// midnight-aligned UTC; only the scheduler advances it.
	RecurringItem struct {
		ID        int64
		OwnerID   int64
		Title     string
		Amount    Money
		Frequency Frequency
		NextDue   Date
	}

	// LedgerEntry is a concrete, dated spend record. Entries produced by the
	// scheduler carry AutoGenerated=true and provenance pointing at the source
	// item and the cycle date they were materialized for.
	LedgerEntry struct {
		ID            int64
		OwnerID       int64
		Title         string
		Amount        Money
		Category      string
		Date          Date
		AutoGenerated bool
		SourceItemID  int64
		CycleDate     Date
	}

	// BudgetPeriod is a per-owner, per-category, per-calendar-month spending
	// ceiling with two one-shot alert latches. At most one period exists per
	// (owner, category, month, year); the store enforces that.
	BudgetPeriod struct {
		ID           int64
		OwnerID      int64
		Category     string
		Limit        Money
		Month        int
		Year         int
		AlertSent80  bool
		AlertSent100 bool
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrEmptyTitle       = errors.New("empty title")
	ErrEmptyCategory    = errors.New("empty category")
)

// NewDate creates a midnight-aligned UTC date.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Midnight normalizes an instant to midnight UTC of the same calendar day.
func Midnight(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as an int (1-12).
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// IsMidnight reports whether the date carries no time-of-day component.
func (d Date) IsMidnight() bool {
	h, m, s := d.Clock()
	return h == 0 && m == 0 && s == 0 && d.Nanosecond() == 0
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly:
		return nil
	default:
		return ErrInvalidFrequency
	}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (ri RecurringItem) Validate() error {
	if len(strings.TrimSpace(ri.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(ri.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := ri.Amount.Validate(); err != nil {
		return err
	}
	if err := ri.Frequency.Validate(); err != nil {
		return err
	}
	if err := ri.NextDue.Validate(); err != nil {
		return errors.New("invalid next due date: " + err.Error())
	}
	if !ri.NextDue.IsMidnight() {
		return errors.New("next due date must be midnight-aligned")
	}
	return nil
}

func (e LedgerEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (bp BudgetPeriod) Validate() error {
	if bp.Limit.Cents <= 0 {
		return ErrInvalidLimit
	}
	if strings.TrimSpace(bp.Category) == "" {
		return ErrEmptyCategory
	}
	if bp.Month < 1 || bp.Month > 12 {
		return ErrInvalidDate
	}
	if bp.Year < 1 {
		return ErrInvalidDate
	}
	return nil
}

// PeriodBounds returns the first and last instant of the period's calendar
// month. The upper bound is the final nanosecond of the month so a
// BETWEEN-style query is inclusive on both ends.
func (bp BudgetPeriod) PeriodBounds() (time.Time, time.Time) {
	start := time.Date(bp.Year, time.Month(bp.Month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}
