package services

import (
	"context"
	"time"

	"bilancio/internal/core"
)

// AlertFlag identifies one of the two one-shot alert latches on a budget period.
type AlertFlag string

const (
	FlagWarning80   AlertFlag = "warning_80"
	FlagExceeded100 AlertFlag = "exceeded_100"
)

// ThresholdKind classifies an outbound budget alert.
type ThresholdKind string

const (
	ThresholdWarning  ThresholdKind = "warning"
	ThresholdExceeded ThresholdKind = "exceeded"
)

// ThresholdAlert is the fully-formed payload handed to the Notifier when a
// budget threshold is crossed for the first time in a period.
type ThresholdAlert struct {
	OwnerID    int64
	Category   string
	Month      int
	Year       int
	Limit      core.Money
	Spent      core.Money
	Percentage float64
	Kind       ThresholdKind
}

// DueSoonReminder is the payload for the near-due recurring item reminder.
type DueSoonReminder struct {
	OwnerID int64
	Title   string
	Amount  core.Money
	DueDate core.Date
}

// Ports for outbound adapters.
type (
	// RecurrenceStore persists recurring items and their materialized entries.
	RecurrenceStore interface {
		// FindDue returns all items with NextDue <= beforeOrEqual.
		FindDue(ctx context.Context, beforeOrEqual core.Date) ([]core.RecurringItem, error)

		// FindDueOn returns all items with NextDue exactly on the given date.
		FindDueOn(ctx context.Context, date core.Date) ([]core.RecurringItem, error)

		// CreateEntry persists a ledger entry. Creation is idempotent per
		// (SourceItemID, CycleDate): when an entry for that cycle already
		// exists, created is false and the existing row is left untouched.
		CreateEntry(ctx context.Context, e core.LedgerEntry) (id int64, created bool, err error)

		// UpdateNextDue persists an advanced schedule for the item.
		UpdateNextDue(ctx context.Context, itemID int64, nextDue core.Date) error
	}

	// BudgetStore persists budget periods and answers spend aggregation.
	BudgetStore interface {
		// FindPeriod returns the period for (owner, category, month, year),
		// or nil when no budget is configured.
		FindPeriod(ctx context.Context, ownerID int64, category string, month, year int) (*core.BudgetPeriod, error)

		// SumSpend totals ledger entry amounts for (owner, category) with
		// dates in [from, to], both bounds inclusive.
		SumSpend(ctx context.Context, ownerID int64, category string, from, to time.Time) (core.Money, error)

		// TrySetAlertFlag atomically sets the flag only if it is currently
		// false and reports whether the update took effect. Concurrent
		// callers see exactly one true result per flag per period.
		TrySetAlertFlag(ctx context.Context, periodID int64, flag AlertFlag) (bool, error)

		// UpsertPeriod creates the period or updates its limit. A limit
		// increase clears both alert flags unconditionally; a decrease or
		// unchanged limit leaves them alone.
		UpsertPeriod(ctx context.Context, ownerID int64, category string, month, year int, limit core.Money) (*core.BudgetPeriod, error)
	}

	// Notifier attempts delivery of alert payloads. Failures are non-fatal to
	// the engine; callers log and move on.
	Notifier interface {
		SendThresholdAlert(ctx context.Context, alert ThresholdAlert) error
		SendRecurringDueSoon(ctx context.Context, reminder DueSoonReminder) error
	}
)
