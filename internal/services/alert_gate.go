package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

// AlertGate is the per-period idempotency guard for threshold notifications:
// each threshold (80%, 100%) fires at most one notification per budget period.
//
// The two alert flags form a one-way latch within a period. They are set via
// the store's atomic conditional update, so two nearly-simultaneous postings
// that both observe an unset flag resolve to a single winner. Flags are
// persisted before delivery is attempted: a crash after the flag persists but
// before the notifier runs loses that one notification rather than ever
// sending it twice.
type AlertGate struct {
	budgets  BudgetStore
	notifier Notifier
}

// NewAlertGate creates a gate over the given budget store and notifier.
func NewAlertGate(budgets BudgetStore, notifier Notifier) *AlertGate {
	return &AlertGate{
		budgets:  budgets,
		notifier: notifier,
	}
}

// Evaluate classifies the freshly computed percentage and fires at most one
// notification.
//
// Under 80% nothing happens and the flags are not consulted. At or above 100%
// only the "exceeded" alert is considered: a posting that jumps straight past
// both thresholds fires exceeded alone, and the warning flag stays unset for
// that crossing. Flags are never cleared here; only a limit increase (see
// BudgetStore.UpsertPeriod) re-arms them.
func (g *AlertGate) Evaluate(ctx context.Context, period *core.BudgetPeriod, percentage float64, spent core.Money) error {
	switch {
	case percentage >= 100:
		if period.AlertSent100 {
			return nil
		}
		return g.fire(ctx, period, FlagExceeded100, ThresholdExceeded, percentage, spent)
	case percentage >= 80:
		if period.AlertSent80 {
			return nil
		}
		return g.fire(ctx, period, FlagWarning80, ThresholdWarning, percentage, spent)
	default:
		return nil
	}
}

func (g *AlertGate) fire(ctx context.Context, period *core.BudgetPeriod, flag AlertFlag, kind ThresholdKind, percentage float64, spent core.Money) error {
	// The conditional set is the authority: the in-memory flag check above is
	// only a shortcut, and concurrent posters racing past it get exactly one
	// true result here.
	won, err := g.budgets.TrySetAlertFlag(ctx, period.ID, flag)
	if err != nil {
		return fmt.Errorf("set alert flag %s: %w", flag, err)
	}
	if !won {
		slog.DebugContext(ctx, "Alert already sent for this period",
			"period_id", period.ID,
			"flag", flag)
		return nil
	}

	switch flag {
	case FlagWarning80:
		period.AlertSent80 = true
	case FlagExceeded100:
		period.AlertSent100 = true
	}

	alert := ThresholdAlert{
		OwnerID:    period.OwnerID,
		Category:   period.Category,
		Month:      period.Month,
		Year:       period.Year,
		Limit:      period.Limit,
		Spent:      spent,
		Percentage: percentage,
		Kind:       kind,
	}

	// Delivery failure is non-fatal: the flag already latched, so the alert
	// is dropped rather than retried.
	if err := g.notifier.SendThresholdAlert(ctx, alert); err != nil {
		slog.ErrorContext(ctx, "Threshold alert delivery failed",
			"period_id", period.ID,
			"kind", kind,
			"error", err)
		return nil
	}

	slog.InfoContext(ctx, "Threshold alert sent",
		"period_id", period.ID,
		"owner_id", period.OwnerID,
		"category", period.Category,
		"kind", kind,
		"percentage", percentage)

	return nil
}
