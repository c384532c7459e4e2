package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

// BudgetTracker recomputes a category's spend-to-limit ratio whenever an
// expense is posted, from the scheduler or from direct user entry, and hands
// the result to the alert gate.
type BudgetTracker struct {
	budgets BudgetStore
	gate    *AlertGate
}

// NewBudgetTracker creates a tracker over the given budget store and gate.
func NewBudgetTracker(budgets BudgetStore, gate *AlertGate) *BudgetTracker {
	return &BudgetTracker{
		budgets: budgets,
		gate:    gate,
	}
}

// OnExpensePosted evaluates the budget for the entry's (owner, category,
// month, year). When no budget is configured for that period it is a no-op.
//
// The percentage handed to the gate is the raw unclamped ratio: spend at 340%
// of the limit classifies exactly like 101%. Clamping to [0, 100] is a
// display concern only.
func (t *BudgetTracker) OnExpensePosted(ctx context.Context, entry core.LedgerEntry) error {
	if t.budgets == nil || t.gate == nil {
		return fmt.Errorf("tracker not properly initialized")
	}

	month, year := entry.Date.Month(), entry.Date.Year()

	period, err := t.budgets.FindPeriod(ctx, entry.OwnerID, entry.Category, month, year)
	if err != nil {
		return fmt.Errorf("find budget period: %w", err)
	}
	if period == nil {
		slog.DebugContext(ctx, "No budget configured for category",
			"owner_id", entry.OwnerID,
			"category", entry.Category,
			"month", month,
			"year", year)
		return nil
	}

	from, to := period.PeriodBounds()
	spent, err := t.budgets.SumSpend(ctx, entry.OwnerID, entry.Category, from, to)
	if err != nil {
		return fmt.Errorf("sum period spend: %w", err)
	}

	percentage := spent.PercentOf(period.Limit)

	slog.DebugContext(ctx, "Budget evaluated",
		"owner_id", entry.OwnerID,
		"category", entry.Category,
		"spent_cents", spent.Cents,
		"limit_cents", period.Limit.Cents,
		"percentage", percentage)

	return t.gate.Evaluate(ctx, period, percentage, spent)
}
