package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

// BudgetService handles user-facing budget configuration. Setting a budget is
// the one external event that can re-arm the alert latches.
type BudgetService struct {
	budgets BudgetStore
}

// NewBudgetService creates a service over the given budget store.
func NewBudgetService(budgets BudgetStore) *BudgetService {
	return &BudgetService{budgets: budgets}
}

// SetBudget creates or updates the spending limit for (owner, category,
// month, year). Raising the limit clears both alert flags unconditionally,
// even when current spend still exceeds the new limit; in that case the next
// posting re-fires the alert immediately. Lowering the limit or leaving it
// unchanged never touches the flags.
func (s *BudgetService) SetBudget(ctx context.Context, ownerID int64, category string, month, year int, limit core.Money) (*core.BudgetPeriod, error) {
	candidate := core.BudgetPeriod{
		OwnerID:  ownerID,
		Category: category,
		Limit:    limit,
		Month:    month,
		Year:     year,
	}
	if err := candidate.Validate(); err != nil {
		return nil, fmt.Errorf("validate budget: %w", err)
	}

	period, err := s.budgets.UpsertPeriod(ctx, ownerID, category, month, year, limit)
	if err != nil {
		return nil, fmt.Errorf("upsert budget period: %w", err)
	}

	slog.InfoContext(ctx, "Budget set",
		"owner_id", ownerID,
		"category", category,
		"month", month,
		"year", year,
		"limit_cents", limit.Cents)

	return period, nil
}
