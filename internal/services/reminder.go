package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/core"
)

const defaultReminderLeadDays = 3

// ReminderService sends near-due reminders for recurring items. It is a pure
// read-only pass: no schedules move and no flags change, so a re-run on the
// same day simply sends the same reminders again.
type ReminderService struct {
	store    RecurrenceStore
	notifier Notifier
	leadDays int
}

// NewReminderService creates a reminder service. leadDays is how many days
// before the due date the reminder fires; values below 1 fall back to the
// default of 3.
func NewReminderService(store RecurrenceStore, notifier Notifier, leadDays int) *ReminderService {
	if leadDays < 1 {
		leadDays = defaultReminderLeadDays
	}
	return &ReminderService{
		store:    store,
		notifier: notifier,
		leadDays: leadDays,
	}
}

// RunOnce sends a reminder for every item due exactly leadDays after now.
// Per-item delivery failures are logged and skipped. Returns the number of
// reminders delivered.
func (s *ReminderService) RunOnce(ctx context.Context, now time.Time) (int, error) {
	if s.store == nil || s.notifier == nil {
		return 0, fmt.Errorf("reminder service not properly initialized")
	}

	target := core.Midnight(now.AddDate(0, 0, s.leadDays))

	items, err := s.store.FindDueOn(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("find items due on %s: %w", target.Format("2006-01-02"), err)
	}

	sent := 0
	for _, item := range items {
		reminder := DueSoonReminder{
			OwnerID: item.OwnerID,
			Title:   item.Title,
			Amount:  item.Amount,
			DueDate: item.NextDue,
		}
		if err := s.notifier.SendRecurringDueSoon(ctx, reminder); err != nil {
			slog.ErrorContext(ctx, "Due-soon reminder delivery failed",
				"item_id", item.ID,
				"title", item.Title,
				"error", err)
			continue
		}
		sent++
	}

	slog.InfoContext(ctx, "Due-soon reminders processed",
		"due_date", target.Format("2006-01-02"),
		"total_due", len(items),
		"sent", sent)

	return sent, nil
}
