package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
)

const (
	defaultMaxParallelItems = 4
	defaultItemTimeout      = 30 * time.Second
)

// RecurrenceScheduler materializes due recurring items into ledger entries and
// advances their schedules. It is driven by a single daily trigger; RunOnce
// takes the current instant explicitly so tests can drive arbitrary dates.
type RecurrenceScheduler struct {
	store   RecurrenceStore
	tracker *BudgetTracker

	maxParallelItems int
	itemTimeout      time.Duration
}

// SchedulerOption configures a RecurrenceScheduler.
type SchedulerOption func(*RecurrenceScheduler)

// WithMaxParallelItems bounds how many due items are processed concurrently.
func WithMaxParallelItems(n int) SchedulerOption {
	return func(s *RecurrenceScheduler) {
		if n > 0 {
			s.maxParallelItems = n
		}
	}
}

// WithItemTimeout bounds how long a single item may spend in store and
// tracker calls, so one stuck collaborator cannot stall the whole batch.
func WithItemTimeout(d time.Duration) SchedulerOption {
	return func(s *RecurrenceScheduler) {
		if d > 0 {
			s.itemTimeout = d
		}
	}
}

// NewRecurrenceScheduler creates a scheduler over the given store and tracker.
func NewRecurrenceScheduler(store RecurrenceStore, tracker *BudgetTracker, opts ...SchedulerOption) *RecurrenceScheduler {
	s := &RecurrenceScheduler{
		store:            store,
		tracker:          tracker,
		maxParallelItems: defaultMaxParallelItems,
		itemTimeout:      defaultItemTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce processes all recurring items due on or before now.
//
// For each due item, independently: materialize one ledger entry dated today,
// forward it to the budget tracker, then advance the item's schedule by
// exactly one cycle. Per-item failures are logged and isolated; one bad item
// never blocks the rest. Returns the number of items fully processed.
//
// An item whose due date is many cycles in the past advances by one cycle per
// run, not backfilled to the present; it simply comes up due again on the
// next trigger.
func (s *RecurrenceScheduler) RunOnce(ctx context.Context, now time.Time) (int, error) {
	if s.store == nil || s.tracker == nil {
		return 0, fmt.Errorf("scheduler not properly initialized")
	}

	today := core.Midnight(now)

	items, err := s.store.FindDue(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find due recurring items: %w", err)
	}

	slog.InfoContext(ctx, "Processing due recurring items",
		"total_due", len(items),
		"processing_date", today.Format("2006-01-02"))

	var processed atomic.Int64

	// Items are independent; steps within one item stay sequential.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallelItems)
	for _, item := range items {
		g.Go(func() error {
			if s.processItem(gctx, item, today) {
				processed.Add(1)
			}
			// Item errors are logged inside processItem; never fail the group
			// so the remaining items keep running.
			return nil
		})
	}
	_ = g.Wait()

	count := int(processed.Load())
	slog.InfoContext(ctx, "Recurring item processing complete",
		"processed", count,
		"total_due", len(items))

	return count, nil
}

// processItem materializes one due item and advances its schedule. Returns
// true when the schedule was advanced.
func (s *RecurrenceScheduler) processItem(ctx context.Context, item core.RecurringItem, today core.Date) bool {
	ctx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	entry := core.LedgerEntry{
		OwnerID:       item.OwnerID,
		Title:         item.Title,
		Amount:        item.Amount,
		Category:      core.CategoryRecurring,
		Date:          today,
		AutoGenerated: true,
		SourceItemID:  item.ID,
		CycleDate:     item.NextDue,
	}

	id, created, err := s.store.CreateEntry(ctx, entry)
	if err != nil {
		// Leave the schedule untouched: the item stays due and is retried on
		// the next trigger.
		slog.ErrorContext(ctx, "Failed to materialize ledger entry from recurring item",
			"item_id", item.ID,
			"title", item.Title,
			"error", err)
		return false
	}

	if created {
		entry.ID = id
		if err := s.tracker.OnExpensePosted(ctx, entry); err != nil {
			// Budget evaluation failure does not block schedule advancement.
			slog.ErrorContext(ctx, "Budget tracking failed for materialized entry",
				"item_id", item.ID,
				"entry_id", id,
				"error", err)
		}
	} else {
		// A previous run created the entry but failed to advance the
		// schedule. Skip tracking and just advance.
		slog.InfoContext(ctx, "Entry already materialized for this cycle",
			"item_id", item.ID,
			"cycle_date", item.NextDue.Format("2006-01-02"))
	}

	next, err := core.Advance(item.NextDue, item.Frequency)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to advance recurring item schedule",
			"item_id", item.ID,
			"frequency", item.Frequency,
			"error", err)
		return false
	}

	if err := s.store.UpdateNextDue(ctx, item.ID, next); err != nil {
		// The entry exists, so the retry on the next trigger will skip
		// creation and only advance.
		slog.ErrorContext(ctx, "Failed to persist advanced due date",
			"item_id", item.ID,
			"next_due", next.Format("2006-01-02"),
			"error", err)
		return false
	}

	slog.InfoContext(ctx, "Materialized recurring item",
		"item_id", item.ID,
		"title", item.Title,
		"amount_cents", item.Amount.Cents,
		"frequency", item.Frequency,
		"next_due", next.Format("2006-01-02"))

	return true
}
