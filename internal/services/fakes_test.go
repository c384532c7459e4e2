package services

import (
	"context"
	"sync"
	"time"

	"bilancio/internal/core"
)

// fakeRecurrenceStore is an in-memory RecurrenceStore with the same
// materialization dedup contract as the SQLite repository.
type fakeRecurrenceStore struct {
	mu      sync.Mutex
	items   map[int64]core.RecurringItem
	entries []core.LedgerEntry
	nextID  int64

	findErr   error
	createErr map[int64]error // keyed by source item ID
	updateErr map[int64]error // keyed by item ID
}

func newFakeRecurrenceStore() *fakeRecurrenceStore {
	return &fakeRecurrenceStore{
		items:     make(map[int64]core.RecurringItem),
		createErr: make(map[int64]error),
		updateErr: make(map[int64]error),
	}
}

func (f *fakeRecurrenceStore) addItem(item core.RecurringItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = item
}

func (f *fakeRecurrenceStore) FindDue(_ context.Context, beforeOrEqual core.Date) ([]core.RecurringItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var due []core.RecurringItem
	for _, item := range f.items {
		if !item.NextDue.After(beforeOrEqual.Time) {
			due = append(due, item)
		}
	}
	return due, nil
}

func (f *fakeRecurrenceStore) FindDueOn(_ context.Context, date core.Date) ([]core.RecurringItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var due []core.RecurringItem
	for _, item := range f.items {
		if item.NextDue.Equal(date.Time) {
			due = append(due, item)
		}
	}
	return due, nil
}

func (f *fakeRecurrenceStore) CreateEntry(_ context.Context, e core.LedgerEntry) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[e.SourceItemID]; err != nil {
		return 0, false, err
	}
	for _, existing := range f.entries {
		if existing.SourceItemID != 0 && existing.SourceItemID == e.SourceItemID && existing.CycleDate.Equal(e.CycleDate.Time) {
			return existing.ID, false, nil
		}
	}
	f.nextID++
	e.ID = f.nextID
	f.entries = append(f.entries, e)
	return e.ID, true, nil
}

func (f *fakeRecurrenceStore) UpdateNextDue(_ context.Context, itemID int64, nextDue core.Date) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[itemID]; err != nil {
		return err
	}
	item, ok := f.items[itemID]
	if !ok {
		return nil
	}
	item.NextDue = nextDue
	f.items[itemID] = item
	return nil
}

func (f *fakeRecurrenceStore) entriesForItem(itemID int64) []core.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range f.entries {
		if e.SourceItemID == itemID {
			out = append(out, e)
		}
	}
	return out
}

// fakeBudgetStore is an in-memory BudgetStore. When wired to a
// fakeRecurrenceStore, SumSpend aggregates over its ledger entries so
// scheduler-to-tracker flows behave end to end.
type fakeBudgetStore struct {
	mu      sync.Mutex
	periods map[int64]*core.BudgetPeriod
	nextID  int64

	ledger *fakeRecurrenceStore // optional entry source for SumSpend
	spent  core.Money           // used when ledger is nil

	findErr error
	sumErr  error
	flagErr error
}

func newFakeBudgetStore() *fakeBudgetStore {
	return &fakeBudgetStore{periods: make(map[int64]*core.BudgetPeriod)}
}

func (f *fakeBudgetStore) addPeriod(bp core.BudgetPeriod) *core.BudgetPeriod {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	bp.ID = f.nextID
	f.periods[bp.ID] = &bp
	return &bp
}

func (f *fakeBudgetStore) period(id int64) core.BudgetPeriod {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.periods[id]
}

func (f *fakeBudgetStore) FindPeriod(_ context.Context, ownerID int64, category string, month, year int) (*core.BudgetPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, bp := range f.periods {
		if bp.OwnerID == ownerID && bp.Category == category && bp.Month == month && bp.Year == year {
			copied := *bp
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBudgetStore) SumSpend(_ context.Context, ownerID int64, category string, from, to time.Time) (core.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sumErr != nil {
		return core.Money{}, f.sumErr
	}
	if f.ledger == nil {
		return f.spent, nil
	}
	f.ledger.mu.Lock()
	defer f.ledger.mu.Unlock()
	var total int64
	for _, e := range f.ledger.entries {
		if e.OwnerID == ownerID && e.Category == category && !e.Date.Before(from) && !e.Date.After(to) {
			total += e.Amount.Cents
		}
	}
	return core.Money{Cents: total}, nil
}

func (f *fakeBudgetStore) TrySetAlertFlag(_ context.Context, periodID int64, flag AlertFlag) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flagErr != nil {
		return false, f.flagErr
	}
	bp, ok := f.periods[periodID]
	if !ok {
		return false, nil
	}
	switch flag {
	case FlagWarning80:
		if bp.AlertSent80 {
			return false, nil
		}
		bp.AlertSent80 = true
	case FlagExceeded100:
		if bp.AlertSent100 {
			return false, nil
		}
		bp.AlertSent100 = true
	}
	return true, nil
}

func (f *fakeBudgetStore) UpsertPeriod(_ context.Context, ownerID int64, category string, month, year int, limit core.Money) (*core.BudgetPeriod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, bp := range f.periods {
		if bp.OwnerID == ownerID && bp.Category == category && bp.Month == month && bp.Year == year {
			if limit.Cents > bp.Limit.Cents {
				bp.AlertSent80 = false
				bp.AlertSent100 = false
			}
			bp.Limit = limit
			copied := *bp
			return &copied, nil
		}
	}
	f.nextID++
	bp := &core.BudgetPeriod{
		ID:       f.nextID,
		OwnerID:  ownerID,
		Category: category,
		Limit:    limit,
		Month:    month,
		Year:     year,
	}
	f.periods[bp.ID] = bp
	copied := *bp
	return &copied, nil
}

// fakeNotifier records deliveries. onAlert, when set, runs synchronously
// before the alert is recorded so tests can observe store state at send time.
type fakeNotifier struct {
	mu        sync.Mutex
	alerts    []ThresholdAlert
	reminders []DueSoonReminder

	alertErr    error
	reminderErr map[int64]error // keyed by owner ID
	onAlert     func(ThresholdAlert)
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{reminderErr: make(map[int64]error)}
}

func (f *fakeNotifier) SendThresholdAlert(_ context.Context, alert ThresholdAlert) error {
	f.mu.Lock()
	hook := f.onAlert
	f.mu.Unlock()
	if hook != nil {
		hook(alert)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alertErr != nil {
		return f.alertErr
	}
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotifier) SendRecurringDueSoon(_ context.Context, reminder DueSoonReminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reminderErr[reminder.OwnerID]; err != nil {
		return err
	}
	f.reminders = append(f.reminders, reminder)
	return nil
}

func (f *fakeNotifier) sentAlerts() []ThresholdAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ThresholdAlert, len(f.alerts))
	copy(out, f.alerts)
	return out
}
