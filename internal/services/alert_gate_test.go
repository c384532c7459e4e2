package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bilancio/internal/core"
)

func newTestGate() (*fakeBudgetStore, *fakeNotifier, *AlertGate) {
	budgets := newFakeBudgetStore()
	notifier := newFakeNotifier()
	return budgets, notifier, NewAlertGate(budgets, notifier)
}

func freshPeriod(budgets *fakeBudgetStore) *core.BudgetPeriod {
	return budgets.addPeriod(core.BudgetPeriod{
		OwnerID:  1,
		Category: "Groceries",
		Limit:    core.Money{Cents: 100000},
		Month:    1,
		Year:     2024,
	})
}

// reload returns a fresh copy of the period the way the tracker would read it.
func reload(budgets *fakeBudgetStore, id int64) *core.BudgetPeriod {
	bp := budgets.period(id)
	return &bp
}

func TestAlertGate_EachThresholdFiresOncePerPeriod(t *testing.T) {
	// Spend walks 50% -> 90% -> 130% -> 150% across four postings: exactly
	// one warning and one exceeded overall.
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)

	steps := []struct {
		pct   float64
		spent int64
	}{
		{50, 50000},
		{90, 90000},
		{130, 130000},
		{150, 150000},
	}
	for _, step := range steps {
		if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), step.pct, core.Money{Cents: step.spent}); err != nil {
			t.Fatalf("Evaluate(%v%%) error = %v", step.pct, err)
		}
	}

	alerts := notifier.sentAlerts()
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2 (one warning, one exceeded)", len(alerts))
	}
	if alerts[0].Kind != ThresholdWarning || alerts[1].Kind != ThresholdExceeded {
		t.Errorf("alert kinds = %q, %q; want warning then exceeded", alerts[0].Kind, alerts[1].Kind)
	}

	got := budgets.period(period.ID)
	if !got.AlertSent80 || !got.AlertSent100 {
		t.Errorf("flags = (%v, %v), want both latched", got.AlertSent80, got.AlertSent100)
	}
}

func TestAlertGate_RepeatedPostingsAboveThreshold(t *testing.T) {
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)

	for i := 0; i < 5; i++ {
		if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 91, core.Money{Cents: 91000}); err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
	}

	if got := len(notifier.sentAlerts()); got != 1 {
		t.Errorf("got %d alerts after 5 postings, want 1", got)
	}
}

func TestAlertGate_DirectJumpSkipsWarning(t *testing.T) {
	// 10% -> 150% in a single posting: only exceeded fires, and the warning
	// flag is neither set nor sent.
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)

	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 150, core.Money{Cents: 150000}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	alerts := notifier.sentAlerts()
	if len(alerts) != 1 || alerts[0].Kind != ThresholdExceeded {
		t.Fatalf("alerts = %+v, want exactly one exceeded", alerts)
	}

	got := budgets.period(period.ID)
	if got.AlertSent80 {
		t.Error("AlertSent80 latched on a direct jump past both thresholds")
	}
	if !got.AlertSent100 {
		t.Error("AlertSent100 not latched")
	}

	// Spend is monotone within a period, so a later posting still above 100%
	// must not produce a late warning.
	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 160, core.Money{Cents: 160000}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := len(notifier.sentAlerts()); got != 1 {
		t.Errorf("got %d alerts, want 1 (no duplicate, no late warning)", got)
	}
}

func TestAlertGate_UnderThresholdConsultsNothing(t *testing.T) {
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)
	budgets.flagErr = errors.New("must not be called")

	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 79.9, core.Money{Cents: 79900}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(notifier.sentAlerts()) != 0 {
		t.Error("alert sent under threshold")
	}
}

func TestAlertGate_ResetOnLimitIncreaseRefires(t *testing.T) {
	// Fire exceeded, raise the limit (which clears both flags), then post
	// again still over the new limit: exceeded fires exactly once more.
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)

	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 150, core.Money{Cents: 150000}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	// Raise limit to 1200: spend of 1500 is still over, flags clear anyway.
	if _, err := budgets.UpsertPeriod(context.Background(), 1, "Groceries", 1, 2024, core.Money{Cents: 120000}); err != nil {
		t.Fatalf("UpsertPeriod() error = %v", err)
	}
	got := budgets.period(period.ID)
	if got.AlertSent80 || got.AlertSent100 {
		t.Fatalf("flags = (%v, %v) after limit increase, want both cleared", got.AlertSent80, got.AlertSent100)
	}

	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 125, core.Money{Cents: 150000}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	alerts := notifier.sentAlerts()
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2 (re-fired after reset)", len(alerts))
	}
	if alerts[1].Kind != ThresholdExceeded {
		t.Errorf("re-fired alert kind = %q, want exceeded", alerts[1].Kind)
	}
}

func TestAlertGate_FlagPersistsBeforeSend(t *testing.T) {
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)

	var flagAtSendTime bool
	notifier.onAlert = func(ThresholdAlert) {
		flagAtSendTime = budgets.period(period.ID).AlertSent100
	}

	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 120, core.Money{Cents: 120000}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !flagAtSendTime {
		t.Error("notifier invoked before the alert flag was persisted")
	}
}

func TestAlertGate_NotifierFailureLeavesFlagLatched(t *testing.T) {
	budgets, _, gate := newTestGate()
	notifier := newFakeNotifier()
	notifier.alertErr = errors.New("smtp down")
	gate = NewAlertGate(budgets, notifier)
	period := freshPeriod(budgets)

	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 120, core.Money{Cents: 120000}); err != nil {
		t.Fatalf("Evaluate() error = %v, want nil (delivery failure is non-fatal)", err)
	}
	if got := budgets.period(period.ID); !got.AlertSent100 {
		t.Error("flag not latched after delivery failure; alert would duplicate on retry")
	}
}

func TestAlertGate_FlagPersistFailurePropagates(t *testing.T) {
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)
	budgets.flagErr = errors.New("db locked")

	if err := gate.Evaluate(context.Background(), reload(budgets, period.ID), 120, core.Money{Cents: 120000}); err == nil {
		t.Error("Evaluate() error = nil, want store error")
	}
	if len(notifier.sentAlerts()) != 0 {
		t.Error("alert sent although the flag never persisted")
	}
}

func TestAlertGate_ConcurrentPostingsSingleAlert(t *testing.T) {
	// N postings race past 100% for the first time; exactly one exceeded
	// alert is delivered.
	budgets, notifier, gate := newTestGate()
	period := freshPeriod(budgets)

	const n = 25
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			// Each poster reads the period before any flag was set.
			stale := *period
			_ = gate.Evaluate(context.Background(), &stale, 130, core.Money{Cents: 130000})
		}()
	}
	wg.Wait()

	if got := len(notifier.sentAlerts()); got != 1 {
		t.Errorf("got %d alerts from %d concurrent postings, want 1", got, n)
	}
}
