package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/services"

	_ "modernc.org/sqlite"
)

// SQLiteRepository backs both engine stores with a single SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// Ensure interface conformance
var (
	_ services.RecurrenceStore = (*SQLiteRepository)(nil)
	_ services.BudgetStore     = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// dateString renders a date the way it is stored: ISO day precision, so
// lexicographic comparison in SQL matches chronological order.
func dateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func parseDate(s string) (core.Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

// CreateRecurringItem persists a new recurring obligation.
func (r *SQLiteRepository) CreateRecurringItem(ctx context.Context, item core.RecurringItem) (int64, error) {
	if err := item.Validate(); err != nil {
		return 0, fmt.Errorf("validate recurring item: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_items (owner_id, title, amount_cents, frequency, next_due)
		VALUES (?, ?, ?, ?, ?)`,
		item.OwnerID, item.Title, item.Amount.Cents, string(item.Frequency), dateString(item.NextDue.Time))
	if err != nil {
		return 0, fmt.Errorf("create recurring item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("recurring item id: %w", err)
	}

	slog.InfoContext(ctx, "Recurring item saved",
		"id", id,
		"title", item.Title,
		"frequency", item.Frequency,
		"next_due", dateString(item.NextDue.Time))

	return id, nil
}

// DeleteRecurringItem removes an item; its materialized entries stay.
func (r *SQLiteRepository) DeleteRecurringItem(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recurring_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete recurring item: %w", err)
	}
	return nil
}

// FindDue implements services.RecurrenceStore.
func (r *SQLiteRepository) FindDue(ctx context.Context, beforeOrEqual core.Date) ([]core.RecurringItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, title, amount_cents, frequency, next_due
		FROM recurring_items
		WHERE next_due <= ?
		ORDER BY next_due, id`,
		dateString(beforeOrEqual.Time))
	if err != nil {
		return nil, fmt.Errorf("find due recurring items: %w", err)
	}
	defer rows.Close()

	return scanRecurringItems(rows)
}

// FindDueOn implements services.RecurrenceStore.
func (r *SQLiteRepository) FindDueOn(ctx context.Context, date core.Date) ([]core.RecurringItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, title, amount_cents, frequency, next_due
		FROM recurring_items
		WHERE next_due = ?
		ORDER BY id`,
		dateString(date.Time))
	if err != nil {
		return nil, fmt.Errorf("find recurring items due on date: %w", err)
	}
	defer rows.Close()

	return scanRecurringItems(rows)
}

func scanRecurringItems(rows *sql.Rows) ([]core.RecurringItem, error) {
	var items []core.RecurringItem
	for rows.Next() {
		var (
			item    core.RecurringItem
			freq    string
			nextDue string
		)
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Amount.Cents, &freq, &nextDue); err != nil {
			return nil, fmt.Errorf("scan recurring item: %w", err)
		}
		item.Frequency = core.Frequency(freq)
		due, err := parseDate(nextDue)
		if err != nil {
			return nil, err
		}
		item.NextDue = due
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring items: %w", err)
	}
	return items, nil
}

// CreateEntry implements services.RecurrenceStore. For auto-generated entries
// the unique (source_item_id, cycle_date) index makes creation idempotent per
// cycle: a retry after a failed schedule advance finds the existing row and
// reports created=false instead of inserting a duplicate.
func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.LedgerEntry) (int64, bool, error) {
	if err := e.Validate(); err != nil {
		return 0, false, fmt.Errorf("validate ledger entry: %w", err)
	}

	if e.SourceItemID == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO ledger_entries (owner_id, title, amount_cents, category, entry_date, auto_generated)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.OwnerID, e.Title, e.Amount.Cents, e.Category, dateString(e.Date.Time), e.AutoGenerated)
		if err != nil {
			return 0, false, fmt.Errorf("create ledger entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("ledger entry id: %w", err)
		}
		return id, true, nil
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (owner_id, title, amount_cents, category, entry_date, auto_generated, source_item_id, cycle_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_item_id, cycle_date) WHERE source_item_id IS NOT NULL DO NOTHING
		RETURNING id`,
		e.OwnerID, e.Title, e.Amount.Cents, e.Category, dateString(e.Date.Time), e.AutoGenerated,
		e.SourceItemID, dateString(e.CycleDate.Time)).Scan(&id)
	if err == nil {
		slog.InfoContext(ctx, "Ledger entry materialized",
			"id", id,
			"source_item_id", e.SourceItemID,
			"cycle_date", dateString(e.CycleDate.Time),
			"amount_cents", e.Amount.Cents)
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("create ledger entry: %w", err)
	}

	// Conflict: the cycle was already materialized by an earlier run.
	err = r.db.QueryRowContext(ctx, `
		SELECT id FROM ledger_entries WHERE source_item_id = ? AND cycle_date = ?`,
		e.SourceItemID, dateString(e.CycleDate.Time)).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("find existing entry for cycle: %w", err)
	}
	return id, false, nil
}

// UpdateNextDue implements services.RecurrenceStore.
func (r *SQLiteRepository) UpdateNextDue(ctx context.Context, itemID int64, nextDue core.Date) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_items
		SET next_due = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		dateString(nextDue.Time), itemID)
	if err != nil {
		return fmt.Errorf("update next due: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update next due: recurring item %d not found", itemID)
	}
	return nil
}

// FindPeriod implements services.BudgetStore. A missing period is (nil, nil):
// no budget configured is not an error.
func (r *SQLiteRepository) FindPeriod(ctx context.Context, ownerID int64, category string, month, year int) (*core.BudgetPeriod, error) {
	var bp core.BudgetPeriod
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, category, limit_cents, month, year, alert_sent_80, alert_sent_100
		FROM budget_periods
		WHERE owner_id = ? AND category = ? AND month = ? AND year = ?`,
		ownerID, category, month, year).
		Scan(&bp.ID, &bp.OwnerID, &bp.Category, &bp.Limit.Cents, &bp.Month, &bp.Year, &bp.AlertSent80, &bp.AlertSent100)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find budget period: %w", err)
	}
	return &bp, nil
}

// SumSpend implements services.BudgetStore. Bounds are inclusive; entry dates
// are day-precision so the instants collapse to their calendar days.
func (r *SQLiteRepository) SumSpend(ctx context.Context, ownerID int64, category string, from, to time.Time) (core.Money, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE owner_id = ? AND category = ? AND entry_date BETWEEN ? AND ?`,
		ownerID, category, dateString(from), dateString(to)).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum period spend: %w", err)
	}
	return core.Money{Cents: total}, nil
}

// TrySetAlertFlag implements services.BudgetStore. The conditional UPDATE is
// the atomic set-if-unset primitive: the affected-row count tells the caller
// whether it won the flag.
func (r *SQLiteRepository) TrySetAlertFlag(ctx context.Context, periodID int64, flag services.AlertFlag) (bool, error) {
	var column string
	switch flag {
	case services.FlagWarning80:
		column = "alert_sent_80"
	case services.FlagExceeded100:
		column = "alert_sent_100"
	default:
		return false, fmt.Errorf("unknown alert flag: %s", flag)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE budget_periods
		SET `+column+` = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND `+column+` = 0`,
		periodID)
	if err != nil {
		return false, fmt.Errorf("set alert flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set alert flag rows affected: %w", err)
	}
	return n == 1, nil
}

// UpsertPeriod implements services.BudgetStore. The flag reset on a limit
// increase happens inside the upsert so no window exists where the new limit
// is visible with stale latches.
func (r *SQLiteRepository) UpsertPeriod(ctx context.Context, ownerID int64, category string, month, year int, limit core.Money) (*core.BudgetPeriod, error) {
	var bp core.BudgetPeriod
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO budget_periods (owner_id, category, limit_cents, month, year)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, category, month, year) DO UPDATE SET
			alert_sent_80  = CASE WHEN excluded.limit_cents > budget_periods.limit_cents THEN 0 ELSE alert_sent_80 END,
			alert_sent_100 = CASE WHEN excluded.limit_cents > budget_periods.limit_cents THEN 0 ELSE alert_sent_100 END,
			limit_cents    = excluded.limit_cents,
			updated_at     = CURRENT_TIMESTAMP
		RETURNING id, owner_id, category, limit_cents, month, year, alert_sent_80, alert_sent_100`,
		ownerID, category, limit.Cents, month, year).
		Scan(&bp.ID, &bp.OwnerID, &bp.Category, &bp.Limit.Cents, &bp.Month, &bp.Year, &bp.AlertSent80, &bp.AlertSent100)
	if err != nil {
		return nil, fmt.Errorf("upsert budget period: %w", err)
	}

	slog.InfoContext(ctx, "Budget period saved",
		"id", bp.ID,
		"owner_id", ownerID,
		"category", category,
		"month", month,
		"year", year,
		"limit_cents", limit.Cents)

	return &bp, nil
}
