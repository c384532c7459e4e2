package notify

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/services"
)

// AMQPNotifier publishes alert payloads to the message broker. Delivery to
// the user happens asynchronously in the alert worker.
type AMQPNotifier struct {
	client *amqp.Client
}

func NewAMQPNotifier(client *amqp.Client) *AMQPNotifier {
	return &AMQPNotifier{client: client}
}

var _ services.Notifier = (*AMQPNotifier)(nil)

func (n *AMQPNotifier) SendThresholdAlert(ctx context.Context, alert services.ThresholdAlert) error {
	msg := amqp.NewThresholdAlertMessage(
		alert.OwnerID,
		alert.Category,
		alert.Month,
		alert.Year,
		alert.Limit.Cents,
		alert.Spent.Cents,
		alert.Percentage,
		string(alert.Kind),
	)
	if err := n.client.PublishThresholdAlert(ctx, msg); err != nil {
		return fmt.Errorf("publish threshold alert: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) SendRecurringDueSoon(ctx context.Context, reminder services.DueSoonReminder) error {
	msg := amqp.NewDueSoonMessage(
		reminder.OwnerID,
		reminder.Title,
		reminder.Amount.Cents,
		reminder.DueDate.Format("2006-01-02"),
	)
	if err := n.client.PublishDueSoon(ctx, msg); err != nil {
		return fmt.Errorf("publish due-soon reminder: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the structured log instead of the broker.
// Used when AMQP is not configured, so the engine still runs standalone.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

var _ services.Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) SendThresholdAlert(ctx context.Context, alert services.ThresholdAlert) error {
	slog.WarnContext(ctx, "Budget threshold crossed (AMQP not configured, logging only)",
		"owner_id", alert.OwnerID,
		"category", alert.Category,
		"month", alert.Month,
		"year", alert.Year,
		"limit_cents", alert.Limit.Cents,
		"spent_cents", alert.Spent.Cents,
		"percentage", fmt.Sprintf("%.1f", alert.Percentage),
		"kind", alert.Kind)
	return nil
}

func (n *LogNotifier) SendRecurringDueSoon(ctx context.Context, reminder services.DueSoonReminder) error {
	slog.InfoContext(ctx, "Recurring item due soon (AMQP not configured, logging only)",
		"owner_id", reminder.OwnerID,
		"title", reminder.Title,
		"amount_cents", reminder.Amount.Cents,
		"due_date", reminder.DueDate.Format("2006-01-02"))
	return nil
}
