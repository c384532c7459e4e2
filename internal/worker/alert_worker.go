package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/mail"
)

// AlertWorker turns broker messages into user-facing emails. It is the only
// component that talks to the mail provider, so a slow or failing delivery
// never blocks the engine.
type AlertWorker struct {
	sender mail.Sender
	to     string
}

func NewAlertWorker(sender mail.Sender, to string) *AlertWorker {
	return &AlertWorker{
		sender: sender,
		to:     to,
	}
}

// HandleThresholdAlert processes a single budget threshold message from AMQP.
func (w *AlertWorker) HandleThresholdAlert(ctx context.Context, msg *amqp.ThresholdAlertMessage) error {
	slog.InfoContext(ctx, "Processing threshold alert message",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"category", msg.Category)

	subject, body := formatThresholdEmail(msg)

	if err := w.sender.Send(ctx, w.to, subject, body); err != nil {
		return fmt.Errorf("send threshold alert email: %w", err)
	}

	return nil
}

// HandleDueSoon processes a single near-due reminder message from AMQP.
func (w *AlertWorker) HandleDueSoon(ctx context.Context, msg *amqp.DueSoonMessage) error {
	slog.InfoContext(ctx, "Processing due-soon message",
		"message_id", msg.ID,
		"title", msg.Title,
		"due_date", msg.DueDate)

	subject, body := formatDueSoonEmail(msg)

	if err := w.sender.Send(ctx, w.to, subject, body); err != nil {
		return fmt.Errorf("send due-soon email: %w", err)
	}

	return nil
}

func formatThresholdEmail(msg *amqp.ThresholdAlertMessage) (subject, body string) {
	switch msg.Kind {
	case "exceeded":
		subject = fmt.Sprintf("Budget exceeded: %s (%d/%d)", msg.Category, msg.Month, msg.Year)
	default:
		subject = fmt.Sprintf("Budget warning: %s (%d/%d)", msg.Category, msg.Month, msg.Year)
	}

	body = fmt.Sprintf(
		"Your %s budget for %02d/%d is at %.0f%%.\n\nSpent: %s\nLimit: %s\n",
		msg.Category, msg.Month, msg.Year, msg.Percentage,
		formatCents(msg.SpentCents), formatCents(msg.LimitCents))

	return subject, body
}

func formatDueSoonEmail(msg *amqp.DueSoonMessage) (subject, body string) {
	subject = fmt.Sprintf("Upcoming recurring expense: %s", msg.Title)
	body = fmt.Sprintf(
		"The recurring item %q for %s is due on %s.\n",
		msg.Title, formatCents(msg.AmountCents), msg.DueDate)
	return subject, body
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d EUR", sign, cents/100, cents%100)
}
