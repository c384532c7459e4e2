package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bilancio/internal/amqp"
)

type fakeSender struct {
	sent []sentEmail
	err  error
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func TestAlertWorker_HandleThresholdAlert(t *testing.T) {
	tests := []struct {
		name        string
		kind        string
		percentage  float64
		wantSubject string
		wantInBody  []string
	}{
		{
			name:        "warning alert",
			kind:        "warning",
			percentage:  85,
			wantSubject: "Budget warning: Groceries (1/2024)",
			wantInBody:  []string{"85%", "850.00 EUR", "1000.00 EUR"},
		},
		{
			name:        "exceeded alert",
			kind:        "exceeded",
			percentage:  120,
			wantSubject: "Budget exceeded: Groceries (1/2024)",
			wantInBody:  []string{"120%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			w := NewAlertWorker(sender, "user@example.com")

			msg := amqp.NewThresholdAlertMessage(1, "Groceries", 1, 2024, 100000, int64(tt.percentage*1000), tt.percentage, tt.kind)
			if err := w.HandleThresholdAlert(context.Background(), msg); err != nil {
				t.Fatalf("HandleThresholdAlert() error = %v", err)
			}

			if len(sender.sent) != 1 {
				t.Fatalf("sent %d emails, want 1", len(sender.sent))
			}
			email := sender.sent[0]
			if email.to != "user@example.com" {
				t.Errorf("to = %q, want user@example.com", email.to)
			}
			if email.subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", email.subject, tt.wantSubject)
			}
			for _, want := range tt.wantInBody {
				if !strings.Contains(email.body, want) {
					t.Errorf("body missing %q, got:\n%s", want, email.body)
				}
			}
		})
	}
}

func TestAlertWorker_HandleDueSoon(t *testing.T) {
	sender := &fakeSender{}
	w := NewAlertWorker(sender, "user@example.com")

	msg := amqp.NewDueSoonMessage(1, "Rent", 120000, "2024-02-01")
	if err := w.HandleDueSoon(context.Background(), msg); err != nil {
		t.Fatalf("HandleDueSoon() error = %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	email := sender.sent[0]
	if email.subject != "Upcoming recurring expense: Rent" {
		t.Errorf("subject = %q", email.subject)
	}
	for _, want := range []string{"Rent", "1200.00 EUR", "2024-02-01"} {
		if !strings.Contains(email.body, want) {
			t.Errorf("body missing %q, got:\n%s", want, email.body)
		}
	}
}

func TestAlertWorker_SendFailurePropagates(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	w := NewAlertWorker(sender, "user@example.com")

	msg := amqp.NewThresholdAlertMessage(1, "Groceries", 1, 2024, 100000, 120000, 120, "exceeded")
	if err := w.HandleThresholdAlert(context.Background(), msg); err == nil {
		t.Error("HandleThresholdAlert() should propagate sender error for requeue")
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents    int64
		expected string
	}{
		{0, "0.00 EUR"},
		{5, "0.05 EUR"},
		{120000, "1200.00 EUR"},
		{99999, "999.99 EUR"},
		{-2550, "-25.50 EUR"},
	}

	for _, tt := range tests {
		if got := formatCents(tt.cents); got != tt.expected {
			t.Errorf("formatCents(%d) = %q, want %q", tt.cents, got, tt.expected)
		}
	}
}
