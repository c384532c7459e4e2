package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message types carried in the AMQP Type header, used by consumers to route
// deliveries to the right handler.
const (
	TypeThresholdAlert = "threshold_alert"
	TypeDueSoon        = "due_soon"
)

// ThresholdAlertMessage is the wire form of a budget threshold alert. The ID
// lets downstream consumers deduplicate redeliveries.
type ThresholdAlertMessage struct {
	ID         string    `json:"id"`
	OwnerID    int64     `json:"owner_id"`
	Category   string    `json:"category"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
	LimitCents int64     `json:"limit_cents"`
	SpentCents int64     `json:"spent_cents"`
	Percentage float64   `json:"percentage"`
	Kind       string    `json:"kind"` // "warning" | "exceeded"
	Timestamp  time.Time `json:"timestamp"`
}

// DueSoonMessage is the wire form of a near-due recurring item reminder.
type DueSoonMessage struct {
	ID          string    `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Title       string    `json:"title"`
	AmountCents int64     `json:"amount_cents"`
	DueDate     string    `json:"due_date"` // ISO date
	Timestamp   time.Time `json:"timestamp"`
}

// NewThresholdAlertMessage stamps a fresh message ID and timestamp.
func NewThresholdAlertMessage(ownerID int64, category string, month, year int, limitCents, spentCents int64, percentage float64, kind string) *ThresholdAlertMessage {
	return &ThresholdAlertMessage{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Category:   category,
		Month:      month,
		Year:       year,
		LimitCents: limitCents,
		SpentCents: spentCents,
		Percentage: percentage,
		Kind:       kind,
		Timestamp:  time.Now().UTC(),
	}
}

// NewDueSoonMessage stamps a fresh message ID and timestamp.
func NewDueSoonMessage(ownerID int64, title string, amountCents int64, dueDate string) *DueSoonMessage {
	return &DueSoonMessage{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		AmountCents: amountCents,
		DueDate:     dueDate,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *ThresholdAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ThresholdAlertMessageFromJSON(data []byte) (*ThresholdAlertMessage, error) {
	var msg ThresholdAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *DueSoonMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DueSoonMessageFromJSON(data []byte) (*DueSoonMessage, error) {
	var msg DueSoonMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
