package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event types.
const (
	EventExpenseCreated  = "expense.created"
	EventExpenseUpdated  = "expense.updated"
	EventExpenseDeleted  = "expense.deleted"
	EventCategoryCreated = "category.created"
	EventCategoryDeleted = "category.deleted"
)

// LedgerEvent announces a committed ledger change. Months lists the
// YYYY-MM months whose summaries the change affects; it is empty for
// category changes, which affect every month of the owner.
type LedgerEvent struct {
	Type       string    `json:"type"`
	Origin     string    `json:"origin"`
	OwnerID    int64     `json:"owner_id"`
	ExpenseID  int64     `json:"expense_id,omitempty"`
	CategoryID int64     `json:"category_id,omitempty"`
	Months     []string  `json:"months,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewLedgerEvent stamps an event with the current time.
func NewLedgerEvent(eventType string, ownerID int64) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		OwnerID:   ownerID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes a message body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
