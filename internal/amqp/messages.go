package amqp

import (
	"encoding/json"
	"time"

	"budgetwise/internal/core"
)

// ExpenseCategorizedMessage announces a record appended to the expense log.
type ExpenseCategorizedMessage struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Amount      float64       `json:"amount"`
	Category    core.Category `json:"category"`
	Confidence  float64       `json:"confidence"`
	Method      string        `json:"method"`
	Timestamp   time.Time     `json:"timestamp"`
	PublishedAt time.Time     `json:"published_at"`
}

func NewExpenseCategorizedMessage(rec core.ExpenseRecord, publishedAt time.Time) *ExpenseCategorizedMessage {
	return &ExpenseCategorizedMessage{
		ID:          rec.ID,
		Description: rec.Description,
		Amount:      rec.Amount,
		Category:    rec.Category,
		Confidence:  rec.Confidence,
		Method:      rec.Method,
		Timestamp:   rec.Timestamp,
		PublishedAt: publishedAt,
	}
}

func (m *ExpenseCategorizedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseCategorizedMessageFromJSON(data []byte) (*ExpenseCategorizedMessage, error) {
	var msg ExpenseCategorizedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
