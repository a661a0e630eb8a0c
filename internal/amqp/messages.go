package amqp

import (
	"encoding/json"
	"time"
)

// Message actions understood by the export worker.
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// ExportMessage asks the export worker to push one expense to the
// spreadsheet. It carries only the ID and the action; the worker
// fetches the current row from storage, so a stale message after an
// edit still exports the latest state.
type ExportMessage struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExportMessage creates an export message for an expense ID.
func NewExportMessage(id, action string) *ExportMessage {
	return &ExportMessage{
		ID:        id,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *ExportMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportMessageFromJSON creates a message from JSON bytes.
func ExportMessageFromJSON(data []byte) (*ExportMessage, error) {
	var msg ExportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
