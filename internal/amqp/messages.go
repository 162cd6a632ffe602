package amqp

import (
	"encoding/json"
	"time"

	"github.com/tmaly1980/banked/internal/core"
)

const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
	OpPaid    = "paid"
)

// RecordChangedMessage announces that an actual record was mutated.
// Consumers only need enough to know which aggregator to refresh; the
// merged list is always recomputed from the store, never patched from
// the message.
type RecordChangedMessage struct {
	Kind      core.EventKind `json:"kind"`
	RecordID  string         `json:"record_id"`
	Op        string         `json:"op"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewRecordChangedMessage(kind core.EventKind, recordID, op string) *RecordChangedMessage {
	return &RecordChangedMessage{
		Kind:      kind,
		RecordID:  recordID,
		Op:        op,
		Timestamp: time.Now(),
	}
}

func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
