package amqp

import (
	"encoding/json"
	"time"
)

// TransactionRecordedMessage announces a committed ledger transaction to the
// audit worker. It carries only the public identifier and the figures needed
// for cheap drift checks; the worker fetches the full record from storage.
type TransactionRecordedMessage struct {
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	AmountCents   int64     `json:"amount_cents"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionRecordedMessage builds a message for a freshly committed
// transaction.
func NewTransactionRecordedMessage(transactionID, kind string, amountCents int64) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		TransactionID: transactionID,
		Kind:          kind,
		AmountCents:   amountCents,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionRecordedMessageFromJSON parses a message from JSON bytes.
func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
