package amqp

import (
	"testing"
	"time"
)

func TestTransactionRecordedMessageJSON(t *testing.T) {
	msg := &TransactionRecordedMessage{
		TransactionID: "6f1c2ad8-0000-4000-8000-000000000001",
		Kind:          "withdrawal",
		AmountCents:   5000,
		Timestamp:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := TransactionRecordedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("TransactionRecordedMessageFromJSON() error = %v", err)
	}

	if parsed.TransactionID != msg.TransactionID {
		t.Errorf("TransactionID = %v, want %v", parsed.TransactionID, msg.TransactionID)
	}
	if parsed.Kind != msg.Kind {
		t.Errorf("Kind = %v, want %v", parsed.Kind, msg.Kind)
	}
	if parsed.AmountCents != msg.AmountCents {
		t.Errorf("AmountCents = %v, want %v", parsed.AmountCents, msg.AmountCents)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestNewTransactionRecordedMessage(t *testing.T) {
	msg := NewTransactionRecordedMessage("abc", "closing", 4300)

	if msg.TransactionID != "abc" || msg.Kind != "closing" || msg.AmountCents != 4300 {
		t.Errorf("unexpected message fields: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestTransactionRecordedMessageInvalidJSON(t *testing.T) {
	if _, err := TransactionRecordedMessageFromJSON([]byte(`{"amount_cents": "nope"}`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
