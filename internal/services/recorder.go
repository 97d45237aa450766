// Package services orchestrates the ledger: the Recorder runs the
// validate-then-apply pipeline for each transaction kind, the Query service
// serves read-only views.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/storage"
)

// Recorder validates transaction submissions and applies them atomically
// against the ledger store. All validation happens before any mutation; a
// rejected submission persists nothing.
type Recorder struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewRecorder(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *Recorder {
	return &Recorder{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// RecordedClosing is the result of a successful closing submission.
type RecordedClosing struct {
	TransactionID string
	Total         core.Money
	Till          core.TillBalance
}

// RecordedWithdrawal is the result of a successful withdrawal submission.
type RecordedWithdrawal struct {
	TransactionID string
	Person        core.Person
	Till          core.TillBalance
	Message       string
}

// RecordedSpending is the result of a successful spending submission.
type RecordedSpending struct {
	TransactionID string
	Person        core.Person
	Message       string
}

// RecordClosing computes the counted total and replaces the till balance
// with it. A closing is authoritative: the physical recount overrides the
// bookkeeping, whatever the previous total was.
func (s *Recorder) RecordClosing(ctx context.Context, c core.Closing) (RecordedClosing, error) {
	if err := c.Validate(); err != nil {
		return RecordedClosing{}, err
	}

	total := c.Counts.Total()
	transactionID := uuid.New().String()

	till, err := s.storage.AppendClosing(ctx, storage.ClosingRecord{
		TransactionID: transactionID,
		PersonName:    strings.TrimSpace(c.PersonName),
		Counts:        c.Counts,
		Total:         total,
		PhotoRef:      c.PhotoRef,
	})
	if err != nil {
		return RecordedClosing{}, fmt.Errorf("record closing: %w", err)
	}

	s.publishEvent(ctx, transactionID, core.KindClosing, total)

	return RecordedClosing{TransactionID: transactionID, Total: total, Till: till}, nil
}

// RecordWithdrawal moves cash from the till into a person's custody,
// creating the person on first sight. The till is allowed to go negative
// here; see the reconciler for the drift watchdog.
func (s *Recorder) RecordWithdrawal(ctx context.Context, w core.Withdrawal) (RecordedWithdrawal, error) {
	if err := w.Validate(); err != nil {
		return RecordedWithdrawal{}, err
	}

	transactionID := uuid.New().String()

	person, till, err := s.storage.AppendWithdrawal(ctx, storage.WithdrawalRecord{
		TransactionID: transactionID,
		Recipient:     strings.TrimSpace(w.Recipient),
		Amount:        w.Amount,
		Reason:        w.Reason,
		PhotoRef:      w.PhotoRef,
	})
	if err != nil {
		return RecordedWithdrawal{}, fmt.Errorf("record withdrawal: %w", err)
	}

	s.publishEvent(ctx, transactionID, core.KindWithdrawal, w.Amount)

	return RecordedWithdrawal{
		TransactionID: transactionID,
		Person:        person,
		Till:          till,
		Message:       fmt.Sprintf("%s now has %s additional cash", person.Name, w.Amount),
	}, nil
}

// RecordSpending consumes previously withdrawn cash. The person must exist
// and hold at least the spent amount; the till is untouched.
func (s *Recorder) RecordSpending(ctx context.Context, sp core.Spending) (RecordedSpending, error) {
	if err := sp.Validate(); err != nil {
		return RecordedSpending{}, err
	}

	category := strings.TrimSpace(sp.Category)
	if category == "" {
		category = core.DefaultCategory
	}

	transactionID := uuid.New().String()

	person, err := s.storage.AppendSpending(ctx, storage.SpendingRecord{
		TransactionID: transactionID,
		PersonName:    strings.TrimSpace(sp.PersonName),
		Amount:        sp.Amount,
		Description:   sp.Description,
		Category:      category,
		PhotoRef:      sp.PhotoRef,
	})
	if err != nil {
		// Pass domain rejections through untouched so callers can match them.
		return RecordedSpending{}, err
	}

	s.publishEvent(ctx, transactionID, core.KindSpending, sp.Amount)

	return RecordedSpending{
		TransactionID: transactionID,
		Person:        person,
		Message: fmt.Sprintf("Recorded %s spending for %s. Remaining balance: %s",
			sp.Amount, person.Name, person.Balance),
	}, nil
}

// Reconcile recomputes the till from the transaction log and optionally
// repairs the running aggregate.
func (s *Recorder) Reconcile(ctx context.Context, repair bool) (storage.ReconcileReport, error) {
	return s.storage.ReconcileTill(ctx, repair)
}

func (s *Recorder) publishEvent(ctx context.Context, transactionID string, kind core.Kind, amount core.Money) {
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping transaction event")
		return
	}
	if err := s.amqpClient.PublishTransactionRecorded(ctx, transactionID, string(kind), amount.Cents); err != nil {
		// The ledger write already committed; a lost audit event is not a
		// reason to fail the request. The worker's periodic reconcile covers
		// the gap.
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"transaction_id", transactionID, "error", err)
	}
}

// Close releases storage and AMQP resources.
func (s *Recorder) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close recorder: %v", errs)
	}

	return nil
}
