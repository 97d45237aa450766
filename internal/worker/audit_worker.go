// Package worker runs the out-of-band audit loop: it confirms that every
// published transaction event refers to a committed ledger row, and it
// periodically replays the log against the running till aggregate.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/storage"
)

// AuditWorker verifies transaction events against the ledger and keeps the
// till aggregate honest.
type AuditWorker struct {
	storage *storage.SQLiteRepository
	repair  bool
}

func NewAuditWorker(storage *storage.SQLiteRepository, repair bool) *AuditWorker {
	return &AuditWorker{
		storage: storage,
		repair:  repair,
	}
}

// HandleTransactionEvent processes a single audit event from AMQP. The event
// is confirmed by reading the transaction back from the ledger; a missing row
// means the publisher and the store disagree, which is worth an error even
// though the event itself is then dropped.
func (w *AuditWorker) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"transaction_id", msg.TransactionID,
		"kind", msg.Kind)

	txn, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrTransactionNotFound) {
			slog.ErrorContext(ctx, "Audit event refers to unknown transaction",
				"transaction_id", msg.TransactionID,
				"kind", msg.Kind)
			return nil
		}
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if string(txn.Kind) != msg.Kind || txn.Amount.Cents != msg.AmountCents {
		slog.WarnContext(ctx, "Audit event disagrees with ledger row",
			"transaction_id", msg.TransactionID,
			"event_kind", msg.Kind,
			"ledger_kind", txn.Kind,
			"event_cents", msg.AmountCents,
			"ledger_cents", txn.Amount.Cents)
		return nil
	}

	slog.InfoContext(ctx, "Transaction event confirmed",
		"transaction_id", msg.TransactionID,
		"kind", txn.Kind,
		"amount_cents", txn.Amount.Cents)

	return nil
}

// ReconcileOnce replays the transaction log and compares it to the stored
// till aggregate, repairing the aggregate when the worker is configured to.
func (w *AuditWorker) ReconcileOnce(ctx context.Context) error {
	report, err := w.storage.ReconcileTill(ctx, w.repair)
	if err != nil {
		return fmt.Errorf("reconcile till: %w", err)
	}

	if report.Drift == (core.Money{}) {
		slog.DebugContext(ctx, "Till reconciled, no drift",
			"total_cents", report.Stored.Cents,
			"transactions", report.Transactions)
	}

	return nil
}

// RunPeriodicReconcile reconciles on the given interval until the context is
// cancelled. It runs one pass immediately on startup to recover from missed
// events or worker downtime.
func (w *AuditWorker) RunPeriodicReconcile(ctx context.Context, interval time.Duration) error {
	if err := w.ReconcileOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup reconcile failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ReconcileOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic reconcile failed", "error", err)
			}
		}
	}
}
