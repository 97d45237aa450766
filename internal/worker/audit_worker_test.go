package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/storage"
)

func newTestWorker(t *testing.T, repair bool) (*AuditWorker, *storage.SQLiteRepository) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "cassa-worker-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	repo, err := storage.NewSQLiteRepository(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewAuditWorker(repo, repair), repo
}

func TestHandleTransactionEvent(t *testing.T) {
	w, repo := newTestWorker(t, false)
	ctx := context.Background()

	_, _, err := repo.AppendWithdrawal(ctx, storage.WithdrawalRecord{
		TransactionID: "txn-1",
		Recipient:     "Alex",
		Amount:        core.Money{Cents: 5000},
		Reason:        "supplier run",
		PhotoRef:      "photo-1.jpg",
	})
	if err != nil {
		t.Fatalf("AppendWithdrawal failed: %v", err)
	}

	t.Run("confirms a matching event", func(t *testing.T) {
		msg := amqp.NewTransactionRecordedMessage("txn-1", "withdrawal", 5000)
		if err := w.HandleTransactionEvent(ctx, msg); err != nil {
			t.Errorf("HandleTransactionEvent failed: %v", err)
		}
	})

	t.Run("drops an event for an unknown transaction", func(t *testing.T) {
		msg := amqp.NewTransactionRecordedMessage("txn-missing", "withdrawal", 5000)
		if err := w.HandleTransactionEvent(ctx, msg); err != nil {
			t.Errorf("unknown transaction should be dropped, not requeued: %v", err)
		}
	})

	t.Run("tolerates a mismatched event", func(t *testing.T) {
		msg := amqp.NewTransactionRecordedMessage("txn-1", "spending", 999)
		if err := w.HandleTransactionEvent(ctx, msg); err != nil {
			t.Errorf("mismatch should be logged, not requeued: %v", err)
		}
	})
}

func TestReconcileOnce(t *testing.T) {
	w, repo := newTestWorker(t, true)
	ctx := context.Background()

	if _, err := repo.AppendClosing(ctx, storage.ClosingRecord{
		TransactionID: "txn-closing",
		PersonName:    "Morgan",
		Counts:        core.DenominationCounts{Bills100: 1},
		Total:         core.Money{Cents: 10000},
		PhotoRef:      "photo-1.jpg",
	}); err != nil {
		t.Fatalf("AppendClosing failed: %v", err)
	}

	if err := w.ReconcileOnce(ctx); err != nil {
		t.Fatalf("ReconcileOnce failed: %v", err)
	}

	// A clean ledger must survive a repair-enabled pass untouched.
	tb, err := repo.GetTillBalance(ctx)
	if err != nil {
		t.Fatalf("GetTillBalance failed: %v", err)
	}
	if tb.Total.Cents != 10000 {
		t.Errorf("expected till 10000 after reconcile, got %d", tb.Total.Cents)
	}
}
