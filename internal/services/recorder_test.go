package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cassa/internal/core"
	"cassa/internal/storage"
)

func newTestRecorder(t *testing.T) (*Recorder, *Query) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "cassa-recorder-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	repo, err := storage.NewSQLiteRepository(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	// nil AMQP client: events are skipped, recording still succeeds
	return NewRecorder(repo, nil), NewQuery(repo)
}

func TestRecorderFlow(t *testing.T) {
	recorder, query := newTestRecorder(t)
	ctx := context.Background()

	t.Run("closing computes and resets the till", func(t *testing.T) {
		res, err := recorder.RecordClosing(ctx, core.Closing{
			PersonName: "Morgan",
			Counts:     core.DenominationCounts{Bills20: 2, Loonies: 3},
			PhotoRef:   "photo-1.jpg",
		})
		if err != nil {
			t.Fatalf("RecordClosing failed: %v", err)
		}
		if res.Total.Cents != 4300 {
			t.Errorf("expected total 4300, got %d", res.Total.Cents)
		}
		if res.TransactionID == "" {
			t.Error("expected a transaction id")
		}

		tb, err := query.TillBalance(ctx)
		if err != nil {
			t.Fatalf("TillBalance failed: %v", err)
		}
		if tb.Total.Cents != 4300 {
			t.Errorf("expected till 4300, got %d", tb.Total.Cents)
		}
	})

	t.Run("withdrawal to unseen person", func(t *testing.T) {
		res, err := recorder.RecordWithdrawal(ctx, core.Withdrawal{
			Recipient: "Alex",
			Amount:    core.Money{Cents: 5000},
			Reason:    "supplier run",
			PhotoRef:  "photo-2.jpg",
		})
		if err != nil {
			t.Fatalf("RecordWithdrawal failed: %v", err)
		}
		if res.Person.Balance.Cents != 5000 {
			t.Errorf("expected Alex balance 5000, got %d", res.Person.Balance.Cents)
		}
		if res.Till.Total.Cents != -700 { // 4300 - 5000
			t.Errorf("expected till -700, got %d", res.Till.Total.Cents)
		}
		if !strings.Contains(res.Message, "Alex") {
			t.Errorf("message should name the recipient: %q", res.Message)
		}
	})

	t.Run("spending decreases balance and reports remainder", func(t *testing.T) {
		res, err := recorder.RecordSpending(ctx, core.Spending{
			PersonName:  "Alex",
			Amount:      core.Money{Cents: 2000},
			Description: "stamps",
			PhotoRef:    "photo-3.jpg",
		})
		if err != nil {
			t.Fatalf("RecordSpending failed: %v", err)
		}
		if res.Person.Balance.Cents != 3000 {
			t.Errorf("expected balance 3000, got %d", res.Person.Balance.Cents)
		}
	})

	t.Run("spending defaults the category", func(t *testing.T) {
		res, err := recorder.RecordSpending(ctx, core.Spending{
			PersonName:  "Alex",
			Amount:      core.Money{Cents: 500},
			Description: "coffee for the crew",
			PhotoRef:    "photo-4.jpg",
		})
		if err != nil {
			t.Fatalf("RecordSpending failed: %v", err)
		}

		txns, err := query.RecentTransactions(ctx, 1)
		if err != nil {
			t.Fatalf("RecentTransactions failed: %v", err)
		}
		if len(txns) != 1 || txns[0].TransactionID != res.TransactionID {
			t.Fatalf("expected the spending to be the newest transaction")
		}
		if txns[0].Category != core.DefaultCategory {
			t.Errorf("expected category %q, got %q", core.DefaultCategory, txns[0].Category)
		}
	})

	t.Run("overspend is rejected without side effects", func(t *testing.T) {
		before, err := query.PersonBalances(ctx)
		if err != nil {
			t.Fatalf("PersonBalances failed: %v", err)
		}

		_, err = recorder.RecordSpending(ctx, core.Spending{
			PersonName:  "Alex",
			Amount:      core.Money{Cents: 4000}, // balance is 2500
			Description: "too much",
			PhotoRef:    "photo-5.jpg",
		})
		var ife *core.InsufficientFundsError
		if !errors.As(err, &ife) {
			t.Fatalf("expected InsufficientFundsError, got %v", err)
		}
		if ife.Available.Cents != 2500 {
			t.Errorf("expected available 2500, got %d", ife.Available.Cents)
		}

		after, err := query.PersonBalances(ctx)
		if err != nil {
			t.Fatalf("PersonBalances failed: %v", err)
		}
		if len(before) != len(after) {
			t.Fatalf("person list changed on rejected spend")
		}
		for i := range before {
			if before[i].Balance != after[i].Balance {
				t.Errorf("balance of %s changed on rejected spend", before[i].Name)
			}
		}
	})

	t.Run("spending for unknown person", func(t *testing.T) {
		_, err := recorder.RecordSpending(ctx, core.Spending{
			PersonName:  "Sam",
			Amount:      core.Money{Cents: 100},
			Description: "never withdrew anything",
			PhotoRef:    "photo-6.jpg",
		})
		if !errors.Is(err, core.ErrPersonNotFound) {
			t.Fatalf("expected ErrPersonNotFound, got %v", err)
		}
	})

	t.Run("validation rejections persist nothing", func(t *testing.T) {
		txnsBefore, err := query.RecentTransactions(ctx, 100)
		if err != nil {
			t.Fatalf("RecentTransactions failed: %v", err)
		}

		if _, err := recorder.RecordClosing(ctx, core.Closing{
			PersonName: "Morgan",
			Counts:     core.DenominationCounts{Bills10: -2},
			PhotoRef:   "photo-7.jpg",
		}); err == nil {
			t.Error("negative counts accepted")
		}
		if _, err := recorder.RecordWithdrawal(ctx, core.Withdrawal{
			Recipient: "Alex",
			Amount:    core.Money{Cents: 1000},
			PhotoRef:  "photo-8.jpg",
			// missing reason
		}); err == nil {
			t.Error("withdrawal without reason accepted")
		}
		if _, err := recorder.RecordSpending(ctx, core.Spending{
			PersonName: "Alex",
			Amount:     core.Money{Cents: 1000},
			// missing description and photo
		}); err == nil {
			t.Error("spending without description accepted")
		}

		txnsAfter, err := query.RecentTransactions(ctx, 100)
		if err != nil {
			t.Fatalf("RecentTransactions failed: %v", err)
		}
		if len(txnsBefore) != len(txnsAfter) {
			t.Errorf("rejected submissions persisted transactions: %d -> %d",
				len(txnsBefore), len(txnsAfter))
		}
	})

	t.Run("reconcile after the full flow", func(t *testing.T) {
		report, err := recorder.Reconcile(ctx, false)
		if err != nil {
			t.Fatalf("Reconcile failed: %v", err)
		}
		if report.Drift.Cents != 0 {
			t.Errorf("unexpected drift %d", report.Drift.Cents)
		}
	})
}

func TestQueryDefaults(t *testing.T) {
	_, query := newTestRecorder(t)
	ctx := context.Background()

	t.Run("till balance reads are idempotent", func(t *testing.T) {
		first, err := query.TillBalance(ctx)
		if err != nil {
			t.Fatalf("TillBalance failed: %v", err)
		}
		second, err := query.TillBalance(ctx)
		if err != nil {
			t.Fatalf("TillBalance failed: %v", err)
		}
		if first != second {
			t.Errorf("repeated reads differ: %+v vs %+v", first, second)
		}
	})

	t.Run("empty ledger lists are empty", func(t *testing.T) {
		persons, err := query.PersonBalances(ctx)
		if err != nil {
			t.Fatalf("PersonBalances failed: %v", err)
		}
		if len(persons) != 0 {
			t.Errorf("expected no persons, got %d", len(persons))
		}

		txns, err := query.RecentTransactions(ctx, 0) // falls back to default limit
		if err != nil {
			t.Fatalf("RecentTransactions failed: %v", err)
		}
		if len(txns) != 0 {
			t.Errorf("expected no transactions, got %d", len(txns))
		}
	})
}
