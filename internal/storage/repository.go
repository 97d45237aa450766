// Package storage implements the durable ledger store on SQLite.
//
// Every recorder operation (append transaction + balance adjustments) runs
// inside a single database transaction: either all effects commit or none
// are visible. Balances are running aggregates maintained alongside the
// append-only transaction log; ReconcileTill recomputes the till from the
// log to detect drift between the two.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cassa/internal/core"

	_ "modernc.org/sqlite"
)

// ErrTransactionNotFound is returned when a transaction id has no ledger row.
var ErrTransactionNotFound = errors.New("transaction not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ClosingRecord is a validated closing ready to be persisted.
type ClosingRecord struct {
	TransactionID string
	PersonName    string
	Counts        core.DenominationCounts
	Total         core.Money
	PhotoRef      string
}

// WithdrawalRecord is a validated withdrawal ready to be persisted.
type WithdrawalRecord struct {
	TransactionID string
	Recipient     string
	Amount        core.Money
	Reason        string
	PhotoRef      string
}

// SpendingRecord is a validated spending ready to be persisted.
type SpendingRecord struct {
	TransactionID string
	PersonName    string
	Amount        core.Money
	Description   string
	Category      string
	PhotoRef      string
}

// ReconcileReport compares the till singleton against a replay of the
// transaction log.
type ReconcileReport struct {
	Stored       core.Money
	Computed     core.Money
	Drift        core.Money // Stored - Computed
	Transactions int
	Repaired     bool
}

// AppendClosing persists a closing transaction and replaces the till total
// with the counted amount. A closing is a physical recount: it resets the
// till, it does not add to it. The counting person is linked if already
// known; closings never create persons.
func (r *SQLiteRepository) AppendClosing(ctx context.Context, rec ClosingRecord) (core.TillBalance, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.TillBalance{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var personID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT id FROM persons WHERE name = ?`, rec.PersonName).Scan(&personID.Int64)
	if err == nil {
		personID.Valid = true
	} else if err != sql.ErrNoRows {
		return core.TillBalance{}, fmt.Errorf("find person: %w", err)
	}

	c := rec.Counts
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_id, kind, person_id, photo_ref, amount_cents, recipient_name,
			bills_100, bills_50, bills_20, bills_10, bills_5,
			coins_toonies, coins_loonies, coins_quarters, coins_dimes, coins_nickels, coins_pennies,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TransactionID, core.KindClosing, personID, rec.PhotoRef, rec.Total.Cents, rec.PersonName,
		c.Bills100, c.Bills50, c.Bills20, c.Bills10, c.Bills5,
		c.Toonies, c.Loonies, c.Quarters, c.Dimes, c.Nickels, c.Pennies,
		now)
	if err != nil {
		return core.TillBalance{}, mapInsertError(err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE till_balance SET total_cents = ?, updated_at = ?, updated_by = ? WHERE id = 1`,
		rec.Total.Cents, now, personID)
	if err != nil {
		return core.TillBalance{}, fmt.Errorf("replace till balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.TillBalance{}, fmt.Errorf("commit closing: %w", err)
	}

	slog.InfoContext(ctx, "Closing recorded",
		"transaction_id", rec.TransactionID,
		"person", rec.PersonName,
		"total_cents", rec.Total.Cents)

	return core.TillBalance{Total: rec.Total, UpdatedAt: now, UpdatedBy: rec.PersonName}, nil
}

// AppendWithdrawal persists a withdrawal, increasing the recipient's balance
// and decreasing the till by the same amount. The recipient is created on
// first sight. The till has no floor check: it can go negative, matching
// the reference behavior (an IOU against the drawer).
func (r *SQLiteRepository) AppendWithdrawal(ctx context.Context, rec WithdrawalRecord) (core.Person, core.TillBalance, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Person{}, core.TillBalance{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	personID, err := getOrCreatePerson(ctx, tx, rec.Recipient, now)
	if err != nil {
		return core.Person{}, core.TillBalance{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_id, kind, person_id, photo_ref, amount_cents,
			recipient_name, withdrawal_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TransactionID, core.KindWithdrawal, personID, rec.PhotoRef, rec.Amount.Cents,
		rec.Recipient, rec.Reason, now)
	if err != nil {
		return core.Person{}, core.TillBalance{}, mapInsertError(err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE persons SET balance_cents = balance_cents + ?, updated_at = ? WHERE id = ?`,
		rec.Amount.Cents, now, personID)
	if err != nil {
		return core.Person{}, core.TillBalance{}, fmt.Errorf("adjust person balance: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE till_balance SET total_cents = total_cents - ?, updated_at = ?, updated_by = ? WHERE id = 1`,
		rec.Amount.Cents, now, personID)
	if err != nil {
		return core.Person{}, core.TillBalance{}, fmt.Errorf("adjust till balance: %w", err)
	}

	person, err := scanPersonTx(ctx, tx, personID)
	if err != nil {
		return core.Person{}, core.TillBalance{}, err
	}

	var tillCents int64
	if err := tx.QueryRowContext(ctx, `SELECT total_cents FROM till_balance WHERE id = 1`).Scan(&tillCents); err != nil {
		return core.Person{}, core.TillBalance{}, fmt.Errorf("read till balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Person{}, core.TillBalance{}, fmt.Errorf("commit withdrawal: %w", err)
	}

	slog.InfoContext(ctx, "Withdrawal recorded",
		"transaction_id", rec.TransactionID,
		"recipient", rec.Recipient,
		"amount_cents", rec.Amount.Cents,
		"till_cents", tillCents)

	return person, core.TillBalance{Total: core.Money{Cents: tillCents}, UpdatedAt: now, UpdatedBy: rec.Recipient}, nil
}

// AppendSpending persists a spending against an existing person's balance.
// The till is untouched: that cash already left the drawer at withdrawal
// time. Returns core.ErrPersonNotFound for unknown names and
// *core.InsufficientFundsError when the amount exceeds the balance; in both
// cases nothing is persisted.
func (r *SQLiteRepository) AppendSpending(ctx context.Context, rec SpendingRecord) (core.Person, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Person{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		personID int64
		balance  int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, balance_cents FROM persons WHERE name = ?`, rec.PersonName).
		Scan(&personID, &balance)
	if err == sql.ErrNoRows {
		return core.Person{}, core.ErrPersonNotFound
	}
	if err != nil {
		return core.Person{}, fmt.Errorf("find person: %w", err)
	}

	if rec.Amount.Cents > balance {
		return core.Person{}, &core.InsufficientFundsError{Available: core.Money{Cents: balance}}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			transaction_id, kind, person_id, photo_ref, amount_cents,
			spending_description, spending_category, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TransactionID, core.KindSpending, personID, rec.PhotoRef, rec.Amount.Cents,
		rec.Description, rec.Category, now)
	if err != nil {
		return core.Person{}, mapInsertError(err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE persons SET balance_cents = balance_cents - ?, updated_at = ? WHERE id = ?`,
		rec.Amount.Cents, now, personID)
	if err != nil {
		return core.Person{}, fmt.Errorf("adjust person balance: %w", err)
	}

	person, err := scanPersonTx(ctx, tx, personID)
	if err != nil {
		return core.Person{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Person{}, fmt.Errorf("commit spending: %w", err)
	}

	slog.InfoContext(ctx, "Spending recorded",
		"transaction_id", rec.TransactionID,
		"person", rec.PersonName,
		"amount_cents", rec.Amount.Cents,
		"remaining_cents", person.Balance.Cents)

	return person, nil
}

// FindPersonByName returns the named person or core.ErrPersonNotFound.
func (r *SQLiteRepository) FindPersonByName(ctx context.Context, name string) (core.Person, error) {
	var p core.Person
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, balance_cents, created_at, updated_at FROM persons WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &p.Balance.Cents, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return core.Person{}, core.ErrPersonNotFound
	}
	if err != nil {
		return core.Person{}, fmt.Errorf("find person by name: %w", err)
	}
	return p, nil
}

// GetTillBalance returns the current till aggregate. The row is seeded by
// migration, so this never reports "uninitialized".
func (r *SQLiteRepository) GetTillBalance(ctx context.Context) (core.TillBalance, error) {
	var (
		tb        core.TillBalance
		updatedBy sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT b.total_cents, b.updated_at, COALESCE(p.name, '')
		FROM till_balance b
		LEFT JOIN persons p ON b.updated_by = p.id
		WHERE b.id = 1`).
		Scan(&tb.Total.Cents, &tb.UpdatedAt, &updatedBy)
	if err != nil {
		return core.TillBalance{}, fmt.Errorf("get till balance: %w", err)
	}
	tb.UpdatedBy = updatedBy.String
	return tb, nil
}

// ListPersonsWithBalance returns persons currently holding cash, ordered by
// name.
func (r *SQLiteRepository) ListPersonsWithBalance(ctx context.Context) ([]core.Person, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, balance_cents, created_at, updated_at
		FROM persons
		WHERE balance_cents > 0
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []core.Person
	for rows.Next() {
		var p core.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Balance.Cents, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// ListRecentTransactions returns the newest transactions first, person name
// resolved for display.
func (r *SQLiteRepository) ListRecentTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, transactionSelect+`
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// GetTransaction looks up a single transaction by its public identifier.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, transactionID string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, transactionSelect+` WHERE t.transaction_id = ?`, transactionID)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", transactionID, ErrTransactionNotFound)
	}
	if err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// ComputeLedgerTill replays the full transaction log in order and returns
// the till total it implies: closings reset, withdrawals subtract, deposits
// add, spendings leave the till alone.
func (r *SQLiteRepository) ComputeLedgerTill(ctx context.Context) (core.Money, int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, amount_cents FROM transactions ORDER BY created_at, id`)
	if err != nil {
		return core.Money{}, 0, fmt.Errorf("read transaction log: %w", err)
	}
	defer rows.Close()

	var (
		total int64
		count int
	)
	for rows.Next() {
		var (
			kind  string
			cents int64
		)
		if err := rows.Scan(&kind, &cents); err != nil {
			return core.Money{}, 0, fmt.Errorf("scan log row: %w", err)
		}
		switch core.Kind(kind) {
		case core.KindClosing:
			total = cents
		case core.KindWithdrawal:
			total -= cents
		case core.KindDeposit:
			total += cents
		case core.KindSpending:
			// cash already left the till at withdrawal time
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return core.Money{}, 0, fmt.Errorf("iterate log: %w", err)
	}
	return core.Money{Cents: total}, count, nil
}

// ReconcileTill compares the till singleton against the replayed log and,
// when repair is requested, overwrites the singleton with the computed
// figure. Drift between the two is otherwise undetectable since the
// aggregate is maintained incrementally.
func (r *SQLiteRepository) ReconcileTill(ctx context.Context, repair bool) (ReconcileReport, error) {
	computed, count, err := r.ComputeLedgerTill(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	stored, err := r.GetTillBalance(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	report := ReconcileReport{
		Stored:       stored.Total,
		Computed:     computed,
		Drift:        core.Money{Cents: stored.Total.Cents - computed.Cents},
		Transactions: count,
	}

	if report.Drift.Cents == 0 {
		return report, nil
	}

	slog.WarnContext(ctx, "Till balance drift detected",
		"stored_cents", report.Stored.Cents,
		"computed_cents", report.Computed.Cents,
		"drift_cents", report.Drift.Cents,
		"transactions", count)

	if repair {
		_, err := r.db.ExecContext(ctx,
			`UPDATE till_balance SET total_cents = ?, updated_at = ? WHERE id = 1`,
			computed.Cents, time.Now().UTC())
		if err != nil {
			return report, fmt.Errorf("repair till balance: %w", err)
		}
		report.Repaired = true
		slog.InfoContext(ctx, "Till balance repaired from transaction log",
			"total_cents", computed.Cents)
	}

	return report, nil
}

const transactionSelect = `
	SELECT t.id, t.transaction_id, t.kind, t.person_id, COALESCE(p.name, ''),
		t.photo_ref, t.amount_cents,
		t.bills_100, t.bills_50, t.bills_20, t.bills_10, t.bills_5,
		t.coins_toonies, t.coins_loonies, t.coins_quarters, t.coins_dimes, t.coins_nickels, t.coins_pennies,
		t.recipient_name, t.withdrawal_reason, t.spending_description, t.spending_category,
		t.created_at
	FROM transactions t
	LEFT JOIN persons p ON t.person_id = p.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		personID  sql.NullInt64
		recipient sql.NullString
		reason    sql.NullString
		desc      sql.NullString
		category  sql.NullString
	)
	err := row.Scan(&t.ID, &t.TransactionID, &t.Kind, &personID, &t.PersonName,
		&t.PhotoRef, &t.Amount.Cents,
		&t.Counts.Bills100, &t.Counts.Bills50, &t.Counts.Bills20, &t.Counts.Bills10, &t.Counts.Bills5,
		&t.Counts.Toonies, &t.Counts.Loonies, &t.Counts.Quarters, &t.Counts.Dimes, &t.Counts.Nickels, &t.Counts.Pennies,
		&recipient, &reason, &desc, &category,
		&t.CreatedAt)
	if err == sql.ErrNoRows {
		return core.Transaction{}, err
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	if personID.Valid {
		t.PersonID = &personID.Int64
	}
	t.Recipient = recipient.String
	t.Reason = reason.String
	t.Description = desc.String
	t.Category = category.String
	return t, nil
}

// getOrCreatePerson resolves a name to a person id inside the caller's
// transaction. The UNIQUE(name) constraint settles concurrent creates; the
// re-read picks up whichever insert won.
func getOrCreatePerson(ctx context.Context, tx *sql.Tx, name string, now time.Time) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO persons (name, balance_cents, created_at, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(name) DO NOTHING`, name, now, now)
	if err != nil {
		return 0, fmt.Errorf("create person: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM persons WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve person id: %w", err)
	}
	return id, nil
}

func scanPersonTx(ctx context.Context, tx *sql.Tx, id int64) (core.Person, error) {
	var p core.Person
	err := tx.QueryRowContext(ctx,
		`SELECT id, name, balance_cents, created_at, updated_at FROM persons WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Balance.Cents, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return core.Person{}, fmt.Errorf("read person: %w", err)
	}
	return p, nil
}

// mapInsertError translates sqlite constraint failures on the transactions
// table into the domain error taxonomy.
func mapInsertError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "transactions.transaction_id"):
		return core.ErrDuplicateTransaction
	case strings.Contains(msg, "CHECK constraint failed") && strings.Contains(msg, "kind"):
		return core.ErrUnknownKind
	default:
		return fmt.Errorf("append transaction: %w", err)
	}
}
