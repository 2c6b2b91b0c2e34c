// Package sqlite provides a SQLite-backed implementation of ledger.Store.
//
// SQLite is opened in WAL mode. Amounts are stored as decimal strings to
// avoid floating point drift; the schema is migrated on New(). The same
// statements apply to PostgreSQL with minor dialect changes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so the same statement
// helpers work inside and outside a transaction scope.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	q  queryer
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		merchant_account_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		external_reference TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		value_date TEXT,
		payout_id TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (merchant_account_id, external_reference)
	);

	CREATE TABLE IF NOT EXISTS payouts (
		id TEXT PRIMARY KEY,
		merchant_account_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		transfer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		booked_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (merchant_account_id, transfer_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_merchant_reference
		ON transactions(merchant_account_id, external_reference);
	CREATE INDEX IF NOT EXISTS idx_transactions_payout
		ON transactions(payout_id);
	CREATE INDEX IF NOT EXISTS idx_payouts_merchant_transfer
		ON payouts(merchant_account_id, transfer_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// FindTransactionByReference looks up a transaction by external reference.
func (s *Store) FindTransactionByReference(ctx context.Context, merchantAccountID, reference string) (*models.Transaction, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, merchant_account_id, tenant_id, tx_type, external_reference,
		       amount, currency, value_date, payout_id, created_at
		FROM transactions
		WHERE merchant_account_id = ? AND external_reference = ?`,
		merchantAccountID, reference)

	return scanTransaction(row)
}

// CreateTransaction persists a new ledger transaction.
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	var valueDate interface{}
	if tx.ValueDate != nil {
		valueDate = tx.ValueDate.UTC().Format(time.RFC3339)
	}

	var payoutID interface{}
	if tx.PayoutID != "" {
		payoutID = tx.PayoutID
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions
			(id, merchant_account_id, tenant_id, tx_type, external_reference,
			 amount, currency, value_date, payout_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.MerchantAccountID, tx.TenantID, string(tx.Type), tx.ExternalReference,
		tx.Amount.String(), tx.Currency, valueDate, payoutID,
		tx.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ExternalReference, err)
	}

	return nil
}

// LinkTransactionToPayout sets the payout linkage field on a transaction.
func (s *Store) LinkTransactionToPayout(ctx context.Context, transactionID, payoutID string) error {
	result, err := s.q.ExecContext(ctx,
		`UPDATE transactions SET payout_id = ? WHERE id = ?`,
		payoutID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to link transaction %s to payout %s: %w", transactionID, payoutID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s not found", transactionID)
	}

	return nil
}

// FindPayoutByTransfer looks up a payout by transfer ID.
func (s *Store) FindPayoutByTransfer(ctx context.Context, merchantAccountID, transferID string) (*models.Payout, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, merchant_account_id, tenant_id, transfer_id, amount, currency, booked_at, created_at
		FROM payouts
		WHERE merchant_account_id = ? AND transfer_id = ?`,
		merchantAccountID, transferID)

	return scanPayout(row)
}

// CreatePayout persists a new payout record.
func (s *Store) CreatePayout(ctx context.Context, payout *models.Payout) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payouts
			(id, merchant_account_id, tenant_id, transfer_id, amount, currency, booked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID, payout.MerchantAccountID, payout.TenantID, payout.TransferID,
		payout.Amount.String(), payout.Currency,
		payout.BookedAt.UTC().Format(time.RFC3339),
		payout.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert payout %s: %w", payout.TransferID, err)
	}

	return nil
}

// RunInTransaction executes fn inside a database transaction. A nested call
// joins the enclosing scope.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, store ledger.Store) error) error {
	if _, alreadyInTx := s.q.(*sql.Tx); alreadyInTx {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	scoped := &Store{db: s.db, q: tx}
	if err := fn(ctx, scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed after error %v: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

func scanTransaction(row *sql.Row) (*models.Transaction, error) {
	var tx models.Transaction
	var txType, amount string
	var valueDate, payoutID sql.NullString
	var createdAt string

	err := row.Scan(&tx.ID, &tx.MerchantAccountID, &tx.TenantID, &txType, &tx.ExternalReference,
		&amount, &tx.Currency, &valueDate, &payoutID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Type = models.TransactionType(txType)

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount '%s': %w", amount, err)
	}

	if valueDate.Valid {
		vd, err := time.Parse(time.RFC3339, valueDate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored value date '%s': %w", valueDate.String, err)
		}
		tx.ValueDate = &vd
	}

	if payoutID.Valid {
		tx.PayoutID = payoutID.String
	}

	tx.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid stored created_at '%s': %w", createdAt, err)
	}

	return &tx, nil
}

func scanPayout(row *sql.Row) (*models.Payout, error) {
	var payout models.Payout
	var amount, bookedAt, createdAt string

	err := row.Scan(&payout.ID, &payout.MerchantAccountID, &payout.TenantID, &payout.TransferID,
		&amount, &payout.Currency, &bookedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payout: %w", err)
	}

	payout.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount '%s': %w", amount, err)
	}

	payout.BookedAt, err = time.Parse(time.RFC3339, bookedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid stored booked_at '%s': %w", bookedAt, err)
	}

	payout.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid stored created_at '%s': %w", createdAt, err)
	}

	return &payout, nil
}
