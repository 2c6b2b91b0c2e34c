// Package ledger defines the persistence contract posting handlers write
// through.
//
// The store is deliberately narrow: handlers look entities up by their
// external reference before creating them (the idempotency anchor), and every
// group's postings execute inside one transactional scope via
// RunInTransaction. Two implementations exist: ledger/memory for tests and
// single runs, and ledger/sqlite for durable ledgers.
package ledger

import (
	"context"

	"psp-settlement-reconciler/internal/models"
)

// Store handles persistence of ledger entities created by posting handlers.
type Store interface {
	// FindTransactionByReference looks up a posted transaction by its
	// external reference within one merchant account. Returns (nil, nil)
	// when no transaction matches.
	FindTransactionByReference(ctx context.Context, merchantAccountID, reference string) (*models.Transaction, error)

	// CreateTransaction persists a new ledger transaction.
	CreateTransaction(ctx context.Context, tx *models.Transaction) error

	// LinkTransactionToPayout sets the payout linkage field on a posted
	// transaction. Linking an already-linked transaction to the same payout
	// is a no-op.
	LinkTransactionToPayout(ctx context.Context, transactionID, payoutID string) error

	// FindPayoutByTransfer looks up a payout by the processor's transfer ID
	// within one merchant account. Returns (nil, nil) when no payout matches.
	FindPayoutByTransfer(ctx context.Context, merchantAccountID, transferID string) (*models.Payout, error)

	// CreatePayout persists a new payout record.
	CreatePayout(ctx context.Context, payout *models.Payout) error

	// RunInTransaction executes fn atomically against the store. Any error
	// returned by fn rolls the scope back and is returned to the caller.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error

	// Close releases any resources held by the store.
	Close() error
}
