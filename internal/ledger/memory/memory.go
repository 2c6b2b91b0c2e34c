// Package memory provides an in-memory ledger.Store implementation, used in
// tests and for dry runs where postings should not outlive the process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
)

// Store implements ledger.Store with plain maps.
type Store struct {
	mu sync.RWMutex

	// Keyed by (merchant account ID, external reference).
	transactions map[refKey]*models.Transaction
	payouts      map[refKey]*models.Payout

	byID map[string]*models.Transaction
}

type refKey struct {
	MerchantAccountID string
	Reference         string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		transactions: make(map[refKey]*models.Transaction),
		payouts:      make(map[refKey]*models.Payout),
		byID:         make(map[string]*models.Transaction),
	}
}

// FindTransactionByReference looks up a transaction by external reference.
func (s *Store) FindTransactionByReference(_ context.Context, merchantAccountID, reference string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[refKey{merchantAccountID, reference}]
	if !ok {
		return nil, nil
	}

	cp := *tx
	return &cp, nil
}

// CreateTransaction persists a new ledger transaction.
func (s *Store) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := refKey{tx.MerchantAccountID, tx.ExternalReference}
	if _, exists := s.transactions[k]; exists {
		return fmt.Errorf("transaction with reference %s already exists for merchant %s",
			tx.ExternalReference, tx.MerchantAccountID)
	}

	cp := *tx
	s.transactions[k] = &cp
	s.byID[cp.ID] = &cp
	return nil
}

// LinkTransactionToPayout sets the payout linkage field on a transaction.
func (s *Store) LinkTransactionToPayout(_ context.Context, transactionID, payoutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[transactionID]
	if !ok {
		return fmt.Errorf("transaction %s not found", transactionID)
	}

	tx.PayoutID = payoutID
	return nil
}

// FindPayoutByTransfer looks up a payout by transfer ID.
func (s *Store) FindPayoutByTransfer(_ context.Context, merchantAccountID, transferID string) (*models.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payout, ok := s.payouts[refKey{merchantAccountID, transferID}]
	if !ok {
		return nil, nil
	}

	cp := *payout
	return &cp, nil
}

// CreatePayout persists a new payout record.
func (s *Store) CreatePayout(_ context.Context, payout *models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := refKey{payout.MerchantAccountID, payout.TransferID}
	if _, exists := s.payouts[k]; exists {
		return fmt.Errorf("payout with transfer %s already exists for merchant %s",
			payout.TransferID, payout.MerchantAccountID)
	}

	cp := *payout
	s.payouts[k] = &cp
	return nil
}

// RunInTransaction executes fn against a snapshot-backed scope. On error the
// store is restored to its pre-transaction state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, store ledger.Store) error) error {
	snapshot := s.snapshot()

	if err := fn(ctx, s); err != nil {
		s.restore(snapshot)
		return err
	}

	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

type state struct {
	transactions map[refKey]*models.Transaction
	payouts      map[refKey]*models.Payout
	byID         map[string]*models.Transaction
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &state{
		transactions: make(map[refKey]*models.Transaction, len(s.transactions)),
		payouts:      make(map[refKey]*models.Payout, len(s.payouts)),
		byID:         make(map[string]*models.Transaction, len(s.byID)),
	}

	for k, tx := range s.transactions {
		cp := *tx
		st.transactions[k] = &cp
		st.byID[cp.ID] = &cp
	}
	for k, payout := range s.payouts {
		cp := *payout
		st.payouts[k] = &cp
	}

	return st
}

func (s *Store) restore(st *state) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = st.transactions
	s.payouts = st.payouts
	s.byID = st.byID
}

// Transactions returns all stored transactions, for tests and reporting.
func (s *Store) Transactions() []*models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		cp := *tx
		out = append(out, &cp)
	}
	return out
}

// Payouts returns all stored payouts, for tests and reporting.
func (s *Store) Payouts() []*models.Payout {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Payout, 0, len(s.payouts))
	for _, payout := range s.payouts {
		cp := *payout
		out = append(out, &cp)
	}
	return out
}
