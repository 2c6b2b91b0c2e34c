package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

func newTransaction(reference string) *models.Transaction {
	return &models.Transaction{
		ID:                "tx-" + reference,
		MerchantAccountID: "ma1",
		TenantID:          "t1",
		Type:              models.TransactionCapture,
		ExternalReference: reference,
		Amount:            decimal.NewFromInt(10),
		Currency:          "EUR",
		CreatedAt:         time.Now().UTC(),
	}
}

func TestCreateAndFindTransaction(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.CreateTransaction(ctx, newTransaction("REF1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx, err := store.FindTransactionByReference(ctx, "ma1", "REF1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx == nil || tx.ExternalReference != "REF1" {
		t.Fatalf("expected transaction REF1, got %+v", tx)
	}

	// Absent references resolve to nil without error.
	missing, err := store.FindTransactionByReference(ctx, "ma1", "NOPE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown reference")
	}

	// Same reference under another merchant is a distinct namespace.
	other, err := store.FindTransactionByReference(ctx, "ma2", "REF1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other != nil {
		t.Error("references are scoped per merchant account")
	}
}

func TestCreateTransactionDuplicateReference(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.CreateTransaction(ctx, newTransaction("REF1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.CreateTransaction(ctx, newTransaction("REF1")); err == nil {
		t.Error("expected error for duplicate external reference")
	}
}

func TestLinkTransactionToPayout(t *testing.T) {
	ctx := context.Background()
	store := New()

	tx := newTransaction("REF1")
	if err := store.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.LinkTransactionToPayout(ctx, tx.ID, "po1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	linked, _ := store.FindTransactionByReference(ctx, "ma1", "REF1")
	if linked.PayoutID != "po1" {
		t.Errorf("expected payout linkage po1, got %q", linked.PayoutID)
	}

	if err := store.LinkTransactionToPayout(ctx, "missing", "po1"); err == nil {
		t.Error("expected error for unknown transaction")
	}
}

func TestCreateAndFindPayout(t *testing.T) {
	ctx := context.Background()
	store := New()

	payout := &models.Payout{
		ID:                "po1",
		MerchantAccountID: "ma1",
		TenantID:          "t1",
		TransferID:        "TRANSFER1",
		Amount:            decimal.NewFromInt(995),
		Currency:          "EUR",
		BookedAt:          time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		CreatedAt:         time.Now().UTC(),
	}

	if err := store.CreatePayout(ctx, payout); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := store.FindPayoutByTransfer(ctx, "ma1", "TRANSFER1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found == nil || found.ID != "po1" {
		t.Fatalf("expected payout po1, got %+v", found)
	}

	if err := store.CreatePayout(ctx, payout); err == nil {
		t.Error("expected error for duplicate transfer id")
	}
}

func TestRunInTransactionCommits(t *testing.T) {
	ctx := context.Background()
	store := New()

	err := store.RunInTransaction(ctx, func(ctx context.Context, scoped ledger.Store) error {
		return scoped.CreateTransaction(ctx, newTransaction("REF1"))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx, _ := store.FindTransactionByReference(ctx, "ma1", "REF1")
	if tx == nil {
		t.Error("expected committed transaction to be visible")
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.CreateTransaction(ctx, newTransaction("KEEP")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantErr := fmt.Errorf("handler failed")
	err := store.RunInTransaction(ctx, func(ctx context.Context, scoped ledger.Store) error {
		if err := scoped.CreateTransaction(ctx, newTransaction("DISCARD")); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected handler error, got %v", err)
	}

	if tx, _ := store.FindTransactionByReference(ctx, "ma1", "DISCARD"); tx != nil {
		t.Error("rolled-back write must not be visible")
	}
	if tx, _ := store.FindTransactionByReference(ctx, "ma1", "KEEP"); tx == nil {
		t.Error("pre-transaction state must survive the rollback")
	}
}

func TestFindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.CreateTransaction(ctx, newTransaction("REF1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := store.FindTransactionByReference(ctx, "ma1", "REF1")
	first.Currency = "JPY"

	second, _ := store.FindTransactionByReference(ctx, "ma1", "REF1")
	if second.Currency != "EUR" {
		t.Error("mutating a returned transaction must not affect the store")
	}
}
