package payout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"psp-settlement-reconciler/internal/ledger/memory"
	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/internal/tenant"

	"github.com/shopspring/decimal"
)

type trackerDirectory struct{}

func (trackerDirectory) FindMerchantAccount(_ context.Context, gateway, reference string) (*models.MerchantAccount, error) {
	if reference == "STORE1" {
		return &models.MerchantAccount{ID: "ma1", TenantID: "t1", Gateway: gateway, Reference: "STORE1"}, nil
	}
	return nil, nil
}

func (trackerDirectory) FindTenant(_ context.Context, merchant *models.MerchantAccount) (*models.Tenant, error) {
	return &models.Tenant{ID: merchant.TenantID}, nil
}

type trackerTransfers struct {
	details map[string]*models.TransferDetails
	err     error
	calls   int
}

func (c *trackerTransfers) LookupTransfer(_ context.Context, transferID string) (*models.TransferDetails, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.details[transferID], nil
}

func newTestTracker(store *memory.Store, transfers TransferClient) *Tracker {
	if transfers == nil {
		transfers = &trackerTransfers{}
	}
	return NewTracker(store, tenant.NewResolver(trackerDirectory{}, "psp"), transfers)
}

func postedTransaction(ctx context.Context, t *testing.T, store *memory.Store, reference string) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		ID:                "tx-" + reference,
		MerchantAccountID: "ma1",
		TenantID:          "t1",
		Type:              models.TransactionCapture,
		ExternalReference: reference,
		Amount:            decimal.NewFromInt(10),
		Currency:          "EUR",
		CreatedAt:         time.Now().UTC(),
	}
	if err := store.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("cannot seed transaction: %v", err)
	}
	return tx
}

func postedPayout(ctx context.Context, t *testing.T, store *memory.Store, transferID string) *models.Payout {
	t.Helper()

	payout := &models.Payout{
		ID:                "po-" + transferID,
		MerchantAccountID: "ma1",
		TenantID:          "t1",
		TransferID:        transferID,
		Amount:            decimal.NewFromInt(10),
		Currency:          "EUR",
		CreatedAt:         time.Now().UTC(),
	}
	if err := store.CreatePayout(ctx, payout); err != nil {
		t.Fatalf("cannot seed payout: %v", err)
	}
	return payout
}

func captureRow(pspReference string) *models.ReportRow {
	return &models.ReportRow{
		Category:                models.CategoryPlatformPayment,
		Type:                    models.TypeCapture,
		Status:                  models.StatusCaptured,
		PspPaymentPspReference:  pspReference,
		BalanceAccountReference: "STORE1",
		Currency:                "EUR",
		BookingDate:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func payoutRow(transferID string) *models.ReportRow {
	return &models.ReportRow{
		Category:                models.CategoryBank,
		Type:                    models.TypeBankTransfer,
		Status:                  models.StatusBooked,
		TransferID:              transferID,
		BalanceAccountReference: "STORE1",
		Currency:                "EUR",
		BookingDate:             time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestTrackerLinksBatchesToTheirPayout(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	txA := postedTransaction(ctx, t, store, "A")
	txB := postedTransaction(ctx, t, store, "B")
	txC := postedTransaction(ctx, t, store, "C")
	payout1 := postedPayout(ctx, t, store, "P1")
	payout2 := postedPayout(ctx, t, store, "P2")

	tracker := newTestTracker(store, nil)

	rows := []*models.ReportRow{
		captureRow("A"),
		captureRow("B"),
		payoutRow("P1"),
		captureRow("C"),
		payoutRow("P2"),
	}

	if err := tracker.Run(ctx, rows); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, tt := range []struct {
		txID     string
		payoutID string
	}{
		{txA.ID, payout1.ID},
		{txB.ID, payout1.ID},
		{txC.ID, payout2.ID},
	} {
		found := false
		for _, tx := range store.Transactions() {
			if tx.ID == tt.txID {
				found = true
				if tx.PayoutID != tt.payoutID {
					t.Errorf("transaction %s linked to %q, want %q", tt.txID, tx.PayoutID, tt.payoutID)
				}
			}
		}
		if !found {
			t.Errorf("transaction %s not found", tt.txID)
		}
	}

	if got := len(tracker.PendingReferences()); got != 0 {
		t.Errorf("queue must be empty after the final payout, got %d entries", got)
	}
}

func TestTrackerQueueClearedEvenWhenLinkageSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	postedTransaction(ctx, t, store, "A")
	tracker := newTestTracker(store, nil)

	// No payout record exists for P1: linkage is skipped, but the batch
	// boundary still resets the queue.
	tracker.Observe(ctx, captureRow("A"))
	if err := tracker.OnPayout(ctx, payoutRow("P1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(tracker.PendingReferences()); got != 0 {
		t.Errorf("queue must be cleared after a payout row, got %d entries", got)
	}
}

func TestTrackerUnresolvableMerchantSkipsLinkage(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tracker := newTestTracker(store, nil)

	tracker.Observe(ctx, captureRow("A"))

	unknown := payoutRow("P1")
	unknown.BalanceAccountReference = "UNKNOWN"

	if err := tracker.OnPayout(ctx, unknown); err != nil {
		t.Fatalf("unresolvable merchant must not fail the pass: %v", err)
	}
	if got := len(tracker.PendingReferences()); got != 0 {
		t.Errorf("queue must still be cleared, got %d entries", got)
	}
}

func TestTrackerDeduplicatesReferences(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tracker := newTestTracker(store, nil)

	tracker.Observe(ctx, captureRow("A"))
	tracker.Observe(ctx, captureRow("A"))
	tracker.Observe(ctx, captureRow("B"))

	pending := tracker.PendingReferences()
	if len(pending) != 2 {
		t.Fatalf("expected 2 distinct references, got %d", len(pending))
	}
	if pending[0] != "A" || pending[1] != "B" {
		t.Errorf("expected FIFO order [A B], got %v", pending)
	}
}

func TestTrackerResolvesModificationsViaTransferLookup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	transfers := &trackerTransfers{
		details: map[string]*models.TransferDetails{
			"TR1": {TransferID: "TR1", ModificationReference: "MOD1"},
		},
	}
	tracker := newTestTracker(store, transfers)

	refund := &models.ReportRow{
		Category:                models.CategoryPlatformPayment,
		Type:                    models.TypeRefund,
		Status:                  models.StatusRefunded,
		TransferID:              "TR1",
		BalanceAccountReference: "STORE1",
		Currency:                "EUR",
		BookingDate:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	tracker.Observe(ctx, refund)

	pending := tracker.PendingReferences()
	if len(pending) != 1 || pending[0] != "MOD1" {
		t.Errorf("expected pending [MOD1], got %v", pending)
	}
}

func TestTrackerSwallowsTransferLookupFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	transfers := &trackerTransfers{err: fmt.Errorf("transfer API down")}
	tracker := newTestTracker(store, transfers)

	refund := &models.ReportRow{
		Category:    models.CategoryPlatformPayment,
		Type:        models.TypeRefund,
		Status:      models.StatusRefunded,
		TransferID:  "TR1",
		Currency:    "EUR",
		BookingDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	// Lookup failures only omit the reference from linkage.
	tracker.Observe(ctx, refund)

	if transfers.calls != 1 {
		t.Errorf("expected 1 lookup call, got %d", transfers.calls)
	}
	if got := len(tracker.PendingReferences()); got != 0 {
		t.Errorf("failed lookup must not enqueue, got %d entries", got)
	}
}

func TestTrackerIgnoresBalanceRows(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(memory.New(), nil)

	tracker.Observe(ctx, &models.ReportRow{
		Category:   models.CategoryBalance,
		Type:       models.TypeClosingBalance,
		TransferID: "TR1",
	})

	if got := len(tracker.PendingReferences()); got != 0 {
		t.Errorf("balance rows must not enqueue, got %d entries", got)
	}
}
