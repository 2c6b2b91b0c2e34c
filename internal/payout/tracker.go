// Package payout implements the payout linkage tracker.
//
// The tracker runs a second top-to-bottom pass over the same row stream as
// the accounting pass, after all postings have been applied. It maintains a
// FIFO queue of pending transaction references; when a payout row is seen,
// every transaction referenced since the previous payout is linked to that
// payout, reflecting the processor's settlement-batch boundary. Linkage is an
// enrichment: transfer lookup failures are logged and swallowed.
package payout

import (
	"context"

	"psp-settlement-reconciler/internal/classifier"
	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/internal/tenant"
	"psp-settlement-reconciler/pkg/errors"
	"psp-settlement-reconciler/pkg/logger"
)

// TransferClient is the processor's transfer lookup API, used to resolve a
// canonical modification reference for rows that do not carry one inline.
type TransferClient interface {
	LookupTransfer(ctx context.Context, transferID string) (*models.TransferDetails, error)
}

// Tracker links posted transactions to the payout that settled them.
type Tracker struct {
	store     ledger.Store
	resolver  *tenant.Resolver
	transfers TransferClient
	logger    logger.Logger

	pending []string
	seen    map[string]bool
}

// NewTracker creates a tracker for one reconciliation run.
func NewTracker(store ledger.Store, resolver *tenant.Resolver, transfers TransferClient) *Tracker {
	return &Tracker{
		store:     store,
		resolver:  resolver,
		transfers: transfers,
		logger:    logger.GetGlobalLogger().WithComponent("payout_tracker"),
		seen:      make(map[string]bool),
	}
}

// Observe records a non-payout row's transaction reference in the pending
// queue. Payout rows must go to OnPayout instead.
func (t *Tracker) Observe(ctx context.Context, row *models.ReportRow) {
	switch {
	case row.Category == models.CategoryPlatformPayment && row.Type == models.TypeCapture:
		t.enqueue(row.PspPaymentPspReference)

	case row.Category == models.CategoryInternal && row.Type == models.TypeInternalTransfer:
		t.enqueue(row.TransferID)

	case row.Category == models.CategoryBalance:
		// Balance rows never settle into a payout.

	default:
		t.enqueueFromTransferLookup(ctx, row)
	}
}

// enqueueFromTransferLookup resolves a canonical modification reference for
// the row via the transfer API. Best effort only; a failed lookup omits the
// linkage for this reference.
func (t *Tracker) enqueueFromTransferLookup(ctx context.Context, row *models.ReportRow) {
	if row.TransferID == "" {
		return
	}

	details, err := t.transfers.LookupTransfer(ctx, row.TransferID)
	if err != nil {
		lookupErr := errors.LookupError(errors.CodeTransferLookup, row.TransferID, err)
		t.logger.WithError(lookupErr).WithField("transfer_id", row.TransferID).
			Warn("Transfer lookup failed, skipping payout linkage for reference")
		return
	}

	if details != nil && details.ModificationReference != "" {
		t.enqueue(details.ModificationReference)
	}
}

// OnPayout links every pending transaction reference to the payout described
// by the row, then clears the queue. The queue is cleared even when the
// merchant cannot be resolved; linkage only ever applies to transactions seen
// since the previous payout.
func (t *Tracker) OnPayout(ctx context.Context, row *models.ReportRow) error {
	defer t.clear()

	merchant, err := t.resolver.ResolveMerchantAccount(ctx, row.BalanceAccountReference)
	if err != nil {
		return err
	}
	if merchant == nil {
		t.logger.WithField("transfer_id", row.TransferID).
			Debug("No merchant account for payout row, skipping linkage")
		return nil
	}

	payout, err := t.store.FindPayoutByTransfer(ctx, merchant.ID, row.TransferID)
	if err != nil {
		return err
	}
	if payout == nil {
		// The payout posting pass resolves merchants the same way, so a
		// missing payout here means its group was skipped or failed.
		t.logger.WithFields(logger.Fields{
			"transfer_id": row.TransferID,
			"amount":      row.Amount().String(),
		}).Warn("Payout row has no posted payout, skipping linkage")
		return nil
	}

	for _, reference := range t.pending {
		transaction, err := t.store.FindTransactionByReference(ctx, merchant.ID, reference)
		if err != nil {
			return err
		}
		if transaction == nil {
			t.logger.WithField("reference", reference).
				Debug("No posted transaction for pending reference, skipping linkage")
			continue
		}

		if transaction.PayoutID == payout.ID {
			continue
		}

		if err := t.store.LinkTransactionToPayout(ctx, transaction.ID, payout.ID); err != nil {
			return errors.LedgerError(errors.CodeTransactionFailed, "link_transaction_to_payout", err).
				WithContext("transaction_id", transaction.ID).
				WithContext("payout_id", payout.ID)
		}
	}

	return nil
}

// Run executes the linkage pass over the full row stream.
func (t *Tracker) Run(ctx context.Context, rows []*models.ReportRow) error {
	for _, row := range rows {
		if classifier.IsPayoutRow(row) {
			if err := t.OnPayout(ctx, row); err != nil {
				return err
			}
			continue
		}
		t.Observe(ctx, row)
	}
	return nil
}

// PendingReferences returns the queued references, oldest first.
func (t *Tracker) PendingReferences() []string {
	out := make([]string, len(t.pending))
	copy(out, t.pending)
	return out
}

func (t *Tracker) enqueue(reference string) {
	if reference == "" || t.seen[reference] {
		return
	}
	t.seen[reference] = true
	t.pending = append(t.pending, reference)
}

func (t *Tracker) clear() {
	t.pending = nil
	t.seen = make(map[string]bool)
}
