package handlers

import (
	"context"
	"time"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/pkg/logger"

	"github.com/google/uuid"
)

// PayoutHandler posts payouts to the merchant's bank account, keyed by the
// processor's transfer ID. Payouts flush after all transaction-level
// categories so that the postings they settle already exist.
type PayoutHandler struct{}

// NewPayoutHandler creates a payout posting handler.
func NewPayoutHandler() *PayoutHandler { return &PayoutHandler{} }

// Category names the handler's category.
func (h *PayoutHandler) Category() string { return "payout" }

// HandleRows creates the payout record for the group unless one already
// exists for this transfer.
func (h *PayoutHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	existing, err := store.FindPayoutByTransfer(ctx, merchant.ID, correlationKey)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.WithField("transfer_id", correlationKey).Debug("Payout already exists, skipping")
		return nil
	}

	payout := &models.Payout{
		ID:                uuid.NewString(),
		MerchantAccountID: merchant.ID,
		TenantID:          merchant.TenantID,
		TransferID:        correlationKey,
		Amount:            models.SumRowAmounts(rows),
		Currency:          rows[0].Currency,
		BookedAt:          latestBookingDate(rows),
		CreatedAt:         time.Now().UTC(),
	}

	return store.CreatePayout(ctx, payout)
}

func latestBookingDate(rows []*models.ReportRow) time.Time {
	var latest time.Time
	for _, row := range rows {
		if row.BookingDate.After(latest) {
			latest = row.BookingDate
		}
	}
	return latest
}
