// Package handlers contains the per-category posting handlers invoked by the
// dispatch orchestrator.
//
// Every handler receives a completed event group (the rows sharing one
// correlation key within one category) together with the resolved merchant
// account, and executes inside a ledger transaction already scoped to the
// owning tenant. Handlers are idempotent: they look up an existing ledger
// entity by its external reference before creating one, so reprocessing the
// same report produces no duplicate postings.
package handlers

import (
	"context"
	"time"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/internal/tenant"
	"psp-settlement-reconciler/pkg/logger"

	"github.com/google/uuid"
)

// GroupHandler posts the ledger effects of one event group.
type GroupHandler interface {
	// Category names the handler's category for error reporting.
	Category() string

	// HandleRows applies the group's postings through the given store. The
	// store is already a transactional scope; returning an error rolls the
	// group back without affecting other groups.
	HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error
}

// postTransaction creates a ledger transaction for an event group unless one
// with the same external reference already exists. Amounts are summed over
// every row in the group; split captures and fee adjustments appear as
// separate line items and no row's amount may be dropped.
func postTransaction(
	ctx context.Context,
	store ledger.Store,
	merchant *models.MerchantAccount,
	txType models.TransactionType,
	reference string,
	rows []*models.ReportRow,
) error {
	existing, err := store.FindTransactionByReference(ctx, merchant.ID, reference)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.WithFields(logger.Fields{
			"reference": reference,
			"type":      txType,
		}).Debug("Posting already exists, skipping")
		return nil
	}

	tx := &models.Transaction{
		ID:                uuid.NewString(),
		MerchantAccountID: merchant.ID,
		TenantID:          merchant.TenantID,
		Type:              txType,
		ExternalReference: reference,
		Amount:            models.SumRowAmounts(rows),
		Currency:          rows[0].Currency,
		ValueDate:         groupValueDate(ctx, rows),
		CreatedAt:         time.Now().UTC(),
	}

	return store.CreateTransaction(ctx, tx)
}

// groupValueDate picks the latest settlement value date carried by any row in
// the group, expressed in the active tenant's time zone.
func groupValueDate(ctx context.Context, rows []*models.ReportRow) *time.Time {
	var latest *time.Time
	for _, row := range rows {
		if !row.HasValueDate() {
			continue
		}
		if latest == nil || row.ValueDate.After(*latest) {
			latest = row.ValueDate
		}
	}

	if latest == nil {
		return nil
	}

	localized := latest.In(tenant.LocationFromContext(ctx))
	return &localized
}
