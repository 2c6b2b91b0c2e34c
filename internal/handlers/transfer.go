package handlers

import (
	"context"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
)

// InternalTransferHandler posts booked internal transfers keyed by the
// processor's transfer ID.
type InternalTransferHandler struct{}

// NewInternalTransferHandler creates an internal transfer posting handler.
func NewInternalTransferHandler() *InternalTransferHandler { return &InternalTransferHandler{} }

// Category names the handler's category.
func (h *InternalTransferHandler) Category() string { return "internalTransfer" }

// HandleRows posts one internal transfer transaction for the group.
func (h *InternalTransferHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	return postTransaction(ctx, store, merchant, models.TransactionInternalTransfer, correlationKey, rows)
}

// TopUpHandler posts captured balance top-ups keyed by PSP payment reference.
type TopUpHandler struct{}

// NewTopUpHandler creates a top-up posting handler.
func NewTopUpHandler() *TopUpHandler { return &TopUpHandler{} }

// Category names the handler's category.
func (h *TopUpHandler) Category() string { return "topUp" }

// HandleRows posts one top-up transaction for the group.
func (h *TopUpHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	return postTransaction(ctx, store, merchant, models.TransactionTopUp, correlationKey, rows)
}
