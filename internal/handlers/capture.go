package handlers

import (
	"context"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
)

// CaptureHandler posts captured payments. The correlation key is the PSP
// payment reference; the group may contain several line items (split
// captures) whose amounts are summed into one posting.
type CaptureHandler struct{}

// NewCaptureHandler creates a capture posting handler.
func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{}
}

// Category names the handler's category.
func (h *CaptureHandler) Category() string {
	return "capture"
}

// HandleRows posts one capture transaction for the group.
func (h *CaptureHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	return postTransaction(ctx, store, merchant, models.TransactionCapture, correlationKey, rows)
}
