package handlers

import (
	"context"

	"psp-settlement-reconciler/internal/ledger"
	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/pkg/errors"
)

// reversalSuffix distinguishes a reversal posting's external reference from
// the posting it compensates, which shares the same modification reference.
const reversalSuffix = ":reversal"

// requireOriginalCapture verifies that the capture referenced by the group's
// rows still exists in the ledger. A modification against a missing capture
// is an unrecoverable inconsistency for this group.
func requireOriginalCapture(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, category, correlationKey string, rows []*models.ReportRow) error {
	paymentRef := ""
	for _, row := range rows {
		if row.PspPaymentPspReference != "" {
			paymentRef = row.PspPaymentPspReference
			break
		}
	}

	if paymentRef == "" {
		return errors.GroupError(errors.CodeMissingReference, category, correlationKey, nil).
			WithContext("reason", "no row in the group carries the original payment reference")
	}

	original, err := store.FindTransactionByReference(ctx, merchant.ID, paymentRef)
	if err != nil {
		return err
	}
	if original == nil {
		return errors.MissingDocumentError(category, correlationKey, paymentRef)
	}

	return nil
}

// requirePosting verifies that a prior posting with the given reference
// exists, returning it for the caller.
func requirePosting(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, category, correlationKey, reference string) (*models.Transaction, error) {
	posting, err := store.FindTransactionByReference(ctx, merchant.ID, reference)
	if err != nil {
		return nil, err
	}
	if posting == nil {
		return nil, errors.MissingDocumentError(category, correlationKey, reference)
	}
	return posting, nil
}

// RefundHandler posts refunds keyed by modification reference. The original
// capture must still exist.
type RefundHandler struct{}

// NewRefundHandler creates a refund posting handler.
func NewRefundHandler() *RefundHandler { return &RefundHandler{} }

// Category names the handler's category.
func (h *RefundHandler) Category() string { return "refund" }

// HandleRows posts one refund transaction for the group.
func (h *RefundHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	if err := requireOriginalCapture(ctx, store, merchant, h.Category(), correlationKey, rows); err != nil {
		return err
	}
	return postTransaction(ctx, store, merchant, models.TransactionRefund, correlationKey, rows)
}

// RefundReversalHandler compensates a prior refund posting. The refund it
// reverses shares the modification reference.
type RefundReversalHandler struct{}

// NewRefundReversalHandler creates a refund reversal posting handler.
func NewRefundReversalHandler() *RefundReversalHandler { return &RefundReversalHandler{} }

// Category names the handler's category.
func (h *RefundReversalHandler) Category() string { return "refundReversal" }

// HandleRows posts one refund reversal transaction for the group.
func (h *RefundReversalHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	if _, err := requirePosting(ctx, store, merchant, h.Category(), correlationKey, correlationKey); err != nil {
		return err
	}
	return postTransaction(ctx, store, merchant, models.TransactionRefundReversal, correlationKey+reversalSuffix, rows)
}

// ChargebackHandler posts chargebacks and second chargebacks keyed by
// modification reference. The original capture must still exist.
type ChargebackHandler struct{}

// NewChargebackHandler creates a chargeback posting handler.
func NewChargebackHandler() *ChargebackHandler { return &ChargebackHandler{} }

// Category names the handler's category.
func (h *ChargebackHandler) Category() string { return "chargeback" }

// HandleRows posts one chargeback transaction for the group.
func (h *ChargebackHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	if err := requireOriginalCapture(ctx, store, merchant, h.Category(), correlationKey, rows); err != nil {
		return err
	}
	return postTransaction(ctx, store, merchant, models.TransactionChargeback, correlationKey, rows)
}

// ChargebackReversalHandler compensates a prior chargeback posting.
type ChargebackReversalHandler struct{}

// NewChargebackReversalHandler creates a chargeback reversal posting handler.
func NewChargebackReversalHandler() *ChargebackReversalHandler { return &ChargebackReversalHandler{} }

// Category names the handler's category.
func (h *ChargebackReversalHandler) Category() string { return "chargebackReversal" }

// HandleRows posts one chargeback reversal transaction for the group.
func (h *ChargebackReversalHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	if _, err := requirePosting(ctx, store, merchant, h.Category(), correlationKey, correlationKey); err != nil {
		return err
	}
	return postTransaction(ctx, store, merchant, models.TransactionChargebackRevers, correlationKey+reversalSuffix, rows)
}

// PaymentReversalHandler posts capture reversals. The original capture must
// still exist; the reversal posts under its own modification reference.
type PaymentReversalHandler struct{}

// NewPaymentReversalHandler creates a payment reversal posting handler.
func NewPaymentReversalHandler() *PaymentReversalHandler { return &PaymentReversalHandler{} }

// Category names the handler's category.
func (h *PaymentReversalHandler) Category() string { return "paymentReversal" }

// HandleRows posts one capture reversal transaction for the group.
func (h *PaymentReversalHandler) HandleRows(ctx context.Context, store ledger.Store, merchant *models.MerchantAccount, correlationKey string, rows []*models.ReportRow) error {
	if err := requireOriginalCapture(ctx, store, merchant, h.Category(), correlationKey, rows); err != nil {
		return err
	}
	return postTransaction(ctx, store, merchant, models.TransactionCaptureReversal, correlationKey, rows)
}
