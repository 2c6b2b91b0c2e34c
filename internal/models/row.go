// Package models defines the data types shared across the settlement
// reconciler: the immutable report row read from the processor's settlement
// export, the enumerations used to classify it, and the tenant-scoped ledger
// entities that posting handlers create.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RowCategory is the top-level category of a settlement report row.
type RowCategory string

const (
	CategoryPlatformPayment RowCategory = "platformPayment"
	CategoryBank            RowCategory = "bank"
	CategoryInternal        RowCategory = "internal"
	CategoryTopUp           RowCategory = "topUp"
	CategoryBalance         RowCategory = "balance"
)

// String returns the string representation of RowCategory.
func (c RowCategory) String() string {
	return string(c)
}

// IsValid checks if the row category is one the reconciler knows about.
func (c RowCategory) IsValid() bool {
	switch c {
	case CategoryPlatformPayment, CategoryBank, CategoryInternal, CategoryTopUp, CategoryBalance:
		return true
	default:
		return false
	}
}

// RowType is the per-category type of a settlement report row.
type RowType string

const (
	TypeCapture            RowType = "capture"
	TypeCaptureReversal    RowType = "captureReversal"
	TypeChargeback         RowType = "chargeback"
	TypeSecondChargeback   RowType = "secondChargeback"
	TypeChargebackReversal RowType = "chargebackReversal"
	TypeRefund             RowType = "refund"
	TypeRefundReversal     RowType = "refundReversal"
	TypeInternalTransfer   RowType = "internalTransfer"
	TypeManualCorrection   RowType = "manualCorrection"
	TypeBankTransfer       RowType = "bankTransfer"
	TypeTopUp              RowType = "topUp"
	TypeClosingBalance     RowType = "closingBalance"
)

// String returns the string representation of RowType.
func (t RowType) String() string {
	return string(t)
}

// RowStatus is the settlement status of a report row.
type RowStatus string

const (
	StatusReceived           RowStatus = "received"
	StatusCaptured           RowStatus = "captured"
	StatusBooked             RowStatus = "booked"
	StatusChargeback         RowStatus = "chargeback"
	StatusSecondChargeback   RowStatus = "secondChargeback"
	StatusChargebackReversed RowStatus = "chargebackReversed"
	StatusRefunded           RowStatus = "refunded"
	StatusRefundReversed     RowStatus = "refundReversed"
	StatusCaptureReversed    RowStatus = "captureReversed"
)

// String returns the string representation of RowStatus.
func (s RowStatus) String() string {
	return string(s)
}

// ReportRow is one record of the processor's settlement report. Rows are
// immutable once constructed; classification only reads them.
type ReportRow struct {
	Category RowCategory `json:"category" csv:"category"`
	Type     RowType     `json:"type" csv:"type"`
	Status   RowStatus   `json:"status" csv:"status"`

	// Correlation identifiers. Which of these are populated depends on the
	// row category; all of them are opaque strings assigned by the processor.
	TransferID                  string `json:"transfer_id" csv:"transfer_id"`
	PspPaymentPspReference      string `json:"psp_payment_psp_reference" csv:"psp_payment_psp_reference"`
	PspModificationPspReference string `json:"psp_modification_psp_reference" csv:"psp_modification_psp_reference"`

	// Merchant attribution. BalanceAccountReference carries the processor's
	// store/balance-account reference; AccountHolder identifies the legal
	// holder, which for internal bookkeeping rows is the platform itself.
	BalanceAccountReference string `json:"balance_account_reference" csv:"balance_account_reference"`
	AccountHolder           string `json:"accountholder" csv:"accountholder"`

	Description string `json:"description" csv:"description"`

	// Amounts are reported in the currency's minor units.
	AmountMinor int64  `json:"amount" csv:"amount"`
	Currency    string `json:"currency" csv:"currency"`

	// BalanceMinor is the closing balance carried by balance-category rows.
	BalanceMinor int64 `json:"balance" csv:"balance"`

	BookingDate time.Time  `json:"booking_date" csv:"booking_date"`
	ValueDate   *time.Time `json:"value_date,omitempty" csv:"value_date"`
}

// Amount returns the row's amount as a decimal in major units.
func (r *ReportRow) Amount() decimal.Decimal {
	return AmountFromMinorUnits(r.AmountMinor, r.Currency)
}

// Balance returns the row's closing balance as a decimal in major units.
func (r *ReportRow) Balance() decimal.Decimal {
	return AmountFromMinorUnits(r.BalanceMinor, r.Currency)
}

// HasValueDate reports whether the row carries a settlement value date.
// Captures appear once as received (no value date) and once as captured
// (with value date).
func (r *ReportRow) HasValueDate() bool {
	return r.ValueDate != nil && !r.ValueDate.IsZero()
}

// Identifier returns a human-readable identifier for operator diagnosis.
func (r *ReportRow) Identifier() string {
	parts := []string{}
	if r.TransferID != "" {
		parts = append(parts, "transfer="+r.TransferID)
	}
	if r.PspPaymentPspReference != "" {
		parts = append(parts, "psp="+r.PspPaymentPspReference)
	}
	parts = append(parts, fmt.Sprintf("category=%s type=%s status=%s", r.Category, r.Type, r.Status))
	return strings.Join(parts, " ")
}

// String returns a string representation of the ReportRow.
func (r *ReportRow) String() string {
	return fmt.Sprintf("ReportRow{%s, amount: %s %s}", r.Identifier(), r.Amount().String(), r.Currency)
}

// Validate performs basic validation on the ReportRow.
func (r *ReportRow) Validate() error {
	if !r.Category.IsValid() {
		return fmt.Errorf("invalid row category: %s", r.Category)
	}

	if strings.TrimSpace(string(r.Type)) == "" {
		return fmt.Errorf("row type cannot be empty")
	}

	if strings.TrimSpace(r.Currency) == "" {
		return fmt.Errorf("row currency cannot be empty")
	}

	if r.BookingDate.IsZero() {
		return fmt.Errorf("row booking date cannot be zero")
	}

	return nil
}
