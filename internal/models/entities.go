package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tenant is the owner of a ledger. Every posting executes under exactly one
// tenant's context.
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TimeZone string `json:"time_zone"`
}

// Location returns the tenant's configured time zone, falling back to UTC if
// the zone is unset or unknown.
func (t *Tenant) Location() *time.Location {
	if t == nil || t.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MerchantAccount maps a processor store/balance-account reference to the
// tenant that owns it. The reference is looked up without tenant scoping
// because a report row's correlation key is received before the tenant is
// known.
type MerchantAccount struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Gateway   string `json:"gateway"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
}

// String returns a string representation of the MerchantAccount.
func (m *MerchantAccount) String() string {
	return fmt.Sprintf("MerchantAccount{ID: %s, Tenant: %s, Reference: %s}", m.ID, m.TenantID, m.Reference)
}

// TransactionType classifies a posted ledger transaction.
type TransactionType string

const (
	TransactionCapture          TransactionType = "capture"
	TransactionCaptureReversal  TransactionType = "captureReversal"
	TransactionRefund           TransactionType = "refund"
	TransactionRefundReversal   TransactionType = "refundReversal"
	TransactionChargeback       TransactionType = "chargeback"
	TransactionChargebackRevers TransactionType = "chargebackReversal"
	TransactionInternalTransfer TransactionType = "internalTransfer"
	TransactionTopUp            TransactionType = "topUp"
)

// Transaction is a posted ledger entry owned by a merchant account. The
// external reference is the correlation key the posting was derived from and
// is the idempotency anchor: handlers look it up before creating a new entry.
type Transaction struct {
	ID                string          `json:"id"`
	MerchantAccountID string          `json:"merchant_account_id"`
	TenantID          string          `json:"tenant_id"`
	Type              TransactionType `json:"type"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ValueDate         *time.Time      `json:"value_date,omitempty"`
	PayoutID          string          `json:"payout_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// String returns a string representation of the Transaction.
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Type: %s, Ref: %s, Amount: %s %s}",
		t.ID, t.Type, t.ExternalReference, t.Amount.String(), t.Currency)
}

// Payout is a settlement batch paid out to a merchant's bank account. The
// transfer ID is the processor's identifier for the bank transfer and the
// idempotency anchor for payout postings.
type Payout struct {
	ID                string          `json:"id"`
	MerchantAccountID string          `json:"merchant_account_id"`
	TenantID          string          `json:"tenant_id"`
	TransferID        string          `json:"transfer_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	BookedAt          time.Time       `json:"booked_at"`
	CreatedAt         time.Time       `json:"created_at"`
}

// String returns a string representation of the Payout.
func (p *Payout) String() string {
	return fmt.Sprintf("Payout{ID: %s, Transfer: %s, Amount: %s %s}",
		p.ID, p.TransferID, p.Amount.String(), p.Currency)
}

// TransferDetails is the result of a transfer lookup against the processor's
// API, used by the payout linkage pass to resolve a canonical modification
// reference for rows that do not carry one inline.
type TransferDetails struct {
	TransferID            string `json:"transfer_id"`
	ModificationReference string `json:"modification_reference"`
	Category              string `json:"category"`
	Status                string `json:"status"`
}
