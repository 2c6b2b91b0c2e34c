package classifier

import (
	"psp-settlement-reconciler/internal/models"
)

// Bucket identifies one category-specific correlation buffer.
type Bucket string

const (
	BucketPayments            Bucket = "payments"
	BucketInternalTransfers   Bucket = "internal_transfers"
	BucketRefunds             Bucket = "refunds"
	BucketRefundReversals     Bucket = "refund_reversals"
	BucketChargebacks         Bucket = "chargebacks"
	BucketChargebackReversals Bucket = "chargeback_reversals"
	BucketPayouts             Bucket = "payouts"
	BucketTopUps              Bucket = "top_ups"
	BucketPaymentReversals    Bucket = "payment_reversals"
)

// AllBuckets lists every bucket in its fixed flush order: payouts settle
// prior transactions, so all transaction-level buckets flush before payouts,
// and reversals flush after the postings they compensate.
var AllBuckets = []Bucket{
	BucketPayments,
	BucketInternalTransfers,
	BucketRefunds,
	BucketRefundReversals,
	BucketChargebacks,
	BucketChargebackReversals,
	BucketPayouts,
	BucketTopUps,
	BucketPaymentReversals,
}

// Buffer accumulates report rows per correlation key, preserving both the
// insertion order of keys and the arrival order of rows within a key so
// flushing is deterministic.
type Buffer struct {
	keys   []string
	groups map[string][]*models.ReportRow
}

// NewBuffer creates an empty correlation buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		groups: make(map[string][]*models.ReportRow),
	}
}

// Append adds a row to the group for the given correlation key.
func (b *Buffer) Append(key string, row *models.ReportRow) {
	if _, exists := b.groups[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.groups[key] = append(b.groups[key], row)
}

// Rows returns the accumulated rows for a correlation key.
func (b *Buffer) Rows(key string) []*models.ReportRow {
	return b.groups[key]
}

// ReplaceAt swaps the row at index i of the key's group for a new row.
func (b *Buffer) ReplaceAt(key string, i int, row *models.ReportRow) {
	rows := b.groups[key]
	if i >= 0 && i < len(rows) {
		rows[i] = row
	}
}

// Keys returns the correlation keys in insertion order.
func (b *Buffer) Keys() []string {
	return b.keys
}

// Len returns the number of event groups in the buffer.
func (b *Buffer) Len() int {
	return len(b.keys)
}

// Each calls fn for every event group in insertion order.
func (b *Buffer) Each(fn func(key string, rows []*models.ReportRow)) {
	for _, key := range b.keys {
		fn(key, b.groups[key])
	}
}
