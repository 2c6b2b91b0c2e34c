// Package classifier routes settlement report rows into category-specific
// correlation buffers.
//
// Classification is deterministic and based solely on the row's
// (category, type) pair; any combination without an explicit rule is rejected
// as an unsupported row, which rejects that single row but not the run. Rows
// belonging to the platform's own liable account holder are internal
// bookkeeping and are filtered out before correlation for the chargeback and
// internal-transfer categories.
package classifier

import (
	"time"

	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/pkg/errors"
	"psp-settlement-reconciler/pkg/logger"
)

// BalanceObserver receives balance-category rows. The balance pass is
// independent of the accounting pass and is not correlated with it.
type BalanceObserver interface {
	Observe(row *models.ReportRow)
}

// Config holds configuration options for the classifier.
type Config struct {
	// LiableAccountHolder is the platform's own internal settlement account.
	// Rows it holds are excluded from chargeback and internal-transfer
	// correlation.
	LiableAccountHolder string

	// ManualCorrectionCutoff is the date before which manualCorrection rows
	// are silently ignored as legacy data.
	ManualCorrectionCutoff time.Time
}

// DefaultConfig returns a default classifier configuration.
func DefaultConfig() *Config {
	return &Config{
		ManualCorrectionCutoff: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Classifier buffers report rows by category and correlation key. State lives
// only for one reconciliation run; every run starts with empty buffers.
type Classifier struct {
	config  *Config
	logger  logger.Logger
	buffers map[Bucket]*Buffer
	balance BalanceObserver
}

// New creates a classifier with empty buffers.
func New(config *Config, balance BalanceObserver) *Classifier {
	if config == nil {
		config = DefaultConfig()
	}

	buffers := make(map[Bucket]*Buffer, len(AllBuckets))
	for _, bucket := range AllBuckets {
		buffers[bucket] = NewBuffer()
	}

	return &Classifier{
		config:  config,
		logger:  logger.GetGlobalLogger().WithComponent("classifier"),
		buffers: buffers,
		balance: balance,
	}
}

// Buffer returns the correlation buffer for a bucket.
func (c *Classifier) Buffer(bucket Bucket) *Buffer {
	return c.buffers[bucket]
}

// IsPayoutRow reports whether a bank-category row represents a payout to the
// merchant's bank account.
func IsPayoutRow(row *models.ReportRow) bool {
	return row.Category == models.CategoryBank &&
		row.Type == models.TypeBankTransfer &&
		row.Status == models.StatusBooked
}

// Classify routes one report row into the correct buffer, or to the balance
// observer. An unsupported (category, type, status) combination returns an
// error for that row only.
func (c *Classifier) Classify(row *models.ReportRow) error {
	switch row.Category {
	case models.CategoryPlatformPayment:
		return c.classifyPlatformPayment(row)

	case models.CategoryBank:
		if IsPayoutRow(row) {
			return c.bufferByTransfer(BucketPayouts, row)
		}
		// Non-payout bank rows (incoming transfers, fees held at the bank
		// level) carry no postings in the accounting pass.
		c.logger.WithField("row", row.Identifier()).Debug("Ignoring non-payout bank row")
		return nil

	case models.CategoryInternal:
		return c.classifyInternal(row)

	case models.CategoryTopUp:
		if row.Status != models.StatusCaptured {
			c.logger.WithField("row", row.Identifier()).Debug("Ignoring non-captured top-up row")
			return nil
		}
		if row.PspPaymentPspReference == "" {
			return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String()).
				WithContext("reason", "top-up row without PSP payment reference")
		}
		c.buffers[BucketTopUps].Append(row.PspPaymentPspReference, row)
		return nil

	case models.CategoryBalance:
		if c.balance != nil {
			c.balance.Observe(row)
		}
		return nil

	default:
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String())
	}
}

func (c *Classifier) classifyPlatformPayment(row *models.ReportRow) error {
	switch row.Type {
	case models.TypeCapture:
		return c.bufferCapture(row)

	case models.TypeChargeback, models.TypeSecondChargeback:
		if c.isLiableAccountHolder(row) {
			c.logger.WithField("row", row.Identifier()).Debug("Excluding liable account holder chargeback row")
			return nil
		}
		return c.bufferModification(BucketChargebacks, row,
			models.StatusChargeback, models.StatusSecondChargeback)

	case models.TypeChargebackReversal:
		return c.bufferModification(BucketChargebackReversals, row, models.StatusChargebackReversed)

	case models.TypeRefund:
		return c.bufferModification(BucketRefunds, row, models.StatusRefunded)

	case models.TypeRefundReversal:
		return c.bufferModification(BucketRefundReversals, row, models.StatusRefundReversed)

	case models.TypeCaptureReversal:
		return c.bufferModification(BucketPaymentReversals, row, models.StatusCaptureReversed)

	default:
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String())
	}
}

func (c *Classifier) classifyInternal(row *models.ReportRow) error {
	if row.Type == models.TypeManualCorrection {
		if row.BookingDate.Before(c.config.ManualCorrectionCutoff) {
			// Legacy corrections predate the current ledger and carry no
			// postings.
			c.logger.WithField("row", row.Identifier()).Debug("Ignoring legacy manual correction row")
			return nil
		}
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String())
	}

	if row.Type != models.TypeInternalTransfer || row.Status != models.StatusBooked {
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String())
	}

	if c.isLiableAccountHolder(row) {
		c.logger.WithField("row", row.Identifier()).Debug("Excluding liable account holder transfer row")
		return nil
	}

	return c.bufferByTransfer(BucketInternalTransfers, row)
}

// bufferCapture handles captures, which may appear twice per line item: once
// as received (no value date) and once as captured (with the settlement value
// date). Captured rows are authoritative. Line items within one PSP reference
// are distinguished by description and amount; two distinct items sharing
// both fields will merge.
func (c *Classifier) bufferCapture(row *models.ReportRow) error {
	if row.Status != models.StatusCaptured && row.Status != models.StatusReceived {
		c.logger.WithField("row", row.Identifier()).Debug("Dropping capture row with transient status")
		return nil
	}

	if row.PspPaymentPspReference == "" {
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String()).
			WithContext("reason", "capture row without PSP payment reference")
	}

	key := row.PspPaymentPspReference
	buffer := c.buffers[BucketPayments]

	for i, existing := range buffer.Rows(key) {
		if existing.Description == row.Description && existing.AmountMinor == row.AmountMinor {
			if existing.Status == models.StatusReceived {
				buffer.ReplaceAt(key, i, row)
			}
			// The same line item at an earlier settlement stage; nothing to
			// add.
			return nil
		}
	}

	buffer.Append(key, row)
	return nil
}

// bufferModification validates a modification row's status against the
// allow-list for its type and buffers it keyed by the modification reference.
func (c *Classifier) bufferModification(bucket Bucket, row *models.ReportRow, allowed ...models.RowStatus) error {
	valid := false
	for _, status := range allowed {
		if row.Status == status {
			valid = true
			break
		}
	}
	if !valid {
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String()).
			WithContext("reason", "status outside the allow-list for this row type")
	}

	if row.PspModificationPspReference == "" {
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String()).
			WithContext("reason", "modification row without modification reference")
	}

	c.buffers[bucket].Append(row.PspModificationPspReference, row)
	return nil
}

func (c *Classifier) bufferByTransfer(bucket Bucket, row *models.ReportRow) error {
	if row.TransferID == "" {
		return errors.UnsupportedRowError(row.TransferID, row.Category.String(), row.Type.String(), row.Status.String()).
			WithContext("reason", "row without transfer id")
	}

	c.buffers[bucket].Append(row.TransferID, row)
	return nil
}

func (c *Classifier) isLiableAccountHolder(row *models.ReportRow) bool {
	return c.config.LiableAccountHolder != "" && row.AccountHolder == c.config.LiableAccountHolder
}
