// Package balance implements the closing-balance monitor.
//
// The monitor runs as an independent pass over the report's balance rows. It
// is not correlated with the accounting categories; it only tracks the latest
// closing balance per balance account and flags accounts that went negative.
package balance

import (
	"time"

	"psp-settlement-reconciler/internal/models"
	"psp-settlement-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// AccountBalance is the latest observed closing balance of one balance
// account.
type AccountBalance struct {
	Reference     string          `json:"reference"`
	AccountHolder string          `json:"accountholder"`
	Currency      string          `json:"currency"`
	Closing       decimal.Decimal `json:"closing"`
	BookingDate   time.Time       `json:"booking_date"`
}

// IsNegative reports whether the account closed below zero.
func (b *AccountBalance) IsNegative() bool {
	return b.Closing.IsNegative()
}

// Report is the outcome of the balance pass.
type Report struct {
	Accounts []*AccountBalance `json:"accounts"`
	Negative []*AccountBalance `json:"negative"`
}

// Monitor scans closing-balance rows and detects negative balances.
type Monitor struct {
	logger logger.Logger

	order    []string
	balances map[string]*AccountBalance
}

// NewMonitor creates an empty balance monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		logger:   logger.GetGlobalLogger().WithComponent("balance_monitor"),
		balances: make(map[string]*AccountBalance),
	}
}

// Observe records a balance-category row. Later rows for the same account
// replace earlier ones; the report reflects the last closing balance seen.
func (m *Monitor) Observe(row *models.ReportRow) {
	if row.Category != models.CategoryBalance {
		return
	}

	reference := row.BalanceAccountReference
	if reference == "" {
		reference = row.AccountHolder
	}
	if reference == "" {
		m.logger.WithField("row", row.Identifier()).Debug("Ignoring balance row without account reference")
		return
	}

	if _, seen := m.balances[reference]; !seen {
		m.order = append(m.order, reference)
	}

	m.balances[reference] = &AccountBalance{
		Reference:     reference,
		AccountHolder: row.AccountHolder,
		Currency:      row.Currency,
		Closing:       row.Balance(),
		BookingDate:   row.BookingDate,
	}
}

// Report returns the observed balances in first-seen order, with negative
// balances collected separately.
func (m *Monitor) Report() *Report {
	report := &Report{}

	for _, reference := range m.order {
		account := m.balances[reference]
		report.Accounts = append(report.Accounts, account)
		if account.IsNegative() {
			m.logger.WithFields(logger.Fields{
				"reference": account.Reference,
				"closing":   account.Closing.String(),
				"currency":  account.Currency,
			}).Warn("Negative closing balance detected")
			report.Negative = append(report.Negative, account)
		}
	}

	return report
}
