package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseMinorUnits parses a minor-unit amount from a CSV field. The processor
// exports integer minor units, but some manual exports carry thousand
// separators which are tolerated here.
func ParseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	s = strings.ReplaceAll(s, ",", "")

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid minor unit amount '%s': %w", s, err)
	}

	return v, nil
}

// ParseReportTime attempts to parse a timestamp from a settlement report
// using the formats the processor is known to emit.
func ParseReportTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
		"01/02/2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// CreateReportRowFromCSV creates a ReportRow from a map of normalized column
// name to raw field value. Optional fields may be absent from the map.
func CreateReportRowFromCSV(fields map[string]string) (*ReportRow, error) {
	amountMinor, err := ParseMinorUnits(fields["amount"])
	if err != nil {
		return nil, fmt.Errorf("invalid amount in CSV: %w", err)
	}

	balanceMinor, err := ParseMinorUnits(fields["balance"])
	if err != nil {
		return nil, fmt.Errorf("invalid balance in CSV: %w", err)
	}

	bookingDate, err := ParseReportTime(fields["booking_date"])
	if err != nil {
		return nil, fmt.Errorf("invalid booking date in CSV: %w", err)
	}

	var valueDate *time.Time
	if raw := strings.TrimSpace(fields["value_date"]); raw != "" {
		vd, err := ParseReportTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value date in CSV: %w", err)
		}
		valueDate = &vd
	}

	row := &ReportRow{
		Category:                    RowCategory(strings.TrimSpace(fields["category"])),
		Type:                        RowType(strings.TrimSpace(fields["type"])),
		Status:                      RowStatus(strings.TrimSpace(fields["status"])),
		TransferID:                  strings.TrimSpace(fields["transfer_id"]),
		PspPaymentPspReference:      strings.TrimSpace(fields["psp_payment_psp_reference"]),
		PspModificationPspReference: strings.TrimSpace(fields["psp_modification_psp_reference"]),
		BalanceAccountReference:     strings.TrimSpace(fields["balance_account_reference"]),
		AccountHolder:               strings.TrimSpace(fields["accountholder"]),
		Description:                 strings.TrimSpace(fields["description"]),
		AmountMinor:                 amountMinor,
		Currency:                    strings.ToUpper(strings.TrimSpace(fields["currency"])),
		BalanceMinor:                balanceMinor,
		BookingDate:                 bookingDate,
		ValueDate:                   valueDate,
	}

	if err := row.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report row data: %w", err)
	}

	return row, nil
}
