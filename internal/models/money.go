package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents maps ISO 4217 currency codes to the number of minor-unit
// digits the processor uses when encoding amounts. Currencies not listed here
// use the default of two.
var currencyExponents = map[string]int32{
	"BHD": 3,
	"CLP": 0,
	"CVE": 0,
	"DJF": 0,
	"GNF": 0,
	"IDR": 0,
	"IQD": 3,
	"ISK": 0,
	"JOD": 3,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"KWD": 3,
	"LYD": 3,
	"OMR": 3,
	"PYG": 0,
	"RWF": 0,
	"TND": 3,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"XOF": 0,
	"XPF": 0,
}

const defaultCurrencyExponent int32 = 2

// CurrencyExponent returns the minor-unit exponent for a currency code.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return exp
	}
	return defaultCurrencyExponent
}

// AmountFromMinorUnits converts a processor amount in minor units into a
// decimal in major units (e.g. 1250 EUR minor units -> 12.50).
func AmountFromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -CurrencyExponent(currency))
}

// MinorUnitsFromAmount converts a major-unit decimal back into the
// processor's minor-unit encoding. It returns an error if the amount has more
// precision than the currency allows.
func MinorUnitsFromAmount(amount decimal.Decimal, currency string) (int64, error) {
	exp := CurrencyExponent(currency)
	shifted := amount.Shift(exp)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", amount.String(), currency)
	}
	return shifted.IntPart(), nil
}

// SumRowAmounts sums the amounts of all rows in an event group. Posting
// handlers must account for every row's amount rather than trusting any
// single row, since split captures and fee adjustments appear as separate
// line items under one correlation key.
func SumRowAmounts(rows []*ReportRow) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount())
	}
	return total
}
