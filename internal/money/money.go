// Package money converts between decimal major-unit amounts used on the wire and
// the integer minor units stored by the ledger.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorExponent is the number of decimal places in a minor unit. Every
// supported currency uses cents.
const minorExponent = 2

var (
	// ErrInvalidAmount is returned for empty, non-numeric, non-positive or
	// over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParseMinor parses a decimal string such as "50.00" into minor units (5000).
// Amounts with more than two fractional digits are rejected rather than rounded.
func ParseMinor(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, raw)
	}
	return FromDecimal(d)
}

// FromDecimal converts a major-unit decimal into minor units.
func FromDecimal(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	minor := d.Shift(minorExponent)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, minorExponent)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}
	return minor.IntPart(), nil
}

// FormatMinor renders minor units as a fixed two-place decimal string.
func FormatMinor(minor int64) string {
	return decimal.New(minor, -minorExponent).StringFixed(minorExponent)
}

// NormalizeCurrency lowercases and trims an ISO currency code.
func NormalizeCurrency(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
