// Package core provides money parsing and handling utilities.
//
// Amounts are exact decimals. Sums never go through float64.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxAmountScale is the number of decimal places an amount may carry.
	MaxAmountScale = 4
	// MaxAmountDigits bounds the integer part of an amount.
	MaxAmountDigits = 15
)

var maxAmount = decimal.New(1, MaxAmountDigits)

// ParseAmount parses a strictly positive decimal amount in plain notation.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Exponent forms are rejected. Up to MaxAmountScale decimal places are
// kept as given; callers decide on rounding when presenting.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("0")     -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Invalid("Amount must be greater than zero.")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, Invalid("Amount must be greater than zero.")
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, Invalid("Amount must be greater than zero.")
	}
	if !d.Equal(d.Truncate(MaxAmountScale)) {
		return decimal.Zero, Invalid("Amount must have at most 4 decimal places.")
	}
	if d.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, Invalid("Amount is too large.")
	}
	return d.Truncate(MaxAmountScale), nil
}
