// Package money converts fixed-point amounts to and from a currency's minor
// unit. Amounts are shopspring decimals everywhere; int64 minor units only
// appear at a gateway boundary.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	SGD Currency = "SGD"
	JPY Currency = "JPY"
	IDR Currency = "IDR"
)

// ISO 4217 minor unit exponents.
var exponents = map[Currency]int32{
	USD: 2,
	EUR: 2,
	GBP: 2,
	SGD: 2,
	JPY: 0,
	IDR: 2,
}

func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := exponents[c]; !ok {
		return "", fmt.Errorf("unsupported currency %q", s)
	}
	return c, nil
}

func (c Currency) Valid() bool {
	_, ok := exponents[c]
	return ok
}

func (c Currency) Exponent() int32 {
	return exponents[c]
}

// Validate checks that amount is positive and carries no more fractional
// digits than the currency allows.
func Validate(amount decimal.Decimal, c Currency) error {
	if !c.Valid() {
		return fmt.Errorf("unsupported currency %q", c)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if !amount.Equal(amount.Truncate(c.Exponent())) {
		return fmt.Errorf("amount %s has more than %d decimal places for %s", amount, c.Exponent(), c)
	}
	return nil
}

// ToMinor converts amount to the currency's minor unit. Amounts that would
// need rounding are rejected.
func ToMinor(amount decimal.Decimal, c Currency) (int64, error) {
	return ToMinorExp(amount, c.Exponent())
}

// ToMinorExp is ToMinor with an explicit exponent, for gateways whose
// convention differs from ISO 4217.
func ToMinorExp(amount decimal.Decimal, exp int32) (int64, error) {
	if !amount.Equal(amount.Truncate(exp)) {
		return 0, fmt.Errorf("amount %s cannot be expressed with %d decimal places", amount, exp)
	}
	return amount.Shift(exp).IntPart(), nil
}

func FromMinor(minor int64, c Currency) decimal.Decimal {
	return FromMinorExp(minor, c.Exponent())
}

func FromMinorExp(minor int64, exp int32) decimal.Decimal {
	return decimal.New(minor, -exp)
}
