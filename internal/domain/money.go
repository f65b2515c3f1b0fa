package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code accepted by the system.
type Currency string

const (
	CurrencyBRL Currency = "BRL"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var supportedCurrencies = []Currency{CurrencyBRL, CurrencyUSD, CurrencyEUR, CurrencyGBP}

// SupportedCurrencies lists the currencies Money accepts.
func SupportedCurrencies() []Currency {
	out := make([]Currency, len(supportedCurrencies))
	copy(out, supportedCurrencies)
	return out
}

// ParseCurrency normalizes raw and checks it against the supported set.
func ParseCurrency(raw string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range supportedCurrencies {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported currency %q", ErrInvalidTransaction, raw)
}

// Money represents a positive monetary value in a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

// NewMoney validates amount > 0 and a supported currency.
func NewMoney(amount decimal.Decimal, currency Currency) (Money, error) {
	if !amount.IsPositive() {
		return Money{}, fmt.Errorf("%w: money amount must be greater than zero", ErrInvalidTransaction)
	}
	c, err := ParseCurrency(string(currency))
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: c}, nil
}

// Equal compares amount numerically, so 10 and 10.00 are the same value.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}
