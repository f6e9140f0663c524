package domain

import "regexp"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// NewMoney validates and constructs a Money value per spec §3: amount must be
// positive with at most two fractional digits (enforced by minor-unit
// representation — AmountMinor is always an integer number of cents), and
// currency must be a 3-letter uppercase ISO 4217 code.
func NewMoney(amountMinor int64, currency string) (Money, error) {
	if amountMinor <= 0 {
		return Money{}, NewInvalidAmountError(amountMinor)
	}
	if !currencyPattern.MatchString(currency) {
		return Money{}, NewInvalidCurrencyError(currency)
	}
	return Money{AmountMinor: amountMinor, Currency: currency}, nil
}
