package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits every amount is stored with.
const MoneyScale = 2

// HasValidScale reports whether amount fits in MoneyScale fractional digits.
func HasValidScale(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(MoneyScale))
}

