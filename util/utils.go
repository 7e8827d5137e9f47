package util

import (
	"github.com/shopspring/decimal"
)

// StrNotSet will return true if the string value provided is empty
func StrNotSet(value string) bool {
	return len(value) == 0
}

// ParseTokens parses an integer token amount as served by the REST API. Invalid input yields zero.
func ParseTokens(amount string) decimal.Decimal {
	num, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero
	}
	return num
}

func MaxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
