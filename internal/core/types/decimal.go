// Package types provides the monetary value type used by deals and payments.
package types

import (
	"github.com/shopspring/decimal"

	"crm/internal/core/apperror"
)

// Scale is the number of decimal places money columns store.
const Scale = 2

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewMoneyFromInt creates a Money value from a whole number.
func NewMoneyFromInt(v int64) Money {
	return decimal.NewFromInt(v)
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// LineTotal returns qty * price.
func LineTotal(qty int64, price Money) Money {
	return price.Mul(decimal.NewFromInt(qty))
}

// Sum adds up values.
func Sum(values ...Money) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// FloorZero returns v, or zero when v is negative.
func FloorZero(v Money) Money {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// ValidScale reports whether v fits in Scale decimal places.
func ValidScale(v Money) bool {
	return v.Equal(v.Round(Scale))
}

// CheckScale rejects amounts the database would round on write.
func CheckScale(field string, v Money) error {
	if ValidScale(v) {
		return nil
	}
	return apperror.NewValidation("amount has more than 2 decimal places").
		WithDetail("field", field).
		WithDetail("value", v.String())
}
