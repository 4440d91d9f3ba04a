package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	moneyDecimalPlaces int32 = 2
	percentScale       int64 = 100
	maxAmountCents     int64 = 100_000_000_000_000
)

// AmountCents is a non-negative currency amount in cents.
type AmountCents int64

// SignedAmountCents is a balance delta in cents.
type SignedAmountCents int64

// Percent is a whole percentage in the range 0..100.
type Percent int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	if raw > maxAmountCents {
		return 0, fmt.Errorf("%w: exceeds maximum", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// NewPositiveAmountCents validates an amount and ensures it is strictly positive.
func NewPositiveAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return NewAmountCents(raw)
}

// ParseAmount converts a decimal string such as "12.34" into cents.
// More than two fractional digits are rejected rather than rounded.
func ParseAmount(raw string) (AmountCents, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return AmountFromDecimal(value)
}

// AmountFromDecimal converts an exact two-place decimal into cents.
func AmountFromDecimal(value decimal.Decimal) (AmountCents, error) {
	if value.IsNegative() {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	shifted := value.Shift(moneyDecimalPlaces)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, moneyDecimalPlaces)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: exceeds maximum", ErrInvalidAmount)
	}
	return NewAmountCents(shifted.IntPart())
}

// Int64 returns the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Decimal returns the amount in major units.
func (amount AmountCents) Decimal() decimal.Decimal {
	return decimal.New(int64(amount), -moneyDecimalPlaces)
}

// String renders the amount with exactly two decimal digits.
func (amount AmountCents) String() string {
	return amount.Decimal().StringFixed(moneyDecimalPlaces)
}

// Signed returns the amount as a positive delta.
func (amount AmountCents) Signed() SignedAmountCents {
	return SignedAmountCents(amount)
}

// Negated returns the amount as a negative delta.
func (amount AmountCents) Negated() SignedAmountCents {
	return SignedAmountCents(-int64(amount))
}

// Int64 returns the raw cents value.
func (delta SignedAmountCents) Int64() int64 {
	return int64(delta)
}

// String renders the delta with exactly two decimal digits.
func (delta SignedAmountCents) String() string {
	return decimal.New(int64(delta), -moneyDecimalPlaces).StringFixed(moneyDecimalPlaces)
}

// NewPercent validates a whole percentage.
func NewPercent(raw int64) (Percent, error) {
	if raw < 0 || raw > percentScale {
		return 0, fmt.Errorf("%w: %d is outside 0..100", ErrInvalidPercent, raw)
	}
	return Percent(raw), nil
}

// Int64 returns the raw percentage.
func (percent Percent) Int64() int64 {
	return int64(percent)
}

// percentOf returns amount*percent/100 rounded half-up to the cent.
func percentOf(amount AmountCents, percent Percent) AmountCents {
	return AmountCents((int64(amount)*int64(percent) + percentScale/2) / percentScale)
}

// addAmounts sums two amounts, rejecting results above the supported maximum.
func addAmounts(left AmountCents, right AmountCents) (AmountCents, error) {
	return NewAmountCents(int64(left) + int64(right))
}
