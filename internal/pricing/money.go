package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a non-negative monetary value.
type Money = decimal.Decimal

// Percentage is a plain percentage value such as 15 for 15%.
type Percentage = decimal.Decimal

const (
	// PriceScale is the number of decimals used for prices and totals.
	PriceScale int32 = 2
	// CostScale is the number of decimals used for unit costs.
	CostScale int32 = 4
)

var (
	// ErrInvalidAmount is returned when a value cannot be parsed as a decimal number.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeAmount is returned when a monetary value or percentage is negative.
	ErrNegativeAmount = errors.New("amount must not be negative")
	// ErrPercentageRange is returned when a tax percentage falls outside [0, 100].
	ErrPercentageRange = errors.New("percentage must be between 0 and 100")
)

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ParseMoney converts a form value into Money. Empty input yields zero.
func ParseMoney(raw string) (Money, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return zero, err
	}
	if d.IsNegative() {
		return zero, fmt.Errorf("%s: %w", raw, ErrNegativeAmount)
	}
	return d, nil
}

// ParsePercentage converts a form value into a non-negative Percentage.
// Margins may exceed 100.
func ParsePercentage(raw string) (Percentage, error) {
	return ParseMoney(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
}

// ParseTaxPercentage parses a tax percentage and enforces the [0, 100] range.
func ParseTaxPercentage(raw string) (Percentage, error) {
	p, err := ParsePercentage(raw)
	if err != nil {
		return zero, err
	}
	if p.GreaterThan(hundred) {
		return zero, fmt.Errorf("%s: %w", raw, ErrPercentageRange)
	}
	return p, nil
}

// FormatPrice renders a price or total with two decimals.
func FormatPrice(m Money) string {
	return RoundPrice(m).StringFixed(PriceScale)
}

// FormatCost renders a unit cost with four decimals.
func FormatCost(m Money) string {
	return RoundCost(m).StringFixed(CostScale)
}

// FormatPercentage renders a percentage without a trailing sign.
func FormatPercentage(p Percentage) string {
	return p.StringFixed(PriceScale)
}

// FormatMargin renders a margin with at least two decimals and keeps any extra
// precision a derived margin carries.
func FormatMargin(p Percentage) string {
	if p.Equal(p.Round(PriceScale)) {
		return p.StringFixed(PriceScale)
	}
	return p.String()
}

// RoundPrice rounds half away from zero to two decimals.
func RoundPrice(m Money) Money {
	return m.Round(PriceScale)
}

// RoundCost rounds half away from zero to four decimals.
func RoundCost(m Money) Money {
	return m.Round(CostScale)
}

func nonNegative(m Money) Money {
	if m.IsNegative() {
		return zero
	}
	return m
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return zero, nil
	}
	// form inputs in es-EC locales use a comma separator
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return zero, fmt.Errorf("%q: %w", raw, ErrInvalidAmount)
	}
	return d, nil
}
