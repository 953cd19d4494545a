package money

import (
	"fmt"
	"math"
)

// Money is a signed amount of minor currency units (cents) tagged with a
// 3-letter currency code. Arithmetic never touches floating point.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Cents constructs a Money value from an amount of minor units.
func Cents(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns the zero value for the provided currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// Add returns m + other. Currencies must match.
func (m Money) Add(other Money) Money {
	assertSameCurrency(m, other)
	sum, ok := addChecked(m.Amount, other.Amount)
	if !ok {
		panic(fmt.Sprintf("money: overflow adding %d and %d %s", m.Amount, other.Amount, m.Currency))
	}
	return Money{Amount: sum, Currency: m.Currency}
}

// Sub returns m - other. Currencies must match. The result may be negative;
// callers computing totals should use SubFloor.
func (m Money) Sub(other Money) Money {
	assertSameCurrency(m, other)
	diff, ok := addChecked(m.Amount, -other.Amount)
	if !ok {
		panic(fmt.Sprintf("money: overflow subtracting %d from %d %s", other.Amount, m.Amount, m.Currency))
	}
	return Money{Amount: diff, Currency: m.Currency}
}

// SubFloor returns max(0, m - other). Totals never go negative.
func (m Money) SubFloor(other Money) Money {
	return m.Sub(other).Max0()
}

// MulQty returns m multiplied by a line quantity.
func (m Money) MulQty(qty int) Money {
	if qty < 0 {
		panic(fmt.Sprintf("money: negative quantity %d", qty))
	}
	if qty != 0 && m.Amount != 0 {
		if m.Amount > math.MaxInt64/int64(qty) || m.Amount < math.MinInt64/int64(qty) {
			panic(fmt.Sprintf("money: overflow multiplying %d %s by %d", m.Amount, m.Currency, qty))
		}
	}
	return Money{Amount: m.Amount * int64(qty), Currency: m.Currency}
}

// PercentOf computes bps/10000 of the amount using round-half-up division.
// A 30% discount is expressed as 3000 basis points.
func (m Money) PercentOf(bps int64) Money {
	if bps < 0 {
		panic(fmt.Sprintf("money: negative basis points %d", bps))
	}
	if m.Amount != 0 && bps != 0 {
		if abs64(m.Amount) > math.MaxInt64/bps {
			panic(fmt.Sprintf("money: overflow computing %d bps of %d %s", bps, m.Amount, m.Currency))
		}
	}
	product := m.Amount * bps
	return Money{Amount: divRoundHalfUp(product, 10000), Currency: m.Currency}
}

// Max0 clamps negative amounts to zero.
func (m Money) Max0() Money {
	if m.Amount < 0 {
		return Money{Currency: m.Currency}
	}
	return m
}

// Cmp compares two amounts of the same currency: -1, 0 or 1.
func (m Money) Cmp(other Money) int {
	assertSameCurrency(m, other)
	switch {
	case m.Amount < other.Amount:
		return -1
	case m.Amount > other.Amount:
		return 1
	default:
		return 0
	}
}

// GTE reports whether m >= other.
func (m Money) GTE(other Money) bool {
	return m.Cmp(other) >= 0
}

// Min returns the smaller of the two amounts.
func Min(a, b Money) Money {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// String renders the raw minor-unit amount with its currency, e.g. "2500 USD".
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// divRoundHalfUp divides num by den rounding halves away from zero toward
// positive infinity for positive values (round-half-up policy).
func divRoundHalfUp(num, den int64) int64 {
	if den <= 0 {
		panic(fmt.Sprintf("money: invalid divisor %d", den))
	}
	if num >= 0 {
		return (num + den/2) / den
	}
	// Negative amounts round the magnitude half-up as well.
	return -((-num + den/2) / den)
}

func addChecked(a, b int64) (int64, bool) {
	sum := a + b
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum > 0) {
		return 0, false
	}
	return sum, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func assertSameCurrency(a, b Money) {
	if a.Currency != b.Currency {
		panic(fmt.Sprintf("money: currency mismatch %q vs %q", a.Currency, b.Currency))
	}
}
