package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Price is a fixed-precision price value object.
//
// Polymarket tick sizes can be 0.1 / 0.01 / 0.001 / 0.0001, so the internal
// unit is 1e-4 (pips):
//   - 1 pip    = 0.0001
//   - 100 pips = 0.01 (one cent)
//   - 10000    = 1.0
//
// Spread sums of two legs can exceed 1.0, so Pips is not bounded to 9999.
type Price struct {
	Pips int
}

// PriceFromDecimal converts a decimal price, rounding to 1e-4.
func PriceFromDecimal(decimal float64) Price {
	return Price{Pips: int(math.Round(decimal * 10000))}
}

// PriceFromCents converts a whole-cent price (100 pips per cent).
func PriceFromCents(cents int) Price {
	return Price{Pips: cents * 100}
}

// ToDecimal converts to a decimal price (6000 pips = 0.6000).
func (p Price) ToDecimal() float64 {
	return float64(p.Pips) / 10000.0
}

// ToCents returns the price in whole cents, rounded. Display/threshold use
// only; the internal unit stays pips.
func (p Price) ToCents() int {
	return int(math.Round(float64(p.Pips) / 100.0))
}

// ParsePrice parses a decimal price string as sent on the wire ("0.485").
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Price{}, fmt.Errorf("empty price string")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Price{}, fmt.Errorf("parse price %q: %w", s, err)
	}
	if f < 0 {
		return Price{}, fmt.Errorf("negative price %q", s)
	}
	return PriceFromDecimal(f), nil
}

func (p Price) String() string {
	return strconv.FormatFloat(p.ToDecimal(), 'f', -1, 64)
}

func (p Price) IsZero() bool { return p.Pips == 0 }

func (p Price) Add(other Price) Price      { return Price{Pips: p.Pips + other.Pips} }
func (p Price) Subtract(other Price) Price { return Price{Pips: p.Pips - other.Pips} }

func (p Price) GreaterThan(other Price) bool        { return p.Pips > other.Pips }
func (p Price) LessThan(other Price) bool           { return p.Pips < other.Pips }
func (p Price) GreaterThanOrEqual(other Price) bool { return p.Pips >= other.Pips }
func (p Price) LessThanOrEqual(other Price) bool    { return p.Pips <= other.Pips }
