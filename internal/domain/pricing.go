package domain

import (
	"fmt"
	"math"
)

// FillEpsilon is the tolerance used for every share and price comparison.
const FillEpsilon = 1e-9

// QuantizePrice rounds price down to the nearest multiple of tick.
// The snap epsilon absorbs float drift (0.57/0.01 = 56.99999...) and the result
// is re-rounded to 8 decimals so equal prices compare equal.
// A tick that is not a finite positive number leaves price untouched.
func QuantizePrice(price, tick float64) float64 {
	if math.IsNaN(tick) || math.IsInf(tick, 0) || tick <= 0 {
		return price
	}
	steps := math.Floor(price/tick + FillEpsilon)
	return RoundTo(steps*tick, 8)
}

// SizeFromBudget returns how many shares usd buys at price, rounded to 6 decimals.
func SizeFromBudget(usd, price float64) (float64, error) {
	if usd <= 0 {
		return 0, fmt.Errorf("domain.SizeFromBudget: usd must be > 0, got %v: %w", usd, ErrInvalidArgument)
	}
	if price <= 0 {
		return 0, fmt.Errorf("domain.SizeFromBudget: price must be > 0, got %v: %w", price, ErrInvalidArgument)
	}
	return RoundTo(usd/price, 6), nil
}

// PairEdge is the profit per share set if both legs fill at the same price.
func PairEdge(price float64) float64 {
	return 1 - 2*price
}

// CheckPairEdge is the pre-trade circuit breaker on a symmetric pair price.
func CheckPairEdge(price, minEdge float64) error {
	edge := PairEdge(price)
	if edge < minEdge {
		return fmt.Errorf("domain.CheckPairEdge: edge %.6f below minimum %.6f at price %.4f: %w",
			edge, minEdge, price, ErrInsufficientEdge)
	}
	return nil
}

// HedgeCeiling is the most that may be paid for the missing leg while keeping
// minHedgeEdge of combined edge over the filled leg's price.
func HedgeCeiling(filledPrice, minHedgeEdge float64) float64 {
	return 1 - filledPrice - minHedgeEdge
}

// ShareDecimals is the size precision the CLOB accepts on an order.
const ShareDecimals = 2

// FloorTo truncates x toward zero to the given number of decimals, with the
// same float snap as QuantizePrice.
func FloorTo(x float64, decimals int) float64 {
	p := math.Pow10(decimals)
	if x < 0 {
		return -math.Floor(-x*p+FillEpsilon) / p
	}
	return math.Floor(x*p+FillEpsilon) / p
}

// RoundTo rounds x half away from zero to the given number of decimals.
func RoundTo(x float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(x*p) / p
}
