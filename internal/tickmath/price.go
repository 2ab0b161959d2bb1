// Package tickmath converts between ticks, sqrt prices and human prices for
// concentrated-liquidity pools.
package tickmath

import (
	"math"
)

const (
	// MinDisplayPrice is the smallest price reported before saturating to zero.
	MinDisplayPrice = 1e-20
	// MaxDisplayPrice is the largest price reported before saturating to +Inf.
	MaxDisplayPrice = 1e30
)

// Rounding selects the direction RoundTickToSpacing moves an unaligned tick.
type Rounding int

const (
	RoundFloor Rounding = iota
	RoundCeil
)

var log10TickBase = math.Log10(1.0001)

// PriceAtTick returns 1.0001^tick scaled by 10^(decimals0-decimals1), i.e. the
// price of token0 in token1 units. With invert it returns token1 in token0.
// Values below MinDisplayPrice saturate to 0 and above MaxDisplayPrice to +Inf.
func PriceAtTick(tick int32, decimals0, decimals1 uint8, invert bool) float64 {
	exp := float64(tick)*log10TickBase + float64(int(decimals0)-int(decimals1))
	if invert {
		exp = -exp
	}
	return clampPrice(math.Pow(10, exp))
}

// InvertPrice returns 1/price, mapping 0 to +Inf and +Inf to 0 so saturated
// values survive any number of inversions unchanged.
func InvertPrice(price float64) float64 {
	switch {
	case math.IsNaN(price) || price < 0:
		return 0
	case price == 0:
		return math.Inf(1)
	case math.IsInf(price, 1):
		return 0
	}
	return clampPrice(1 / price)
}

func clampPrice(price float64) float64 {
	if math.IsNaN(price) || price < MinDisplayPrice {
		return 0
	}
	if price > MaxDisplayPrice {
		return math.Inf(1)
	}
	return price
}

// UsableTickBounds returns the lowest and highest ticks aligned to spacing.
func UsableTickBounds(spacing int32) (int32, int32) {
	if spacing <= 0 {
		return MinTick, MaxTick
	}
	return -(-MinTick / spacing * spacing), MaxTick / spacing * spacing
}

// IsFullRangePosition reports whether both bounds sit within one spacing of
// the global tick limits.
func IsFullRangePosition(spacing, tickLower, tickUpper int32) bool {
	if spacing <= 0 {
		return false
	}
	return tickLower-MinTick < spacing && MaxTick-tickUpper < spacing
}

// RoundTickToSpacing aligns tick to a multiple of spacing, clamped into the
// usable range for that spacing.
func RoundTickToSpacing(tick, spacing int32, mode Rounding) int32 {
	if spacing <= 0 {
		return tick
	}
	q := tick / spacing
	if r := tick % spacing; r != 0 {
		if r < 0 && mode == RoundFloor {
			q--
		}
		if r > 0 && mode == RoundCeil {
			q++
		}
	}
	return ClampToUsable(q*spacing, spacing)
}

// ClampToUsable pins tick into the usable range for spacing.
func ClampToUsable(tick, spacing int32) int32 {
	lo, hi := UsableTickBounds(spacing)
	if tick < lo {
		return lo
	}
	if tick > hi {
		return hi
	}
	return tick
}
