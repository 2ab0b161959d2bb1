package model

import (
	"encoding/json"
	"math/big"
)

// CalculatedLiquidityData is a deposit quote for one tick range. Values are
// replaced, never mutated.
type CalculatedLiquidityData struct {
	Liquidity        *big.Int
	Amount0          *big.Int
	Amount1          *big.Int
	FinalTickLower   int32
	FinalTickUpper   int32
	CurrentPoolTick  *int32
	CurrentPrice     *float64
	PriceAtTickLower *float64
	PriceAtTickUpper *float64
	InRange          bool
	FullRange        bool
	// InputNotHeld is set when the range sits on the other side of the pool
	// price: a position there holds none of the entered token, so the quote
	// cannot be deposited as entered.
	InputNotHeld bool
}

// Amount returns the amount on side.
func (d CalculatedLiquidityData) Amount(side Side) *big.Int {
	if side == SideToken1 {
		return d.Amount1
	}
	return d.Amount0
}

type liquidityJSON struct {
	Liquidity        string   `json:"liquidity"`
	Amount0          string   `json:"amount0"`
	Amount1          string   `json:"amount1"`
	FinalTickLower   int32    `json:"final_tick_lower"`
	FinalTickUpper   int32    `json:"final_tick_upper"`
	CurrentPoolTick  *int32   `json:"current_pool_tick,omitempty"`
	CurrentPrice     *float64 `json:"current_price,omitempty"`
	PriceAtTickLower *float64 `json:"price_at_tick_lower,omitempty"`
	PriceAtTickUpper *float64 `json:"price_at_tick_upper,omitempty"`
	InRange          bool     `json:"in_range"`
	FullRange        bool     `json:"full_range"`
	InputNotHeld     bool     `json:"input_not_held,omitempty"`
}

// MarshalJSON encodes raw amounts as decimal strings.
func (d CalculatedLiquidityData) MarshalJSON() ([]byte, error) {
	return json.Marshal(liquidityJSON{
		Liquidity:        bigString(d.Liquidity),
		Amount0:          bigString(d.Amount0),
		Amount1:          bigString(d.Amount1),
		FinalTickLower:   d.FinalTickLower,
		FinalTickUpper:   d.FinalTickUpper,
		CurrentPoolTick:  d.CurrentPoolTick,
		CurrentPrice:     d.CurrentPrice,
		PriceAtTickLower: d.PriceAtTickLower,
		PriceAtTickUpper: d.PriceAtTickUpper,
		InRange:          d.InRange,
		FullRange:        d.FullRange,
		InputNotHeld:     d.InputNotHeld,
	})
}

// ZapQuote is the plan for funding a position from a single token.
type ZapQuote struct {
	InputSide            Side
	SwapAmount           *big.Int
	ExpectedSwapOutput   *big.Int
	MinimumSwapOutput    *big.Int
	ExpectedToken0Amount *big.Int
	ExpectedToken1Amount *big.Int
	ExpectedLiquidity    *big.Int
	// PriceImpact is in percent.
	PriceImpact    float64
	LeftoverToken0 *big.Int
	LeftoverToken1 *big.Int
	// PostSwapTick is the pool tick the swap is expected to leave behind.
	PostSwapTick *int32
	// Fingerprint identifies the intent inputs the quote was computed from.
	Fingerprint string
}

type zapQuoteJSON struct {
	InputSide            string  `json:"input_side"`
	SwapAmount           string  `json:"swap_amount"`
	ExpectedSwapOutput   string  `json:"expected_swap_output"`
	MinimumSwapOutput    string  `json:"minimum_swap_output"`
	ExpectedToken0Amount string  `json:"expected_token0_amount"`
	ExpectedToken1Amount string  `json:"expected_token1_amount"`
	ExpectedLiquidity    string  `json:"expected_liquidity"`
	PriceImpact          float64 `json:"price_impact"`
	LeftoverToken0       string  `json:"leftover_token0,omitempty"`
	LeftoverToken1       string  `json:"leftover_token1,omitempty"`
	PostSwapTick         *int32  `json:"post_swap_tick,omitempty"`
	Fingerprint          string  `json:"fingerprint"`
}

// MarshalJSON encodes raw amounts as decimal strings.
func (q ZapQuote) MarshalJSON() ([]byte, error) {
	out := zapQuoteJSON{
		InputSide:            q.InputSide.String(),
		SwapAmount:           bigString(q.SwapAmount),
		ExpectedSwapOutput:   bigString(q.ExpectedSwapOutput),
		MinimumSwapOutput:    bigString(q.MinimumSwapOutput),
		ExpectedToken0Amount: bigString(q.ExpectedToken0Amount),
		ExpectedToken1Amount: bigString(q.ExpectedToken1Amount),
		ExpectedLiquidity:    bigString(q.ExpectedLiquidity),
		PriceImpact:          q.PriceImpact,
		PostSwapTick:         q.PostSwapTick,
		Fingerprint:          q.Fingerprint,
	}
	if q.LeftoverToken0 != nil {
		out.LeftoverToken0 = q.LeftoverToken0.String()
	}
	if q.LeftoverToken1 != nil {
		out.LeftoverToken1 = q.LeftoverToken1.String()
	}
	return json.Marshal(out)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
