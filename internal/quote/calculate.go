package quote

import (
	"fmt"
	"math/big"

	"liquidityDesk/internal/model"
	"liquidityDesk/internal/sqrtprice"
	"liquidityDesk/internal/tickmath"
)

// Decimals holds the ERC20 decimals of a pool's two tokens.
type Decimals struct {
	Token0 uint8
	Token1 uint8
}

// rangeBounds validates and aligns the intent's ticks to spacing and returns
// the aligned ticks with their sqrt prices.
func rangeBounds(intent model.PositionIntent) (int32, int32, *big.Int, *big.Int, error) {
	lower, upper := intent.TickLower, intent.TickUpper
	if lower >= upper {
		return 0, 0, nil, nil, fmt.Errorf("%w: lower %d >= upper %d", model.ErrInvalidRange, lower, upper)
	}
	if lower < tickmath.MinTick || upper > tickmath.MaxTick {
		return 0, 0, nil, nil, fmt.Errorf("%w: [%d, %d] outside tick bounds", model.ErrInvalidRange, lower, upper)
	}
	if spacing := intent.Pool.TickSpacing; spacing > 0 {
		lower = tickmath.RoundTickToSpacing(lower, spacing, tickmath.RoundFloor)
		upper = tickmath.RoundTickToSpacing(upper, spacing, tickmath.RoundCeil)
		if lower >= upper {
			return 0, 0, nil, nil, fmt.Errorf("%w: range collapses at spacing %d", model.ErrInvalidRange, spacing)
		}
	}
	sqrtA, err := tickmath.GetSqrtRatioAtTick(lower)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("%w: %v", model.ErrInvalidRange, err)
	}
	sqrtB, err := tickmath.GetSqrtRatioAtTick(upper)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("%w: %v", model.ErrInvalidRange, err)
	}
	return lower, upper, sqrtA, sqrtB, nil
}

// inRange reports whether the pool sits strictly inside the range. A pool
// exactly on a bound prices the position single-sided.
func inRange(state model.PoolState, lower, upper int32, sqrtA, sqrtB *big.Int) bool {
	if state.Tick <= lower || state.Tick >= upper {
		return false
	}
	return state.SqrtPriceX96.Cmp(sqrtA) > 0 && state.SqrtPriceX96.Cmp(sqrtB) < 0
}

// heldSide is the only token an out-of-range position holds: token1 once the
// pool is at or above the upper bound, token0 otherwise.
func heldSide(state model.PoolState, upper int32, sqrtB *big.Int) model.Side {
	if state.Tick >= upper || state.SqrtPriceX96.Cmp(sqrtB) >= 0 {
		return model.SideToken1
	}
	return model.SideToken0
}

// Calculate derives the paired amount and liquidity for a deposit of
// intent.InputAmount on intent.InputSide at the given pool state.
//
// Out of range only the entered side is used: its amount is echoed, the other
// side is zero and liquidity comes from the single-sided formula. When the
// range holds only the other token at this price the quote is marked
// InputNotHeld.
func Calculate(intent model.PositionIntent, state model.PoolState, decimals Decimals) (model.CalculatedLiquidityData, error) {
	lower, upper, sqrtA, sqrtB, err := rangeBounds(intent)
	if err != nil {
		return model.CalculatedLiquidityData{}, err
	}
	if intent.InputAmount == nil || intent.InputAmount.Sign() <= 0 {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: input amount must be positive", model.ErrCalculationFailed)
	}
	if state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() <= 0 {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: pool price unavailable", model.ErrQuoteStale)
	}

	input := new(big.Int).Set(intent.InputAmount)
	out := model.CalculatedLiquidityData{
		FinalTickLower: lower,
		FinalTickUpper: upper,
		InRange:        inRange(state, lower, upper, sqrtA, sqrtB),
		FullRange:      tickmath.IsFullRangePosition(intent.Pool.TickSpacing, lower, upper),
	}

	if !out.InRange {
		var liquidity *big.Int
		if intent.InputSide == model.SideToken0 {
			liquidity, err = sqrtprice.LiquidityForAmount0(sqrtA, sqrtB, input)
			out.Amount0, out.Amount1 = input, new(big.Int)
		} else {
			liquidity, err = sqrtprice.LiquidityForAmount1(sqrtA, sqrtB, input)
			out.Amount0, out.Amount1 = new(big.Int), input
		}
		if err != nil {
			return model.CalculatedLiquidityData{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
		}
		out.Liquidity = liquidity
		out.InputNotHeld = intent.InputSide != heldSide(state, upper, sqrtB)
	} else {
		sqrtP := state.SqrtPriceX96
		if intent.InputSide == model.SideToken0 {
			liquidity, err := sqrtprice.LiquidityForAmount0(sqrtP, sqrtB, input)
			if err != nil {
				return model.CalculatedLiquidityData{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
			}
			out.Liquidity = liquidity
			out.Amount0 = input
			out.Amount1 = sqrtprice.GetAmount1Delta(sqrtA, sqrtP, liquidity, true)
		} else {
			liquidity, err := sqrtprice.LiquidityForAmount1(sqrtA, sqrtP, input)
			if err != nil {
				return model.CalculatedLiquidityData{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
			}
			amount0, err := sqrtprice.GetAmount0Delta(sqrtP, sqrtB, liquidity, true)
			if err != nil {
				return model.CalculatedLiquidityData{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
			}
			out.Liquidity = liquidity
			out.Amount0 = amount0
			out.Amount1 = input
		}
	}

	if out.Liquidity.Sign() <= 0 {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: liquidity %s", model.ErrCalculationFailed, out.Liquidity)
	}

	tick := state.Tick
	current := tickmath.PriceAtTick(tick, decimals.Token0, decimals.Token1, false)
	priceLower := tickmath.PriceAtTick(lower, decimals.Token0, decimals.Token1, false)
	priceUpper := tickmath.PriceAtTick(upper, decimals.Token0, decimals.Token1, false)
	out.CurrentPoolTick = &tick
	out.CurrentPrice = &current
	out.PriceAtTickLower = &priceLower
	out.PriceAtTickUpper = &priceUpper
	return out, nil
}

// RequoteFromBalances prices a deposit funded by exactly held0 and held1.
// Amounts are capped at the held balances.
func RequoteFromBalances(intent model.PositionIntent, state model.PoolState, decimals Decimals, held0, held1 *big.Int) (model.CalculatedLiquidityData, error) {
	lower, upper, sqrtA, sqrtB, err := rangeBounds(intent)
	if err != nil {
		return model.CalculatedLiquidityData{}, err
	}
	if state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() <= 0 {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: pool price unavailable", model.ErrQuoteStale)
	}
	if held0 == nil {
		held0 = new(big.Int)
	}
	if held1 == nil {
		held1 = new(big.Int)
	}
	liquidity, err := sqrtprice.LiquidityForAmounts(state.SqrtPriceX96, sqrtA, sqrtB, held0, held1)
	if err != nil {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
	}
	if liquidity.Sign() <= 0 {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: held balances yield no liquidity", model.ErrCalculationFailed)
	}
	amount0, amount1, err := sqrtprice.AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, liquidity)
	if err != nil {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
	}
	if amount0.Cmp(held0) > 0 {
		amount0 = new(big.Int).Set(held0)
	}
	if amount1.Cmp(held1) > 0 {
		amount1 = new(big.Int).Set(held1)
	}

	tick := state.Tick
	current := tickmath.PriceAtTick(tick, decimals.Token0, decimals.Token1, false)
	priceLower := tickmath.PriceAtTick(lower, decimals.Token0, decimals.Token1, false)
	priceUpper := tickmath.PriceAtTick(upper, decimals.Token0, decimals.Token1, false)
	return model.CalculatedLiquidityData{
		Liquidity:        liquidity,
		Amount0:          amount0,
		Amount1:          amount1,
		FinalTickLower:   lower,
		FinalTickUpper:   upper,
		CurrentPoolTick:  &tick,
		CurrentPrice:     &current,
		PriceAtTickLower: &priceLower,
		PriceAtTickUpper: &priceUpper,
		InRange:          inRange(state, lower, upper, sqrtA, sqrtB),
		FullRange:        tickmath.IsFullRangePosition(intent.Pool.TickSpacing, lower, upper),
	}, nil
}

// Withdrawal estimates the token amounts intent.LiquidityDelta releases from
// the range at the given state.
func Withdrawal(intent model.PositionIntent, state model.PoolState, decimals Decimals) (model.CalculatedLiquidityData, error) {
	lower, upper, sqrtA, sqrtB, err := rangeBounds(intent)
	if err != nil {
		return model.CalculatedLiquidityData{}, err
	}
	if intent.LiquidityDelta == nil || intent.LiquidityDelta.Sign() <= 0 {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: liquidity to remove must be positive", model.ErrCalculationFailed)
	}
	if state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() <= 0 {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: pool price unavailable", model.ErrQuoteStale)
	}
	amount0, amount1, err := sqrtprice.AmountsForLiquidity(state.SqrtPriceX96, sqrtA, sqrtB, intent.LiquidityDelta)
	if err != nil {
		return model.CalculatedLiquidityData{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
	}
	tick := state.Tick
	current := tickmath.PriceAtTick(tick, decimals.Token0, decimals.Token1, false)
	return model.CalculatedLiquidityData{
		Liquidity:       new(big.Int).Set(intent.LiquidityDelta),
		Amount0:         amount0,
		Amount1:         amount1,
		FinalTickLower:  lower,
		FinalTickUpper:  upper,
		CurrentPoolTick: &tick,
		CurrentPrice:    &current,
		InRange:         inRange(state, lower, upper, sqrtA, sqrtB),
	}, nil
}
