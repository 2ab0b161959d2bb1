package sqrtprice

import (
	"errors"
	"math/big"
)

// FeeDenominator is 100% in fee pips.
var FeeDenominator = big.NewInt(1_000_000)

var ErrFeeTooHigh = errors.New("fee must be below 1000000 pips")

// SwapStep is the outcome of an exact-input swap inside one liquidity range.
type SwapStep struct {
	SqrtPriceNextX96 *big.Int
	AmountIn         *big.Int
	AmountOut        *big.Int
	FeeAmount        *big.Int
}

// ComputeExactInputStep swaps amountRemaining of the input token from
// sqrtCurrent toward sqrtTarget with constant liquidity and a fee in pips.
// The direction follows the targets: sqrtCurrent >= sqrtTarget sells token0.
func ComputeExactInputStep(sqrtCurrent, sqrtTarget, liquidity, amountRemaining *big.Int, feePips uint32) (SwapStep, error) {
	if feePips >= 1_000_000 {
		return SwapStep{}, ErrFeeTooHigh
	}
	zeroForOne := sqrtCurrent.Cmp(sqrtTarget) >= 0
	fee := new(big.Int).SetUint64(uint64(feePips))
	lessFee := mulDiv(amountRemaining, new(big.Int).Sub(FeeDenominator, fee), FeeDenominator)

	var maxIn *big.Int
	if zeroForOne {
		v, err := GetAmount0Delta(sqrtTarget, sqrtCurrent, liquidity, true)
		if err != nil {
			return SwapStep{}, err
		}
		maxIn = v
	} else {
		maxIn = GetAmount1Delta(sqrtCurrent, sqrtTarget, liquidity, true)
	}

	var next *big.Int
	if lessFee.Cmp(maxIn) >= 0 {
		next = new(big.Int).Set(sqrtTarget)
	} else {
		v, err := GetNextSqrtPriceFromInput(sqrtCurrent, liquidity, lessFee, zeroForOne)
		if err != nil {
			return SwapStep{}, err
		}
		next = v
	}

	reachedTarget := next.Cmp(sqrtTarget) == 0
	step := SwapStep{SqrtPriceNextX96: next}
	if zeroForOne {
		if reachedTarget {
			step.AmountIn = maxIn
		} else {
			v, err := GetAmount0Delta(next, sqrtCurrent, liquidity, true)
			if err != nil {
				return SwapStep{}, err
			}
			step.AmountIn = v
		}
		step.AmountOut = GetAmount1Delta(next, sqrtCurrent, liquidity, false)
	} else {
		if reachedTarget {
			step.AmountIn = maxIn
		} else {
			step.AmountIn = GetAmount1Delta(sqrtCurrent, next, liquidity, true)
		}
		v, err := GetAmount0Delta(sqrtCurrent, next, liquidity, false)
		if err != nil {
			return SwapStep{}, err
		}
		step.AmountOut = v
	}

	if !reachedTarget {
		step.FeeAmount = new(big.Int).Sub(amountRemaining, step.AmountIn)
	} else {
		step.FeeAmount = mulDivRoundingUp(step.AmountIn, fee, new(big.Int).Sub(FeeDenominator, fee))
	}
	return step, nil
}
