package quote

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"liquidityDesk/internal/model"
	"liquidityDesk/internal/sqrtprice"
	"liquidityDesk/internal/tickmath"
)

// Fingerprint identifies every intent input a zap quote depends on.
func Fingerprint(intent model.PositionIntent) string {
	amount := "0"
	if intent.InputAmount != nil {
		amount = intent.InputAmount.String()
	}
	key := fmt.Sprintf("%s|%s|%d|%d|%s|%d|%d|%d|%d|%d",
		intent.Pool.Currency0, intent.Pool.Currency1, intent.Pool.Fee, intent.Pool.TickSpacing,
		amount, intent.ZapInputToken, intent.TickLower, intent.TickUpper, intent.SlippageBps,
		boolInt(intent.IsZap),
	)
	return crypto.Keccak256Hash([]byte(key)).Hex()
}

// CheckFresh fails with ErrQuoteStale when q was computed for different inputs.
func CheckFresh(q model.ZapQuote, intent model.PositionIntent) error {
	if q.Fingerprint == "" || q.Fingerprint != Fingerprint(intent) {
		return fmt.Errorf("%w: intent changed since zap quote", model.ErrQuoteStale)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// swapSimulator returns the output and post-swap sqrt price for swapping
// amountIn of the zap input.
type swapSimulator func(amountIn *big.Int) (out *big.Int, sqrtNext *big.Int, err error)

func localSimulator(state model.PoolState, zeroForOne bool) swapSimulator {
	target := new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1))
	if !zeroForOne {
		target = new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1))
	}
	return func(amountIn *big.Int) (*big.Int, *big.Int, error) {
		if amountIn.Sign() == 0 {
			return new(big.Int), new(big.Int).Set(state.SqrtPriceX96), nil
		}
		step, err := sqrtprice.ComputeExactInputStep(state.SqrtPriceX96, target, state.Liquidity, amountIn, state.Fee)
		if err != nil {
			return nil, nil, err
		}
		return step.AmountOut, step.SqrtPriceNextX96, nil
	}
}

// otherNeeded returns how much of the non-input token a position needs next
// to kept units of the input token at sqrtNext.
func otherNeeded(inputSide model.Side, kept, sqrtNext, sqrtA, sqrtB *big.Int) (*big.Int, error) {
	if kept.Sign() == 0 {
		return new(big.Int), nil
	}
	if inputSide == model.SideToken0 {
		if sqrtNext.Cmp(sqrtA) <= 0 {
			return new(big.Int), nil
		}
		if sqrtNext.Cmp(sqrtB) >= 0 {
			return nil, fmt.Errorf("price above range")
		}
		l, err := sqrtprice.LiquidityForAmount0(sqrtNext, sqrtB, kept)
		if err != nil {
			return nil, err
		}
		return sqrtprice.GetAmount1Delta(sqrtA, sqrtNext, l, true), nil
	}
	if sqrtNext.Cmp(sqrtB) >= 0 {
		return new(big.Int), nil
	}
	if sqrtNext.Cmp(sqrtA) <= 0 {
		return nil, fmt.Errorf("price below range")
	}
	l, err := sqrtprice.LiquidityForAmount1(sqrtA, sqrtNext, kept)
	if err != nil {
		return nil, err
	}
	return sqrtprice.GetAmount0Delta(sqrtA, sqrtNext, l, true)
}

// solveSwapAmount binary-searches the smallest swap amount whose output
// covers what the kept input needs at the post-swap price.
func solveSwapAmount(total *big.Int, inputSide model.Side, sqrtA, sqrtB *big.Int, simulate swapSimulator) (*big.Int, error) {
	covers := func(swap *big.Int) (bool, error) {
		out, sqrtNext, err := simulate(swap)
		if err != nil {
			return false, err
		}
		kept := new(big.Int).Sub(total, swap)
		need, err := otherNeeded(inputSide, kept, sqrtNext, sqrtA, sqrtB)
		if err != nil {
			return false, nil
		}
		return out.Cmp(need) >= 0, nil
	}

	lo, hi := new(big.Int), new(big.Int).Set(total)
	for lo.Cmp(hi) < 0 {
		mid := new(big.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		ok, err := covers(mid)
		if err != nil {
			return nil, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid.Add(mid, big.NewInt(1))
		}
	}
	return lo, nil
}

// priceImpact compares the swap output against the pre-swap spot price net
// of the fee, in percent.
func priceImpact(state model.PoolState, zeroForOne bool, amountIn, amountOut *big.Int) float64 {
	if amountIn.Sign() == 0 {
		return 0
	}
	price := new(big.Float).SetPrec(256).SetInt(state.SqrtPriceX96)
	price.Mul(price, price)
	price.Quo(price, new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 192)))
	if !zeroForOne {
		price.Quo(big.NewFloat(1).SetPrec(256), price)
	}

	netIn := new(big.Float).SetPrec(256).SetInt(amountIn)
	feeFactor := new(big.Float).SetFloat64(1 - float64(state.Fee)/1e6)
	netIn.Mul(netIn, feeFactor)

	spotOut := new(big.Float).Mul(netIn, price)
	if spotOut.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(amountOut), spotOut)
	r, _ := ratio.Float64()
	impact := (1 - r) * 100
	if impact < 0 {
		return 0
	}
	return impact
}

// applySlippage returns amount * (10000 - bps) / 10000.
func applySlippage(amount *big.Int, bps uint32) *big.Int {
	if bps >= 10_000 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(10_000-bps)))
	return out.Quo(out, big.NewInt(10_000))
}

// CalculateZap splits a single-token input into a swap and a deposit for the
// range at the given state. The swap is simulated over the active liquidity.
func CalculateZap(intent model.PositionIntent, state model.PoolState) (model.ZapQuote, error) {
	return calculateZap(intent, state, nil)
}

func calculateZap(intent model.PositionIntent, state model.PoolState, simulate swapSimulator) (model.ZapQuote, error) {
	_, _, sqrtA, sqrtB, err := rangeBounds(intent)
	if err != nil {
		return model.ZapQuote{}, err
	}
	if intent.InputAmount == nil || intent.InputAmount.Sign() <= 0 {
		return model.ZapQuote{}, fmt.Errorf("%w: input amount must be positive", model.ErrCalculationFailed)
	}
	if state.SqrtPriceX96 == nil || state.SqrtPriceX96.Sign() <= 0 {
		return model.ZapQuote{}, fmt.Errorf("%w: pool price unavailable", model.ErrQuoteStale)
	}

	inputSide := intent.ZapInputToken
	zeroForOne := inputSide == model.SideToken0
	total := new(big.Int).Set(intent.InputAmount)
	if simulate == nil {
		if state.Liquidity == nil || state.Liquidity.Sign() <= 0 {
			return model.ZapQuote{}, fmt.Errorf("%w: pool has no active liquidity", model.ErrCalculationFailed)
		}
		simulate = localSimulator(state, zeroForOne)
	}

	var swapAmount *big.Int
	sqrtP := state.SqrtPriceX96
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		// Range is all token0.
		swapAmount = new(big.Int)
		if inputSide == model.SideToken1 {
			swapAmount.Set(total)
		}
	case sqrtP.Cmp(sqrtB) >= 0:
		// Range is all token1.
		swapAmount = new(big.Int)
		if inputSide == model.SideToken0 {
			swapAmount.Set(total)
		}
	default:
		swapAmount, err = solveSwapAmount(total, inputSide, sqrtA, sqrtB, simulate)
		if err != nil {
			return model.ZapQuote{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
		}
	}

	swapOut, sqrtNext, err := simulate(swapAmount)
	if err != nil {
		return model.ZapQuote{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
	}
	return assembleZap(intent, state, swapAmount, swapOut, sqrtNext, sqrtA, sqrtB)
}

func assembleZap(intent model.PositionIntent, state model.PoolState, swapAmount, swapOut, sqrtNext, sqrtA, sqrtB *big.Int) (model.ZapQuote, error) {
	inputSide := intent.ZapInputToken
	kept := new(big.Int).Sub(intent.InputAmount, swapAmount)
	amount0, amount1 := kept, swapOut
	if inputSide == model.SideToken1 {
		amount0, amount1 = swapOut, kept
	}

	liquidity, err := sqrtprice.LiquidityForAmounts(sqrtNext, sqrtA, sqrtB, amount0, amount1)
	if err != nil {
		return model.ZapQuote{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
	}
	if liquidity.Sign() <= 0 {
		return model.ZapQuote{}, fmt.Errorf("%w: zap yields no liquidity", model.ErrCalculationFailed)
	}
	used0, used1, err := sqrtprice.AmountsForLiquidity(sqrtNext, sqrtA, sqrtB, liquidity)
	if err != nil {
		return model.ZapQuote{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
	}

	var postSwapTick *int32
	if tick, err := tickmath.GetTickAtSqrtRatio(sqrtNext); err == nil {
		postSwapTick = &tick
	}

	return model.ZapQuote{
		InputSide:            inputSide,
		SwapAmount:           swapAmount,
		ExpectedSwapOutput:   swapOut,
		MinimumSwapOutput:    applySlippage(swapOut, intent.SlippageBps),
		ExpectedToken0Amount: amount0,
		ExpectedToken1Amount: amount1,
		ExpectedLiquidity:    liquidity,
		PriceImpact:          priceImpact(state, inputSide == model.SideToken0, swapAmount, swapOut),
		LeftoverToken0:       leftover(amount0, used0),
		LeftoverToken1:       leftover(amount1, used1),
		PostSwapTick:         postSwapTick,
		Fingerprint:          Fingerprint(intent),
	}, nil
}

func leftover(provided, used *big.Int) *big.Int {
	d := new(big.Int).Sub(provided, used)
	if d.Sign() < 0 {
		return new(big.Int)
	}
	return d
}
