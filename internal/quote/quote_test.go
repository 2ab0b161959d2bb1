package quote

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityDesk/internal/model"
	"liquidityDesk/internal/tickmath"
)

var testDecimals = Decimals{Token0: 18, Token1: 18}

func testPool() model.PoolKey {
	return model.PoolKey{
		Currency0:   "0x0000000000000000000000000000000000000a00",
		Currency1:   "0x0000000000000000000000000000000000000b00",
		Fee:         3000,
		TickSpacing: 10,
	}
}

func depositIntent(side model.Side, amount int64) model.PositionIntent {
	return model.PositionIntent{
		Operation:   model.OperationDeposit,
		Pool:        testPool(),
		TickLower:   -200,
		TickUpper:   200,
		InputAmount: big.NewInt(amount),
		InputSide:   side,
		SlippageBps: 50,
	}
}

func stateAt(t *testing.T, tick int32, liquidity *big.Int) model.PoolState {
	t.Helper()
	sqrtP, err := tickmath.GetSqrtRatioAtTick(tick)
	require.NoError(t, err)
	return model.PoolState{SqrtPriceX96: sqrtP, Tick: tick, Liquidity: liquidity, Fee: 3000}
}

func TestCalculateInRangeToken0Input(t *testing.T) {
	data, err := Calculate(depositIntent(model.SideToken0, 100), stateAt(t, 0, big.NewInt(1)), testDecimals)
	require.NoError(t, err)

	assert.True(t, data.InRange)
	assert.Equal(t, "100", data.Amount0.String())
	assert.Positive(t, data.Amount1.Sign())
	assert.Positive(t, data.Liquidity.Sign())
	assert.Equal(t, int32(-200), data.FinalTickLower)
	assert.Equal(t, int32(200), data.FinalTickUpper)
	require.NotNil(t, data.CurrentPrice)
	assert.InDelta(t, 1.0, *data.CurrentPrice, 1e-9)
	assert.Less(t, *data.PriceAtTickLower, *data.CurrentPrice)
	assert.Greater(t, *data.PriceAtTickUpper, *data.CurrentPrice)
}

func TestCalculateInRangeToken1Input(t *testing.T) {
	data, err := Calculate(depositIntent(model.SideToken1, 1_000_000), stateAt(t, 50, big.NewInt(1)), testDecimals)
	require.NoError(t, err)

	assert.Equal(t, "1000000", data.Amount1.String())
	assert.Positive(t, data.Amount0.Sign())
	assert.Positive(t, data.Liquidity.Sign())
}

func TestCalculateOutOfRangeIsSingleSided(t *testing.T) {
	cases := []struct {
		name    string
		tick    int32
		side    model.Side
		notHeld bool
	}{
		{"above range token0 input", 300, model.SideToken0, true},
		{"above range token1 input", 300, model.SideToken1, false},
		{"below range token0 input", -300, model.SideToken0, false},
		{"below range token1 input", -300, model.SideToken1, true},
		{"on lower bound", -200, model.SideToken0, false},
		{"on upper bound", 200, model.SideToken1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Calculate(depositIntent(tc.side, 100), stateAt(t, tc.tick, big.NewInt(1)), testDecimals)
			require.NoError(t, err)

			assert.False(t, data.InRange)
			assert.Equal(t, "100", data.Amount(tc.side).String())
			assert.Equal(t, "0", data.Amount(tc.side.Other()).String())
			assert.Positive(t, data.Liquidity.Sign())
			assert.Equal(t, tc.notHeld, data.InputNotHeld)
		})
	}
}

func TestCalculateAboveRangeScenario(t *testing.T) {
	data, err := Calculate(depositIntent(model.SideToken0, 100), stateAt(t, 300, big.NewInt(1)), testDecimals)
	require.NoError(t, err)
	assert.Equal(t, "0", data.Amount1.String())
	// Above the range a position holds only token1, so the token0 entry
	// is flagged rather than deposited.
	assert.True(t, data.InputNotHeld)
}

func TestCalculateMarksFullRange(t *testing.T) {
	intent := depositIntent(model.SideToken0, 100)
	data, err := Calculate(intent, stateAt(t, 0, big.NewInt(1)), testDecimals)
	require.NoError(t, err)
	assert.False(t, data.FullRange)

	intent.TickLower, intent.TickUpper = tickmath.MinTick, tickmath.MaxTick
	data, err = Calculate(intent, stateAt(t, 0, big.NewInt(1)), testDecimals)
	require.NoError(t, err)
	assert.True(t, data.FullRange)
	lo, hi := tickmath.UsableTickBounds(10)
	assert.Equal(t, lo, data.FinalTickLower)
	assert.Equal(t, hi, data.FinalTickUpper)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	state := stateAt(t, 0, big.NewInt(1))

	inverted := depositIntent(model.SideToken0, 100)
	inverted.TickLower, inverted.TickUpper = 200, -200
	_, err := Calculate(inverted, state, testDecimals)
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	outside := depositIntent(model.SideToken0, 100)
	outside.TickUpper = tickmath.MaxTick + 1
	_, err = Calculate(outside, state, testDecimals)
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	zero := depositIntent(model.SideToken0, 0)
	_, err = Calculate(zero, state, testDecimals)
	assert.ErrorIs(t, err, model.ErrCalculationFailed)

	_, err = Calculate(depositIntent(model.SideToken0, 100), model.PoolState{}, testDecimals)
	assert.ErrorIs(t, err, model.ErrQuoteStale)
}

func TestCalculateAlignsTicksToSpacing(t *testing.T) {
	intent := depositIntent(model.SideToken0, 100)
	intent.TickLower, intent.TickUpper = -195, 195
	data, err := Calculate(intent, stateAt(t, 0, big.NewInt(1)), testDecimals)
	require.NoError(t, err)
	assert.Equal(t, int32(-200), data.FinalTickLower)
	assert.Equal(t, int32(200), data.FinalTickUpper)
}

func zapIntent(side model.Side, amount *big.Int) model.PositionIntent {
	intent := depositIntent(side, 0)
	intent.InputAmount = amount
	intent.IsZap = true
	intent.ZapInputToken = side
	return intent
}

func deepLiquidity() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
}

func TestCalculateZapSplitsInRange(t *testing.T) {
	total := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	intent := zapIntent(model.SideToken0, total)
	q, err := CalculateZap(intent, stateAt(t, 0, deepLiquidity()))
	require.NoError(t, err)

	assert.Positive(t, q.SwapAmount.Sign())
	assert.Negative(t, q.SwapAmount.Cmp(total))
	assert.Positive(t, q.ExpectedToken0Amount.Sign())
	assert.Positive(t, q.ExpectedToken1Amount.Sign())
	assert.Positive(t, q.ExpectedLiquidity.Sign())
	assert.Equal(t, q.ExpectedSwapOutput, q.ExpectedToken1Amount)

	// Symmetric range around the price: roughly half is swapped.
	half := new(big.Int).Rsh(total, 1)
	diff := new(big.Int).Abs(new(big.Int).Sub(q.SwapAmount, half))
	assert.Negative(t, diff.Cmp(new(big.Int).Div(total, big.NewInt(50))), "swap %s far from half", q.SwapAmount)

	expectedMin := new(big.Int).Mul(q.ExpectedSwapOutput, big.NewInt(9950))
	expectedMin.Div(expectedMin, big.NewInt(10000))
	assert.Equal(t, expectedMin.String(), q.MinimumSwapOutput.String())

	assert.GreaterOrEqual(t, q.PriceImpact, 0.0)
	assert.Less(t, q.PriceImpact, 1.0)

	// Selling token0 into deep liquidity nudges the price just below tick 0.
	require.NotNil(t, q.PostSwapTick)
	assert.LessOrEqual(t, *q.PostSwapTick, int32(0))
	assert.GreaterOrEqual(t, *q.PostSwapTick, int32(-1))

	// Dust only: leftovers stay under a thousandth of the input.
	dust := new(big.Int).Div(total, big.NewInt(1000))
	assert.Negative(t, q.LeftoverToken0.Cmp(dust))
	assert.Negative(t, q.LeftoverToken1.Cmp(dust))
}

func TestCalculateZapOutOfRange(t *testing.T) {
	total := big.NewInt(1_000_000)

	// Range is all token1 above it, so token0 input is swapped entirely.
	q, err := CalculateZap(zapIntent(model.SideToken0, total), stateAt(t, 300, deepLiquidity()))
	require.NoError(t, err)
	assert.Equal(t, total.String(), q.SwapAmount.String())
	assert.Equal(t, "0", q.ExpectedToken0Amount.String())

	// token1 input is already the needed side.
	q, err = CalculateZap(zapIntent(model.SideToken1, total), stateAt(t, 300, deepLiquidity()))
	require.NoError(t, err)
	assert.Equal(t, "0", q.SwapAmount.String())
	assert.Equal(t, total.String(), q.ExpectedToken1Amount.String())
	assert.Zero(t, q.PriceImpact)
	require.NotNil(t, q.PostSwapTick)
	assert.Equal(t, int32(300), *q.PostSwapTick)
}

func TestCalculateZapNeedsLiquidity(t *testing.T) {
	_, err := CalculateZap(zapIntent(model.SideToken0, big.NewInt(1000)), stateAt(t, 0, big.NewInt(0)))
	assert.ErrorIs(t, err, model.ErrCalculationFailed)
}

func TestZapPriceImpactGrowsWithSize(t *testing.T) {
	liquidity := new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)
	small, err := CalculateZap(zapIntent(model.SideToken1, big.NewInt(1_000_000)), stateAt(t, 0, liquidity))
	require.NoError(t, err)
	large, err := CalculateZap(zapIntent(model.SideToken1, new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)), stateAt(t, 0, liquidity))
	require.NoError(t, err)
	assert.Greater(t, large.PriceImpact, small.PriceImpact)
}

func TestFingerprintTracksIntent(t *testing.T) {
	intent := zapIntent(model.SideToken0, big.NewInt(1_000_000))
	q, err := CalculateZap(intent, stateAt(t, 0, deepLiquidity()))
	require.NoError(t, err)
	require.NoError(t, CheckFresh(q, intent))

	changes := []func(*model.PositionIntent){
		func(i *model.PositionIntent) { i.InputAmount = big.NewInt(999) },
		func(i *model.PositionIntent) { i.ZapInputToken = model.SideToken1 },
		func(i *model.PositionIntent) { i.TickLower = -100 },
		func(i *model.PositionIntent) { i.TickUpper = 100 },
		func(i *model.PositionIntent) { i.SlippageBps = 100 },
	}
	for _, change := range changes {
		next := intent
		change(&next)
		assert.ErrorIs(t, CheckFresh(q, next), model.ErrQuoteStale)
	}
	assert.ErrorIs(t, CheckFresh(model.ZapQuote{}, intent), model.ErrQuoteStale)
}

func TestRequoteFromBalancesCapsAtHeld(t *testing.T) {
	held0 := big.NewInt(1_000_000)
	held1 := big.NewInt(2_000_000)
	data, err := RequoteFromBalances(depositIntent(model.SideToken0, 1), stateAt(t, 0, big.NewInt(1)), testDecimals, held0, held1)
	require.NoError(t, err)
	assert.LessOrEqual(t, data.Amount0.Cmp(held0), 0)
	assert.LessOrEqual(t, data.Amount1.Cmp(held1), 0)
	assert.Positive(t, data.Liquidity.Sign())
}

type stubProvider struct {
	state model.PoolState
	err   error
}

func (s stubProvider) PoolState(context.Context) (model.PoolState, error) {
	return s.state, s.err
}

func TestEngineWrapsProviderFailure(t *testing.T) {
	engine := NewEngine(stubProvider{err: errors.New("rpc down")}, testDecimals, nil, Options{})
	_, err := engine.Calculate(context.Background(), depositIntent(model.SideToken0, 100))
	assert.ErrorIs(t, err, model.ErrQuoteStale)
	_, err = engine.QuoteZap(context.Background(), zapIntent(model.SideToken0, big.NewInt(100)))
	assert.ErrorIs(t, err, model.ErrQuoteStale)
}

func TestEngineCalculate(t *testing.T) {
	engine := NewEngine(stubProvider{state: stateAt(t, 0, big.NewInt(1))}, testDecimals, nil, Options{})
	data, err := engine.Calculate(context.Background(), depositIntent(model.SideToken0, 100))
	require.NoError(t, err)
	assert.Positive(t, data.Amount1.Sign())
}

func TestWithdrawalAmounts(t *testing.T) {
	intent := depositIntent(model.SideToken0, 100)
	deposit, err := Calculate(intent, stateAt(t, 0, big.NewInt(1)), testDecimals)
	require.NoError(t, err)

	intent.Operation = model.OperationWithdraw
	intent.LiquidityDelta = deposit.Liquidity
	out, err := Withdrawal(intent, stateAt(t, 0, big.NewInt(1)), testDecimals)
	require.NoError(t, err)
	assert.Positive(t, out.Amount0.Sign())
	assert.Positive(t, out.Amount1.Sign())
	assert.LessOrEqual(t, out.Amount0.Cmp(big.NewInt(101)), 0)

	intent.LiquidityDelta = nil
	_, err = Withdrawal(intent, stateAt(t, 0, big.NewInt(1)), testDecimals)
	assert.ErrorIs(t, err, model.ErrCalculationFailed)
}
