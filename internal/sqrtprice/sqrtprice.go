// Package sqrtprice holds the Q64.96 liquidity and amount math used to quote
// concentrated-liquidity positions and single-range swaps.
package sqrtprice

import (
	"errors"
	"math/big"
)

var (
	// Q96 is 1.0 in Q64.96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
	ErrEmptyRange    = errors.New("sqrt price bounds are equal")

	one = big.NewInt(1)
)

func mulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Quo(p, c)
}

func mulDivRoundingUp(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(p, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

func divRoundingUp(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

func ordered(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// GetAmount0Delta returns L * (sqrtB - sqrtA) / (sqrtA * sqrtB) in token0 units.
func GetAmount0Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	if sqrtA.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, sqrtB), sqrtA), nil
	}
	t := mulDiv(numerator1, numerator2, sqrtB)
	return t.Quo(t, sqrtA), nil
}

// GetAmount1Delta returns L * (sqrtB - sqrtA) in token1 units.
func GetAmount1Delta(sqrtA, sqrtB, liquidity *big.Int, roundUp bool) *big.Int {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}

// GetNextSqrtPriceFromInput returns the sqrt price after adding amountIn of
// the input token to a pool with the given liquidity.
func GetNextSqrtPriceFromInput(sqrtP, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtP.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return nextFromAmount0RoundingUp(sqrtP, liquidity, amountIn), nil
	}
	return nextFromAmount1RoundingDown(sqrtP, liquidity, amountIn), nil
}

func nextFromAmount0RoundingUp(sqrtP, liquidity, amount *big.Int) *big.Int {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtP)
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtP)
	denominator := new(big.Int).Add(numerator1, product)
	return mulDivRoundingUp(numerator1, sqrtP, denominator)
}

func nextFromAmount1RoundingDown(sqrtP, liquidity, amount *big.Int) *big.Int {
	quotient := mulDiv(amount, Q96, liquidity)
	return quotient.Add(quotient, sqrtP)
}

// LiquidityForAmount0 returns the liquidity that amount0 of token0 buys across
// [sqrtA, sqrtB].
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	if sqrtA.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return nil, ErrEmptyRange
	}
	intermediate := mulDiv(sqrtA, sqrtB, Q96)
	return mulDiv(amount0, intermediate, diff), nil
}

// LiquidityForAmount1 returns the liquidity that amount1 of token1 buys across
// [sqrtA, sqrtB].
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	diff := new(big.Int).Sub(sqrtB, sqrtA)
	if diff.Sign() == 0 {
		return nil, ErrEmptyRange
	}
	return mulDiv(amount1, Q96, diff), nil
}

// LiquidityForAmounts returns the largest liquidity both amounts can fund at
// the current price sqrtP.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *big.Int) (*big.Int, error) {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		return LiquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Cmp(sqrtB) < 0:
		l0, err := LiquidityForAmount0(sqrtP, sqrtB, amount0)
		if err != nil {
			return nil, err
		}
		l1, err := LiquidityForAmount1(sqrtA, sqrtP, amount1)
		if err != nil {
			return nil, err
		}
		if l0.Cmp(l1) < 0 {
			return l0, nil
		}
		return l1, nil
	default:
		return LiquidityForAmount1(sqrtA, sqrtB, amount1)
	}
}

// AmountsForLiquidity returns the token amounts liquidity represents across
// [sqrtA, sqrtB] at price sqrtP, rounded up as a deposit would be.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (*big.Int, *big.Int, error) {
	sqrtA, sqrtB = ordered(sqrtA, sqrtB)
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		a0, err := GetAmount0Delta(sqrtA, sqrtB, liquidity, true)
		return a0, new(big.Int), err
	case sqrtP.Cmp(sqrtB) < 0:
		a0, err := GetAmount0Delta(sqrtP, sqrtB, liquidity, true)
		if err != nil {
			return nil, nil, err
		}
		return a0, GetAmount1Delta(sqrtA, sqrtP, liquidity, true), nil
	default:
		return new(big.Int), GetAmount1Delta(sqrtA, sqrtB, liquidity, true), nil
	}
}
