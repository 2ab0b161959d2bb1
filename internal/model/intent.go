package model

import (
	"math/big"
	"time"
)

// Operation is the position action a flow performs.
type Operation string

const (
	OperationDeposit  Operation = "deposit"
	OperationWithdraw Operation = "withdraw"
	OperationCollect  Operation = "collect"
)

// Side names which pool token an amount refers to.
type Side int

const (
	SideToken0 Side = iota
	SideToken1
)

func (s Side) String() string {
	if s == SideToken1 {
		return "token1"
	}
	return "token0"
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideToken1 {
		return SideToken0
	}
	return SideToken1
}

// PoolKey identifies a pool. Hooks is the zero address for hookless and V3 pools.
type PoolKey struct {
	Currency0   string `json:"currency0"`
	Currency1   string `json:"currency1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
	Hooks       string `json:"hooks"`
}

// PositionIntent is the immutable request one orchestration run works on.
type PositionIntent struct {
	Operation     Operation
	Pool          PoolKey
	TickLower     int32
	TickUpper     int32
	InputAmount   *big.Int
	InputSide     Side
	IsZap         bool
	ZapInputToken Side
	SlippageBps   uint32
	Deadline      time.Duration

	// TokenID is the existing position for increase, withdraw and collect.
	TokenID *big.Int
	// LiquidityDelta is the liquidity a withdraw removes.
	LiquidityDelta *big.Int
	Recipient      string
}

// Token returns the pool currency on side.
func (k PoolKey) Token(side Side) string {
	if side == SideToken1 {
		return k.Currency1
	}
	return k.Currency0
}
