package model

import "math/big"

// SwapSource names the event a swap delta was read from.
type SwapSource string

const (
	SwapSourceV3Pool      SwapSource = "v3_swap"
	SwapSourceV4Manager   SwapSource = "v4_swap"
	SwapSourceTransfers   SwapSource = "transfers"
	SwapSourceBalanceDiff SwapSource = "balance_diff"
)

// SwapEventData is a decoded Swap event. Amounts are signed from the pool's
// side: positive means the pool received the token.
type SwapEventData struct {
	Address      string
	Sender       string
	Recipient    string
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
	Fee          uint32
	Source       SwapSource
}

// TransferEventData is a decoded ERC20 Transfer event.
type TransferEventData struct {
	Token string
	From  string
	To    string
	Value *big.Int
}

// SwapResult is what a confirmed swap actually moved for the owner.
type SwapResult struct {
	AmountIn  *big.Int
	AmountOut *big.Int
	Source    SwapSource
}
