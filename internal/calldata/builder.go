package calldata

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"liquidityDesk/internal/model"
)

// ErrUnsupported is returned by a builder that cannot encode a request kind.
var ErrUnsupported = errors.New("calldata request not supported by builder")

// Transaction is a ready-to-sign contract call.
type Transaction struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// SwapRequest describes the exact-input zap swap.
type SwapRequest struct {
	Owner        common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          uint32
	AmountIn     *big.Int
	MinAmountOut *big.Int
	// Permit is the signed Permit2 PermitSingle for the router, if one was needed.
	Permit   *model.PermitSignature
	Deadline time.Time
}

// DepositRequest mints a position, or increases TokenID when set.
type DepositRequest struct {
	Owner      common.Address
	Pool       model.PoolKey
	TickLower  int32
	TickUpper  int32
	TokenID    *big.Int
	Liquidity  *big.Int
	Amount0Max *big.Int
	Amount1Max *big.Int
	Recipient  common.Address
	// Permit is the signed Permit2 PermitBatch for the position manager, if one was needed.
	Permit   *model.PermitSignature
	Deadline time.Time
}

// WithdrawRequest removes liquidity from TokenID and takes both tokens.
type WithdrawRequest struct {
	Owner      common.Address
	Pool       model.PoolKey
	TokenID    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Recipient  common.Address
	Deadline   time.Time
}

// CollectRequest takes the accrued fees of TokenID.
type CollectRequest struct {
	Owner     common.Address
	Pool      model.PoolKey
	TokenID   *big.Int
	Recipient common.Address
	Deadline  time.Time
}

// Builder turns position requests into transactions. Its output is opaque
// to the flow.
type Builder interface {
	BuildSwap(ctx context.Context, req SwapRequest) (Transaction, error)
	BuildDeposit(ctx context.Context, req DepositRequest) (Transaction, error)
	BuildWithdraw(ctx context.Context, req WithdrawRequest) (Transaction, error)
	BuildCollect(ctx context.Context, req CollectRequest) (Transaction, error)
}

// Split routes swaps to one builder and position calls to another.
type Split struct {
	Swaps     Builder
	Positions Builder
}

func (s Split) BuildSwap(ctx context.Context, req SwapRequest) (Transaction, error) {
	return s.Swaps.BuildSwap(ctx, req)
}

func (s Split) BuildDeposit(ctx context.Context, req DepositRequest) (Transaction, error) {
	return s.Positions.BuildDeposit(ctx, req)
}

func (s Split) BuildWithdraw(ctx context.Context, req WithdrawRequest) (Transaction, error) {
	return s.Positions.BuildWithdraw(ctx, req)
}

func (s Split) BuildCollect(ctx context.Context, req CollectRequest) (Transaction, error) {
	return s.Positions.BuildCollect(ctx, req)
}

var _ Builder = Split{}
