package quote

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityDesk/internal/chain"
	"liquidityDesk/internal/dex"
	"liquidityDesk/internal/model"
)

// PoolStateProvider supplies the current price and active liquidity.
type PoolStateProvider interface {
	PoolState(ctx context.Context) (model.PoolState, error)
}

// OnChainQuoter re-quotes a zap swap against a QuoterV2 contract.
type OnChainQuoter struct {
	Caller  chain.ContractCaller
	Address common.Address
}

// Options configures an Engine.
type Options struct {
	Quoter *OnChainQuoter
}

// Engine prices deposits and zaps against live pool state.
type Engine struct {
	provider PoolStateProvider
	decimals Decimals
	quoter   *OnChainQuoter
	logger   *zap.Logger
}

// NewEngine builds an Engine reading state from provider.
func NewEngine(provider PoolStateProvider, decimals Decimals, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		provider: provider,
		decimals: decimals,
		quoter:   opts.Quoter,
		logger:   logger,
	}
}

func (e *Engine) poolState(ctx context.Context) (model.PoolState, error) {
	state, err := e.provider.PoolState(ctx)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("%w: read pool state: %v", model.ErrQuoteStale, err)
	}
	return state, nil
}

// Calculate quotes a direct deposit at the current pool state.
func (e *Engine) Calculate(ctx context.Context, intent model.PositionIntent) (model.CalculatedLiquidityData, error) {
	state, err := e.poolState(ctx)
	if err != nil {
		return model.CalculatedLiquidityData{}, err
	}
	data, err := Calculate(intent, state, e.decimals)
	if err != nil {
		return model.CalculatedLiquidityData{}, err
	}
	e.logger.Debug("deposit quoted",
		zap.Int32("tick", state.Tick),
		zap.String("amount0", data.Amount0.String()),
		zap.String("amount1", data.Amount1.String()),
		zap.String("liquidity", data.Liquidity.String()),
		zap.Bool("in_range", data.InRange),
	)
	return data, nil
}

// QuoteZap quotes a single-token zap at the current pool state. With an
// on-chain quoter configured, the chosen split is re-quoted and the contract's
// output replaces the local estimate.
func (e *Engine) QuoteZap(ctx context.Context, intent model.PositionIntent) (model.ZapQuote, error) {
	state, err := e.poolState(ctx)
	if err != nil {
		return model.ZapQuote{}, err
	}
	q, err := CalculateZap(intent, state)
	if err != nil {
		return model.ZapQuote{}, err
	}
	if e.quoter == nil || q.SwapAmount.Sign() == 0 {
		return q, nil
	}

	tokenIn := common.HexToAddress(intent.Pool.Token(q.InputSide))
	tokenOut := common.HexToAddress(intent.Pool.Token(q.InputSide.Other()))
	onChain, err := dex.QuoteExactInputSingle(ctx, e.quoter.Caller, e.quoter.Address, tokenIn, tokenOut, intent.Pool.Fee, q.SwapAmount)
	if err != nil {
		return model.ZapQuote{}, fmt.Errorf("%w: on-chain quote: %v", model.ErrQuoteStale, err)
	}
	e.logger.Debug("zap re-quoted on chain",
		zap.String("swap_amount", q.SwapAmount.String()),
		zap.String("local_output", q.ExpectedSwapOutput.String()),
		zap.String("onchain_output", onChain.String()),
	)

	_, _, sqrtA, sqrtB, err := rangeBounds(intent)
	if err != nil {
		return model.ZapQuote{}, err
	}
	_, sqrtNext, err := localSimulator(state, q.InputSide == model.SideToken0)(q.SwapAmount)
	if err != nil {
		return model.ZapQuote{}, fmt.Errorf("%w: %v", model.ErrCalculationFailed, err)
	}
	return assembleZap(intent, state, q.SwapAmount, onChain, sqrtNext, sqrtA, sqrtB)
}

// Requote rebuilds a deposit quote from amounts actually held after a zap
// swap settled, at the current pool state. The returned amounts never exceed
// the held balances.
func (e *Engine) Requote(ctx context.Context, intent model.PositionIntent, held0, held1 *big.Int) (model.CalculatedLiquidityData, error) {
	state, err := e.poolState(ctx)
	if err != nil {
		return model.CalculatedLiquidityData{}, err
	}
	return RequoteFromBalances(intent, state, e.decimals, held0, held1)
}

// Withdrawal estimates what removing intent.LiquidityDelta returns at the
// current pool state.
func (e *Engine) Withdrawal(ctx context.Context, intent model.PositionIntent) (model.CalculatedLiquidityData, error) {
	state, err := e.poolState(ctx)
	if err != nil {
		return model.CalculatedLiquidityData{}, err
	}
	return Withdrawal(intent, state, e.decimals)
}
