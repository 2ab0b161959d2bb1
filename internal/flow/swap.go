package flow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityDesk/internal/calldata"
	"liquidityDesk/internal/dex"
	"liquidityDesk/internal/model"
	"liquidityDesk/internal/quote"
)

// minedSwap is a confirmed zap swap still waiting to be reconciled and
// re-quoted. result is set once the swapped amounts are known.
type minedSwap struct {
	txHash     common.Hash
	logs       []*types.Log
	tokenIn    common.Address
	tokenOut   common.Address
	zeroForOne bool
	beforeIn   *big.Int
	beforeOut  *big.Int
	afterIn    *big.Int
	afterOut   *big.Int
	result     *model.SwapResult
}

// swap gates and submits the zap swap. The swap is complete once its
// receipt confirms; settleSwap works out the amounts afterwards.
func (o *Orchestrator) swap(ctx context.Context, snap snapshot) (stepOutcome, error) {
	intent := snap.intent
	q := snap.zapQuote
	if q == nil {
		return stepOutcome{}, fmt.Errorf("%w: zap quote", model.ErrStepPreconditionMissing)
	}
	if err := quote.CheckFresh(*q, intent); err != nil {
		return stepOutcome{}, err
	}
	if q.PriceImpact >= o.cfg.HighImpactPct && !snap.opts.AcknowledgeHighImpact {
		return stepOutcome{}, fmt.Errorf("%w: %.2f%% >= %.2f%%", model.ErrHighPriceImpact, q.PriceImpact, o.cfg.HighImpactPct)
	}
	if q.PriceImpact >= o.cfg.MediumImpactPct {
		o.logger.Warn("zap swap price impact is elevated",
			zap.String("flow_id", snap.id),
			zap.Float64("price_impact_pct", q.PriceImpact),
		)
	}

	mined := &minedSwap{
		tokenIn:    common.HexToAddress(intent.Pool.Token(intent.ZapInputToken)),
		tokenOut:   common.HexToAddress(intent.Pool.Token(intent.ZapInputToken.Other())),
		zeroForOne: intent.ZapInputToken == model.SideToken0,
	}
	if q.SwapAmount == nil || q.SwapAmount.Sign() == 0 {
		mined.result = &model.SwapResult{AmountIn: new(big.Int), AmountOut: new(big.Int), Source: model.SwapSourceBalanceDiff}
		return stepOutcome{mined: mined}, nil
	}

	mined.beforeIn, mined.beforeOut = o.balances(ctx, snap.owner, mined.tokenIn, mined.tokenOut)
	tx, err := o.deps.Builder.BuildSwap(ctx, calldata.SwapRequest{
		Owner:        snap.owner,
		TokenIn:      mined.tokenIn,
		TokenOut:     mined.tokenOut,
		Fee:          intent.Pool.Fee,
		AmountIn:     q.SwapAmount,
		MinAmountOut: q.MinimumSwapOutput,
		Permit:       snap.swapPermit,
		Deadline:     o.deadline(intent),
	})
	if err != nil {
		return stepOutcome{}, fmt.Errorf("build swap: %w", err)
	}
	hash, receipt, err := o.submit(ctx, tx)
	if err != nil {
		return stepOutcome{txHash: hash}, err
	}
	mined.txHash = hash
	mined.logs = receipt.Logs
	mined.afterIn, mined.afterOut = o.balances(ctx, snap.owner, mined.tokenIn, mined.tokenOut)
	return stepOutcome{txHash: hash, mined: mined}, nil
}

// settleSwap reconciles a mined zap swap and re-quotes the deposit from what
// the owner actually holds. It never resubmits: on failure the swap stays
// pending and the next Advance tries again.
func (o *Orchestrator) settleSwap(ctx context.Context, f *Flow) (common.Hash, error) {
	f.mu.Lock()
	mined := f.mined
	intent := f.intent
	f.mu.Unlock()
	if mined == nil {
		return common.Hash{}, nil
	}

	if mined.result == nil {
		result, err := o.reconcile(ctx, f.Owner, mined)
		if err != nil {
			return mined.txHash, err
		}
		f.mu.Lock()
		mined.result = &result
		f.swapResult = &result
		f.mu.Unlock()
	}
	result := mined.result

	kept := new(big.Int).Sub(intent.InputAmount, result.AmountIn)
	if kept.Sign() < 0 {
		kept.SetInt64(0)
	}
	held0, held1 := kept, result.AmountOut
	if !mined.zeroForOne {
		held0, held1 = result.AmountOut, kept
	}

	deposit, err := o.deps.Quotes.Requote(ctx, intent, held0, held1)
	if err != nil {
		return mined.txHash, fmt.Errorf("requote after swap: %w", err)
	}

	f.mu.Lock()
	f.swapResult = result
	f.deposit = &deposit
	f.held0 = held0
	f.held1 = held1
	f.mined = nil
	f.mu.Unlock()
	return mined.txHash, nil
}

// reconcile reads the swapped amounts from the receipt logs, falling back to
// the owner's balance difference. Balances are read again when the ones
// taken right after the swap show nothing received.
func (o *Orchestrator) reconcile(ctx context.Context, owner common.Address, mined *minedSwap) (model.SwapResult, error) {
	diff := balanceDiff(mined.beforeIn, mined.beforeOut, mined.afterIn, mined.afterOut)

	result, err := o.decoder.ReconcileSwap(mined.logs, owner, mined.tokenIn, mined.tokenOut, mined.zeroForOne)
	if err == nil {
		if diff != nil && (diff.AmountIn.Cmp(result.AmountIn) != 0 || diff.AmountOut.Cmp(result.AmountOut) != 0) {
			o.logger.Warn("swap logs and balance difference disagree",
				zap.String("tx_hash", mined.txHash.Hex()),
				zap.String("logs_in", result.AmountIn.String()),
				zap.String("logs_out", result.AmountOut.String()),
				zap.String("balance_in", diff.AmountIn.String()),
				zap.String("balance_out", diff.AmountOut.String()),
			)
		}
		o.logSwap(mined.txHash, result)
		return result, nil
	}

	if !usableDiff(diff) {
		afterIn, afterOut := o.balances(ctx, owner, mined.tokenIn, mined.tokenOut)
		diff = balanceDiff(mined.beforeIn, mined.beforeOut, afterIn, afterOut)
	}
	if !usableDiff(diff) {
		return model.SwapResult{}, fmt.Errorf("reconcile swap %s: %w", mined.txHash.Hex(), err)
	}
	o.logger.Warn("swap logs unreadable, using balance difference",
		zap.String("tx_hash", mined.txHash.Hex()),
		zap.Error(err),
	)
	o.logSwap(mined.txHash, *diff)
	return *diff, nil
}

func (o *Orchestrator) logSwap(hash common.Hash, result model.SwapResult) {
	o.logger.Info("zap swap settled",
		zap.String("tx_hash", hash.Hex()),
		zap.String("amount_in", result.AmountIn.String()),
		zap.String("amount_out", result.AmountOut.String()),
		zap.String("source", string(result.Source)),
	)
}

func balanceDiff(beforeIn, beforeOut, afterIn, afterOut *big.Int) *model.SwapResult {
	if beforeIn == nil || beforeOut == nil || afterIn == nil || afterOut == nil {
		return nil
	}
	return &model.SwapResult{
		AmountIn:  new(big.Int).Sub(beforeIn, afterIn),
		AmountOut: new(big.Int).Sub(afterOut, beforeOut),
		Source:    model.SwapSourceBalanceDiff,
	}
}

func usableDiff(diff *model.SwapResult) bool {
	return diff != nil && diff.AmountIn.Sign() >= 0 && diff.AmountOut.Sign() > 0
}

// balances reads both token balances of owner. Nil results mean the read
// was skipped or failed.
func (o *Orchestrator) balances(ctx context.Context, owner, tokenIn, tokenOut common.Address) (*big.Int, *big.Int) {
	if o.deps.Balances == nil {
		return nil, nil
	}
	in, err := dex.BalanceOf(ctx, o.deps.Balances, tokenIn, owner, nil)
	if err != nil {
		o.logger.Debug("balance read failed", zap.String("token", tokenIn.Hex()), zap.Error(err))
		return nil, nil
	}
	out, err := dex.BalanceOf(ctx, o.deps.Balances, tokenOut, owner, nil)
	if err != nil {
		o.logger.Debug("balance read failed", zap.String("token", tokenOut.Hex()), zap.Error(err))
		return nil, nil
	}
	return in, out
}
