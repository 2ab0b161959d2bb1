package flow

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"liquidityDesk/internal/approval"
	"liquidityDesk/internal/calldata"
	"liquidityDesk/internal/chain"
	"liquidityDesk/internal/dex"
	"liquidityDesk/internal/model"
)

// stepOutcome is what a successful step hands back to the flow.
type stepOutcome struct {
	txHash     common.Hash
	permit     *model.PermitSignature
	swapPermit *model.PermitSignature
	mined      *minedSwap
}

// apply copies the outcome onto f. Callers hold f.mu.
func (out stepOutcome) apply(f *Flow) {
	if out.permit != nil {
		f.permit = out.permit
	}
	if out.swapPermit != nil {
		f.swapPermit = out.swapPermit
	}
	if out.mined != nil {
		f.mined = out.mined
	}
}

func (o *Orchestrator) runStep(ctx context.Context, snap snapshot, step Step, status Status) (stepOutcome, error) {
	intent := snap.intent
	switch step {
	case StepApproveToken0:
		return o.approve(ctx, common.HexToAddress(intent.Pool.Currency0))
	case StepApproveToken1:
		return o.approve(ctx, common.HexToAddress(intent.Pool.Currency1))
	case StepApproveInput:
		return o.approve(ctx, common.HexToAddress(intent.Pool.Token(intent.ZapInputToken)))
	case StepApproveOutput:
		return o.approve(ctx, common.HexToAddress(intent.Pool.Token(intent.ZapInputToken.Other())))
	case StepSignPermit:
		sig, err := o.signBatch(ctx, status.Direct.PermitBatchData, status.Direct.SignatureDetails)
		return stepOutcome{permit: sig}, err
	case StepSignBatchPermit:
		sig, err := o.signBatch(ctx, status.Zap.PermitBatchData, status.Zap.SignatureDetails)
		return stepOutcome{permit: sig}, err
	case StepSignSwapPermit:
		sig, err := o.signSingle(ctx, status.Zap.SwapPermitData, status.Zap.SignatureDetails)
		return stepOutcome{swapPermit: sig}, err
	case StepSwap:
		return o.swap(ctx, snap)
	case StepExecute:
		return o.execute(ctx, snap)
	default:
		return stepOutcome{}, fmt.Errorf("%w: no handler for step %q", model.ErrStepPreconditionMissing, step)
	}
}

// approve grants Permit2 an unlimited ERC20 allowance on token.
func (o *Orchestrator) approve(ctx context.Context, token common.Address) (stepOutcome, error) {
	data, err := dex.EncodeApprove(o.cfg.Permit2, approval.MaxUint256)
	if err != nil {
		return stepOutcome{}, err
	}
	hash, _, err := o.submit(ctx, calldata.Transaction{To: token, Data: data})
	return stepOutcome{txHash: hash}, err
}

func (o *Orchestrator) signBatch(ctx context.Context, batch *model.PermitBatch, domain *model.SignatureDetails) (*model.PermitSignature, error) {
	if batch == nil || domain == nil {
		return nil, fmt.Errorf("%w: permit batch data", model.ErrStepPreconditionMissing)
	}
	digest, err := approval.PermitBatchDigest(*domain, *batch)
	if err != nil {
		return nil, fmt.Errorf("permit batch digest: %w", err)
	}
	sig, err := o.deps.Signer.SignTypedData(ctx, digest)
	if err != nil {
		return nil, err
	}
	b := *batch
	return &model.PermitSignature{Batch: &b, Signature: sig}, nil
}

func (o *Orchestrator) signSingle(ctx context.Context, single *model.PermitSingle, domain *model.SignatureDetails) (*model.PermitSignature, error) {
	if single == nil || domain == nil {
		return nil, fmt.Errorf("%w: swap permit data", model.ErrStepPreconditionMissing)
	}
	digest, err := approval.PermitSingleDigest(*domain, *single)
	if err != nil {
		return nil, fmt.Errorf("permit single digest: %w", err)
	}
	sig, err := o.deps.Signer.SignTypedData(ctx, digest)
	if err != nil {
		return nil, err
	}
	s := *single
	return &model.PermitSignature{Single: &s, Signature: sig}, nil
}

// submit sends tx and waits for it to be mined. The hash is returned even
// when the transaction reverts.
func (o *Orchestrator) submit(ctx context.Context, tx calldata.Transaction) (common.Hash, *types.Receipt, error) {
	hash, err := o.deps.Signer.SendTransaction(ctx, tx.To, tx.Data, tx.Value)
	if err != nil {
		return common.Hash{}, nil, err
	}
	o.logger.Debug("transaction submitted", zap.String("tx_hash", hash.Hex()), zap.String("to", tx.To.Hex()))
	receipt, err := chain.WaitForReceipt(ctx, o.deps.Receipts, hash, o.cfg.ReceiptPollInterval, o.logger)
	if err != nil {
		return hash, nil, fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash, receipt, fmt.Errorf("%w: %s", model.ErrTransactionReverted, hash.Hex())
	}
	return hash, receipt, nil
}

func (o *Orchestrator) deadline(intent model.PositionIntent) time.Time {
	d := intent.Deadline
	if d <= 0 {
		d = o.cfg.DefaultDeadline
	}
	return o.cfg.Now().Add(d)
}

func recipient(snap snapshot) common.Address {
	if common.IsHexAddress(snap.intent.Recipient) {
		return common.HexToAddress(snap.intent.Recipient)
	}
	return snap.owner
}

// execute submits the final position manager call.
func (o *Orchestrator) execute(ctx context.Context, snap snapshot) (stepOutcome, error) {
	intent := snap.intent
	var (
		tx  calldata.Transaction
		err error
	)
	switch intent.Operation {
	case model.OperationWithdraw:
		tx, err = o.buildWithdraw(ctx, snap)
	case model.OperationCollect:
		if intent.TokenID == nil {
			return stepOutcome{}, fmt.Errorf("%w: collect needs a token id", model.ErrStepPreconditionMissing)
		}
		tx, err = o.deps.Builder.BuildCollect(ctx, calldata.CollectRequest{
			Owner:     snap.owner,
			Pool:      intent.Pool,
			TokenID:   intent.TokenID,
			Recipient: recipient(snap),
			Deadline:  o.deadline(intent),
		})
	default:
		tx, err = o.buildDeposit(ctx, snap)
	}
	if err != nil {
		return stepOutcome{}, err
	}
	hash, _, err := o.submit(ctx, tx)
	return stepOutcome{txHash: hash}, err
}

func (o *Orchestrator) buildDeposit(ctx context.Context, snap snapshot) (calldata.Transaction, error) {
	intent := snap.intent
	if snap.deposit == nil || snap.deposit.Liquidity == nil || snap.deposit.Liquidity.Sign() <= 0 {
		return calldata.Transaction{}, fmt.Errorf("%w: deposit quote", model.ErrStepPreconditionMissing)
	}
	if intent.IsZap && !snap.completed.Has(StepSwap) {
		return calldata.Transaction{}, fmt.Errorf("%w: zap swap has not run", model.ErrStepPreconditionMissing)
	}
	max0 := WithSlippage(snap.deposit.Amount0, intent.SlippageBps, true)
	max1 := WithSlippage(snap.deposit.Amount1, intent.SlippageBps, true)
	if intent.IsZap {
		max0 = capAt(max0, snap.held0)
		max1 = capAt(max1, snap.held1)
	}
	return o.deps.Builder.BuildDeposit(ctx, calldata.DepositRequest{
		Owner:      snap.owner,
		Pool:       intent.Pool,
		TickLower:  snap.deposit.FinalTickLower,
		TickUpper:  snap.deposit.FinalTickUpper,
		TokenID:    intent.TokenID,
		Liquidity:  snap.deposit.Liquidity,
		Amount0Max: max0,
		Amount1Max: max1,
		Recipient:  recipient(snap),
		Permit:     snap.permit,
		Deadline:   o.deadline(intent),
	})
}

func (o *Orchestrator) buildWithdraw(ctx context.Context, snap snapshot) (calldata.Transaction, error) {
	intent := snap.intent
	if intent.TokenID == nil {
		return calldata.Transaction{}, fmt.Errorf("%w: withdraw needs a token id", model.ErrStepPreconditionMissing)
	}
	expected, err := o.deps.Quotes.Withdrawal(ctx, intent)
	if err != nil {
		return calldata.Transaction{}, fmt.Errorf("quote withdrawal: %w", err)
	}
	return o.deps.Builder.BuildWithdraw(ctx, calldata.WithdrawRequest{
		Owner:      snap.owner,
		Pool:       intent.Pool,
		TokenID:    intent.TokenID,
		Liquidity:  intent.LiquidityDelta,
		Amount0Min: WithSlippage(expected.Amount0, intent.SlippageBps, false),
		Amount1Min: WithSlippage(expected.Amount1, intent.SlippageBps, false),
		Recipient:  recipient(snap),
		Deadline:   o.deadline(intent),
	})
}

func capAt(v, limit *big.Int) *big.Int {
	if limit == nil || v.Cmp(limit) <= 0 {
		return v
	}
	return new(big.Int).Set(limit)
}
