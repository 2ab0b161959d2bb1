package calldata

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"liquidityDesk/internal/model"
)

// Position manager actions.
const (
	ActionIncreaseLiquidity byte = 0x00
	ActionDecreaseLiquidity byte = 0x01
	ActionMintPosition      byte = 0x02
	ActionSettlePair        byte = 0x0d
	ActionTakePair          byte = 0x11
)

// Universal router commands.
const (
	CommandV3SwapExactIn byte = 0x00
	CommandPermit2Permit byte = 0x0a
)

// Uint128Max bounds the slippage limits the position manager accepts.
var Uint128Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// PositionManagerBuilder encodes V4 position manager calls locally and,
// when a router is set, V3 exact-input swaps through the universal router.
type PositionManagerBuilder struct {
	PositionManager common.Address
	// UniversalRouter is optional; BuildSwap returns ErrUnsupported without it.
	UniversalRouter common.Address
}

var _ Builder = (*PositionManagerBuilder)(nil)

type poolKeyTuple struct {
	Currency0   common.Address
	Currency1   common.Address
	Fee         *big.Int
	TickSpacing *big.Int
	Hooks       common.Address
}

type permitDetailsTuple struct {
	Token      common.Address
	Amount     *big.Int
	Expiration *big.Int
	Nonce      *big.Int
}

type permitBatchTuple struct {
	Details     []permitDetailsTuple
	Spender     common.Address
	SigDeadline *big.Int
}

type permitSingleTuple struct {
	Details     permitDetailsTuple
	Spender     common.Address
	SigDeadline *big.Int
}

func toPoolKeyTuple(key model.PoolKey) poolKeyTuple {
	return poolKeyTuple{
		Currency0:   common.HexToAddress(key.Currency0),
		Currency1:   common.HexToAddress(key.Currency1),
		Fee:         new(big.Int).SetUint64(uint64(key.Fee)),
		TickSpacing: big.NewInt(int64(key.TickSpacing)),
		Hooks:       common.HexToAddress(key.Hooks),
	}
}

func toDetailsTuple(d model.PermitDetails) permitDetailsTuple {
	return permitDetailsTuple{
		Token:      common.HexToAddress(d.Token),
		Amount:     orZero(d.Amount),
		Expiration: new(big.Int).SetUint64(d.Expiration),
		Nonce:      new(big.Int).SetUint64(d.Nonce),
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orMax128(v *big.Int) *big.Int {
	if v == nil {
		return Uint128Max
	}
	return v
}

func deadlineWord(deadline time.Time) *big.Int {
	if deadline.IsZero() {
		return new(big.Int)
	}
	return big.NewInt(deadline.Unix())
}

// plan accumulates position manager actions and their encoded parameters.
type plan struct {
	actions []byte
	params  [][]byte
}

func (p *plan) add(action byte, encoded []byte, err error) error {
	if err != nil {
		return fmt.Errorf("encode action 0x%02x: %w", action, err)
	}
	p.actions = append(p.actions, action)
	p.params = append(p.params, encoded)
	return nil
}

func (p *plan) unlockData() ([]byte, error) {
	return unlockDataArgs.Pack(p.actions, p.params)
}

func (b *PositionManagerBuilder) modifyLiquidities(p *plan, deadline time.Time) ([]byte, error) {
	unlock, err := p.unlockData()
	if err != nil {
		return nil, fmt.Errorf("encode unlock data: %w", err)
	}
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	return parsed.Pack("modifyLiquidities", unlock, deadlineWord(deadline))
}

func (b *PositionManagerBuilder) transaction(data []byte) Transaction {
	return Transaction{To: b.PositionManager, Data: data, Value: new(big.Int)}
}

// BuildDeposit encodes a mint (or an increase when TokenID is set) settled
// from the owner's Permit2 allowance, prefixed with permitBatch when a
// signed permit is attached.
func (b *PositionManagerBuilder) BuildDeposit(ctx context.Context, req DepositRequest) (Transaction, error) {
	if req.Liquidity == nil || req.Liquidity.Sign() <= 0 {
		return Transaction{}, fmt.Errorf("build deposit: liquidity must be positive")
	}
	key := toPoolKeyTuple(req.Pool)
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = req.Owner
	}

	var p plan
	var err error
	if req.TokenID != nil {
		encoded, packErr := increaseParams.Pack(req.TokenID, req.Liquidity, orMax128(req.Amount0Max), orMax128(req.Amount1Max), []byte{})
		err = p.add(ActionIncreaseLiquidity, encoded, packErr)
	} else {
		encoded, packErr := mintParams.Pack(key, big.NewInt(int64(req.TickLower)), big.NewInt(int64(req.TickUpper)),
			req.Liquidity, orMax128(req.Amount0Max), orMax128(req.Amount1Max), recipient, []byte{})
		err = p.add(ActionMintPosition, encoded, packErr)
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("build deposit: %w", err)
	}
	encoded, packErr := settlePairParams.Pack(key.Currency0, key.Currency1)
	if err := p.add(ActionSettlePair, encoded, packErr); err != nil {
		return Transaction{}, fmt.Errorf("build deposit: %w", err)
	}

	call, err := b.modifyLiquidities(&p, req.Deadline)
	if err != nil {
		return Transaction{}, fmt.Errorf("build deposit: %w", err)
	}
	if req.Permit == nil || req.Permit.Batch == nil {
		return b.transaction(call), nil
	}

	permitCall, err := b.encodePermitBatch(req.Owner, req.Permit)
	if err != nil {
		return Transaction{}, fmt.Errorf("build deposit: %w", err)
	}
	parsed, err := PositionManagerABI()
	if err != nil {
		return Transaction{}, fmt.Errorf("parse position manager abi: %w", err)
	}
	data, err := parsed.Pack("multicall", [][]byte{permitCall, call})
	if err != nil {
		return Transaction{}, fmt.Errorf("build deposit: encode multicall: %w", err)
	}
	return b.transaction(data), nil
}

func (b *PositionManagerBuilder) encodePermitBatch(owner common.Address, sig *model.PermitSignature) ([]byte, error) {
	batch := permitBatchTuple{
		Spender:     common.HexToAddress(sig.Batch.Spender),
		SigDeadline: orZero(sig.Batch.SigDeadline),
	}
	for _, d := range sig.Batch.Details {
		batch.Details = append(batch.Details, toDetailsTuple(d))
	}
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	data, err := parsed.Pack("permitBatch", owner, batch, sig.Signature)
	if err != nil {
		return nil, fmt.Errorf("encode permit batch: %w", err)
	}
	return data, nil
}

// BuildWithdraw encodes a liquidity decrease and takes both tokens.
func (b *PositionManagerBuilder) BuildWithdraw(ctx context.Context, req WithdrawRequest) (Transaction, error) {
	if req.TokenID == nil {
		return Transaction{}, fmt.Errorf("build withdraw: token id required")
	}
	if req.Liquidity == nil || req.Liquidity.Sign() <= 0 {
		return Transaction{}, fmt.Errorf("build withdraw: liquidity must be positive")
	}
	data, err := b.decreaseAndTake(req.Pool, req.TokenID, req.Liquidity, orZero(req.Amount0Min), orZero(req.Amount1Min), req.Recipient, req.Owner, req.Deadline)
	if err != nil {
		return Transaction{}, fmt.Errorf("build withdraw: %w", err)
	}
	return b.transaction(data), nil
}

// BuildCollect encodes a zero-liquidity decrease, which settles accrued fees,
// and takes both tokens.
func (b *PositionManagerBuilder) BuildCollect(ctx context.Context, req CollectRequest) (Transaction, error) {
	if req.TokenID == nil {
		return Transaction{}, fmt.Errorf("build collect: token id required")
	}
	data, err := b.decreaseAndTake(req.Pool, req.TokenID, new(big.Int), new(big.Int), new(big.Int), req.Recipient, req.Owner, req.Deadline)
	if err != nil {
		return Transaction{}, fmt.Errorf("build collect: %w", err)
	}
	return b.transaction(data), nil
}

func (b *PositionManagerBuilder) decreaseAndTake(pool model.PoolKey, tokenID, liquidity, min0, min1 *big.Int, recipient, owner common.Address, deadline time.Time) ([]byte, error) {
	if recipient == (common.Address{}) {
		recipient = owner
	}
	key := toPoolKeyTuple(pool)
	var p plan
	encoded, err := decreaseParams.Pack(tokenID, liquidity, min0, min1, []byte{})
	if err := p.add(ActionDecreaseLiquidity, encoded, err); err != nil {
		return nil, err
	}
	encoded, err = takePairParams.Pack(key.Currency0, key.Currency1, recipient)
	if err := p.add(ActionTakePair, encoded, err); err != nil {
		return nil, err
	}
	return b.modifyLiquidities(&p, deadline)
}

// BuildSwap encodes an exact-input single-pool V3 swap through the universal
// router, preceded by PERMIT2_PERMIT when a signed permit is attached. The
// router pulls the input through Permit2.
func (b *PositionManagerBuilder) BuildSwap(ctx context.Context, req SwapRequest) (Transaction, error) {
	if b.UniversalRouter == (common.Address{}) {
		return Transaction{}, fmt.Errorf("build swap: %w: no universal router configured", ErrUnsupported)
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return Transaction{}, fmt.Errorf("build swap: amount in must be positive")
	}

	var commands []byte
	var inputs [][]byte
	if req.Permit != nil && req.Permit.Single != nil {
		single := permitSingleTuple{
			Details:     toDetailsTuple(req.Permit.Single.Details),
			Spender:     common.HexToAddress(req.Permit.Single.Spender),
			SigDeadline: orZero(req.Permit.Single.SigDeadline),
		}
		encoded, err := permit2PermitInput.Pack(single, req.Permit.Signature)
		if err != nil {
			return Transaction{}, fmt.Errorf("build swap: encode permit: %w", err)
		}
		commands = append(commands, CommandPermit2Permit)
		inputs = append(inputs, encoded)
	}

	path := EncodeV3Path(req.TokenIn, req.Fee, req.TokenOut)
	encoded, err := v3SwapExactInInput.Pack(req.Owner, req.AmountIn, orZero(req.MinAmountOut), path, true)
	if err != nil {
		return Transaction{}, fmt.Errorf("build swap: encode swap: %w", err)
	}
	commands = append(commands, CommandV3SwapExactIn)
	inputs = append(inputs, encoded)

	parsed, err := UniversalRouterABI()
	if err != nil {
		return Transaction{}, fmt.Errorf("parse universal router abi: %w", err)
	}
	data, err := parsed.Pack("execute", commands, inputs, deadlineWord(req.Deadline))
	if err != nil {
		return Transaction{}, fmt.Errorf("build swap: encode execute: %w", err)
	}
	return Transaction{To: b.UniversalRouter, Data: data, Value: new(big.Int)}, nil
}

// EncodeV3Path packs tokenIn | fee (3 bytes) | tokenOut.
func EncodeV3Path(tokenIn common.Address, fee uint32, tokenOut common.Address) []byte {
	path := make([]byte, 0, 43)
	path = append(path, tokenIn.Bytes()...)
	path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
	path = append(path, tokenOut.Bytes()...)
	return path
}
