package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"liquidityDesk/internal/model"
)

// SwapDecoder decodes swap and transfer logs from a swap receipt.
type SwapDecoder struct {
	v3Swap   abi.Event
	v4Swap   abi.Event
	transfer abi.Event
}

// NewSwapDecoder builds a decoder for V3 pool Swap, V4 PoolManager Swap and
// ERC20 Transfer events.
func NewSwapDecoder() (*SwapDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	managerABI, err := V4PoolManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool manager abi: %w", err)
	}
	erc20ABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &SwapDecoder{
		v3Swap:   poolABI.Events["Swap"],
		v4Swap:   managerABI.Events["Swap"],
		transfer: erc20ABI.Events["Transfer"],
	}, nil
}

// DecodeSwap decodes a V3 or V4 Swap log. ok is false for any other log.
// Amounts are normalised to the pool's side: positive means the pool received.
func (d *SwapDecoder) DecodeSwap(log types.Log) (model.SwapEventData, bool, error) {
	if len(log.Topics) == 0 {
		return model.SwapEventData{}, false, nil
	}
	switch log.Topics[0] {
	case d.v3Swap.ID:
		data, err := d.decodeV3Swap(log)
		return data, true, err
	case d.v4Swap.ID:
		data, err := d.decodeV4Swap(log)
		return data, true, err
	default:
		return model.SwapEventData{}, false, nil
	}
}

// DecodeTransfer decodes an ERC20 Transfer log. ok is false for any other log.
func (d *SwapDecoder) DecodeTransfer(log types.Log) (model.TransferEventData, bool, error) {
	if len(log.Topics) == 0 || log.Topics[0] != d.transfer.ID {
		return model.TransferEventData{}, false, nil
	}
	indexedTopics, err := parseIndexedTopics(d.transfer, log.Topics)
	if err != nil {
		return model.TransferEventData{}, true, err
	}
	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.transfer.Inputs), indexedTopics); err != nil {
		return model.TransferEventData{}, true, fmt.Errorf("parse topics: %w", err)
	}
	values, err := unpackNonIndexed(d.transfer, log.Data)
	if err != nil {
		return model.TransferEventData{}, true, err
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return model.TransferEventData{}, true, err
	}
	return model.TransferEventData{
		Token: log.Address.Hex(),
		From:  indexed.From.Hex(),
		To:    indexed.To.Hex(),
		Value: value,
	}, true, nil
}

func (d *SwapDecoder) decodeV3Swap(log types.Log) (model.SwapEventData, error) {
	indexedTopics, err := parseIndexedTopics(d.v3Swap, log.Topics)
	if err != nil {
		return model.SwapEventData{}, err
	}
	var indexed struct {
		Sender    common.Address
		Recipient common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.v3Swap.Inputs), indexedTopics); err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(d.v3Swap, log.Data)
	if err != nil {
		return model.SwapEventData{}, err
	}
	if len(values) != 5 {
		return model.SwapEventData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}
	out, err := swapAmounts(values)
	if err != nil {
		return model.SwapEventData{}, err
	}
	out.Address = log.Address.Hex()
	out.Sender = indexed.Sender.Hex()
	out.Recipient = indexed.Recipient.Hex()
	out.Source = model.SwapSourceV3Pool
	return out, nil
}

func (d *SwapDecoder) decodeV4Swap(log types.Log) (model.SwapEventData, error) {
	indexedTopics, err := parseIndexedTopics(d.v4Swap, log.Topics)
	if err != nil {
		return model.SwapEventData{}, err
	}
	var indexed struct {
		Id     [32]byte
		Sender common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.v4Swap.Inputs), indexedTopics); err != nil {
		return model.SwapEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(d.v4Swap, log.Data)
	if err != nil {
		return model.SwapEventData{}, err
	}
	if len(values) != 6 {
		return model.SwapEventData{}, fmt.Errorf("unexpected swap values: %d", len(values))
	}
	out, err := swapAmounts(values[:5])
	if err != nil {
		return model.SwapEventData{}, err
	}
	fee, err := asBigInt(values[5])
	if err != nil {
		return model.SwapEventData{}, err
	}
	// PoolManager reports the swapper's deltas.
	out.Amount0.Neg(out.Amount0)
	out.Amount1.Neg(out.Amount1)
	out.Address = common.Hash(indexed.Id).Hex()
	out.Sender = indexed.Sender.Hex()
	out.Fee = uint32(fee.Uint64())
	out.Source = model.SwapSourceV4Manager
	return out, nil
}

func swapAmounts(values []interface{}) (model.SwapEventData, error) {
	amount0, err := asBigInt(values[0])
	if err != nil {
		return model.SwapEventData{}, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return model.SwapEventData{}, err
	}
	sqrtPrice, err := asBigInt(values[2])
	if err != nil {
		return model.SwapEventData{}, err
	}
	liquidity, err := asBigInt(values[3])
	if err != nil {
		return model.SwapEventData{}, err
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return model.SwapEventData{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.SwapEventData{}, err
	}
	return model.SwapEventData{
		Amount0:      amount0,
		Amount1:      amount1,
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         tick,
	}, nil
}

func parseIndexedTopics(event abi.Event, topics []common.Hash) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return topics[1:], nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, data []byte) ([]interface{}, error) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

// ReconcileSwap derives what owner paid and received in a swap receipt.
// A single Swap event is authoritative; otherwise owner's ERC20 transfers of
// tokenIn and tokenOut are summed. zeroForOne is the swap direction.
func (d *SwapDecoder) ReconcileSwap(logs []*types.Log, owner, tokenIn, tokenOut common.Address, zeroForOne bool) (model.SwapResult, error) {
	var swaps []model.SwapEventData
	paid, received := new(big.Int), new(big.Int)
	for _, lg := range logs {
		if lg == nil {
			continue
		}
		if swap, ok, err := d.DecodeSwap(*lg); ok {
			if err != nil {
				return model.SwapResult{}, fmt.Errorf("decode swap log %d: %w", lg.Index, err)
			}
			swaps = append(swaps, swap)
			continue
		}
		transfer, ok, err := d.DecodeTransfer(*lg)
		if !ok {
			continue
		}
		if err != nil {
			return model.SwapResult{}, fmt.Errorf("decode transfer log %d: %w", lg.Index, err)
		}
		token := common.HexToAddress(transfer.Token)
		switch {
		case token == tokenIn && common.HexToAddress(transfer.From) == owner:
			paid.Add(paid, transfer.Value)
		case token == tokenOut && common.HexToAddress(transfer.To) == owner:
			received.Add(received, transfer.Value)
		}
	}

	if len(swaps) == 1 {
		in, out := swaps[0].Amount0, swaps[0].Amount1
		if !zeroForOne {
			in, out = swaps[0].Amount1, swaps[0].Amount0
		}
		if in.Sign() > 0 && out.Sign() < 0 {
			return model.SwapResult{
				AmountIn:  new(big.Int).Set(in),
				AmountOut: new(big.Int).Neg(out),
				Source:    swaps[0].Source,
			}, nil
		}
	}
	if paid.Sign() > 0 && received.Sign() > 0 {
		return model.SwapResult{AmountIn: paid, AmountOut: received, Source: model.SwapSourceTransfers}, nil
	}
	return model.SwapResult{}, fmt.Errorf("no swap amounts found in %d logs", len(logs))
}
