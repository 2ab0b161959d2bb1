package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityDesk/internal/chain"
	"liquidityDesk/internal/model"
)

// V3PoolReader reads live state from a V3 pool contract.
type V3PoolReader struct {
	caller chain.ContractCaller
	pool   common.Address
	cache  *PoolMetaCache
	logger *zap.Logger
}

// NewV3PoolReader builds a reader for pool. cache may be nil.
func NewV3PoolReader(caller chain.ContractCaller, pool common.Address, cache *PoolMetaCache, logger *zap.Logger) *V3PoolReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewPoolMetaCache()
	}
	return &V3PoolReader{caller: caller, pool: pool, cache: cache, logger: logger}
}

// Meta returns the pool's immutable metadata, cached after the first read.
func (r *V3PoolReader) Meta(ctx context.Context) (model.PoolMeta, error) {
	if meta, ok := r.cache.Get(r.pool); ok {
		return meta, nil
	}
	meta, err := FetchPoolMeta(ctx, r.caller, r.pool)
	if err != nil {
		return model.PoolMeta{}, err
	}
	r.cache.Set(r.pool, meta)
	return meta, nil
}

// PoolState reads slot0 and active liquidity.
func (r *V3PoolReader) PoolState(ctx context.Context) (model.PoolState, error) {
	meta, err := r.Meta(ctx)
	if err != nil {
		return model.PoolState{}, err
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, r.caller, r.pool, poolABI, "slot0", nil)
	if err != nil {
		return model.PoolState{}, err
	}
	sqrtPrice, tick, err := parseSlot0(values)
	if err != nil {
		return model.PoolState{}, err
	}

	values, err = callMethod(ctx, r.caller, r.pool, poolABI, "liquidity", nil)
	if err != nil {
		return model.PoolState{}, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("liquidity: %w", err)
	}

	r.logger.Debug("v3 pool state",
		zap.String("pool", r.pool.Hex()),
		zap.Int32("tick", tick),
		zap.String("liquidity", liquidity.String()),
	)
	return model.PoolState{
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Liquidity:    liquidity,
		Fee:          meta.Fee,
	}, nil
}

// V4StateReader reads live state for one V4 pool through StateView.
type V4StateReader struct {
	caller    chain.ContractCaller
	stateView common.Address
	poolID    common.Hash
	logger    *zap.Logger
}

// NewV4StateReader builds a reader for the pool identified by key.
func NewV4StateReader(caller chain.ContractCaller, stateView common.Address, key model.PoolKey, logger *zap.Logger) (*V4StateReader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id, err := PoolID(key)
	if err != nil {
		return nil, err
	}
	return &V4StateReader{caller: caller, stateView: stateView, poolID: id, logger: logger}, nil
}

// PoolState reads getSlot0 and getLiquidity for the pool.
func (r *V4StateReader) PoolState(ctx context.Context) (model.PoolState, error) {
	stateABI, err := V4StateViewABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse state view abi: %w", err)
	}

	values, err := callMethod(ctx, r.caller, r.stateView, stateABI, "getSlot0", nil, r.poolID)
	if err != nil {
		return model.PoolState{}, err
	}
	if len(values) != 4 {
		return model.PoolState{}, fmt.Errorf("unexpected getSlot0 values: %d", len(values))
	}
	sqrtPrice, tick, err := parseSlot0(values)
	if err != nil {
		return model.PoolState{}, err
	}
	if sqrtPrice.Sign() == 0 {
		return model.PoolState{}, fmt.Errorf("pool %s not initialized", r.poolID.Hex())
	}
	lpFee, err := asBigInt(values[3])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("lp fee: %w", err)
	}

	values, err = callMethod(ctx, r.caller, r.stateView, stateABI, "getLiquidity", nil, r.poolID)
	if err != nil {
		return model.PoolState{}, err
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return model.PoolState{}, fmt.Errorf("liquidity: %w", err)
	}

	r.logger.Debug("v4 pool state",
		zap.String("pool_id", r.poolID.Hex()),
		zap.Int32("tick", tick),
		zap.String("liquidity", liquidity.String()),
	)
	return model.PoolState{
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Liquidity:    liquidity,
		Fee:          uint32(lpFee.Uint64()),
	}, nil
}

func parseSlot0(values []interface{}) (*big.Int, int32, error) {
	if len(values) < 2 {
		return nil, 0, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return nil, 0, fmt.Errorf("sqrt price: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return nil, 0, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return nil, 0, err
	}
	return sqrtPrice, tick, nil
}

var poolKeyArguments = func() abi.Arguments {
	addressType, _ := abi.NewType("address", "", nil)
	uint24Type, _ := abi.NewType("uint24", "", nil)
	int24Type, _ := abi.NewType("int24", "", nil)
	return abi.Arguments{
		{Type: addressType},
		{Type: addressType},
		{Type: uint24Type},
		{Type: int24Type},
		{Type: addressType},
	}
}()

// PoolID returns keccak256(abi.encode(PoolKey)).
func PoolID(key model.PoolKey) (common.Hash, error) {
	for _, addr := range []string{key.Currency0, key.Currency1} {
		if !common.IsHexAddress(addr) {
			return common.Hash{}, fmt.Errorf("invalid currency address: %q", addr)
		}
	}
	hooks := common.Address{}
	if key.Hooks != "" {
		if !common.IsHexAddress(key.Hooks) {
			return common.Hash{}, fmt.Errorf("invalid hooks address: %q", key.Hooks)
		}
		hooks = common.HexToAddress(key.Hooks)
	}
	encoded, err := poolKeyArguments.Pack(
		common.HexToAddress(key.Currency0),
		common.HexToAddress(key.Currency1),
		new(big.Int).SetUint64(uint64(key.Fee)),
		big.NewInt(int64(key.TickSpacing)),
		hooks,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode pool key: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}

// QuoteExactInputSingle asks a QuoterV2 contract for the output of a
// single-pool exact-input swap.
func QuoteExactInputSingle(ctx context.Context, caller chain.ContractCaller, quoter, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	parsed, err := QuoterV2ABI()
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}
	values, err := callMethod(ctx, caller, quoter, parsed, "quoteExactInputSingle", nil, params)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}
