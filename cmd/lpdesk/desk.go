package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityDesk/internal/chain"
	"liquidityDesk/internal/config"
	"liquidityDesk/internal/dex"
	"liquidityDesk/internal/format"
	"liquidityDesk/internal/model"
	"liquidityDesk/internal/quote"
)

// desk is the read side shared by every command: chain client, pool key,
// token metadata and the quote engine.
type desk struct {
	client *chain.Client
	key    model.PoolKey
	token0 model.TokenMeta
	token1 model.TokenMeta
	engine *quote.Engine
}

func openDesk(ctx context.Context, cfg config.Config, logger *zap.Logger) (*desk, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	key, err := cfg.Pool.Key()
	if err != nil {
		return nil, err
	}
	poolAddr, hasPool, err := config.Address("pool", cfg.Pool.Address)
	if err != nil {
		return nil, err
	}
	stateView, hasStateView, err := config.Address("state-view", cfg.Contracts.StateView)
	if err != nil {
		return nil, err
	}
	quoterAddr, hasQuoter, err := config.Address("quoter", cfg.Contracts.Quoter)
	if err != nil {
		return nil, err
	}
	if !hasPool && !hasStateView {
		return nil, fmt.Errorf("pool or state-view is required")
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	var provider quote.PoolStateProvider
	if hasPool {
		reader := dex.NewV3PoolReader(client, poolAddr, nil, logger)
		meta, err := reader.Meta(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("read pool meta: %w", err)
		}
		if !sameToken(meta.Token0, key.Currency0) || !sameToken(meta.Token1, key.Currency1) {
			client.Close()
			return nil, fmt.Errorf("pool %s holds %s/%s, not the configured currencies", poolAddr.Hex(), meta.Token0, meta.Token1)
		}
		provider = reader
	} else {
		reader, err := dex.NewV4StateReader(client, stateView, key, logger)
		if err != nil {
			client.Close()
			return nil, err
		}
		provider = reader
	}

	tokens := dex.NewTokenMetaCache()
	token0 := tokens.Lookup(ctx, client, common.HexToAddress(key.Currency0), logger)
	token1 := tokens.Lookup(ctx, client, common.HexToAddress(key.Currency1), logger)

	var opts quote.Options
	if hasQuoter {
		opts.Quoter = &quote.OnChainQuoter{Caller: client, Address: quoterAddr}
	}
	engine := quote.NewEngine(provider, quote.Decimals{Token0: token0.Decimals, Token1: token1.Decimals}, logger, opts)

	logger.Info("desk ready",
		zap.String("currency0", key.Currency0),
		zap.String("currency1", key.Currency1),
		zap.Uint32("fee", key.Fee),
		zap.Int32("tick_spacing", key.TickSpacing),
		zap.String("token0_symbol", token0.Symbol),
		zap.String("token1_symbol", token1.Symbol),
	)
	return &desk{client: client, key: key, token0: token0, token1: token1, engine: engine}, nil
}

func (d *desk) Close() {
	d.client.Close()
}

func (d *desk) decimals(side model.Side) uint8 {
	if side == model.SideToken1 {
		return d.token1.Decimals
	}
	return d.token0.Decimals
}

func sameToken(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// intent turns the configured position into a PositionIntent for op.
func (d *desk) intent(op model.Operation, pos config.Position) (model.PositionIntent, error) {
	side, err := pos.InputSide()
	if err != nil {
		return model.PositionIntent{}, err
	}
	intent := model.PositionIntent{
		Operation:     op,
		Pool:          d.key,
		TickLower:     pos.TickLower,
		TickUpper:     pos.TickUpper,
		InputSide:     side,
		IsZap:         pos.Zap,
		ZapInputToken: side,
		SlippageBps:   pos.SlippageBps,
		Recipient:     pos.Recipient,
	}
	if pos.Recipient != "" && !common.IsHexAddress(pos.Recipient) {
		return model.PositionIntent{}, fmt.Errorf("recipient %q is not an address", pos.Recipient)
	}

	if op == model.OperationDeposit {
		amount, err := format.ParseAmount(pos.Amount, d.decimals(side))
		if err != nil {
			return model.PositionIntent{}, err
		}
		intent.InputAmount = amount
	}
	if pos.TokenID != "" {
		id, ok := new(big.Int).SetString(pos.TokenID, 10)
		if !ok || id.Sign() < 0 {
			return model.PositionIntent{}, fmt.Errorf("token-id %q is not an unsigned integer", pos.TokenID)
		}
		intent.TokenID = id
	}
	if op == model.OperationWithdraw {
		if intent.TokenID == nil {
			return model.PositionIntent{}, fmt.Errorf("token-id is required to withdraw")
		}
		liquidity, ok := new(big.Int).SetString(pos.Liquidity, 10)
		if !ok || liquidity.Sign() <= 0 {
			return model.PositionIntent{}, fmt.Errorf("liquidity %q must be a positive integer", pos.Liquidity)
		}
		intent.LiquidityDelta = liquidity
	}
	if op == model.OperationCollect && intent.TokenID == nil {
		return model.PositionIntent{}, fmt.Errorf("token-id is required to collect")
	}
	return intent, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
