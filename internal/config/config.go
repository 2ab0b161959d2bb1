package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"liquidityDesk/internal/model"
)

// CanonicalPermit2 is the Permit2 deployment shared by every EVM chain.
const CanonicalPermit2 = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// Contracts are the on-chain addresses a command talks to.
type Contracts struct {
	Permit2         string
	PositionManager string
	StateView       string
	Quoter          string
	UniversalRouter string
	// SwapSpender receives the zap swap permit; defaults to UniversalRouter.
	SwapSpender string
}

// Pool selects the pool a position lives in. Address is a V3 pool to read
// state from; without it state comes from the V4 StateView.
type Pool struct {
	Address     string
	Currency0   string
	Currency1   string
	Fee         uint32
	TickSpacing int32
	Hooks       string
}

// Position is the user's position request as entered.
type Position struct {
	TickLower   int32
	TickUpper   int32
	Amount      string
	Side        string
	Zap         bool
	SlippageBps uint32
	TokenID     string
	Liquidity   string
	Recipient   string
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL    string
	LogLevel  string
	Contracts Contracts
	Pool      Pool
	Position  Position

	// Zap price impact, in percent, that blocks the swap or logs a warning.
	HighImpactPct   float64
	MediumImpactPct float64
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}
	return fromViper(v), nil
}

// newViper layers defaults, a .env file, LPDESK_* env, flags and an
// optional config file.
func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LPDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("permit2", CanonicalPermit2)
	v.SetDefault("hooks", common.Address{}.Hex())
	v.SetDefault("side", "token0")
	v.SetDefault("slippage-bps", 50)
	setFlowDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func fromViper(v *viper.Viper) Config {
	router := v.GetString("universal-router")
	swapSpender := v.GetString("swap-spender")
	if swapSpender == "" {
		swapSpender = router
	}
	return Config{
		RPCURL:          v.GetString("rpc"),
		LogLevel:        v.GetString("log-level"),
		HighImpactPct:   v.GetFloat64("high-impact-pct"),
		MediumImpactPct: v.GetFloat64("medium-impact-pct"),
		Contracts: Contracts{
			Permit2:         v.GetString("permit2"),
			PositionManager: v.GetString("position-manager"),
			StateView:       v.GetString("state-view"),
			Quoter:          v.GetString("quoter"),
			UniversalRouter: router,
			SwapSpender:     swapSpender,
		},
		Pool: Pool{
			Address:     v.GetString("pool"),
			Currency0:   v.GetString("currency0"),
			Currency1:   v.GetString("currency1"),
			Fee:         v.GetUint32("fee"),
			TickSpacing: v.GetInt32("tick-spacing"),
			Hooks:       v.GetString("hooks"),
		},
		Position: Position{
			TickLower:   v.GetInt32("tick-lower"),
			TickUpper:   v.GetInt32("tick-upper"),
			Amount:      v.GetString("amount"),
			Side:        v.GetString("side"),
			Zap:         v.GetBool("zap"),
			SlippageBps: v.GetUint32("slippage-bps"),
			TokenID:     v.GetString("token-id"),
			Liquidity:   v.GetString("liquidity"),
			Recipient:   v.GetString("recipient"),
		},
	}
}

// Key validates the pool settings and returns the pool key.
func (p Pool) Key() (model.PoolKey, error) {
	for name, addr := range map[string]string{"currency0": p.Currency0, "currency1": p.Currency1, "hooks": p.Hooks} {
		if !common.IsHexAddress(addr) {
			return model.PoolKey{}, fmt.Errorf("%s %q is not an address", name, addr)
		}
	}
	c0, c1 := common.HexToAddress(p.Currency0), common.HexToAddress(p.Currency1)
	if c0 == c1 {
		return model.PoolKey{}, fmt.Errorf("currency0 and currency1 are the same token")
	}
	if strings.ToLower(c0.Hex()) > strings.ToLower(c1.Hex()) {
		return model.PoolKey{}, fmt.Errorf("currency0 must sort below currency1")
	}
	if p.TickSpacing <= 0 {
		return model.PoolKey{}, fmt.Errorf("tick-spacing must be positive")
	}
	if p.Fee >= 1_000_000 {
		return model.PoolKey{}, fmt.Errorf("fee %d is not below 1e6 pips", p.Fee)
	}
	return model.PoolKey{
		Currency0:   c0.Hex(),
		Currency1:   c1.Hex(),
		Fee:         p.Fee,
		TickSpacing: p.TickSpacing,
		Hooks:       common.HexToAddress(p.Hooks).Hex(),
	}, nil
}

// InputSide parses the side setting.
func (p Position) InputSide() (model.Side, error) {
	switch strings.ToLower(strings.TrimSpace(p.Side)) {
	case "", "token0", "0":
		return model.SideToken0, nil
	case "token1", "1":
		return model.SideToken1, nil
	default:
		return model.SideToken0, fmt.Errorf("side %q must be token0 or token1", p.Side)
	}
}

// Address parses a configured contract address; an empty value is the
// zero address with ok false.
func Address(name, value string) (addr common.Address, ok bool, err error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, false, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, false, fmt.Errorf("%s %q is not an address", name, value)
	}
	return common.HexToAddress(value), true, nil
}
