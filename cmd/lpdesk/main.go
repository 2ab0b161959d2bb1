package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "lpdesk",
		Short:        "Concentrated liquidity position desk",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a direct deposit for a tick range",
		RunE:  runQuote,
	}
	addPoolFlags(quoteCmd.Flags())
	addPositionFlags(quoteCmd.Flags())
	root.AddCommand(quoteCmd)

	zapQuoteCmd := &cobra.Command{
		Use:   "zap-quote",
		Short: "Quote a single-token zap deposit",
		RunE:  runZapQuote,
	}
	addPoolFlags(zapQuoteCmd.Flags())
	addPositionFlags(zapQuoteCmd.Flags())
	addImpactFlags(zapQuoteCmd.Flags())
	root.AddCommand(zapQuoteCmd)

	approvalsCmd := &cobra.Command{
		Use:   "approvals",
		Short: "Show outstanding ERC20 approvals and Permit2 permits for a deposit",
		RunE:  runApprovals,
	}
	addPoolFlags(approvalsCmd.Flags())
	addPositionFlags(approvalsCmd.Flags())
	approvalsCmd.Flags().String("owner", "", "account to check (defaults to the private key's address)")
	approvalsCmd.Flags().String("private-key", "", "hex private key; prefer LPDESK_PRIVATE_KEY or .env")
	approvalsCmd.Flags().Duration("staleness-window", time.Second, "approval read cache lifetime")
	root.AddCommand(approvalsCmd)

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Approve, sign and mint or increase a position",
		RunE:  runDeposit,
	}
	addPoolFlags(depositCmd.Flags())
	addPositionFlags(depositCmd.Flags())
	addFlowFlags(depositCmd.Flags())
	depositCmd.Flags().Bool("acknowledge-impact", false, "allow a zap swap above the high price-impact threshold")
	root.AddCommand(depositCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Remove liquidity from a position",
		RunE:  runWithdraw,
	}
	addPoolFlags(withdrawCmd.Flags())
	addPositionFlags(withdrawCmd.Flags())
	addFlowFlags(withdrawCmd.Flags())
	root.AddCommand(withdrawCmd)

	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect accrued fees of a position",
		RunE:  runCollect,
	}
	addPoolFlags(collectCmd.Flags())
	addPositionFlags(collectCmd.Flags())
	addFlowFlags(collectCmd.Flags())
	root.AddCommand(collectCmd)

	root.AddCommand(newHistoryCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("pool", "", "V3 pool address to read state from")
	flags.String("state-view", "", "V4 StateView address, used when --pool is empty")
	flags.String("quoter", "", "optional QuoterV2 address for zap re-quotes")
	flags.String("permit2", "", "Permit2 address")
	flags.String("position-manager", "", "V4 PositionManager address")
	flags.String("universal-router", "", "Universal Router address for zap swaps")
	flags.String("swap-spender", "", "zap swap permit spender (defaults to the router)")
	flags.String("currency0", "", "pool currency0")
	flags.String("currency1", "", "pool currency1")
	flags.Uint32("fee", 0, "pool fee in pips")
	flags.Int32("tick-spacing", 0, "pool tick spacing")
	flags.String("hooks", "", "pool hooks address")
}

func addPositionFlags(flags *pflag.FlagSet) {
	flags.Int32("tick-lower", 0, "lower tick (floored to spacing)")
	flags.Int32("tick-upper", 0, "upper tick (ceiled to spacing)")
	flags.String("amount", "", "input amount in token units, e.g. 1.5")
	flags.String("side", "token0", "token the amount refers to (token0, token1)")
	flags.Bool("zap", false, "fund the position from the input token alone")
	flags.Uint32("slippage-bps", 50, "slippage tolerance in basis points")
	flags.String("token-id", "", "existing position token id")
	flags.String("liquidity", "", "raw liquidity to withdraw")
	flags.String("recipient", "", "receiver of the position or tokens (defaults to the signer)")
}

func addFlowFlags(flags *pflag.FlagSet) {
	flags.String("private-key", "", "hex private key; prefer LPDESK_PRIVATE_KEY or .env")
	flags.Bool("confirm", true, "ask before each signature and transaction")
	flags.Duration("deadline", 20*time.Minute, "transaction deadline from submission")
	flags.Duration("settle-delay", 2*time.Second, "wait after an approval before re-reading allowances")
	flags.Int("max-settle-attempts", 5, "settle waits before an approval counts as missing")
	flags.Duration("receipt-poll-interval", 2*time.Second, "receipt polling interval")
	flags.Duration("staleness-window", time.Second, "approval read cache lifetime")
	flags.String("journal", "./data/flow_steps.jsonl", "step journal JSONL path")
	flags.String("pg-dsn", "", "Postgres DSN for the step journal")
	flags.String("redis-addr", "", "Redis address for the cross-process flow lock")
	flags.String("redis-password", "", "Redis password")
	flags.Duration("lock-ttl", 15*time.Minute, "flow lock lifetime")
	flags.String("builder-url", "", "calldata service base URL")
	flags.Duration("builder-timeout", 15*time.Second, "calldata service timeout")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	addImpactFlags(flags)
}

func addImpactFlags(flags *pflag.FlagSet) {
	flags.Float64("high-impact-pct", 5, "zap price impact that blocks the swap")
	flags.Float64("medium-impact-pct", 3, "zap price impact that logs a warning")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
