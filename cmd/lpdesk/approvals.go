package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityDesk/internal/config"
	"liquidityDesk/internal/flow"
	"liquidityDesk/internal/model"
)

func runApprovals(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	owner, err := ownerAddress(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDesk(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	staleness, _ := cmd.Flags().GetDuration("staleness-window")
	resolver, err := newResolver(ctx, d, cfg.Contracts, staleness, logger)
	if err != nil {
		return err
	}

	intent, err := d.intent(model.OperationDeposit, cfg.Position)
	if err != nil {
		return err
	}

	if intent.IsZap {
		input := common.HexToAddress(intent.Pool.Token(intent.ZapInputToken))
		output := common.HexToAddress(intent.Pool.Token(intent.ZapInputToken.Other()))
		status, err := resolver.ResolveZap(ctx, owner, input, output, intent.InputAmount)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), status)
	}

	data, err := d.engine.Calculate(ctx, intent)
	if err != nil {
		return err
	}
	status, err := resolver.Resolve(ctx, owner,
		common.HexToAddress(intent.Pool.Currency0), common.HexToAddress(intent.Pool.Currency1),
		flow.WithSlippage(data.Amount0, intent.SlippageBps, true), flow.WithSlippage(data.Amount1, intent.SlippageBps, true))
	if err != nil {
		return err
	}
	logger.Info("approvals resolved",
		zap.String("owner", owner.Hex()),
		zap.Bool("token0_erc20", status.NeedsToken0ERC20Approval),
		zap.Bool("token1_erc20", status.NeedsToken1ERC20Approval),
		zap.Bool("token0_permit", status.NeedsToken0Permit),
		zap.Bool("token1_permit", status.NeedsToken1Permit),
	)
	return writeJSON(cmd.OutOrStdout(), status)
}

// ownerAddress reads --owner, falling back to the private key's address.
func ownerAddress(cmd *cobra.Command) (common.Address, error) {
	owner, _ := cmd.Flags().GetString("owner")
	if owner == "" {
		owner = os.Getenv("LPDESK_OWNER")
	}
	if owner != "" {
		if !common.IsHexAddress(owner) {
			return common.Address{}, fmt.Errorf("owner %q is not an address", owner)
		}
		return common.HexToAddress(owner), nil
	}

	key, _ := cmd.Flags().GetString("private-key")
	if key == "" {
		key = os.Getenv("LPDESK_PRIVATE_KEY")
	}
	if key == "" {
		return common.Address{}, fmt.Errorf("owner or private-key is required")
	}
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}
