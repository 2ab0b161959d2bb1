package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityDesk/internal/config"
	"liquidityDesk/internal/format"
	"liquidityDesk/internal/model"
)

type depositQuoteOutput struct {
	Quote   model.CalculatedLiquidityData `json:"quote"`
	Token0  string                        `json:"token0"`
	Token1  string                        `json:"token1"`
	Amount0 string                        `json:"amount0_formatted"`
	Amount1 string                        `json:"amount1_formatted"`
}

type zapQuoteOutput struct {
	Quote        model.ZapQuote `json:"quote"`
	InputToken   string         `json:"input_token"`
	OutputToken  string         `json:"output_token"`
	SwapAmount   string         `json:"swap_amount_formatted"`
	SwapOutput   string         `json:"swap_output_formatted"`
	Amount0      string         `json:"amount0_formatted"`
	Amount1      string         `json:"amount1_formatted"`
	PriceImpact  string         `json:"price_impact_formatted"`
	HighImpact   bool           `json:"high_impact"`
	MediumImpact bool           `json:"medium_impact"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDesk(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	intent, err := d.intent(model.OperationDeposit, cfg.Position)
	if err != nil {
		return err
	}
	intent.IsZap = false

	data, err := d.engine.Calculate(ctx, intent)
	if err != nil {
		return err
	}
	logger.Info("deposit quoted",
		zap.Int32("tick_lower", data.FinalTickLower),
		zap.Int32("tick_upper", data.FinalTickUpper),
		zap.Bool("in_range", data.InRange),
	)
	return writeJSON(cmd.OutOrStdout(), depositQuoteOutput{
		Quote:   data,
		Token0:  d.token0.Symbol,
		Token1:  d.token1.Symbol,
		Amount0: format.FormatAmount(data.Amount0, d.token0.Decimals),
		Amount1: format.FormatAmount(data.Amount1, d.token1.Decimals),
	})
}

func runZapQuote(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := openDesk(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	intent, err := d.intent(model.OperationDeposit, cfg.Position)
	if err != nil {
		return err
	}
	intent.IsZap = true

	q, err := d.engine.QuoteZap(ctx, intent)
	if err != nil {
		return err
	}
	in, out := intent.ZapInputToken, intent.ZapInputToken.Other()
	symbol := func(side model.Side) string {
		if side == model.SideToken1 {
			return d.token1.Symbol
		}
		return d.token0.Symbol
	}
	return writeJSON(cmd.OutOrStdout(), zapQuoteOutput{
		Quote:        q,
		InputToken:   symbol(in),
		OutputToken:  symbol(out),
		SwapAmount:   format.FormatAmount(q.SwapAmount, d.decimals(in)),
		SwapOutput:   format.FormatAmount(q.ExpectedSwapOutput, d.decimals(out)),
		Amount0:      format.FormatAmount(q.ExpectedToken0Amount, d.token0.Decimals),
		Amount1:      format.FormatAmount(q.ExpectedToken1Amount, d.token1.Decimals),
		PriceImpact:  format.FormatPercent(q.PriceImpact),
		HighImpact:   q.PriceImpact >= cfg.HighImpactPct,
		MediumImpact: q.PriceImpact >= cfg.MediumImpactPct,
	})
}
