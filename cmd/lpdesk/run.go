package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityDesk/internal/approval"
	"liquidityDesk/internal/cache/redis"
	"liquidityDesk/internal/calldata"
	"liquidityDesk/internal/config"
	"liquidityDesk/internal/flow"
	"liquidityDesk/internal/model"
	"liquidityDesk/internal/signer"
	"liquidityDesk/internal/storage"
	"liquidityDesk/internal/storage/postgres"
)

func runDeposit(cmd *cobra.Command, args []string) error {
	return runFlow(cmd, model.OperationDeposit)
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	return runFlow(cmd, model.OperationWithdraw)
}

func runCollect(cmd *cobra.Command, args []string) error {
	return runFlow(cmd, model.OperationCollect)
}

type flowOutput struct {
	FlowID         string                         `json:"flow_id"`
	Operation      model.Operation                `json:"operation"`
	CurrentStep    flow.Step                      `json:"current_step"`
	CompletedSteps []flow.Step                    `json:"completed_steps"`
	LastTxHash     string                         `json:"last_tx_hash,omitempty"`
	Error          string                         `json:"error,omitempty"`
	Deposit        *model.CalculatedLiquidityData `json:"deposit,omitempty"`
	ZapQuote       *model.ZapQuote                `json:"zap_quote,omitempty"`
	SwapResult     *model.SwapResult              `json:"swap_result,omitempty"`
}

func runFlow(cmd *cobra.Command, op model.Operation) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFlow(cfgFile, cmd.Flags())
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

	d, err := openDesk(ctx, cfg.Config, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	intent, err := d.intent(op, cfg.Position)
	if err != nil {
		return err
	}
	intent.Deadline = cfg.Deadline

	local, err := signer.NewLocalSigner(cfg.PrivateKey, d.client, logger)
	if err != nil {
		return err
	}
	var txSigner signer.Signer = local
	if cfg.Confirm {
		txSigner = signer.NewPromptSigner(local, os.Stdin, cmd.ErrOrStderr())
	}

	resolver, err := newResolver(ctx, d, cfg.Contracts, cfg.StalenessWindow, logger)
	if err != nil {
		return err
	}
	builder, err := newBuilder(cfg, logger)
	if err != nil {
		return err
	}
	permit2, _, err := config.Address("permit2", cfg.Contracts.Permit2)
	if err != nil {
		return err
	}

	journals := storage.Multi{}
	if cfg.Journal != "" {
		journals = append(journals, storage.NewJsonlJournal(cfg.Journal))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		journals = append(journals, store)
	}

	registry := prometheus.NewRegistry()
	metrics := flow.NewMetrics(registry)
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer shutdown()
	}

	deps := flow.Deps{
		Quotes:    d.engine,
		Approvals: resolver,
		Signer:    txSigner,
		Builder:   builder,
		Receipts:  d.client,
		Balances:  d.client,
		Journal:   journals,
		Metrics:   metrics,
		Logger:    logger,
	}
	if cfg.RedisAddr != "" {
		client, err := redis.New(ctx, redis.ClientConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Locker = redis.NewFlowLock(client, logger)
	}

	orch, err := flow.NewOrchestrator(deps, flow.Config{
		Permit2:             permit2,
		SettleDelay:         cfg.SettleDelay,
		MaxSettleAttempts:   cfg.MaxSettleAttempts,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
		HighImpactPct:       cfg.HighImpactPct,
		MediumImpactPct:     cfg.MediumImpactPct,
		DefaultDeadline:     cfg.Deadline,
		LockTTL:             cfg.LockTTL,
	})
	if err != nil {
		return err
	}

	f := flow.NewFlow(local.Address(), intent, flow.Options{AcknowledgeHighImpact: cfg.AcknowledgeHighImpact})
	logger.Info("flow start",
		zap.String("flow_id", f.ID),
		zap.String("operation", string(op)),
		zap.String("owner", f.Owner.Hex()),
		zap.Bool("zap", intent.IsZap),
	)

	runErr := orch.Run(ctx, f)
	if errors.Is(runErr, model.ErrUserRejected) {
		logger.Info("flow stopped by user", zap.String("flow_id", f.ID), zap.Error(runErr))
	}
	out, err := flowResult(op, f.State(), runErr)
	if writeErr := writeJSON(cmd.OutOrStdout(), out); writeErr != nil {
		return writeErr
	}
	return err
}

// flowResult builds the command output for a finished run. A user rejection
// stops the flow cleanly: nothing is reported as an error.
func flowResult(op model.Operation, state flow.State, runErr error) (flowOutput, error) {
	out := flowOutput{
		FlowID:         state.ID,
		Operation:      op,
		CurrentStep:    state.CurrentStep,
		CompletedSteps: state.CompletedSteps,
		Deposit:        state.Deposit,
		ZapQuote:       state.ZapQuote,
		SwapResult:     state.SwapResult,
	}
	if state.LastTxHash != (common.Hash{}) {
		out.LastTxHash = state.LastTxHash.Hex()
	}
	if runErr == nil || errors.Is(runErr, model.ErrUserRejected) {
		return out, nil
	}
	out.Error = runErr.Error()
	return out, runErr
}

func newResolver(ctx context.Context, d *desk, contracts config.Contracts, staleness time.Duration, logger *zap.Logger) (*approval.Resolver, error) {
	permit2, ok, err := config.Address("permit2", contracts.Permit2)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("permit2 is required")
	}
	spender, _, err := config.Address("position-manager", contracts.PositionManager)
	if err != nil {
		return nil, err
	}
	swapSpender, _, err := config.Address("swap-spender", contracts.SwapSpender)
	if err != nil {
		return nil, err
	}
	chainID, err := d.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	return approval.NewResolver(d.client, approval.Config{
		Permit2:         permit2,
		Spender:         spender,
		SwapSpender:     swapSpender,
		ChainID:         chainID,
		StalenessWindow: staleness,
		ReadRetries:     approval.DefaultReadRetries,
	}, logger), nil
}

// newBuilder encodes position calls locally when a position manager is
// configured and sends everything else to the calldata service.
func newBuilder(cfg config.FlowConfig, logger *zap.Logger) (calldata.Builder, error) {
	manager, hasManager, err := config.Address("position-manager", cfg.Contracts.PositionManager)
	if err != nil {
		return nil, err
	}
	router, _, err := config.Address("universal-router", cfg.Contracts.UniversalRouter)
	if err != nil {
		return nil, err
	}

	var remote calldata.Builder
	if cfg.BuilderURL != "" {
		remote = calldata.NewRemoteBuilder(cfg.BuilderURL, cfg.BuilderTimeout, logger)
	}
	if !hasManager {
		return remote, nil
	}
	local := &calldata.PositionManagerBuilder{PositionManager: manager, UniversalRouter: router}
	if remote == nil {
		return local, nil
	}
	split := calldata.Split{Swaps: remote, Positions: local}
	if router != (common.Address{}) {
		split.Swaps = local
	}
	return split, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
