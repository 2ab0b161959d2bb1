package flow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityDesk/internal/calldata"
	"liquidityDesk/internal/chain"
	"liquidityDesk/internal/dex"
	"liquidityDesk/internal/model"
	"liquidityDesk/internal/signer"
)

const (
	DefaultSettleDelay       = 2 * time.Second
	DefaultMaxSettleAttempts = 5
	DefaultHighImpactPct     = 5.0
	DefaultMediumImpactPct   = 3.0
	DefaultDeadline          = 20 * time.Minute
	DefaultLockTTL           = 15 * time.Minute
)

// QuoteSource prices deposits, zaps and withdrawals at live pool state.
type QuoteSource interface {
	Calculate(ctx context.Context, intent model.PositionIntent) (model.CalculatedLiquidityData, error)
	QuoteZap(ctx context.Context, intent model.PositionIntent) (model.ZapQuote, error)
	Requote(ctx context.Context, intent model.PositionIntent, held0, held1 *big.Int) (model.CalculatedLiquidityData, error)
	Withdrawal(ctx context.Context, intent model.PositionIntent) (model.CalculatedLiquidityData, error)
}

// ApprovalSource reports outstanding delegation.
type ApprovalSource interface {
	Resolve(ctx context.Context, owner, token0, token1 common.Address, amount0, amount1 *big.Int) (model.ApprovalStatus, error)
	ResolveZap(ctx context.Context, owner, inputToken, outputToken common.Address, inputAmount *big.Int) (model.ZapApprovalStatus, error)
	Invalidate()
}

// Journal records settled steps.
type Journal interface {
	Append(ctx context.Context, rec model.StepRecord) error
}

// Locker guards a flow across processes. The returned func releases the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Deps are the collaborators an Orchestrator drives. Journal, Locker,
// Metrics and Balances are optional.
type Deps struct {
	Quotes    QuoteSource
	Approvals ApprovalSource
	Signer    signer.Signer
	Builder   calldata.Builder
	Receipts  chain.ReceiptReader
	// Balances is read around the zap swap for reconciliation.
	Balances chain.ContractCaller
	Journal  Journal
	Locker   Locker
	Metrics  *Metrics
	Logger   *zap.Logger
}

// Config holds orchestration timings and limits.
type Config struct {
	// Permit2 is the spender of ERC20 approvals.
	Permit2             common.Address
	SettleDelay         time.Duration
	MaxSettleAttempts   int
	ReceiptPollInterval time.Duration
	HighImpactPct       float64
	MediumImpactPct     float64
	DefaultDeadline     time.Duration
	LockTTL             time.Duration
	Now                 func() time.Time
}

func (c *Config) applyDefaults() {
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.MaxSettleAttempts <= 0 {
		c.MaxSettleAttempts = DefaultMaxSettleAttempts
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = chain.DefaultReceiptPollInterval
	}
	if c.HighImpactPct <= 0 {
		c.HighImpactPct = DefaultHighImpactPct
	}
	if c.MediumImpactPct <= 0 {
		c.MediumImpactPct = DefaultMediumImpactPct
	}
	if c.DefaultDeadline <= 0 {
		c.DefaultDeadline = DefaultDeadline
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Orchestrator walks flows through their steps.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	decoder *dex.SwapDecoder
	logger  *zap.Logger
}

// NewOrchestrator validates deps and builds an Orchestrator. A zero
// SettleDelay in cfg means no wait; callers wanting the default pass
// DefaultSettleDelay.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Quotes == nil || deps.Approvals == nil || deps.Signer == nil || deps.Builder == nil || deps.Receipts == nil {
		return nil, errors.New("orchestrator: quotes, approvals, signer, builder and receipts are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	cfg.applyDefaults()
	decoder, err := dex.NewSwapDecoder()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: swap decoder: %w", err)
	}
	return &Orchestrator{deps: deps, cfg: cfg, decoder: decoder, logger: deps.Logger}, nil
}

// snapshot is the flow state a step reads. Steps never touch the Flow.
type snapshot struct {
	id         string
	owner      common.Address
	opts       Options
	intent     model.PositionIntent
	completed  StepSet
	deposit    *model.CalculatedLiquidityData
	zapQuote   *model.ZapQuote
	permit     *model.PermitSignature
	swapPermit *model.PermitSignature
	held0      *big.Int
	held1      *big.Int
}

func (f *Flow) snapshot() snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return snapshot{
		id:         f.ID,
		owner:      f.Owner,
		opts:       f.opts,
		intent:     f.intent,
		completed:  f.completed.Clone(),
		deposit:    f.deposit,
		zapQuote:   f.zapQuote,
		permit:     f.permit,
		swapPermit: f.swapPermit,
		held0:      f.held0,
		held1:      f.held1,
	}
}

// Plan quotes the flow's intent where needed, resolves delegation state and
// returns the next step without running it.
func (o *Orchestrator) Plan(ctx context.Context, f *Flow) (Step, Status, error) {
	snap := f.snapshot()
	intent := snap.intent
	status := Status{Operation: intent.Operation, IsZap: intent.IsZap}

	switch {
	case intent.Operation == model.OperationWithdraw || intent.Operation == model.OperationCollect:
		return NextStep(status, snap.completed), status, nil

	case intent.IsZap:
		if !snap.completed.Has(StepSwap) {
			q, err := o.deps.Quotes.QuoteZap(ctx, intent)
			if err != nil {
				return "", status, fmt.Errorf("quote zap: %w", err)
			}
			f.mu.Lock()
			f.zapQuote = &q
			f.mu.Unlock()
		}
		inputToken := common.HexToAddress(intent.Pool.Token(intent.ZapInputToken))
		outputToken := common.HexToAddress(intent.Pool.Token(intent.ZapInputToken.Other()))
		zs, err := o.deps.Approvals.ResolveZap(ctx, snap.owner, inputToken, outputToken, intent.InputAmount)
		if err != nil {
			return "", status, fmt.Errorf("resolve zap approvals: %w", err)
		}
		status.Zap = zs

	default:
		data, err := o.deps.Quotes.Calculate(ctx, intent)
		if err != nil {
			return "", status, fmt.Errorf("quote deposit: %w", err)
		}
		if data.InputNotHeld {
			return "", status, fmt.Errorf("%w: range [%d, %d] holds only %s at tick %s",
				model.ErrCalculationFailed, data.FinalTickLower, data.FinalTickUpper, intent.InputSide.Other(), tickString(data.CurrentPoolTick))
		}
		f.mu.Lock()
		f.deposit = &data
		f.mu.Unlock()
		max0 := WithSlippage(data.Amount0, intent.SlippageBps, true)
		max1 := WithSlippage(data.Amount1, intent.SlippageBps, true)
		ds, err := o.deps.Approvals.Resolve(ctx, snap.owner,
			common.HexToAddress(intent.Pool.Currency0), common.HexToAddress(intent.Pool.Currency1), max0, max1)
		if err != nil {
			return "", status, fmt.Errorf("resolve approvals: %w", err)
		}
		status.Direct = ds
	}
	return NextStep(status, snap.completed), status, nil
}

// Advance plans and runs one step. It returns the step it ran, or
// StepAwaitChain or StepCompleted. A second concurrent call on the same flow
// fails with model.ErrFlowLocked.
func (o *Orchestrator) Advance(ctx context.Context, f *Flow) (Step, error) {
	if err := f.lock(); err != nil {
		return "", err
	}
	defer f.unlock()

	if hash, err := o.settleSwap(ctx, f); err != nil {
		return StepIdle, o.fail(ctx, f, StepSwap, hash, err, o.cfg.Now())
	}

	step, status, err := o.Plan(ctx, f)
	if err != nil {
		return StepIdle, o.fail(ctx, f, StepIdle, common.Hash{}, err, o.cfg.Now())
	}

	switch step {
	case StepCompleted:
		f.mu.Lock()
		f.current = StepCompleted
		f.mu.Unlock()
		return StepCompleted, nil

	case StepAwaitChain:
		f.mu.Lock()
		f.settleAttempts++
		attempts := f.settleAttempts
		f.current = StepAwaitChain
		f.mu.Unlock()
		if attempts > o.cfg.MaxSettleAttempts {
			err := fmt.Errorf("%w: approval not visible after %d settle attempts", model.ErrStepPreconditionMissing, attempts-1)
			return StepIdle, o.fail(ctx, f, StepAwaitChain, common.Hash{}, err, o.cfg.Now())
		}
		o.logger.Info("waiting for approval to become visible",
			zap.String("flow_id", f.ID),
			zap.Int("attempt", attempts),
		)
		if err := o.settle(ctx); err != nil {
			return StepIdle, o.fail(ctx, f, StepAwaitChain, common.Hash{}, err, o.cfg.Now())
		}
		return StepAwaitChain, nil
	}

	f.mu.Lock()
	f.current = step
	f.lastPlanned = status
	f.mu.Unlock()

	started := o.cfg.Now()
	o.logger.Info("flow step started", zap.String("flow_id", f.ID), zap.String("step", string(step)))
	out, err := o.runStep(ctx, f.snapshot(), step, status)
	if err != nil {
		return StepIdle, o.fail(ctx, f, step, out.txHash, err, started)
	}

	f.mu.Lock()
	f.completed.Add(step)
	f.settleAttempts = 0
	f.err = nil
	f.lastTxHash = out.txHash
	out.apply(f)
	if step == StepExecute {
		f.current = StepCompleted
	} else {
		f.current = StepIdle
	}
	f.mu.Unlock()

	o.record(ctx, f, step, model.StepStatusCompleted, out.txHash, nil, started)
	o.logger.Info("flow step completed",
		zap.String("flow_id", f.ID),
		zap.String("step", string(step)),
		zap.String("tx_hash", hashString(out.txHash)),
	)

	// Chain state read before this step is stale now.
	if step.IsApproval() {
		if err := o.settle(ctx); err != nil {
			return step, err
		}
	} else if step.IsTransaction() {
		o.deps.Approvals.Invalidate()
	}
	if step == StepExecute {
		return StepCompleted, nil
	}
	return step, nil
}

// settle waits the settle delay and drops cached approval reads.
func (o *Orchestrator) settle(ctx context.Context) error {
	if o.cfg.SettleDelay > 0 {
		if err := chain.Sleep(ctx, o.cfg.SettleDelay); err != nil {
			return err
		}
	}
	o.deps.Approvals.Invalidate()
	return nil
}

// fail settles a failed step. A user rejection returns the flow to idle
// without recording an error; anything else is kept as the flow's error.
func (o *Orchestrator) fail(ctx context.Context, f *Flow, step Step, txHash common.Hash, err error, started time.Time) error {
	if signer.IsUserRejection(err) {
		f.mu.Lock()
		f.current = StepIdle
		f.err = nil
		f.mu.Unlock()
		o.record(ctx, f, step, model.StepStatusRejected, txHash, nil, started)
		o.logger.Info("flow step rejected by user", zap.String("flow_id", f.ID), zap.String("step", string(step)))
		return fmt.Errorf("%s: %w", step, model.ErrUserRejected)
	}

	stepErr := &StepError{Step: step, Kind: classify(err), TxHash: txHash, Err: err}
	f.mu.Lock()
	f.current = StepIdle
	f.err = stepErr
	f.mu.Unlock()
	o.record(ctx, f, step, model.StepStatusFailed, txHash, stepErr, started)
	o.logger.Warn("flow step failed",
		zap.String("flow_id", f.ID),
		zap.String("step", string(step)),
		zap.String("tx_hash", hashString(txHash)),
		zap.Error(err),
	)
	return stepErr
}

func (o *Orchestrator) record(ctx context.Context, f *Flow, step Step, status model.StepStatus, txHash common.Hash, stepErr error, started time.Time) {
	now := o.cfg.Now()
	o.deps.Metrics.observe(step, status, now.Sub(started))
	if o.deps.Journal == nil {
		return
	}
	rec := model.StepRecord{
		FlowID:     f.ID,
		Owner:      f.Owner.Hex(),
		Operation:  f.Intent().Operation,
		Step:       string(step),
		Status:     status,
		TxHash:     hashString(txHash),
		RecordedAt: now.UTC(),
	}
	if stepErr != nil {
		rec.Error = stepErr.Error()
	}
	// The step already settled on chain; a journal failure must not undo it.
	if err := o.deps.Journal.Append(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("journal append failed", zap.String("flow_id", f.ID), zap.Error(err))
	}
}

// Run advances f until it completes or a step fails. Steps run one after
// another in a loop.
func (o *Orchestrator) Run(ctx context.Context, f *Flow) error {
	if o.deps.Locker != nil {
		release, err := o.deps.Locker.Acquire(ctx, lockKey(f), o.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire flow lock: %w", err)
		}
		defer release()
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, err := o.Advance(ctx, f)
		if err != nil {
			return err
		}
		if step == StepCompleted {
			o.logger.Info("flow completed", zap.String("flow_id", f.ID))
			return nil
		}
	}
}

func lockKey(f *Flow) string {
	intent := f.Intent()
	position := fmt.Sprintf("%s-%s-%d-%d-%d", intent.Pool.Currency0, intent.Pool.Currency1, intent.Pool.Fee, intent.TickLower, intent.TickUpper)
	if intent.TokenID != nil {
		position = intent.TokenID.String()
	}
	return fmt.Sprintf("lpdesk:flow:%s:%s", f.Owner.Hex(), position)
}

// Cancel resets a flow between steps, including one waiting for an approval
// to show up on chain. It fails with model.ErrFlowNotIdle while a step is in
// progress.
func (o *Orchestrator) Cancel(f *Flow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return model.ErrFlowNotIdle
	}
	switch f.current {
	case StepIdle, StepCompleted, StepAwaitChain:
	default:
		return model.ErrFlowNotIdle
	}
	f.reset()
	return nil
}

// Reset clears a flow's progress for a fresh run.
func (o *Orchestrator) Reset(f *Flow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return model.ErrFlowLocked
	}
	f.reset()
	return nil
}

// UpdateIntent replaces the flow's intent and resets its progress; quotes
// and signatures taken for the old intent are dropped.
func (o *Orchestrator) UpdateIntent(f *Flow, intent model.PositionIntent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return model.ErrFlowLocked
	}
	f.intent = intent
	f.reset()
	return nil
}

func tickString(tick *int32) string {
	if tick == nil {
		return "unknown"
	}
	return fmt.Sprint(*tick)
}

func hashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}

// WithSlippage widens (up) or narrows (down) amount by bps.
func WithSlippage(amount *big.Int, bps uint32, up bool) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	factor := int64(10_000) - int64(bps)
	if up {
		factor = int64(10_000) + int64(bps)
	}
	if factor < 0 {
		factor = 0
	}
	out := new(big.Int).Mul(amount, big.NewInt(factor))
	return out.Quo(out, big.NewInt(10_000))
}
