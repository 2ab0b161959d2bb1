package approval

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liquidityDesk/internal/chain"
	"liquidityDesk/internal/dex"
	"liquidityDesk/internal/model"
)

const (
	DefaultStalenessWindow  = time.Second
	DefaultPermitExpiration = 30 * 24 * time.Hour
	DefaultSigDeadline      = 30 * time.Minute
	DefaultReadRetries      = 2
	DefaultReadRetryBackoff = 200 * time.Millisecond
)

var (
	// MaxUint160 is the largest Permit2 allowance amount.
	MaxUint160 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
	// MaxUint256 is the ERC20 approval amount the flow submits.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	// DefaultOutputApprovalThreshold is the allowance the zap output token is
	// checked against; its final amount is unknown until the swap settles.
	DefaultOutputApprovalThreshold = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// Config holds the contracts and timings a Resolver works with.
type Config struct {
	Permit2 common.Address
	// Spender is the position manager the batch permit is granted to.
	Spender common.Address
	// SwapSpender is the router the zap swap permit is granted to.
	SwapSpender common.Address
	ChainID     *big.Int

	StalenessWindow         time.Duration
	PermitExpiration        time.Duration
	SigDeadline             time.Duration
	OutputApprovalThreshold *big.Int

	// ReadRetries is how many times a failed allowance read is retried.
	ReadRetries      int
	ReadRetryBackoff time.Duration

	// Now is the clock used for permit validity and cache age.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = DefaultStalenessWindow
	}
	if c.PermitExpiration <= 0 {
		c.PermitExpiration = DefaultPermitExpiration
	}
	if c.SigDeadline <= 0 {
		c.SigDeadline = DefaultSigDeadline
	}
	if c.OutputApprovalThreshold == nil {
		c.OutputApprovalThreshold = DefaultOutputApprovalThreshold
	}
	if c.ReadRetries < 0 {
		c.ReadRetries = 0
	}
	if c.ReadRetryBackoff <= 0 {
		c.ReadRetryBackoff = DefaultReadRetryBackoff
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type readKey struct {
	owner   common.Address
	token   common.Address
	spender common.Address
}

type tokenState struct {
	erc20  *big.Int
	permit dex.Permit2Allowance
	readAt time.Time
}

// Resolver reports which allowance and permit steps a flow still needs.
type Resolver struct {
	caller chain.ContractCaller
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	cache map[readKey]tokenState
}

// NewResolver builds a Resolver reading chain state through caller.
func NewResolver(caller chain.ContractCaller, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Resolver{
		caller: caller,
		cfg:    cfg,
		logger: logger,
		cache:  make(map[readKey]tokenState),
	}
}

// Invalidate drops every cached read.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[readKey]tokenState)
	r.mu.Unlock()
}

// SignatureDetails returns the Permit2 signing domain.
func (r *Resolver) SignatureDetails() *model.SignatureDetails {
	chainID := new(big.Int)
	if r.cfg.ChainID != nil {
		chainID.Set(r.cfg.ChainID)
	}
	return &model.SignatureDetails{
		Name:              Permit2DomainName,
		ChainID:           chainID,
		VerifyingContract: r.cfg.Permit2.Hex(),
	}
}

func (r *Resolver) read(ctx context.Context, owner, token, spender common.Address) (tokenState, error) {
	key := readKey{owner: owner, token: token, spender: spender}
	now := r.cfg.Now()

	r.mu.Lock()
	cached, ok := r.cache[key]
	r.mu.Unlock()
	if ok && now.Sub(cached.readAt) < r.cfg.StalenessWindow {
		return cached, nil
	}

	var allowance *big.Int
	err := chain.WithRetry(ctx, r.cfg.ReadRetries, r.cfg.ReadRetryBackoff, func(ctx context.Context) error {
		var err error
		allowance, err = dex.ERC20Allowance(ctx, r.caller, token, owner, r.cfg.Permit2)
		return err
	})
	if err != nil {
		return tokenState{}, fmt.Errorf("%w: erc20 allowance %s: %v", model.ErrResolverUnavailable, token.Hex(), err)
	}
	var permit dex.Permit2Allowance
	err = chain.WithRetry(ctx, r.cfg.ReadRetries, r.cfg.ReadRetryBackoff, func(ctx context.Context) error {
		var err error
		permit, err = dex.FetchPermit2Allowance(ctx, r.caller, r.cfg.Permit2, owner, token, spender)
		return err
	})
	if err != nil {
		return tokenState{}, fmt.Errorf("%w: permit2 allowance %s: %v", model.ErrResolverUnavailable, token.Hex(), err)
	}
	state := tokenState{erc20: allowance, permit: permit, readAt: now}

	r.mu.Lock()
	r.cache[key] = state
	r.mu.Unlock()
	return state, nil
}

// requirement is the outcome for one token against one target.
type requirement struct {
	needsERC20  bool
	needsPermit bool
	// permitStale is true when the existing permit does not cover target,
	// whether or not the ERC20 step still blocks claiming it.
	permitStale bool
	nonce       uint64
}

func (r *Resolver) evaluate(state tokenState, target *big.Int) requirement {
	if target == nil || target.Sign() <= 0 {
		return requirement{}
	}
	var req requirement
	req.needsERC20 = state.erc20.Cmp(target) < 0
	req.nonce = state.permit.Nonce
	expires := time.Unix(int64(state.permit.Expiration), 0)
	valid := state.permit.Amount != nil && state.permit.Amount.Cmp(target) >= 0 && expires.After(r.cfg.Now())
	req.permitStale = !valid
	req.needsPermit = !req.needsERC20 && !valid
	return req
}

func (r *Resolver) permitDetails(token common.Address, nonce uint64) model.PermitDetails {
	return model.PermitDetails{
		Token:      token.Hex(),
		Amount:     new(big.Int).Set(MaxUint160),
		Expiration: uint64(r.cfg.Now().Add(r.cfg.PermitExpiration).Unix()),
		Nonce:      nonce,
	}
}

func (r *Resolver) sigDeadline() *big.Int {
	return big.NewInt(r.cfg.Now().Add(r.cfg.SigDeadline).Unix())
}

// Resolve reports outstanding delegation for a direct deposit of amount0 and
// amount1. A zero target never needs approval.
func (r *Resolver) Resolve(ctx context.Context, owner, token0, token1 common.Address, amount0, amount1 *big.Int) (model.ApprovalStatus, error) {
	var state0, state1 tokenState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		state0, err = r.read(gctx, owner, token0, r.cfg.Spender)
		return err
	})
	g.Go(func() error {
		var err error
		state1, err = r.read(gctx, owner, token1, r.cfg.Spender)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.ApprovalStatus{}, err
	}

	req0 := r.evaluate(state0, amount0)
	req1 := r.evaluate(state1, amount1)
	status := model.ApprovalStatus{
		NeedsToken0ERC20Approval: req0.needsERC20,
		NeedsToken1ERC20Approval: req1.needsERC20,
		NeedsToken0Permit:        req0.needsPermit,
		NeedsToken1Permit:        req1.needsPermit,
	}

	var details []model.PermitDetails
	if req0.permitStale {
		details = append(details, r.permitDetails(token0, req0.nonce))
	}
	if req1.permitStale {
		details = append(details, r.permitDetails(token1, req1.nonce))
	}
	if len(details) > 0 {
		status.PermitBatchData = &model.PermitBatch{
			Details:     details,
			Spender:     r.cfg.Spender.Hex(),
			SigDeadline: r.sigDeadline(),
		}
		status.SignatureDetails = r.SignatureDetails()
	}

	r.logger.Debug("approval status resolved",
		zap.String("owner", owner.Hex()),
		zap.Bool("token0_erc20", status.NeedsToken0ERC20Approval),
		zap.Bool("token1_erc20", status.NeedsToken1ERC20Approval),
		zap.Bool("token0_permit", status.NeedsToken0Permit),
		zap.Bool("token1_permit", status.NeedsToken1Permit),
	)
	return status, nil
}

// ResolveZap reports outstanding delegation for a zap. The input token is
// permitted to the swap router for inputAmount; the output token is checked
// against the output threshold because its final amount is unknown until the
// swap settles. The batch permit covers both tokens for the position manager.
func (r *Resolver) ResolveZap(ctx context.Context, owner, inputToken, outputToken common.Address, inputAmount *big.Int) (model.ZapApprovalStatus, error) {
	var swapState, inputBatch, outputBatch tokenState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		swapState, err = r.read(gctx, owner, inputToken, r.cfg.SwapSpender)
		return err
	})
	g.Go(func() error {
		var err error
		inputBatch, err = r.read(gctx, owner, inputToken, r.cfg.Spender)
		return err
	})
	g.Go(func() error {
		var err error
		outputBatch, err = r.read(gctx, owner, outputToken, r.cfg.Spender)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.ZapApprovalStatus{}, err
	}

	threshold := r.cfg.OutputApprovalThreshold
	swapReq := r.evaluate(swapState, inputAmount)
	inputReq := r.evaluate(inputBatch, inputAmount)
	outputReq := r.evaluate(outputBatch, threshold)

	status := model.ZapApprovalStatus{
		NeedsInputERC20Approval:  swapReq.needsERC20,
		NeedsOutputERC20Approval: outputReq.needsERC20,
		NeedsSwapPermit:          swapReq.needsPermit,
		NeedsBatchPermit:         !inputReq.needsERC20 && !outputReq.needsERC20 && (inputReq.permitStale || outputReq.permitStale),
		SignatureDetails:         r.SignatureDetails(),
	}
	if swapReq.permitStale {
		status.SwapPermitData = &model.PermitSingle{
			Details:     r.permitDetails(inputToken, swapReq.nonce),
			Spender:     r.cfg.SwapSpender.Hex(),
			SigDeadline: r.sigDeadline(),
		}
	}
	var details []model.PermitDetails
	if inputReq.permitStale {
		details = append(details, r.permitDetails(inputToken, inputReq.nonce))
	}
	if outputReq.permitStale {
		details = append(details, r.permitDetails(outputToken, outputReq.nonce))
	}
	if len(details) > 0 {
		status.PermitBatchData = &model.PermitBatch{
			Details:     details,
			Spender:     r.cfg.Spender.Hex(),
			SigDeadline: r.sigDeadline(),
		}
	}

	r.logger.Debug("zap approval status resolved",
		zap.String("owner", owner.Hex()),
		zap.Bool("input_erc20", status.NeedsInputERC20Approval),
		zap.Bool("output_erc20", status.NeedsOutputERC20Approval),
		zap.Bool("swap_permit", status.NeedsSwapPermit),
		zap.Bool("batch_permit", status.NeedsBatchPermit),
	)
	return status, nil
}
