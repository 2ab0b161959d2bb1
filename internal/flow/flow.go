package flow

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"liquidityDesk/internal/model"
)

// Options are fixed when a flow is created.
type Options struct {
	// AcknowledgeHighImpact lets the zap swap proceed above the high
	// price-impact threshold.
	AcknowledgeHighImpact bool
}

// Flow is the state of one position operation. Only the Orchestrator
// mutates it.
type Flow struct {
	ID    string
	Owner common.Address
	opts  Options

	mu        sync.Mutex
	intent    model.PositionIntent
	current   Step
	completed StepSet
	locked    bool
	err       error

	settleAttempts int

	deposit     *model.CalculatedLiquidityData
	zapQuote    *model.ZapQuote
	permit      *model.PermitSignature
	swapPermit  *model.PermitSignature
	swapResult  *model.SwapResult
	held0       *big.Int
	held1       *big.Int
	mined       *minedSwap
	lastTxHash  common.Hash
	lastPlanned Status
}

// NewFlow starts an idle flow for owner.
func NewFlow(owner common.Address, intent model.PositionIntent, opts Options) *Flow {
	return &Flow{
		ID:        uuid.NewString(),
		Owner:     owner,
		opts:      opts,
		intent:    intent,
		current:   StepIdle,
		completed: StepSet{},
	}
}

// State is a point-in-time copy of a flow.
type State struct {
	ID             string
	CurrentStep    Step
	CompletedSteps []Step
	IsLocked       bool
	HasPermit      bool
	Error          error
	Deposit        *model.CalculatedLiquidityData
	ZapQuote       *model.ZapQuote
	SwapResult     *model.SwapResult
	LastTxHash     common.Hash
	// Planned is the delegation state the current step was chosen from.
	Planned Status
}

// State returns a copy of the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		ID:             f.ID,
		CurrentStep:    f.current,
		CompletedSteps: f.completed.Sorted(),
		IsLocked:       f.locked,
		HasPermit:      f.permit != nil,
		Error:          f.err,
		Deposit:        f.deposit,
		ZapQuote:       f.zapQuote,
		SwapResult:     f.swapResult,
		LastTxHash:     f.lastTxHash,
		Planned:        f.lastPlanned,
	}
}

// Intent returns the intent the flow works on.
func (f *Flow) Intent() model.PositionIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intent
}

// lock marks a step in progress, refusing a second one.
func (f *Flow) lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return model.ErrFlowLocked
	}
	f.locked = true
	return nil
}

func (f *Flow) unlock() {
	f.mu.Lock()
	f.locked = false
	f.mu.Unlock()
}

// reset clears progress. Callers hold f.mu.
func (f *Flow) reset() {
	f.current = StepIdle
	f.completed = StepSet{}
	f.err = nil
	f.settleAttempts = 0
	f.deposit = nil
	f.zapQuote = nil
	f.permit = nil
	f.swapPermit = nil
	f.swapResult = nil
	f.held0 = nil
	f.held1 = nil
	f.mined = nil
	f.lastTxHash = common.Hash{}
}
