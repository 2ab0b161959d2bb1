package flow

import (
	"sort"

	"liquidityDesk/internal/model"
)

// Step is one state of a position flow.
type Step string

const (
	StepIdle Step = "idle"

	// Direct deposit.
	StepApproveToken0 Step = "approve_token0"
	StepApproveToken1 Step = "approve_token1"
	StepSignPermit    Step = "sign_permit"

	// Zap deposit.
	StepApproveInput    Step = "approve_input"
	StepApproveOutput   Step = "approve_output"
	StepSignSwapPermit  Step = "sign_swap_permit"
	StepSwap            Step = "swap"
	StepSignBatchPermit Step = "sign_batch_permit"

	StepExecute   Step = "execute"
	StepCompleted Step = "completed"

	// StepAwaitChain means a confirmed approval is not visible yet.
	StepAwaitChain Step = "await_chain"
)

// IsApproval reports whether s submits an ERC20 approval.
func (s Step) IsApproval() bool {
	switch s {
	case StepApproveToken0, StepApproveToken1, StepApproveInput, StepApproveOutput:
		return true
	default:
		return false
	}
}

// IsSignature reports whether s produces an off-chain permit signature.
func (s Step) IsSignature() bool {
	switch s {
	case StepSignPermit, StepSignSwapPermit, StepSignBatchPermit:
		return true
	default:
		return false
	}
}

// IsTransaction reports whether s submits exactly one transaction.
func (s Step) IsTransaction() bool {
	switch s {
	case StepApproveToken0, StepApproveToken1, StepApproveInput, StepApproveOutput, StepSwap, StepExecute:
		return true
	default:
		return false
	}
}

// StepSet is the set of steps a flow has completed.
type StepSet map[Step]struct{}

// NewStepSet builds a set holding steps.
func NewStepSet(steps ...Step) StepSet {
	s := make(StepSet, len(steps))
	for _, step := range steps {
		s[step] = struct{}{}
	}
	return s
}

func (s StepSet) Has(step Step) bool {
	_, ok := s[step]
	return ok
}

func (s StepSet) Add(step Step) {
	s[step] = struct{}{}
}

func (s StepSet) Clone() StepSet {
	out := make(StepSet, len(s))
	for step := range s {
		out[step] = struct{}{}
	}
	return out
}

// Sorted returns the steps in name order.
func (s StepSet) Sorted() []Step {
	out := make([]Step, 0, len(s))
	for step := range s {
		out = append(out, step)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Status is the delegation state NextStep plans against. Direct is read for
// direct deposits and Zap for zaps.
type Status struct {
	Operation model.Operation
	IsZap     bool
	Direct    model.ApprovalStatus
	Zap       model.ZapApprovalStatus
}

// NextStep returns the step a flow should run next. It never returns a
// completed step: an approval that confirmed but still reads as required
// yields StepAwaitChain, and a finished flow yields StepCompleted.
func NextStep(status Status, completed StepSet) Step {
	if completed == nil {
		completed = StepSet{}
	}
	if status.Operation == model.OperationWithdraw || status.Operation == model.OperationCollect {
		return finalStep(completed)
	}
	if status.IsZap {
		return nextZapStep(status.Zap, completed)
	}
	return nextDirectStep(status.Direct, completed)
}

func finalStep(completed StepSet) Step {
	if completed.Has(StepExecute) {
		return StepCompleted
	}
	return StepExecute
}

// approvalStep returns step when needed and not yet done, StepAwaitChain
// when done but still needed, and "" when nothing is needed.
func approvalStep(step Step, needed bool, completed StepSet) Step {
	if !needed {
		return ""
	}
	if completed.Has(step) {
		return StepAwaitChain
	}
	return step
}

func nextDirectStep(s model.ApprovalStatus, completed StepSet) Step {
	if completed.Has(StepExecute) {
		return StepCompleted
	}
	if step := approvalStep(StepApproveToken0, s.NeedsToken0ERC20Approval, completed); step != "" {
		return step
	}
	if step := approvalStep(StepApproveToken1, s.NeedsToken1ERC20Approval, completed); step != "" {
		return step
	}
	// A signed permit is registered by the execute call itself, so the chain
	// keeps reporting it as needed until then.
	if (s.NeedsToken0Permit || s.NeedsToken1Permit) && !completed.Has(StepSignPermit) {
		return StepSignPermit
	}
	return StepExecute
}

func nextZapStep(s model.ZapApprovalStatus, completed StepSet) Step {
	if completed.Has(StepExecute) {
		return StepCompleted
	}
	if step := approvalStep(StepApproveInput, s.NeedsInputERC20Approval, completed); step != "" {
		return step
	}
	if step := approvalStep(StepApproveOutput, s.NeedsOutputERC20Approval, completed); step != "" {
		return step
	}
	if !completed.Has(StepSwap) {
		if s.NeedsSwapPermit && !completed.Has(StepSignSwapPermit) {
			return StepSignSwapPermit
		}
		return StepSwap
	}
	if s.NeedsBatchPermit && !completed.Has(StepSignBatchPermit) {
		return StepSignBatchPermit
	}
	return StepExecute
}
