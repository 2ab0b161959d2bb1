package flow

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"liquidityDesk/internal/model"
)

// StepError is a failure surfaced by a flow step. TxHash is set when a
// transaction was mined before the failure, so gas was spent.
type StepError struct {
	Step   Step
	Kind   error
	TxHash common.Hash
	Err    error
}

func (e *StepError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s failed (tx %s): %v", e.Step, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is matches the error's kind so callers can test against model sentinels.
func (e *StepError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

var kinds = []error{
	model.ErrInvalidRange,
	model.ErrCalculationFailed,
	model.ErrQuoteStale,
	model.ErrResolverUnavailable,
	model.ErrUserRejected,
	model.ErrStepPreconditionMissing,
	model.ErrTransactionReverted,
	model.ErrHighPriceImpact,
	model.ErrFlowLocked,
	model.ErrFlowNotIdle,
}

// classify maps err onto the error taxonomy.
func classify(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return model.ErrUnknown
}
