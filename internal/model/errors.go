package model

import "errors"

var (
	ErrInvalidRange            = errors.New("invalid tick range")
	ErrCalculationFailed       = errors.New("liquidity calculation failed")
	ErrQuoteStale              = errors.New("quote is stale")
	ErrResolverUnavailable     = errors.New("approval state unavailable")
	ErrUserRejected            = errors.New("user rejected request")
	ErrStepPreconditionMissing = errors.New("step precondition missing")
	ErrTransactionReverted     = errors.New("transaction reverted")
	ErrUnknown                 = errors.New("unknown error")
	ErrFlowLocked              = errors.New("flow step already in progress")
	ErrFlowNotIdle             = errors.New("flow is not idle")
	ErrHighPriceImpact         = errors.New("price impact above limit")
	ErrLockHeld                = errors.New("lock already held")
)
