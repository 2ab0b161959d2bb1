package model

import (
	"math/big"
)

// PermitDetails is one token entry of a Permit2 permit.
type PermitDetails struct {
	Token      string
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
}

// PermitBatch is the Permit2 PermitBatch message.
type PermitBatch struct {
	Details     []PermitDetails
	Spender     string
	SigDeadline *big.Int
}

// PermitSingle is the Permit2 PermitSingle message.
type PermitSingle struct {
	Details     PermitDetails
	Spender     string
	SigDeadline *big.Int
}

// SignatureDetails is the EIP-712 domain the permit is signed under.
type SignatureDetails struct {
	Name              string
	ChainID           *big.Int
	VerifyingContract string
}

// PermitSignature pairs a signed permit with its signature.
type PermitSignature struct {
	Batch     *PermitBatch
	Single    *PermitSingle
	Signature []byte
}

// ApprovalStatus describes outstanding delegation for a two-token deposit.
type ApprovalStatus struct {
	NeedsToken0ERC20Approval bool
	NeedsToken1ERC20Approval bool
	NeedsToken0Permit        bool
	NeedsToken1Permit        bool
	PermitBatchData          *PermitBatch
	SignatureDetails         *SignatureDetails
}

// ZapApprovalStatus describes outstanding delegation for a zap, keyed by role.
type ZapApprovalStatus struct {
	NeedsInputERC20Approval  bool
	NeedsOutputERC20Approval bool
	NeedsSwapPermit          bool
	NeedsBatchPermit         bool
	SwapPermitData           *PermitSingle
	PermitBatchData          *PermitBatch
	SignatureDetails         *SignatureDetails
}
