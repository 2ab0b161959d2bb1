package approval

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"liquidityDesk/internal/model"
)

// Permit2DomainName is the EIP-712 domain name of the Permit2 contract.
const Permit2DomainName = "Permit2"

const permitDetailsType = "PermitDetails(address token,uint160 amount,uint48 expiration,uint48 nonce)"

var (
	// EIP712Domain(string name,uint256 chainId,address verifyingContract)
	domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(string name,uint256 chainId,address verifyingContract)"))

	permitDetailsTypeHash = crypto.Keccak256([]byte(permitDetailsType))

	// Referenced struct types are appended to the primary type.
	permitBatchTypeHash = crypto.Keccak256([]byte(
		"PermitBatch(PermitDetails[] details,address spender,uint256 sigDeadline)" + permitDetailsType,
	))
	permitSingleTypeHash = crypto.Keccak256([]byte(
		"PermitSingle(PermitDetails details,address spender,uint256 sigDeadline)" + permitDetailsType,
	))
)

// DomainSeparator hashes the Permit2 signing domain.
func DomainSeparator(domain model.SignatureDetails) ([]byte, error) {
	if domain.ChainID == nil {
		return nil, fmt.Errorf("domain separator: chain id missing")
	}
	if !common.IsHexAddress(domain.VerifyingContract) {
		return nil, fmt.Errorf("domain separator: invalid verifying contract %q", domain.VerifyingContract)
	}
	return crypto.Keccak256(
		concatBytes(
			domainTypeHash,
			crypto.Keccak256([]byte(domain.Name)),
			word(domain.ChainID),
			addressWord(domain.VerifyingContract),
		),
	), nil
}

func permitDetailsHash(d model.PermitDetails) ([]byte, error) {
	if !common.IsHexAddress(d.Token) {
		return nil, fmt.Errorf("permit details: invalid token %q", d.Token)
	}
	if d.Amount == nil || d.Amount.Sign() < 0 {
		return nil, fmt.Errorf("permit details: invalid amount for %s", d.Token)
	}
	return crypto.Keccak256(
		concatBytes(
			permitDetailsTypeHash,
			addressWord(d.Token),
			word(d.Amount),
			word(new(big.Int).SetUint64(d.Expiration)),
			word(new(big.Int).SetUint64(d.Nonce)),
		),
	), nil
}

// PermitBatchHash is the EIP-712 struct hash of a PermitBatch. The details
// array hashes to keccak256 of its concatenated element hashes.
func PermitBatchHash(batch model.PermitBatch) ([]byte, error) {
	if len(batch.Details) == 0 {
		return nil, fmt.Errorf("permit batch: no details")
	}
	elements := make([][]byte, 0, len(batch.Details))
	for _, d := range batch.Details {
		h, err := permitDetailsHash(d)
		if err != nil {
			return nil, err
		}
		elements = append(elements, h)
	}
	if batch.SigDeadline == nil {
		return nil, fmt.Errorf("permit batch: sig deadline missing")
	}
	return crypto.Keccak256(
		concatBytes(
			permitBatchTypeHash,
			crypto.Keccak256(concatBytes(elements...)),
			addressWord(batch.Spender),
			word(batch.SigDeadline),
		),
	), nil
}

// PermitSingleHash is the EIP-712 struct hash of a PermitSingle.
func PermitSingleHash(single model.PermitSingle) ([]byte, error) {
	details, err := permitDetailsHash(single.Details)
	if err != nil {
		return nil, err
	}
	if single.SigDeadline == nil {
		return nil, fmt.Errorf("permit single: sig deadline missing")
	}
	return crypto.Keccak256(
		concatBytes(
			permitSingleTypeHash,
			details,
			addressWord(single.Spender),
			word(single.SigDeadline),
		),
	), nil
}

// PermitBatchDigest is the 32-byte digest a wallet signs for batch.
func PermitBatchDigest(domain model.SignatureDetails, batch model.PermitBatch) ([]byte, error) {
	sep, err := DomainSeparator(domain)
	if err != nil {
		return nil, err
	}
	structHash, err := PermitBatchHash(batch)
	if err != nil {
		return nil, err
	}
	return typedDataHash(sep, structHash), nil
}

// PermitSingleDigest is the 32-byte digest a wallet signs for single.
func PermitSingleDigest(domain model.SignatureDetails, single model.PermitSingle) ([]byte, error) {
	sep, err := DomainSeparator(domain)
	if err != nil {
		return nil, err
	}
	structHash, err := PermitSingleHash(single)
	if err != nil {
		return nil, err
	}
	return typedDataHash(sep, structHash), nil
}

// typedDataHash computes keccak256("\x19\x01" || domainSeparator || structHash).
func typedDataHash(domainSep, structHash []byte) []byte {
	return crypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func addressWord(addr string) []byte {
	return common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
