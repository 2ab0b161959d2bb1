package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityDesk/internal/chain"
	"liquidityDesk/internal/model"
)

// Signer holds the account that delegates allowances, signs permits and
// submits position transactions.
type Signer interface {
	Address() common.Address
	// SignTypedData signs a 32-byte EIP-712 digest and returns r || s || v
	// with v in {27, 28}.
	SignTypedData(ctx context.Context, digest []byte) ([]byte, error)
	SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
}

// GasLimitBufferPercent is added on top of estimated gas.
const GasLimitBufferPercent = 20

// LocalSigner signs with an in-process secp256k1 key and broadcasts EIP-1559
// transactions through backend.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend chain.TxBackend
	logger  *zap.Logger

	// Nonces are assigned one submission at a time.
	sendMu sync.Mutex
}

// NewLocalSigner parses a hex private key, with or without 0x.
func NewLocalSigner(privateKeyHex string, backend chain.TxBackend, logger *zap.Logger) (*LocalSigner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
		logger:  logger,
	}, nil
}

// Address returns the signing account.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignTypedData signs digest with the local key.
func (s *LocalSigner) SignTypedData(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("sign typed data: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// SendTransaction prices, signs and broadcasts a dynamic-fee transaction.
// It returns once the node accepted it; callers wait for the receipt.
func (s *LocalSigner) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if s.backend == nil {
		return common.Hash{}, fmt.Errorf("send transaction: no backend")
	}
	if value == nil {
		value = new(big.Int)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest tip: %w", err)
	}
	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if header.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(header.BaseFee, big.NewInt(2)))
	}

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * GasLimitBufferPercent / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}

	s.logger.Info("transaction sent",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
		zap.String("fee_cap", feeCap.String()),
	)
	return signed.Hash(), nil
}

// rpcCodeError matches JSON-RPC errors that carry a numeric code.
type rpcCodeError interface {
	ErrorCode() int
}

// userRejectedCode is the EIP-1193 code for a request the user declined.
const userRejectedCode = 4001

var rejectionPhrases = []string{
	"user rejected",
	"user denied",
	"action_rejected",
	"rejected by user",
}

// IsUserRejection reports whether err means the account holder declined the
// request rather than the request failing.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrUserRejected) {
		return true
	}
	var coded rpcCodeError
	if errors.As(err, &coded) && coded.ErrorCode() == userRejectedCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rejectionPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
