package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// DefaultReceiptPollInterval is used when WaitForReceipt gets a non-positive interval.
const DefaultReceiptPollInterval = 2 * time.Second

// WaitForReceipt polls until txHash is mined and returns its receipt.
// Reverted transactions are returned without error; callers check Status.
func WaitForReceipt(ctx context.Context, reader ReceiptReader, txHash common.Hash, interval time.Duration, logger *zap.Logger) (*types.Receipt, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultReceiptPollInterval
	}

	for attempt := 1; ; attempt++ {
		receipt, err := reader.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			logger.Debug("receipt found",
				zap.String("tx_hash", txHash.Hex()),
				zap.Uint64("status", receipt.Status),
				zap.Int("polls", attempt),
			)
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			logger.Warn("receipt poll failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		}

		if err := Sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("wait receipt %s: %w", txHash.Hex(), err)
		}
	}
}
