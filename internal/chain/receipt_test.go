package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type scriptedReceipts struct {
	pending int
	calls   int
	receipt *types.Receipt
}

func (s *scriptedReceipts) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	s.calls++
	if s.calls <= s.pending {
		return nil, ethereum.NotFound
	}
	return s.receipt, nil
}

func TestWaitForReceiptPollsUntilMined(t *testing.T) {
	reader := &scriptedReceipts{
		pending: 2,
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful},
	}

	receipt, err := WaitForReceipt(context.Background(), reader, common.HexToHash("0x01"), time.Millisecond, nil)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Fatalf("unexpected status %d", receipt.Status)
	}
	if reader.calls != 3 {
		t.Fatalf("expected 3 polls, got %d", reader.calls)
	}
}

func TestWaitForReceiptHonorsContext(t *testing.T) {
	reader := &scriptedReceipts{pending: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitForReceipt(ctx, reader, common.HexToHash("0x02"), 5*time.Millisecond, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}

	attempts = 0
	boom := errors.New("boom")
	err = WithRetry(context.Background(), 1, time.Millisecond, func(context.Context) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) || attempts != 2 {
		t.Fatalf("expected boom after 2 attempts, got %v after %d", err, attempts)
	}
}
