package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"liquidityDesk/internal/model"
)

func TestStepArgsDefaultsRecordedAt(t *testing.T) {
	args := stepArgs(model.StepRecord{FlowID: "f", Operation: model.OperationWithdraw, Status: model.StepStatusFailed})
	if len(args) != 8 {
		t.Fatalf("expected 8 args, got %d", len(args))
	}
	if args[2] != "withdraw" || args[4] != "failed" {
		t.Fatalf("unexpected enum args %v %v", args[2], args[4])
	}
	if ts, ok := args[7].(time.Time); !ok || ts.IsZero() {
		t.Fatalf("expected recorded_at default, got %v", args[7])
	}
}

func TestNewStoreRequiresDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

// LPDESK_TEST_PG_DSN points the round-trip test at a live database.
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("LPDESK_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("LPDESK_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}

	flowID := uuid.NewString()
	at := time.Now().UTC().Truncate(time.Millisecond)
	recs := []model.StepRecord{
		{FlowID: flowID, Owner: "0x1", Operation: model.OperationDeposit, Step: "approve_token0", Status: model.StepStatusCompleted, TxHash: "0xaa", RecordedAt: at},
		{FlowID: flowID, Owner: "0x1", Operation: model.OperationDeposit, Step: "execute", Status: model.StepStatusRejected, RecordedAt: at.Add(time.Second)},
	}
	if err := store.AppendBatch(ctx, recs[:1]); err != nil {
		t.Fatalf("append batch: %v", err)
	}
	if err := store.Append(ctx, recs[1]); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Steps(ctx, flowID)
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(got) != 2 || got[0].TxHash != "0xaa" || got[1].TxHash != "" || got[1].Status != model.StepStatusRejected {
		t.Fatalf("unexpected steps %+v", got)
	}
}
