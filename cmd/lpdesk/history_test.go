package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"liquidityDesk/internal/model"
	"liquidityDesk/internal/storage"
)

func TestHistoryReadsJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.jsonl")
	journal := storage.NewJsonlJournal(path)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, rec := range []model.StepRecord{
		{FlowID: "a", Operation: model.OperationDeposit, Step: "approve_token0", Status: model.StepStatusCompleted, TxHash: "0xaa", RecordedAt: at},
		{FlowID: "b", Operation: model.OperationWithdraw, Step: "execute", Status: model.StepStatusCompleted, RecordedAt: at},
		{FlowID: "a", Operation: model.OperationDeposit, Step: "execute", Status: model.StepStatusRejected, RecordedAt: at.Add(time.Second)},
	} {
		if err := journal.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	cmd := newHistoryCmd()
	cmd.Flags().String("config", "", "")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--journal", path, "--flow-id", "a", "--log-level", "error"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("history: %v", err)
	}

	var out historyOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode output: %v\n%s", err, buf.String())
	}
	if out.Source != "jsonl" || out.FlowID != "a" {
		t.Fatalf("unexpected header %+v", out)
	}
	if len(out.Steps) != 2 || out.Steps[0].TxHash != "0xaa" || out.Steps[1].Status != model.StepStatusRejected {
		t.Fatalf("unexpected steps %+v", out.Steps)
	}
}

func TestHistoryRejectsSyncWithoutDSN(t *testing.T) {
	cmd := newHistoryCmd()
	cmd.Flags().String("config", "", "")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--journal", filepath.Join(t.TempDir(), "x.jsonl"), "--sync-pg"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected sync-pg without pg-dsn to fail")
	}
}
