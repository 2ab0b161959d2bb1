package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityDesk/internal/config"
	"liquidityDesk/internal/model"
	"liquidityDesk/internal/storage"
	"liquidityDesk/internal/storage/postgres"
)

type historyOutput struct {
	FlowID string             `json:"flow_id,omitempty"`
	Source string             `json:"source"`
	Synced int                `json:"synced,omitempty"`
	Steps  []model.StepRecord `json:"steps"`
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled flow steps",
		RunE:  runHistory,
	}
	flags := cmd.Flags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("journal", "./data/flow_steps.jsonl", "step journal JSONL path")
	flags.String("pg-dsn", "", "Postgres DSN; steps are read from it when a flow id is given")
	flags.String("flow-id", "", "flow to show (all JSONL records when empty)")
	flags.Bool("sync-pg", false, "copy JSONL records into Postgres first")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadHistory(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := historyOutput{FlowID: cfg.FlowID, Source: "jsonl"}
	var journal *storage.JsonlJournal
	if cfg.Journal != "" {
		journal = storage.NewJsonlJournal(cfg.Journal)
	}

	if cfg.PGDSN == "" {
		out.Steps, err = journal.Records(cfg.FlowID)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	if cfg.SyncPG {
		recs, err := journal.Records(cfg.FlowID)
		if err != nil {
			return err
		}
		if err := store.AppendBatch(ctx, recs); err != nil {
			return err
		}
		out.Synced = len(recs)
		logger.Info("journal synced to postgres", zap.Int("records", len(recs)))
	}

	if cfg.FlowID == "" {
		if journal == nil {
			return fmt.Errorf("flow-id is required to read from postgres")
		}
		out.Steps, err = journal.Records("")
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	out.Source = "postgres"
	out.Steps, err = store.Steps(ctx, cfg.FlowID)
	if err != nil {
		return fmt.Errorf("read flow steps: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
