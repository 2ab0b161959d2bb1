package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// HistoryConfig holds configuration for reading the step journal.
type HistoryConfig struct {
	LogLevel string
	Journal  string
	PGDSN    string
	FlowID   string
	// SyncPG copies JSONL records into Postgres before reading.
	SyncPG bool
}

// LoadHistory merges config file, environment variables, and flags into HistoryConfig.
func LoadHistory(cfgFile string, flags *pflag.FlagSet) (HistoryConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return HistoryConfig{}, err
	}

	cfg := HistoryConfig{
		LogLevel: v.GetString("log-level"),
		Journal:  v.GetString("journal"),
		PGDSN:    v.GetString("pg-dsn"),
		FlowID:   v.GetString("flow-id"),
		SyncPG:   v.GetBool("sync-pg"),
	}
	if cfg.SyncPG && (cfg.PGDSN == "" || cfg.Journal == "") {
		return HistoryConfig{}, fmt.Errorf("sync-pg needs both journal and pg-dsn")
	}
	if cfg.Journal == "" && cfg.PGDSN == "" {
		return HistoryConfig{}, fmt.Errorf("journal or pg-dsn is required")
	}
	return cfg, nil
}
