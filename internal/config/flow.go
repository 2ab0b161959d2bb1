package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlowConfig holds configuration for commands that sign and submit.
type FlowConfig struct {
	Config

	PrivateKey            string
	Confirm               bool
	AcknowledgeHighImpact bool

	Deadline            time.Duration
	SettleDelay         time.Duration
	MaxSettleAttempts   int
	ReceiptPollInterval time.Duration
	StalenessWindow     time.Duration

	Journal        string
	PGDSN          string
	RedisAddr      string
	RedisPassword  string
	LockTTL        time.Duration
	BuilderURL     string
	BuilderTimeout time.Duration
	MetricsAddr    string
}

func setFlowDefaults(v *viper.Viper) {
	v.SetDefault("confirm", true)
	v.SetDefault("deadline", 20*time.Minute)
	v.SetDefault("settle-delay", 2*time.Second)
	v.SetDefault("max-settle-attempts", 5)
	v.SetDefault("receipt-poll-interval", 2*time.Second)
	v.SetDefault("staleness-window", time.Second)
	v.SetDefault("high-impact-pct", 5.0)
	v.SetDefault("medium-impact-pct", 3.0)
	v.SetDefault("journal", "./data/flow_steps.jsonl")
	v.SetDefault("lock-ttl", 15*time.Minute)
	v.SetDefault("builder-timeout", 15*time.Second)
}

// LoadFlow merges config file, environment variables, and flags into FlowConfig.
func LoadFlow(cfgFile string, flags *pflag.FlagSet) (FlowConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return FlowConfig{}, err
	}

	cfg := FlowConfig{
		Config:                fromViper(v),
		PrivateKey:            v.GetString("private-key"),
		Confirm:               v.GetBool("confirm"),
		AcknowledgeHighImpact: v.GetBool("acknowledge-impact"),
		Deadline:              v.GetDuration("deadline"),
		SettleDelay:           v.GetDuration("settle-delay"),
		MaxSettleAttempts:     v.GetInt("max-settle-attempts"),
		ReceiptPollInterval:   v.GetDuration("receipt-poll-interval"),
		StalenessWindow:       v.GetDuration("staleness-window"),
		Journal:               v.GetString("journal"),
		PGDSN:                 v.GetString("pg-dsn"),
		RedisAddr:             v.GetString("redis-addr"),
		RedisPassword:         v.GetString("redis-password"),
		LockTTL:               v.GetDuration("lock-ttl"),
		BuilderURL:            v.GetString("builder-url"),
		BuilderTimeout:        v.GetDuration("builder-timeout"),
		MetricsAddr:           v.GetString("metrics-addr"),
	}
	if err := cfg.Validate(); err != nil {
		return FlowConfig{}, err
	}
	return cfg, nil
}

// Validate checks settings a submitting command cannot run without.
func (c FlowConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if c.PrivateKey == "" {
		return fmt.Errorf("private-key is required")
	}
	if c.Contracts.PositionManager == "" && c.BuilderURL == "" {
		return fmt.Errorf("position-manager or builder-url is required")
	}
	if c.Position.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage-bps %d must be below 10000", c.Position.SlippageBps)
	}
	if c.MediumImpactPct > c.HighImpactPct {
		return fmt.Errorf("medium-impact-pct %.2f above high-impact-pct %.2f", c.MediumImpactPct, c.HighImpactPct)
	}
	return nil
}
