package model

import "time"

// StepStatus is the outcome of one orchestrated step.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusRejected  StepStatus = "rejected"
)

// StepRecord is an append-only journal entry for a settled step.
type StepRecord struct {
	FlowID     string     `json:"flow_id"`
	Owner      string     `json:"owner"`
	Operation  Operation  `json:"operation"`
	Step       string     `json:"step"`
	Status     StepStatus `json:"status"`
	TxHash     string     `json:"tx_hash,omitempty"`
	Error      string     `json:"error,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}
