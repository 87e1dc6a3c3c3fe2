package pipeline

import (
	"encoding/json"
	"time"

	"github.com/dvloznov/bankbatch/internal/aggregate"
)

// RunReport is the structured output of one batch run. Every input record is
// accounted for in exactly one of Loaded, Invalid or PermanentlyFailed; the
// reporting collaborator consumes this as JSON.
type RunReport struct {
	RunID      string    `json:"run_id"`
	BatchName  string    `json:"batch_name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Received          int `json:"received"`
	Valid             int `json:"valid"`
	Invalid           int `json:"invalid"`
	Loaded            int `json:"loaded"`
	PermanentlyFailed int `json:"permanently_failed"`

	Retries      int `json:"retries"`
	ChunkCommits int `json:"chunk_commits"`

	InvalidByRule   map[RuleCode]int     `json:"invalid_by_rule,omitempty"`
	FailuresByClass map[FailureClass]int `json:"failures_by_class,omitempty"`
	FailedRecords   []FailedRecord       `json:"failed_records,omitempty"`

	Aggregation      *aggregate.Summary `json:"aggregation,omitempty"`
	AggregationError string             `json:"aggregation_error,omitempty"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

// Balanced reports whether every received record landed in exactly one
// outcome bucket. A completed (non-aborted) run must always balance.
func (r *RunReport) Balanced() bool {
	return r.Received == r.Invalid+r.Loaded+r.PermanentlyFailed
}

// JSON renders the report for the reporting/monitoring collaborator.
func (r *RunReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
