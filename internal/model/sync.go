// internal/model/sync.go
package model

import "time"

// Classification is the outcome of comparing a candidate with the customer store.
type Classification string

const (
	ClassNew       Classification = "new"
	ClassChanged   Classification = "changed"
	ClassUnchanged Classification = "unchanged"
	ClassInvalid   Classification = "invalid"
)

// FailedRecord describes one candidate that did not converge in a run.
type FailedRecord struct {
	Phone  string `json:"phone"`
	Stage  string `json:"stage"` // validate, add, update, store
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error"`
}

// SyncSummary is the result contract of one reconciliation run.
type SyncSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Added      int            `json:"added"`
	Updated    int            `json:"updated"`
	Unchanged  int            `json:"unchanged"`
	Failed     []FailedRecord `json:"failed"`
}

// CandidateClass pairs a candidate phone with its dry-run classification.
type CandidateClass struct {
	Phone string         `json:"phone"`
	Class Classification `json:"class"`
	Error string         `json:"error,omitempty"`
}
