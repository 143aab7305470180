package model

import "time"

// RunStatus tracks a pipeline run's lifecycle in the store.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusSkipped  RunStatus = "skipped"
)

// StageError records a single per-item or per-batch failure with the stage
// it occurred in. Errors are accumulated, never propagated past their stage.
type StageError struct {
	Stage    string `json:"stage"`
	NativeID string `json:"native_id,omitempty"`
	Address  string `json:"address,omitempty"`
	Error    string `json:"error"`
}

// RunMetrics accumulates per-stage counters across one pipeline run. The
// struct is always populated in full, even when the run fails fatally.
type RunMetrics struct {
	SearchesRun   int            `json:"searches_run"`
	Found         int            `json:"found"`
	FoundBySearch map[string]int `json:"found_by_search,omitempty"`

	Duplicates   int `json:"duplicates"`
	LookupErrors int `json:"lookup_errors"`
	Detailed     int `json:"detailed"`

	Transformed      int `json:"transformed"`
	TransformFailed  int `json:"transform_failed"`
	ValidationFailed int `json:"validation_failed"`
	FilteredOut      int `json:"filtered_out"`

	Persisted    int `json:"persisted"`
	OwnerFinance int `json:"owner_finance"`
	CashDeal     int `json:"cash_deal"`
	Both         int `json:"both"`

	Indexed      int `json:"indexed"`
	IndexFailed  int `json:"index_failed"`
	Relayed      int `json:"relayed"`
	RelayFailed  int `json:"relay_failed"`
	AlertsSent   int `json:"alerts_sent"`
	AlertsFailed int `json:"alerts_failed"`
	NotifyQueued int `json:"notify_queued"`

	Errors []StageError `json:"errors,omitempty"`
}

// AddError appends a stage error to the run's error list.
func (m *RunMetrics) AddError(stage, nativeID, address string, err error) {
	m.Errors = append(m.Errors, StageError{
		Stage:    stage,
		NativeID: nativeID,
		Address:  address,
		Error:    err.Error(),
	})
}

// RunSummary is the result surfaced to operators for every invocation,
// including runs skipped by the lock and runs that failed fatally.
type RunSummary struct {
	RunID    string        `json:"run_id"`
	Status   RunStatus     `json:"status"`
	Skipped  bool          `json:"skipped"`
	Message  string        `json:"message"`
	Error    string        `json:"error,omitempty"`
	Metrics  RunMetrics    `json:"metrics"`
	Started  time.Time     `json:"started_at"`
	Duration time.Duration `json:"duration_ms"`
}
