package database

import (
	"time"
)

// SearchRun is one journaled acquisition call. Nullable columns are pointers.
type SearchRun struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	State        string     `json:"state"`
	Templates    []string   `json:"templates"`
	MonitorCount int        `json:"monitor_count"`
	Threshold    float64    `json:"threshold"`
	RetryMS      int64      `json:"retry_ms"`
	TimeoutMS    int64      `json:"timeout_ms"`
	Iterations   int        `json:"iterations"`
	BestScore    *float64   `json:"best_score,omitempty"`
	BestTemplate *string    `json:"best_template,omitempty"`
	MonitorIndex *int       `json:"monitor_index,omitempty"`
	CenterX      *int       `json:"center_x,omitempty"`
	CenterY      *int       `json:"center_y,omitempty"`
	ActionError  *string    `json:"action_error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Finished reports whether the run reached a terminal state
func (r *SearchRun) Finished() bool {
	return r.FinishedAt != nil
}

// SearchIteration is the journaled diagnostics of one loop iteration
type SearchIteration struct {
	ID              int64    `json:"id"`
	RunID           string   `json:"run_id"`
	Number          int      `json:"number"`
	BestScore       *float64 `json:"best_score,omitempty"`
	Template        *string  `json:"template,omitempty"`
	MonitorIndex    *int     `json:"monitor_index,omitempty"`
	CenterX         *int     `json:"center_x,omitempty"`
	CenterY         *int     `json:"center_y,omitempty"`
	Captured        int      `json:"captured"`
	CaptureFailures int      `json:"capture_failures"`
	Accepted        bool     `json:"accepted"`
	ElapsedMS       int64    `json:"elapsed_ms"`
}

// OutcomeStats aggregates finished runs per terminal state
type OutcomeStats struct {
	State         string   `json:"state"`
	Runs          int      `json:"runs"`
	AvgIterations float64  `json:"avg_iterations"`
	MaxScore      *float64 `json:"max_score,omitempty"`
}
