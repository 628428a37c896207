package database

import (
	"sync"

	"jordanella.com/autoclick-go/internal/acquire"
	"jordanella.com/autoclick-go/internal/cv"
	"jordanella.com/autoclick-go/internal/logging"
)

// Journal persists search diagnostics as an acquire.Observer.
// Write failures are reported and never interrupt the search.
type Journal struct {
	db       *DB
	reporter *logging.ErrorReporter

	mu     sync.Mutex
	failed map[string]bool // runs whose start row could not be written
}

// NewJournal creates a journal on a migrated database
func NewJournal(db *DB, reporter *logging.ErrorReporter) *Journal {
	return &Journal{
		db:       db,
		reporter: reporter,
		failed:   make(map[string]bool),
	}
}

func (j *Journal) SearchStarted(info acquire.SearchInfo) {
	run := &SearchRun{
		RunID:        info.RunID,
		State:        string(acquire.StateSearching),
		Templates:    append([]string{}, info.Templates...),
		MonitorCount: len(info.Monitors),
		Threshold:    info.Config.Threshold,
		RetryMS:      info.Config.RetryInterval.Milliseconds(),
		TimeoutMS:    info.Config.Timeout.Milliseconds(),
		StartedAt:    info.StartedAt,
	}
	if err := j.db.InsertRun(run); err != nil {
		j.mu.Lock()
		j.failed[info.RunID] = true
		j.mu.Unlock()
		j.report("failed to journal search start", info.RunID, err)
	}
}

func (j *Journal) IterationCompleted(report acquire.IterationReport) {
	if j.skipped(report.RunID) {
		return
	}

	it := &SearchIteration{
		RunID:           report.RunID,
		Number:          report.Number,
		Captured:        report.Captured,
		CaptureFailures: report.CaptureFailures,
		Accepted:        report.Accepted,
		ElapsedMS:       report.Elapsed.Milliseconds(),
	}
	if report.Best != nil {
		score := report.Best.Score
		name := report.Best.Template
		monitor := report.Best.MonitorIndex
		x, y := report.Center.X, report.Center.Y
		it.BestScore, it.Template, it.MonitorIndex = &score, &name, &monitor
		it.CenterX, it.CenterY = &x, &y
	}

	if err := j.db.RecordIteration(it); err != nil {
		j.report("failed to journal iteration", report.RunID, err)
	}
}

func (j *Journal) SearchFinished(result acquire.Result) {
	if j.skipped(result.RunID) {
		j.mu.Lock()
		delete(j.failed, result.RunID)
		j.mu.Unlock()
		return
	}

	run := &SearchRun{
		RunID:      result.RunID,
		State:      string(result.State),
		Iterations: result.Iterations,
	}
	if result.BestScore != cv.NoScore {
		score := result.BestScore
		run.BestScore = &score
	}
	if result.Best != nil {
		name := result.Best.Template
		monitor := result.Best.MonitorIndex
		run.BestTemplate, run.MonitorIndex = &name, &monitor
		if result.Found() {
			x, y := result.Center.X, result.Center.Y
			run.CenterX, run.CenterY = &x, &y
		}
	}
	if result.ActionErr != nil {
		msg := result.ActionErr.Error()
		run.ActionError = &msg
	}

	if err := j.db.FinishRun(run); err != nil {
		j.report("failed to journal search result", result.RunID, err)
	}
}

func (j *Journal) skipped(runID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failed[runID]
}

func (j *Journal) report(message, runID string, err error) {
	if j.reporter == nil {
		j.db.logger.ErrorWithContext(message, err, map[string]interface{}{"run_id": runID})
		return
	}
	j.reporter.ReportErrorWithContext(logging.ErrorCategoryJournal, logging.ErrorSeverityMedium,
		"journal", message, err, map[string]interface{}{"run_id": runID})
}
