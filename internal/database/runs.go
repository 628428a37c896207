package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run ID has no journal row
var ErrRunNotFound = errors.New("search run not found")

const runColumns = `
	id, run_id, state, templates, monitor_count, threshold, retry_ms, timeout_ms,
	iterations, best_score, best_template, monitor_index, center_x, center_y,
	action_error, started_at, finished_at`

// Run journal operations

// InsertRun records a search entering the searching state
func (db *DB) InsertRun(run *SearchRun) error {
	names, err := json.Marshal(run.Templates)
	if err != nil {
		return fmt.Errorf("failed to encode templates: %w", err)
	}

	return db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO search_runs (
				run_id, state, templates, monitor_count, threshold,
				retry_ms, timeout_ms, started_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.RunID, run.State, string(names), run.MonitorCount, run.Threshold,
			run.RetryMS, run.TimeoutMS, run.StartedAt)

		if err != nil {
			return fmt.Errorf("failed to insert search run: %w", err)
		}

		run.ID, err = result.LastInsertId()
		return err
	})
}

// RecordIteration appends one iteration and bumps the run's counters
func (db *DB) RecordIteration(it *SearchIteration) error {
	return db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO search_iterations (
				run_id, number, best_score, template, monitor_index,
				center_x, center_y, captured, capture_failures, accepted, elapsed_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, it.RunID, it.Number, it.BestScore, it.Template, it.MonitorIndex,
			it.CenterX, it.CenterY, it.Captured, it.CaptureFailures, it.Accepted, it.ElapsedMS)

		if err != nil {
			return fmt.Errorf("failed to insert iteration: %w", err)
		}

		it.ID, err = result.LastInsertId()
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			UPDATE search_runs
			SET iterations = MAX(iterations, ?),
				best_score = CASE
					WHEN ? IS NOT NULL AND (best_score IS NULL OR ? > best_score) THEN ?
					ELSE best_score
				END
			WHERE run_id = ?
		`, it.Number, it.BestScore, it.BestScore, it.BestScore, it.RunID)

		return err
	})
}

// FinishRun writes the terminal state of a run
func (db *DB) FinishRun(run *SearchRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	return db.ExecTx(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE search_runs
			SET state = ?,
				iterations = ?,
				best_score = ?,
				best_template = ?,
				monitor_index = ?,
				center_x = ?,
				center_y = ?,
				action_error = ?,
				finished_at = ?
			WHERE run_id = ?
		`, run.State, run.Iterations, run.BestScore, run.BestTemplate, run.MonitorIndex,
			run.CenterX, run.CenterY, run.ActionError, run.FinishedAt, run.RunID)

		if err != nil {
			return fmt.Errorf("failed to finish search run: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, run.RunID)
		}
		return nil
	})
}

// GetRun retrieves a run by its run ID
func (db *DB) GetRun(runID string) (*SearchRun, error) {
	row := db.conn.QueryRow(`SELECT`+runColumns+` FROM search_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RecentRuns returns the newest runs first
func (db *DB) RecentRuns(limit int) ([]*SearchRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`SELECT`+runColumns+`
		FROM search_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*SearchRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Iterations returns a run's iterations in order
func (db *DB) Iterations(runID string) ([]*SearchIteration, error) {
	rows, err := db.conn.Query(`
		SELECT
			id, run_id, number, best_score, template, monitor_index,
			center_x, center_y, captured, capture_failures, accepted, elapsed_ms
		FROM search_iterations
		WHERE run_id = ?
		ORDER BY number ASC
	`, runID)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	iterations := []*SearchIteration{}
	for rows.Next() {
		it := &SearchIteration{}
		err := rows.Scan(
			&it.ID, &it.RunID, &it.Number, &it.BestScore, &it.Template, &it.MonitorIndex,
			&it.CenterX, &it.CenterY, &it.Captured, &it.CaptureFailures, &it.Accepted, &it.ElapsedMS,
		)
		if err != nil {
			return nil, err
		}
		iterations = append(iterations, it)
	}

	return iterations, rows.Err()
}

// Outcomes aggregates finished runs by state
func (db *DB) Outcomes() ([]*OutcomeStats, error) {
	rows, err := db.conn.Query(`
		SELECT state, runs, avg_iterations, max_score
		FROM run_outcomes
		ORDER BY state
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []*OutcomeStats{}
	for rows.Next() {
		s := &OutcomeStats{}
		if err := rows.Scan(&s.State, &s.Runs, &s.AvgIterations, &s.MaxScore); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PruneBefore deletes runs started before cutoff; iterations cascade
func (db *DB) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM search_runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*SearchRun, error) {
	run := &SearchRun{}
	var names string
	err := row.Scan(
		&run.ID, &run.RunID, &run.State, &names, &run.MonitorCount, &run.Threshold,
		&run.RetryMS, &run.TimeoutMS, &run.Iterations, &run.BestScore, &run.BestTemplate,
		&run.MonitorIndex, &run.CenterX, &run.CenterY, &run.ActionError,
		&run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(names), &run.Templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates of %s: %w", run.RunID, err)
	}
	return run, nil
}
