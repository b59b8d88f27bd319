package storage

import (
	"database/sql"
	"fmt"
	"time"

	"ktxmacro.dev/ktx-macro-go/internal/models"
)

// Run statuses
const (
	RunStatusStarted   = "started"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run represents one tracked sequence execution
type Run struct {
	ID             int64
	SequenceName   string
	Status         string // 'started', 'completed', 'failed'
	StartedAt      time.Time
	CompletedAt    *time.Time
	DurationMs     *int64
	StepsExecuted  int
	TotalSteps     int
	ErrorMessage   *string
	FailedActionID *string
}

// RunStep is the persisted outcome of a single action dispatch
type RunStep struct {
	ID         int64
	RunID      int64
	ActionID   string
	Success    bool
	Message    string
	ExecutedAt time.Time
}

// StartRun records the start of a sequence execution
func (s *Store) StartRun(sequenceName string, totalSteps int) (int64, error) {
	result, err := s.conn.Exec(`
		INSERT INTO runs (
			sequence_name,
			status,
			started_at,
			total_steps
		) VALUES (?, 'started', datetime('now'), ?)
	`, sequenceName, totalSteps)

	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}

	return result.LastInsertId()
}

// FinishRun closes a run with its execution outcome and persists the
// per-step details in the same transaction.
func (s *Store) FinishRun(runID int64, result *models.ExecutionResult) error {
	if result == nil {
		return fmt.Errorf("nil execution result for run %d", runID)
	}

	status := RunStatusFailed
	if result.Success {
		status = RunStatusCompleted
	}

	var errorMessage, failedActionID interface{}
	if result.ErrorMessage != "" {
		errorMessage = result.ErrorMessage
	}
	if result.FailedActionID != "" {
		failedActionID = result.FailedActionID
	}

	return s.ExecTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE runs
			SET status = ?,
			    completed_at = datetime('now'),
			    duration_ms = ?,
			    steps_executed = ?,
			    total_steps = ?,
			    error_message = ?,
			    failed_action_id = ?
			WHERE id = ?
		`, status, result.ExecutionTime.Milliseconds(), result.StepsExecuted,
			result.TotalSteps, errorMessage, failedActionID, runID)

		if err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("run %d not found", runID)
		}

		for _, step := range result.Details {
			_, err := tx.Exec(`
				INSERT INTO run_steps (run_id, action_id, success, message, executed_at)
				VALUES (?, ?, ?, ?, ?)
			`, runID, step.ActionID, step.Success, step.Message, step.Timestamp)

			if err != nil {
				return fmt.Errorf("failed to record step: %w", err)
			}
		}

		return nil
	})
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(runID int64) (*Run, error) {
	run, err := scanRun(s.conn.QueryRow(`
		SELECT
			id,
			sequence_name,
			status,
			started_at,
			completed_at,
			duration_ms,
			steps_executed,
			total_steps,
			error_message,
			failed_action_id
		FROM runs
		WHERE id = ?
	`, runID))

	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// RecentRuns retrieves the most recent runs across all sequences,
// newest first. A limit of 0 returns everything.
func (s *Store) RecentRuns(limit int) ([]*Run, error) {
	query := `
		SELECT
			id,
			sequence_name,
			status,
			started_at,
			completed_at,
			duration_ms,
			steps_executed,
			total_steps,
			error_message,
			failed_action_id
		FROM runs
		ORDER BY started_at DESC, id DESC
	`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.queryRuns(query)
}

// RunsForSequence retrieves the run history for one sequence, newest first
func (s *Store) RunsForSequence(sequenceName string, limit int) ([]*Run, error) {
	query := `
		SELECT
			id,
			sequence_name,
			status,
			started_at,
			completed_at,
			duration_ms,
			steps_executed,
			total_steps,
			error_message,
			failed_action_id
		FROM runs
		WHERE sequence_name = ?
		ORDER BY started_at DESC, id DESC
	`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.queryRuns(query, sequenceName)
}

// LastRun retrieves the most recent run for a sequence, or nil if the
// sequence has never run.
func (s *Store) LastRun(sequenceName string) (*Run, error) {
	run, err := scanRun(s.conn.QueryRow(`
		SELECT
			id,
			sequence_name,
			status,
			started_at,
			completed_at,
			duration_ms,
			steps_executed,
			total_steps,
			error_message,
			failed_action_id
		FROM runs
		WHERE sequence_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, sequenceName))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	return run, nil
}

// RunSteps retrieves the per-step details of a run in execution order
func (s *Store) RunSteps(runID int64) ([]*RunStep, error) {
	rows, err := s.conn.Query(`
		SELECT id, run_id, action_id, success, message, executed_at
		FROM run_steps
		WHERE run_id = ?
		ORDER BY id
	`, runID)

	if err != nil {
		return nil, fmt.Errorf("failed to get run steps: %w", err)
	}
	defer rows.Close()

	var steps []*RunStep
	for rows.Next() {
		var step RunStep
		err := rows.Scan(
			&step.ID,
			&step.RunID,
			&step.ActionID,
			&step.Success,
			&step.Message,
			&step.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run steps: %w", err)
	}

	return steps, nil
}

func (s *Store) queryRuns(query string, args ...interface{}) ([]*Run, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var completedAt sql.NullTime
	var durationMs sql.NullInt64
	var errorMessage sql.NullString
	var failedActionID sql.NullString

	err := row.Scan(
		&run.ID,
		&run.SequenceName,
		&run.Status,
		&run.StartedAt,
		&completedAt,
		&durationMs,
		&run.StepsExecuted,
		&run.TotalSteps,
		&errorMessage,
		&failedActionID,
	)
	if err != nil {
		return nil, err
	}

	// Handle nullable fields
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if durationMs.Valid {
		run.DurationMs = &durationMs.Int64
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if failedActionID.Valid {
		run.FailedActionID = &failedActionID.String
	}

	return &run, nil
}
