package scenestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// WorkflowRun is one durable pipeline execution recorded in the journal.
type WorkflowRun struct {
	ID           string
	Kind         string
	VideoID      string
	SceneID      string
	Status       RunStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StepResult records a completed step so a restarted run can skip it.
type StepResult struct {
	RunID          string
	StepID         string
	Attempt        int
	IdempotencyKey string
	Result         string
	CompletedAt    time.Time
}

// CreateRun inserts a new running workflow run.
func (s *Store) CreateRun(ctx context.Context, kind, videoID, sceneID string) (*WorkflowRun, error) {
	now := time.Now().UTC()
	run := &WorkflowRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		VideoID:   videoID,
		SceneID:   sceneID,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, kind, video_id, scene_id, status, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Kind,
		nullableString(run.VideoID),
		nullableString(run.SceneID),
		run.Status,
		nil,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert workflow run: %w", err)
	}
	return run, nil
}

// GetRun fetches a workflow run by identifier, (nil, nil) when unknown.
func (s *Store) GetRun(ctx context.Context, runID string) (*WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, video_id, scene_id, status, error_message, created_at, updated_at
         FROM workflow_runs WHERE id = ?`, runID)
	var (
		run        WorkflowRun
		videoID    sql.NullString
		sceneID    sql.NullString
		errorMsg   sql.NullString
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	err := row.Scan(&run.ID, &run.Kind, &videoID, &sceneID, &statusStr, &errorMsg, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow run: %w", err)
	}
	run.VideoID = videoID.String
	run.SceneID = sceneID.String
	run.Status = RunStatus(statusStr)
	run.ErrorMessage = errorMsg.String
	if created, err := parseTimeString(createdRaw); err == nil {
		run.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		run.UpdatedAt = updated
	}
	return &run, nil
}

// FinishRun records the run's terminal status and error message.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, errorMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status,
		nullableString(errorMessage),
		formatTime(time.Now().UTC()),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish workflow run: %w", err)
	}
	return nil
}

// RecordStepResult marks a step as completed. Repeat completions of the same
// step replace the earlier record.
func (s *Store) RecordStepResult(ctx context.Context, result StepResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (run_id, step_id, attempt, idempotency_key, result, completed_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (run_id, step_id) DO UPDATE SET
             attempt = excluded.attempt,
             idempotency_key = excluded.idempotency_key,
             result = excluded.result,
             completed_at = excluded.completed_at`,
		result.RunID,
		result.StepID,
		result.Attempt,
		result.IdempotencyKey,
		nullableString(result.Result),
		formatTime(result.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("record step result: %w", err)
	}
	return nil
}

// CompletedSteps returns the step results already journaled for a run, keyed
// by step id.
func (s *Store) CompletedSteps(ctx context.Context, runID string) (map[string]StepResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step_id, attempt, idempotency_key, result, completed_at
         FROM workflow_steps WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load step results: %w", err)
	}
	defer rows.Close()

	steps := make(map[string]StepResult)
	for rows.Next() {
		var (
			step         StepResult
			resultRaw    sql.NullString
			completedRaw string
		)
		if err := rows.Scan(&step.RunID, &step.StepID, &step.Attempt, &step.IdempotencyKey, &resultRaw, &completedRaw); err != nil {
			return nil, err
		}
		step.Result = resultRaw.String
		if completed, err := parseTimeString(completedRaw); err == nil {
			step.CompletedAt = completed
		}
		steps[step.StepID] = step
	}
	return steps, rows.Err()
}
