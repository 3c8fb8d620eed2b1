package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/taskflow/internal/scheduler"
)

// SaveWorkflow saves or updates a workflow snapshot and its task rows.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, out *scheduler.Outcome) error {
	globalJSON, err := marshalMap(out.GlobalContext)
	if err != nil {
		return fmt.Errorf("global context: %w", err)
	}

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, status, error, created_at, start_time, end_time,
			duration_seconds, completed_tasks, failed_tasks, total_tasks, global_context, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			status = excluded.status,
			error = excluded.error,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			duration_seconds = excluded.duration_seconds,
			completed_tasks = excluded.completed_tasks,
			failed_tasks = excluded.failed_tasks,
			total_tasks = excluded.total_tasks,
			global_context = excluded.global_context,
			updated_at = CURRENT_TIMESTAMP
	`, out.WorkflowID, out.Name, out.Description, out.Status.String(), out.Error, out.CreatedAt,
		nullable(out.StartTime), nullable(out.EndTime), nullable(out.DurationSeconds), out.CompletedTasks, out.FailedTasks,
		out.TotalTasks, globalJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_tasks WHERE workflow_id = ?`, out.WorkflowID); err != nil {
		return fmt.Errorf("failed to delete old task rows: %w", err)
	}

	for i, r := range out.Results {
		resultJSON, err := marshalMap(r.Result)
		if err != nil {
			return fmt.Errorf("task %s result: %w", r.TaskID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_tasks (workflow_id, position, task_id, name, executor, status, result, error, duration_seconds)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, out.WorkflowID, i, r.TaskID, r.TaskName, r.Executor, r.Status.String(), resultJSON, r.Error, nullable(r.DurationSeconds))
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", r.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow snapshot by ID, including its task rows.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, workflowID string) (*scheduler.Outcome, error) {
	out := &scheduler.Outcome{}
	var (
		status     string
		startTime  sql.NullTime
		endTime    sql.NullTime
		duration   sql.NullFloat64
		globalJSON []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, status, error, created_at, start_time, end_time, duration_seconds, global_context
		FROM workflows
		WHERE id = ?
	`, workflowID).Scan(&out.WorkflowID, &out.Name, &out.Description, &status, &out.Error,
		&out.CreatedAt, &startTime, &endTime, &duration, &globalJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow: %w", err)
	}

	if out.Status, err = scheduler.ParseWorkflowStatus(status); err != nil {
		return nil, err
	}
	if startTime.Valid {
		out.StartTime = &startTime.Time
	}
	if endTime.Valid {
		out.EndTime = &endTime.Time
	}
	if duration.Valid {
		out.DurationSeconds = &duration.Float64
	}
	if out.GlobalContext, err = unmarshalMap(globalJSON); err != nil {
		return nil, fmt.Errorf("global context: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, name, executor, status, result, error, duration_seconds
		FROM workflow_tasks
		WHERE workflow_id = ?
		ORDER BY position
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task rows: %w", err)
	}
	defer rows.Close()

	out.Results = []scheduler.TaskSummary{}
	for rows.Next() {
		var (
			r          scheduler.TaskSummary
			taskStatus string
			resultJSON []byte
			taskDur    sql.NullFloat64
		)
		if err := rows.Scan(&r.TaskID, &r.TaskName, &r.Executor, &taskStatus, &resultJSON, &r.Error, &taskDur); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		if r.Status, err = scheduler.ParseTaskStatus(taskStatus); err != nil {
			return nil, err
		}
		if r.Result, err = unmarshalMap(resultJSON); err != nil {
			return nil, fmt.Errorf("task %s result: %w", r.TaskID, err)
		}
		if taskDur.Valid {
			r.DurationSeconds = &taskDur.Float64
		}
		out.Results = append(out.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	countTasks(out)
	return out, nil
}

// ListWorkflows returns summaries of stored workflows, newest first.
// A non-positive limit returns all of them.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, limit int) ([]scheduler.Summary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, created_at, duration_seconds, total_tasks
		FROM workflows
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var summaries []scheduler.Summary
	for rows.Next() {
		var (
			sum      scheduler.Summary
			status   string
			duration sql.NullFloat64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &status, &sum.CreatedAt, &duration, &sum.TaskCount); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		if sum.Status, err = scheduler.ParseWorkflowStatus(status); err != nil {
			return nil, err
		}
		if duration.Valid {
			sum.DurationSeconds = &duration.Float64
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return summaries, nil
}
