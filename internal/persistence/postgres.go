package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aristath/taskflow/internal/scheduler"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		start_time TIMESTAMPTZ,
		end_time TIMESTAMPTZ,
		duration_seconds DOUBLE PRECISION,
		completed_tasks INTEGER NOT NULL DEFAULT 0,
		failed_tasks INTEGER NOT NULL DEFAULT 0,
		total_tasks INTEGER NOT NULL DEFAULT 0,
		global_context JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_created_at ON workflows(created_at);

	CREATE TABLE IF NOT EXISTS workflow_tasks (
		workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		task_id TEXT NOT NULL,
		name TEXT NOT NULL,
		executor TEXT NOT NULL,
		status TEXT NOT NULL,
		result JSONB,
		error TEXT NOT NULL DEFAULT '',
		duration_seconds DOUBLE PRECISION,
		PRIMARY KEY (workflow_id, task_id)
	);
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// SaveWorkflow upserts the workflow row and replaces its task rows in one transaction.
func (s *PostgresStore) SaveWorkflow(ctx context.Context, out *scheduler.Outcome) error {
	globalJSON, err := marshalMap(out.GlobalContext)
	if err != nil {
		return fmt.Errorf("global context: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO workflows (id, name, description, status, error, created_at, start_time, end_time,
			duration_seconds, completed_tasks, failed_tasks, total_tasks, global_context, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			duration_seconds = EXCLUDED.duration_seconds,
			completed_tasks = EXCLUDED.completed_tasks,
			failed_tasks = EXCLUDED.failed_tasks,
			total_tasks = EXCLUDED.total_tasks,
			global_context = EXCLUDED.global_context,
			updated_at = now()
	`, out.WorkflowID, out.Name, out.Description, out.Status.String(), out.Error, out.CreatedAt,
		out.StartTime, out.EndTime, out.DurationSeconds, out.CompletedTasks, out.FailedTasks,
		out.TotalTasks, globalJSON)
	if err != nil {
		return fmt.Errorf("upsert workflow: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workflow_tasks WHERE workflow_id = $1`, out.WorkflowID); err != nil {
		return fmt.Errorf("delete task rows: %w", err)
	}

	batch := &pgx.Batch{}
	for i, r := range out.Results {
		resultJSON, err := marshalMap(r.Result)
		if err != nil {
			return fmt.Errorf("task %s result: %w", r.TaskID, err)
		}
		batch.Queue(`
			INSERT INTO workflow_tasks (workflow_id, position, task_id, name, executor, status, result, error, duration_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, out.WorkflowID, i, r.TaskID, r.TaskName, r.Executor, r.Status.String(), resultJSON, r.Error, r.DurationSeconds)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert task rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetWorkflow loads a workflow snapshot by ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, workflowID string) (*scheduler.Outcome, error) {
	out := &scheduler.Outcome{}
	var (
		status     string
		globalJSON []byte
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, status, error, created_at, start_time, end_time, duration_seconds, global_context
		FROM workflows
		WHERE id = $1
	`, workflowID).Scan(&out.WorkflowID, &out.Name, &out.Description, &status, &out.Error,
		&out.CreatedAt, &out.StartTime, &out.EndTime, &out.DurationSeconds, &globalJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if out.Status, err = scheduler.ParseWorkflowStatus(status); err != nil {
		return nil, err
	}
	if out.GlobalContext, err = unmarshalMap(globalJSON); err != nil {
		return nil, fmt.Errorf("global context: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT task_id, name, executor, status, result, error, duration_seconds
		FROM workflow_tasks
		WHERE workflow_id = $1
		ORDER BY position
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("query task rows: %w", err)
	}
	defer rows.Close()

	out.Results = []scheduler.TaskSummary{}
	for rows.Next() {
		var (
			r          scheduler.TaskSummary
			taskStatus string
			resultJSON []byte
		)
		if err := rows.Scan(&r.TaskID, &r.TaskName, &r.Executor, &taskStatus, &resultJSON, &r.Error, &r.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		if r.Status, err = scheduler.ParseTaskStatus(taskStatus); err != nil {
			return nil, err
		}
		if r.Result, err = unmarshalMap(resultJSON); err != nil {
			return nil, fmt.Errorf("task %s result: %w", r.TaskID, err)
		}
		out.Results = append(out.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}

	countTasks(out)
	return out, nil
}

// ListWorkflows returns stored workflow summaries, newest first.
// A non-positive limit returns all of them.
func (s *PostgresStore) ListWorkflows(ctx context.Context, limit int) ([]scheduler.Summary, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, status, created_at, duration_seconds, total_tasks
		FROM workflows
		ORDER BY created_at DESC, id
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var summaries []scheduler.Summary
	for rows.Next() {
		var (
			sum    scheduler.Summary
			status string
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &status, &sum.CreatedAt, &sum.DurationSeconds, &sum.TaskCount); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		if sum.Status, err = scheduler.ParseWorkflowStatus(status); err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
