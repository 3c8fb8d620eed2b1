package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		start_time DATETIME,
		end_time DATETIME,
		duration_seconds REAL,
		completed_tasks INTEGER NOT NULL DEFAULT 0,
		failed_tasks INTEGER NOT NULL DEFAULT 0,
		total_tasks INTEGER NOT NULL DEFAULT 0,
		global_context TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_workflows_created_at ON workflows(created_at);

	CREATE TABLE IF NOT EXISTS workflow_tasks (
		workflow_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		task_id TEXT NOT NULL,
		name TEXT NOT NULL,
		executor TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT NOT NULL DEFAULT '',
		duration_seconds REAL,
		PRIMARY KEY (workflow_id, task_id),
		FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_workflow_tasks_position ON workflow_tasks(workflow_id, position);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
