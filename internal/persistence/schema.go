package persistence

import "context"

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		verdict TEXT NOT NULL,
		session_limit REAL NOT NULL,
		session_used REAL NOT NULL,
		daily_limit REAL NOT NULL,
		daily_used REAL NOT NULL,
		saved_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_tasks (
		run_id TEXT NOT NULL,
		id TEXT NOT NULL,
		description TEXT NOT NULL,
		role TEXT NOT NULL,
		depends_on TEXT,
		allow_parallel INTEGER NOT NULL,
		status INTEGER NOT NULL,
		result TEXT,
		error TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		PRIMARY KEY (run_id, id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_run_tasks_run_id ON run_tasks(run_id);

	CREATE TABLE IF NOT EXISTS progress_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		summary TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_progress_log_created_at ON progress_log(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
