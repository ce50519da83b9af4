package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/overseer-dev/overseer/internal/scheduler"
)

// SaveRun writes a complete snapshot of a run inside one transaction.
// Idempotent per run ID: the run row is upserted and the task rows are
// replaced wholesale.
func (s *SQLiteStore) SaveRun(ctx context.Context, snap RunSnapshot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, goal, iteration, verdict, session_limit, session_used, daily_limit, daily_used, saved_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			goal = excluded.goal,
			iteration = excluded.iteration,
			verdict = excluded.verdict,
			session_limit = excluded.session_limit,
			session_used = excluded.session_used,
			daily_limit = excluded.daily_limit,
			daily_used = excluded.daily_used,
			saved_at = excluded.saved_at,
			updated_at = CURRENT_TIMESTAMP
	`, snap.RunID, snap.Goal, snap.Iteration, snap.Verdict,
		snap.SessionLimit, snap.SessionUsed, snap.DailyLimit, snap.DailyUsed, snap.SavedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_tasks WHERE run_id = ?`, snap.RunID); err != nil {
		return fmt.Errorf("failed to clear previous task rows: %w", err)
	}

	for _, task := range snap.Tasks {
		errorStr := ""
		if task.Err != nil {
			errorStr = task.Err.Error()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_tasks (run_id, id, description, role, depends_on, allow_parallel, status, result, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, snap.RunID, task.ID, task.Description, string(task.Role),
			strings.Join(task.DependsOn, ","), boolToInt(task.AllowParallel),
			int(task.Status), task.Result, errorStr,
			nullableTime(task.StartedAt), nullableTime(task.FinishedAt))
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadRun reads back the last saved snapshot for a run.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (*RunSnapshot, error) {
	snap := &RunSnapshot{RunID: runID}

	err := s.db.QueryRowContext(ctx, `
		SELECT goal, iteration, verdict, session_limit, session_used, daily_limit, daily_used, saved_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&snap.Goal, &snap.Iteration, &snap.Verdict,
		&snap.SessionLimit, &snap.SessionUsed, &snap.DailyLimit, &snap.DailyUsed, &snap.SavedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, role, depends_on, allow_parallel, status, result, error, started_at, finished_at
		FROM run_tasks
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		task := &scheduler.Task{}
		var role, dependsOn, errorStr string
		var allowParallel, status int
		var startedAt, finishedAt sql.NullTime

		if err := rows.Scan(&task.ID, &task.Description, &role, &dependsOn, &allowParallel,
			&status, &task.Result, &errorStr, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}

		task.Role = scheduler.Role(role)
		if dependsOn != "" {
			task.DependsOn = strings.Split(dependsOn, ",")
		}
		task.AllowParallel = allowParallel != 0
		task.Status = scheduler.TaskStatus(status)
		if errorStr != "" {
			task.Err = fmt.Errorf("%s", errorStr)
		}
		if startedAt.Valid {
			task.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			task.FinishedAt = finishedAt.Time
		}

		snap.Tasks = append(snap.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}

	return snap, nil
}

// AppendProgress appends one outcome line to the progress journal.
func (s *SQLiteStore) AppendProgress(ctx context.Context, role scheduler.Role, summary string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progress_log (role, summary, created_at)
		VALUES (?, ?, ?)
	`, string(role), summary, at)
	if err != nil {
		return fmt.Errorf("failed to append progress: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
