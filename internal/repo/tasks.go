package repo

import (
	"context"
	"database/sql"

	"tidewater/internal/domain"
)

const taskCols = `id,actor_id,action,params_json,start_turn,resolve_turn,resolved,result_json,created_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ActorID, t.Action, nullable(t.ParamsJSON), t.StartTurn, t.ResolveTurn, t.Resolved, nullableStringPtr(t.ResultJSON), t.CreatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	var params, result sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.ActorID, &t.Action, &params, &t.StartTurn, &t.ResolveTurn, &t.Resolved, &result, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if params.Valid {
		t.ParamsJSON = params.String
	}
	if result.Valid {
		t.ResultJSON = &result.String
	}
	return t, nil
}

// PendingTaskCovering returns the actor's unresolved task still covering the
// given turn, if any. A task covers every turn before its resolve turn; this
// is the one-action-per-actor-per-turn check.
func (r Repo) PendingTaskCovering(ctx context.Context, tx *sql.Tx, actorID string, turn int64) (domain.Task, error) {
	var t domain.Task
	var params, result sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE actor_id=? AND resolved=0 AND resolve_turn > ? LIMIT 1`, actorID, turn-1).
		Scan(&t.ID, &t.ActorID, &t.Action, &params, &t.StartTurn, &t.ResolveTurn, &t.Resolved, &result, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if params.Valid {
		t.ParamsJSON = params.String
	}
	return t, nil
}

// ListDueTasks returns unresolved tasks with resolve_turn <= turn. Order is
// not contractual; each task resolves independently.
func (r Repo) ListDueTasks(ctx context.Context, tx *sql.Tx, turn int64) ([]domain.Task, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE resolved=0 AND resolve_turn<=?`, turn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r Repo) ListTasksForActor(ctx context.Context, actorID string, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE actor_id=? ORDER BY start_turn DESC, created_at DESC LIMIT ?`, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// MarkTaskResolved attaches the result and flips resolved; tasks transition
// exactly once.
func (r Repo) MarkTaskResolved(ctx context.Context, tx *sql.Tx, id string, resultJSON string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET resolved=1, result_json=? WHERE id=? AND resolved=0`, resultJSON, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var params, result sql.NullString
		if err := rows.Scan(&t.ID, &t.ActorID, &t.Action, &params, &t.StartTurn, &t.ResolveTurn, &t.Resolved, &result, &t.CreatedAt); err != nil {
			return nil, err
		}
		if params.Valid {
			t.ParamsJSON = params.String
		}
		if result.Valid {
			t.ResultJSON = &result.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
