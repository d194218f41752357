package repo

import (
	"context"
	"database/sql"
	"errors"

	"tidewater/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const actorCols = `id,name,money_shillings,hunger,max_hunger,health,max_health,intelligence,virtue,level,experience,created_at`

func scanActor(row *sql.Row) (domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Name, &a.MoneyShillings, &a.Hunger, &a.MaxHunger, &a.Health, &a.MaxHealth,
		&a.Intelligence, &a.Virtue, &a.Level, &a.Experience, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO actors(`+actorCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.MoneyShillings, a.Hunger, a.MaxHunger, a.Health, a.MaxHealth,
		a.Intelligence, a.Virtue, a.Level, a.Experience, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return scanActor(r.DB.QueryRowContext(ctx, `SELECT `+actorCols+` FROM actors WHERE id=?`, id))
}

// GetActorTx reads an actor inside a transaction so settlement sees its own
// writes.
func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	return scanActor(tx.QueryRowContext(ctx, `SELECT `+actorCols+` FROM actors WHERE id=?`, id))
}

func (r Repo) GetActorByName(ctx context.Context, name string) (domain.Actor, error) {
	return scanActor(r.DB.QueryRowContext(ctx, `SELECT `+actorCols+` FROM actors WHERE name=?`, name))
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actorCols+` FROM actors ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.MoneyShillings, &a.Hunger, &a.MaxHunger, &a.Health, &a.MaxHealth,
			&a.Intelligence, &a.Virtue, &a.Level, &a.Experience, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListActorIDs returns every actor id; settlement iterates these for the
// hunger pass.
func (r Repo) ListActorIDs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateActorState writes the mutable actor columns.
func (r Repo) UpdateActorState(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	res, err := tx.ExecContext(ctx, `UPDATE actors SET money_shillings=?, hunger=?, health=?, intelligence=?, virtue=?, level=?, experience=? WHERE id=?`,
		a.MoneyShillings, a.Hunger, a.Health, a.Intelligence, a.Virtue, a.Level, a.Experience, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteActor(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM actors WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Watermark returns the highest fully settled turn, -1 when no settlement
// has ever completed.
func (r Repo) Watermark(ctx context.Context, tx *sql.Tx) (int64, error) {
	var turn int64
	err := tx.QueryRowContext(ctx, `SELECT turn FROM turn_watermark WHERE id=1`).Scan(&turn)
	if err == sql.ErrNoRows {
		return -1, nil
	}
	return turn, err
}

// SetWatermark advances the watermark; committed last so a crashed pass
// stays re-runnable.
func (r Repo) SetWatermark(ctx context.Context, tx *sql.Tx, turn int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO turn_watermark(id,turn) VALUES (1,?)
ON CONFLICT(id) DO UPDATE SET turn=excluded.turn`, turn)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
