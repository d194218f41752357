package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tidewater/internal/domain"
)

func (r Repo) UpsertLocation(ctx context.Context, tx *sql.Tx, l domain.Location) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO locations(key,name,region,description) VALUES (?,?,?,?)
ON CONFLICT(key) DO NOTHING`, l.Key, l.Name, nullable(l.Region), nullable(l.Description))
	return err
}

func (r Repo) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,name,COALESCE(region,''),COALESCE(description,'') FROM locations ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Location
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.Key, &l.Name, &l.Region, &l.Description); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// EnsureVessel inserts a vessel unless its key already exists; bootstrap is
// idempotent and never resets a sailing vessel's position.
func (r Repo) EnsureVessel(ctx context.Context, tx *sql.Tx, v domain.Vessel) error {
	route, err := json.Marshal(v.Route)
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO vessels(key,route_json,current_index,stuck,stuck_turns,last_moved_turn) VALUES (?,?,?,?,?,?)
ON CONFLICT(key) DO NOTHING`, v.Key, string(route), v.CurrentIndex, v.Stuck, v.StuckTurns, v.LastMovedTurn)
	return err
}

func (r Repo) GetVessel(ctx context.Context, key string) (domain.Vessel, error) {
	var v domain.Vessel
	var route string
	err := r.DB.QueryRowContext(ctx, `SELECT key,route_json,current_index,stuck,stuck_turns,last_moved_turn FROM vessels WHERE key=?`, key).
		Scan(&v.Key, &route, &v.CurrentIndex, &v.Stuck, &v.StuckTurns, &v.LastMovedTurn)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(route), &v.Route); err != nil {
		return v, fmt.Errorf("vessel %s route: %w", v.Key, err)
	}
	return v, nil
}

func (r Repo) ListVessels(ctx context.Context) ([]domain.Vessel, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,route_json,current_index,stuck,stuck_turns,last_moved_turn FROM vessels ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVessels(rows)
}

// ListVesselsTx reads vessels inside the settlement transaction.
func (r Repo) ListVesselsTx(ctx context.Context, tx *sql.Tx) ([]domain.Vessel, error) {
	rows, err := tx.QueryContext(ctx, `SELECT key,route_json,current_index,stuck,stuck_turns,last_moved_turn FROM vessels ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVessels(rows)
}

// UpdateVesselState writes the mutable vessel columns; the route is fixed at
// bootstrap.
func (r Repo) UpdateVesselState(ctx context.Context, tx *sql.Tx, v domain.Vessel) error {
	res, err := tx.ExecContext(ctx, `UPDATE vessels SET current_index=?, stuck=?, stuck_turns=?, last_moved_turn=? WHERE key=?`,
		v.CurrentIndex, v.Stuck, v.StuckTurns, v.LastMovedTurn, v.Key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectVessels(rows *sql.Rows) ([]domain.Vessel, error) {
	var res []domain.Vessel
	for rows.Next() {
		var v domain.Vessel
		var route string
		if err := rows.Scan(&v.Key, &route, &v.CurrentIndex, &v.Stuck, &v.StuckTurns, &v.LastMovedTurn); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(route), &v.Route); err != nil {
			return nil, fmt.Errorf("vessel %s route: %w", v.Key, err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
