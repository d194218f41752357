package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tidewater/internal/domain"
)

// Writer appends world events inside the caller's transaction. The events
// table is append-only; rows are never updated.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, turn int64, evtType, title, body, actorID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,turn,type,title,body,actor_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?,?,?,?)`,
		ts, turn, evtType, title, nullable(body), nullable(actorID), entityKind, nullable(entityID), string(data))
	return err
}

// Recent returns the newest events, newest first.
func (w Writer) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,turn,type,title,COALESCE(body,''),COALESCE(actor_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Before returns up to limit events with id lower than cursor, newest first.
// Combined with Recent it drives feed pagination.
func (w Writer) Before(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,turn,type,title,COALESCE(body,''),COALESCE(actor_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE id < ? ORDER BY id DESC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// After returns up to limit events with id greater than cursor, oldest first.
// Used by the webhook dispatcher.
func (w Writer) After(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,turn,type,title,COALESCE(body,''),COALESCE(actor_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events WHERE id > ? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestID returns the id of the newest event, 0 when the feed is empty.
func (w Writer) LatestID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := w.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Turn, &e.Type, &e.Title, &e.Body, &e.ActorID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
