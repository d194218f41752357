package repo

import (
	"context"
	"database/sql"

	"tidewater/internal/domain"
)

// UpsertItem seeds one catalog item; re-running never duplicates a key and
// never rewrites an existing row, catalog data is immutable after bootstrap.
func (r Repo) UpsertItem(ctx context.Context, tx *sql.Tx, it domain.Item) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO items(key,name,edible_hunger,description) VALUES (?,?,?,?)
ON CONFLICT(key) DO NOTHING`, it.Key, it.Name, it.EdibleHunger, nullable(it.Description))
	return err
}

func (r Repo) GetItem(ctx context.Context, key string) (domain.Item, error) {
	var it domain.Item
	err := r.DB.QueryRowContext(ctx, `SELECT key,name,edible_hunger,COALESCE(description,'') FROM items WHERE key=?`, key).
		Scan(&it.Key, &it.Name, &it.EdibleHunger, &it.Description)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	return it, err
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, key string) (domain.Item, error) {
	var it domain.Item
	err := tx.QueryRowContext(ctx, `SELECT key,name,edible_hunger,COALESCE(description,'') FROM items WHERE key=?`, key).
		Scan(&it.Key, &it.Name, &it.EdibleHunger, &it.Description)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	return it, err
}

func (r Repo) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,name,edible_hunger,COALESCE(description,'') FROM items ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.Key, &it.Name, &it.EdibleHunger, &it.Description); err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// InventoryQuantity returns the held quantity, 0 when no row exists.
func (r Repo) InventoryQuantity(ctx context.Context, tx *sql.Tx, actorID, itemKey string) (int, error) {
	var qty int
	err := tx.QueryRowContext(ctx, `SELECT quantity FROM inventories WHERE actor_id=? AND item_key=?`, actorID, itemKey).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return qty, err
}

// SetInventoryQuantity upserts an inventory row; quantity 0 removes the row
// entirely, empty entries are never retained.
func (r Repo) SetInventoryQuantity(ctx context.Context, tx *sql.Tx, actorID, itemKey string, qty int) error {
	if qty <= 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM inventories WHERE actor_id=? AND item_key=?`, actorID, itemKey)
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO inventories(actor_id,item_key,quantity) VALUES (?,?,?)
ON CONFLICT(actor_id,item_key) DO UPDATE SET quantity=excluded.quantity`, actorID, itemKey, qty)
	return err
}

func (r Repo) ListInventory(ctx context.Context, actorID string) ([]domain.InventoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT actor_id,item_key,quantity FROM inventories WHERE actor_id=? ORDER BY item_key`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InventoryEntry
	for rows.Next() {
		var e domain.InventoryEntry
		if err := rows.Scan(&e.ActorID, &e.ItemKey, &e.Quantity); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
