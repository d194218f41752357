package repo

import (
	"context"
	"database/sql"

	"tidewater/internal/domain"
)

const listingCols = `id,seller_id,item_key,quantity,price_shillings,created_at`

func (r Repo) InsertListing(ctx context.Context, tx *sql.Tx, l domain.Listing) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO listings(`+listingCols+`) VALUES (?,?,?,?,?,?)`,
		l.ID, l.SellerID, l.ItemKey, l.Quantity, l.PriceShillings, l.CreatedAt)
	return err
}

func (r Repo) GetListingTx(ctx context.Context, tx *sql.Tx, id string) (domain.Listing, error) {
	var l domain.Listing
	err := tx.QueryRowContext(ctx, `SELECT `+listingCols+` FROM listings WHERE id=?`, id).
		Scan(&l.ID, &l.SellerID, &l.ItemKey, &l.Quantity, &l.PriceShillings, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) ListListings(ctx context.Context, limit int) ([]domain.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+listingCols+` FROM listings ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(&l.ID, &l.SellerID, &l.ItemKey, &l.Quantity, &l.PriceShillings, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// UpdateListingQuantity shrinks a listing after a partial buy; quantity 0
// deletes the row.
func (r Repo) UpdateListingQuantity(ctx context.Context, tx *sql.Tx, id string, qty int) error {
	if qty <= 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id=?`, id)
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE listings SET quantity=? WHERE id=?`, qty, id)
	return err
}
