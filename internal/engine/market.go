package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tidewater/internal/domain"
	"tidewater/internal/events"
	"tidewater/internal/repo"
)

// CreateListing puts qty of an item up for sale at a per-unit price. The
// items leave the seller's inventory immediately so a listing can never sell
// goods the seller no longer holds.
func (e Engine) CreateListing(ctx context.Context, sellerID, itemKey string, qty int, priceShillings int64) (domain.Listing, error) {
	if qty < 1 {
		return domain.Listing{}, errors.New("quantity must be at least 1")
	}
	if priceShillings < 0 {
		return domain.Listing{}, errors.New("price must not be negative")
	}
	l := domain.Listing{
		ID:             uuid.NewString(),
		SellerID:       sellerID,
		ItemKey:        itemKey,
		Quantity:       qty,
		PriceShillings: priceShillings,
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Listing{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetActorTx(ctx, tx, sellerID); err != nil {
		return domain.Listing{}, err
	}
	held, err := e.Repo.InventoryQuantity(ctx, tx, sellerID, itemKey)
	if err != nil {
		return domain.Listing{}, err
	}
	if held < qty {
		return domain.Listing{}, ErrInsufficientItems
	}
	if err := e.Repo.SetInventoryQuantity(ctx, tx, sellerID, itemKey, held-qty); err != nil {
		return domain.Listing{}, err
	}
	if err := e.Repo.InsertListing(ctx, tx, l); err != nil {
		return domain.Listing{}, err
	}
	if err := e.Events.Append(ctx, tx, e.CurrentTurn(), "listing.created",
		fmt.Sprintf("%d %s for sale", qty, itemKey), "",
		sellerID, "listing", l.ID, events.EventPayload{"item": itemKey, "quantity": qty, "price_shillings": priceShillings}); err != nil {
		return domain.Listing{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

// BuyListing transfers qty units from a listing to the buyer: the buyer is
// debited, the seller credited, the goods granted. Either everything applies
// or nothing does.
func (e Engine) BuyListing(ctx context.Context, buyerID, listingID string, qty int) (domain.Listing, error) {
	if qty < 1 {
		return domain.Listing{}, errors.New("quantity must be at least 1")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Listing{}, err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetListingTx(ctx, tx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}
	if qty > l.Quantity {
		return domain.Listing{}, fmt.Errorf("listing holds only %d units", l.Quantity)
	}
	buyer, err := e.Repo.GetActorTx(ctx, tx, buyerID)
	if err != nil {
		return domain.Listing{}, err
	}
	total := l.PriceShillings * int64(qty)
	if err := debitActor(&buyer, total); err != nil {
		return domain.Listing{}, err
	}
	if err := e.Repo.UpdateActorState(ctx, tx, buyer); err != nil {
		return domain.Listing{}, err
	}
	seller, err := e.Repo.GetActorTx(ctx, tx, l.SellerID)
	if err == nil {
		seller.MoneyShillings += total
		if err := e.Repo.UpdateActorState(ctx, tx, seller); err != nil {
			return domain.Listing{}, err
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Listing{}, err
	}
	if err := e.grantTx(ctx, tx, buyerID, l.ItemKey, qty); err != nil {
		return domain.Listing{}, err
	}
	l.Quantity -= qty
	if err := e.Repo.UpdateListingQuantity(ctx, tx, l.ID, l.Quantity); err != nil {
		return domain.Listing{}, err
	}
	if err := e.Events.Append(ctx, tx, e.CurrentTurn(), "listing.sold",
		fmt.Sprintf("%d %s sold", qty, l.ItemKey), "",
		buyerID, "listing", l.ID, events.EventPayload{"item": l.ItemKey, "quantity": qty, "total_shillings": total}); err != nil {
		return domain.Listing{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}
