package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tidewater/internal/domain"
	"tidewater/internal/events"
)

// Credit adds shillings to an actor's purse.
func (e Engine) Credit(ctx context.Context, actorID string, amount int64) (domain.Actor, error) {
	return e.withActorTx(ctx, actorID, func(tx *sql.Tx, a *domain.Actor) error {
		return creditActor(a, amount)
	})
}

// Debit removes shillings; an amount the purse cannot cover fails with
// ErrInsufficientFunds and changes nothing. Balances never clamp.
func (e Engine) Debit(ctx context.Context, actorID string, amount int64) (domain.Actor, error) {
	return e.withActorTx(ctx, actorID, func(tx *sql.Tx, a *domain.Actor) error {
		return debitActor(a, amount)
	})
}

func creditActor(a *domain.Actor, amount int64) error {
	if amount < 0 {
		return errors.New("credit amount must not be negative")
	}
	a.MoneyShillings += amount
	return nil
}

func debitActor(a *domain.Actor, amount int64) error {
	if amount < 0 {
		return errors.New("debit amount must not be negative")
	}
	if amount > a.MoneyShillings {
		return ErrInsufficientFunds
	}
	a.MoneyShillings -= amount
	return nil
}

// Grant adds qty of an item to the actor's inventory, creating the entry if
// absent.
func (e Engine) Grant(ctx context.Context, actorID, itemKey string, qty int) error {
	if qty < 1 {
		return errors.New("quantity must be at least 1")
	}
	_, err := e.withActorTx(ctx, actorID, func(tx *sql.Tx, a *domain.Actor) error {
		return e.grantTx(ctx, tx, a.ID, itemKey, qty)
	})
	return err
}

func (e Engine) grantTx(ctx context.Context, tx *sql.Tx, actorID, itemKey string, qty int) error {
	if _, err := e.Repo.GetItemTx(ctx, tx, itemKey); err != nil {
		return fmt.Errorf("item %s: %w", itemKey, err)
	}
	held, err := e.Repo.InventoryQuantity(ctx, tx, actorID, itemKey)
	if err != nil {
		return err
	}
	return e.Repo.SetInventoryQuantity(ctx, tx, actorID, itemKey, held+qty)
}

// Consume eats qty units of an item: the inventory shrinks and hunger rises
// by qty x edibleHunger, capped at the actor's maximum. Holding fewer than
// qty fails with ErrInsufficientItems and leaves the inventory untouched.
func (e Engine) Consume(ctx context.Context, actorID, itemKey string, qty int) (domain.Actor, error) {
	if qty < 1 {
		return domain.Actor{}, errors.New("quantity must be at least 1")
	}
	return e.withActorTx(ctx, actorID, func(tx *sql.Tx, a *domain.Actor) error {
		item, err := e.Repo.GetItemTx(ctx, tx, itemKey)
		if err != nil {
			return fmt.Errorf("item %s: %w", itemKey, err)
		}
		held, err := e.Repo.InventoryQuantity(ctx, tx, a.ID, itemKey)
		if err != nil {
			return err
		}
		if held < qty {
			return ErrInsufficientItems
		}
		if err := e.Repo.SetInventoryQuantity(ctx, tx, a.ID, itemKey, held-qty); err != nil {
			return err
		}
		a.Hunger = clamp(a.Hunger+qty*item.EdibleHunger, 0, a.MaxHunger)
		return nil
	})
}

// DrinkPotion consumes health potions, restoring one health per unit up to
// the actor's maximum.
func (e Engine) DrinkPotion(ctx context.Context, actorID string, qty int) (domain.Actor, error) {
	if qty < 1 {
		return domain.Actor{}, errors.New("quantity must be at least 1")
	}
	return e.withActorTx(ctx, actorID, func(tx *sql.Tx, a *domain.Actor) error {
		held, err := e.Repo.InventoryQuantity(ctx, tx, a.ID, "health_potion")
		if err != nil {
			return err
		}
		if held < qty {
			return ErrInsufficientItems
		}
		if err := e.Repo.SetInventoryQuantity(ctx, tx, a.ID, "health_potion", held-qty); err != nil {
			return err
		}
		a.Health = clamp(a.Health+qty, 0, a.MaxHealth)
		return nil
	})
}

// AwardExperience grants experience and runs the level-up check: every time
// the pool reaches the next threshold, the threshold is subtracted, the level
// rises and the actor gains +1 intelligence. One call can cross several
// thresholds; each level gained emits its own world event.
func (e Engine) AwardExperience(ctx context.Context, actorID string, amount int64) (domain.Actor, error) {
	return e.withActorTx(ctx, actorID, func(tx *sql.Tx, a *domain.Actor) error {
		return e.awardExperienceTx(ctx, tx, a, amount, e.CurrentTurn())
	})
}

func (e Engine) awardExperienceTx(ctx context.Context, tx *sql.Tx, a *domain.Actor, amount int64, turnNo int64) error {
	if amount < 0 {
		return errors.New("experience amount must not be negative")
	}
	a.Experience += amount
	for a.Experience >= e.requiredForNextLevel(a.Level) {
		a.Experience -= e.requiredForNextLevel(a.Level)
		a.Level++
		a.Intelligence++
		if err := e.Events.Append(ctx, tx, turnNo, "actor.level_up",
			fmt.Sprintf("%s reached level %d", a.Name, a.Level),
			fmt.Sprintf("%s grows wiser (intelligence %d).", a.Name, a.Intelligence),
			a.ID, "actor", a.ID, events.EventPayload{"level": a.Level}); err != nil {
			return err
		}
	}
	return nil
}

// requiredForNextLevel grows linearly with level, so thresholds are strictly
// increasing.
func (e Engine) requiredForNextLevel(level int) int64 {
	base := e.Config.Leveling.BaseExperience
	if base <= 0 {
		base = 100
	}
	return base * int64(level)
}

// withActorTx loads the actor, applies fn and persists the result in one
// transaction. The transaction is the mutual-exclusion boundary for
// concurrent mutations of the same actor.
func (e Engine) withActorTx(ctx context.Context, actorID string, fn func(*sql.Tx, *domain.Actor) error) (domain.Actor, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	a, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Actor{}, err
	}
	if err := fn(tx, &a); err != nil {
		return domain.Actor{}, err
	}
	if err := e.Repo.UpdateActorState(ctx, tx, a); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}
