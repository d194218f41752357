package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tidewater/internal/domain"
	"tidewater/internal/events"
)

// CreateActor registers a new actor with the configured starting purse and
// pantry. Invoked by an external registration flow; authentication is not
// this layer's business.
func (e Engine) CreateActor(ctx context.Context, name string) (domain.Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Actor{}, errors.New("name is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Actor{
		ID:             uuid.NewString(),
		Name:           name,
		MoneyShillings: e.Config.Actors.StartingShillings,
		Hunger:         0,
		MaxHunger:      e.Config.Actors.MaxHunger,
		Health:         e.Config.Actors.MaxHealth,
		MaxHealth:      e.Config.Actors.MaxHealth,
		Level:          1,
		CreatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActor(ctx, tx, a); err != nil {
		if isUniqueViolation(err) {
			return domain.Actor{}, fmt.Errorf("actor name %s already taken", name)
		}
		return domain.Actor{}, fmt.Errorf("insert actor: %w", err)
	}
	for key, qty := range e.Config.Actors.StartingItems {
		if _, err := e.Repo.GetItemTx(ctx, tx, key); err != nil {
			return domain.Actor{}, fmt.Errorf("starting item %s: %w", key, err)
		}
		if err := e.Repo.SetInventoryQuantity(ctx, tx, a.ID, key, qty); err != nil {
			return domain.Actor{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, e.CurrentTurn(), "actor.created", fmt.Sprintf("%s arrived", a.Name),
		fmt.Sprintf("%s stepped off the boat with %d shillings.", a.Name, a.MoneyShillings),
		a.ID, "actor", a.ID, events.EventPayload{"name": a.Name}); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return a, nil
}

// DeleteActor removes an actor; inventories, tasks and listings cascade.
func (e Engine) DeleteActor(ctx context.Context, id string) error {
	return e.Repo.DeleteActor(ctx, id)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
