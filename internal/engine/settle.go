package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tidewater/internal/actions"
	"tidewater/internal/domain"
	"tidewater/internal/events"
	"tidewater/internal/repo"
)

// Settle runs the settlement pass for turnNo: resolve every due task,
// advance vessels, apply hunger attrition, append the feed and advance the
// watermark. The whole pass is one transaction with the watermark written
// last, so a crashed pass re-runs cleanly and a duplicate invocation is a
// no-op.
func (e Engine) Settle(ctx context.Context, turnNo int64) error {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	watermark, err := e.Repo.Watermark(ctx, tx)
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}
	if watermark >= turnNo {
		return nil
	}

	due, err := e.Repo.ListDueTasks(ctx, tx, turnNo)
	if err != nil {
		return fmt.Errorf("list due tasks: %w", err)
	}
	for _, t := range due {
		if err := e.resolveTaskTx(ctx, tx, t, turnNo); err != nil {
			return fmt.Errorf("resolve task %s: %w", t.ID, err)
		}
	}

	if err := e.advanceVesselsTx(ctx, tx, turnNo); err != nil {
		return err
	}

	if err := e.applyHungerTx(ctx, tx, turnNo); err != nil {
		return err
	}

	if err := e.Events.Append(ctx, tx, turnNo, "turn.settled", fmt.Sprintf("Turn %d settled", turnNo), "",
		"", "world", "", events.EventPayload{"tasks_resolved": len(due)}); err != nil {
		return err
	}
	if err := e.Repo.SetWatermark(ctx, tx, turnNo); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return tx.Commit()
}

// resolveTaskTx settles one task. Domain-level failures (missing actor, bad
// parameters) are logged and recorded on the task so the pass converges;
// only storage errors propagate and abort the turn.
func (e Engine) resolveTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task, turnNo int64) error {
	a, err := e.Repo.GetActorTx(ctx, tx, t.ActorID)
	if errors.Is(err, repo.ErrNotFound) {
		e.logger().Printf("settle: task %s skipped, actor %s missing", t.ID, t.ActorID)
		return e.Repo.MarkTaskResolved(ctx, tx, t.ID, `{"error":"actor missing"}`)
	}
	if err != nil {
		return err
	}

	var params map[string]any
	if t.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(t.ParamsJSON), &params); err != nil {
			e.logger().Printf("settle: task %s has invalid params: %v", t.ID, err)
			return e.Repo.MarkTaskResolved(ctx, tx, t.ID, `{"error":"invalid params"}`)
		}
	}

	action := actions.Lookup(t.Action)
	res := action.Resolve(e.rng(), params)

	for key, qty := range res.Gains {
		if err := e.grantTx(ctx, tx, a.ID, key, qty); err != nil {
			return err
		}
	}
	if res.EarnedShillings > 0 {
		a.MoneyShillings += res.EarnedShillings
	}
	if res.HealthDelta != 0 {
		a.Health = clamp(a.Health+res.HealthDelta, 0, a.MaxHealth)
	}
	if action.Experience > 0 {
		if err := e.awardExperienceTx(ctx, tx, &a, action.Experience, turnNo); err != nil {
			return err
		}
	}
	if err := e.Repo.UpdateActorState(ctx, tx, a); err != nil {
		return err
	}

	result, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := e.Repo.MarkTaskResolved(ctx, tx, t.ID, string(result)); err != nil {
		return err
	}
	return e.Events.Append(ctx, tx, turnNo, "task.resolved", fmt.Sprintf("%s finished %s", a.Name, t.Action), "",
		a.ID, "task", t.ID, events.EventPayload{"action": t.Action, "result": res.Summary})
}

// applyHungerTx applies universal attrition: actors below the sustenance
// threshold lose one health, then everyone's hunger resets to zero. Hunger
// is a per-turn resource, not a carry-over stock.
func (e Engine) applyHungerTx(ctx context.Context, tx *sql.Tx, turnNo int64) error {
	ids, err := e.Repo.ListActorIDs(ctx, tx)
	if err != nil {
		return fmt.Errorf("list actors: %w", err)
	}
	threshold := e.Config.Actors.StarvationThreshold
	for _, id := range ids {
		a, err := e.Repo.GetActorTx(ctx, tx, id)
		if err != nil {
			return err
		}
		starved := a.Hunger < threshold
		if starved {
			a.Health = clamp(a.Health-1, 0, a.MaxHealth)
		}
		a.Hunger = 0
		if err := e.Repo.UpdateActorState(ctx, tx, a); err != nil {
			return err
		}
		if starved && a.Health == 0 {
			if err := e.Events.Append(ctx, tx, turnNo, "actor.starving", fmt.Sprintf("%s is starving", a.Name),
				fmt.Sprintf("%s collapsed from hunger.", a.Name), a.ID, "actor", a.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
