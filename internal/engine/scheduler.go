package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tidewater/internal/actions"
	"tidewater/internal/domain"
	"tidewater/internal/events"
	"tidewater/internal/repo"
)

// ScheduleAction queues one deferred action for the actor. An actor holds at
// most one unresolved task covering the current turn; a second attempt fails
// with ErrAlreadyScheduled and leaves the first task untouched. Unknown
// kinds are accepted and will settle as no-ops.
func (e Engine) ScheduleAction(ctx context.Context, actorID, kind string, params map[string]any) (domain.Task, error) {
	if kind == "" {
		return domain.Task{}, errors.New("action kind is required")
	}
	currentTurn := e.CurrentTurn()
	paramsJSON := ""
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return domain.Task{}, fmt.Errorf("marshal params: %w", err)
		}
		paramsJSON = string(b)
	}
	t := domain.Task{
		ID:          uuid.NewString(),
		ActorID:     actorID,
		Action:      kind,
		ParamsJSON:  paramsJSON,
		StartTurn:   currentTurn,
		ResolveTurn: currentTurn + actions.Delay(kind),
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetActorTx(ctx, tx, actorID); err != nil {
		return domain.Task{}, err
	}
	if _, err := e.Repo.PendingTaskCovering(ctx, tx, actorID, currentTurn); err == nil {
		return domain.Task{}, ErrAlreadyScheduled
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, err
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		// The partial unique index backstops the check above against a
		// concurrent schedule for the same actor.
		if isUniqueViolation(err) {
			return domain.Task{}, ErrAlreadyScheduled
		}
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, currentTurn, "task.scheduled", fmt.Sprintf("Action %s queued", kind), "",
		actorID, "task", t.ID, events.EventPayload{"action": kind, "resolve_turn": t.ResolveTurn}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
