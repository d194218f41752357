package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"

	"tidewater/internal/domain"
	"tidewater/internal/events"
)

// vesselStep is the outcome of one navigator transition.
type vesselStep int

const (
	vesselSkipped vesselStep = iota
	vesselAdvanced
	vesselBecameStuck
	vesselHeldStuck
)

// stepVessel runs one transition of the stuck/unstuck state machine and
// mutates v in place. Every non-skip outcome stamps lastMovedTurn, so a
// vessel transitions at most once per turn.
func stepVessel(v *domain.Vessel, turnNo int64, rng *rand.Rand, immune map[string]bool, stuckChance float64, autoReleaseAfter int) vesselStep {
	if v.LastMovedTurn == turnNo || len(v.Route) == 0 {
		return vesselSkipped
	}
	nextIndex := (v.CurrentIndex + 1) % len(v.Route)
	fromLoc := v.Route[v.CurrentIndex]
	toLoc := v.Route[nextIndex]

	advance := func() {
		v.CurrentIndex = nextIndex
		v.Stuck = false
		v.StuckTurns = 0
		v.LastMovedTurn = turnNo
	}

	// Legs entirely inside the immune zone never roll the stuck check.
	if immune[fromLoc] && immune[toLoc] {
		advance()
		return vesselAdvanced
	}
	if v.Stuck {
		v.StuckTurns++
		v.LastMovedTurn = turnNo
		if autoReleaseAfter > 0 && v.StuckTurns >= autoReleaseAfter {
			advance()
			return vesselAdvanced
		}
		return vesselHeldStuck
	}
	if rng.Float64() < stuckChance {
		v.Stuck = true
		v.StuckTurns = 1
		v.LastMovedTurn = turnNo
		return vesselBecameStuck
	}
	advance()
	return vesselAdvanced
}

// advanceVesselsTx moves every vessel for the turn inside the settlement
// transaction, emitting stuck/arrived world events.
func (e Engine) advanceVesselsTx(ctx context.Context, tx *sql.Tx, turnNo int64) error {
	vessels, err := e.Repo.ListVesselsTx(ctx, tx)
	if err != nil {
		return fmt.Errorf("list vessels: %w", err)
	}
	immune := e.Config.ImmuneZone()
	stuckChance := e.Config.Vessels.StuckChance
	autoRelease := e.Config.Vessels.AutoReleaseAfter
	rng := e.rng()

	for _, v := range vessels {
		fromLoc := v.At()
		step := stepVessel(&v, turnNo, rng, immune, stuckChance, autoRelease)
		switch step {
		case vesselSkipped:
			continue
		case vesselAdvanced:
			if err := e.Events.Append(ctx, tx, turnNo, "vessel.arrived",
				fmt.Sprintf("%s arrived at %s", v.Key, v.At()),
				fmt.Sprintf("The %s is now at %s.", v.Key, v.At()),
				"", "vessel", v.Key, events.EventPayload{"from": fromLoc, "to": v.At()}); err != nil {
				return err
			}
		case vesselBecameStuck:
			toLoc := v.Route[(v.CurrentIndex+1)%len(v.Route)]
			if err := e.Events.Append(ctx, tx, turnNo, "vessel.stuck",
				fmt.Sprintf("%s stuck at sea", v.Key),
				fmt.Sprintf("The %s got stuck between %s and %s.", v.Key, fromLoc, toLoc),
				"", "vessel", v.Key, events.EventPayload{"from": fromLoc, "to": toLoc}); err != nil {
				return err
			}
		case vesselHeldStuck:
			// No event; the feed already carries the original stuck report.
		}
		if err := e.Repo.UpdateVesselState(ctx, tx, v); err != nil {
			return fmt.Errorf("update vessel %s: %w", v.Key, err)
		}
	}
	return nil
}

// RescueVessel frees a stuck vessel without advancing it; player rescue
// outcomes (a successful swim, for instance) call this from outside the
// settlement pass.
func (e Engine) RescueVessel(ctx context.Context, key string) (domain.Vessel, error) {
	v, err := e.Repo.GetVessel(ctx, key)
	if err != nil {
		return domain.Vessel{}, err
	}
	if !v.Stuck {
		return v, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Vessel{}, err
	}
	defer tx.Rollback()

	v.Stuck = false
	v.StuckTurns = 0
	if err := e.Repo.UpdateVesselState(ctx, tx, v); err != nil {
		return domain.Vessel{}, err
	}
	if err := e.Events.Append(ctx, tx, e.CurrentTurn(), "vessel.rescued",
		fmt.Sprintf("%s freed", v.Key),
		fmt.Sprintf("The %s was freed and will sail next turn.", v.Key),
		"", "vessel", v.Key, nil); err != nil {
		return domain.Vessel{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Vessel{}, err
	}
	return v, nil
}
