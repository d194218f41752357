package actions

import (
	"math/rand"
	"sort"
)

const ShillingsPerPound = 20

// kingPayPounds skews the king's daily wage toward 8-10 pounds.
var kingPayPounds = []int64{8, 8, 8, 9, 9, 10, 10, 10, 11, 12, 13, 14, 15}

// Result is what a resolver produced for one task. Gains, EarnedShillings and
// HealthDelta are side effects the settlement engine applies to the ledger;
// Summary is stored as the task result payload.
type Result struct {
	Summary         map[string]any
	Gains           map[string]int
	EarnedShillings int64
	HealthDelta     int
}

// Action is one entry of the catalog: a resolution function plus the delay
// the scheduler applies and the experience the engine awards on resolution.
type Action struct {
	Kind       string
	DelayTurns int64
	Experience int64
	Resolve    func(rng *rand.Rand, params map[string]any) Result
}

var registry = map[string]Action{}

func register(a Action) {
	registry[a.Kind] = a
}

// Lookup returns the action for kind. Unrecognized kinds resolve as a no-op
// success so an outdated settlement binary never rejects a newer client's
// tasks.
func Lookup(kind string) Action {
	if a, ok := registry[kind]; ok {
		return a
	}
	return Action{
		Kind:       kind,
		DelayTurns: 1,
		Resolve: func(_ *rand.Rand, _ map[string]any) Result {
			return Result{Summary: map[string]any{"ok": true}}
		},
	}
}

// Known reports whether kind is a registered action.
func Known(kind string) bool {
	_, ok := registry[kind]
	return ok
}

// Kinds lists registered action kinds in stable order.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Delay returns the scheduling delay for kind, 1 for unknown kinds.
func Delay(kind string) int64 {
	return Lookup(kind).DelayTurns
}

// uniform draws from [min,max], both bounds inclusive.
func uniform(rng *rand.Rand, min, max int) int {
	return min + rng.Intn(max-min+1)
}

func gather(kind, itemKey string, min, max int, xp int64) Action {
	return Action{
		Kind:       kind,
		DelayTurns: 1,
		Experience: xp,
		Resolve: func(rng *rand.Rand, _ map[string]any) Result {
			qty := uniform(rng, min, max)
			res := Result{Summary: map[string]any{"gained": map[string]any{itemKey: qty}}}
			if qty > 0 {
				res.Gains = map[string]int{itemKey: qty}
			}
			return res
		},
	}
}

func plant(kind, itemKey string, min, max int, delay, xp int64) Action {
	a := gather(kind, itemKey, min, max, xp)
	a.Kind = kind
	a.DelayTurns = delay
	return a
}

func init() {
	register(gather("gather_mushrooms", "mushroom", 2, 7, 5))
	register(gather("gather_chestnuts", "chestnut", 2, 7, 5))
	register(gather("gather_wild_herbs", "wild_herb", 2, 4, 5))
	register(gather("gather_fruits", "fruit", 0, 3, 5))
	register(plant("plant_wheat", "bag_of_wheat", 2, 7, 4, 8))
	register(plant("plant_vegetable", "vegetable", 1, 3, 2, 8))

	register(Action{
		Kind:       "work_for_king",
		DelayTurns: 1,
		Experience: 6,
		Resolve: func(rng *rand.Rand, _ map[string]any) Result {
			pounds := kingPayPounds[rng.Intn(len(kingPayPounds))]
			shillings := pounds * ShillingsPerPound
			return Result{
				Summary:         map[string]any{"earned_shillings": shillings},
				EarnedShillings: shillings,
			}
		},
	})

	register(Action{
		Kind:       "try_swim",
		DelayTurns: 1,
		Experience: 4,
		Resolve: func(rng *rand.Rand, _ map[string]any) Result {
			if rng.Float64() < 0.10 {
				return Result{Summary: map[string]any{"swim": "success"}}
			}
			return Result{
				Summary:     map[string]any{"swim": "failed", "hp_lost": 1},
				HealthDelta: -1,
			}
		},
	})

	register(Action{
		Kind:       "study_geography",
		DelayTurns: 1,
		Experience: 10,
		Resolve: func(rng *rand.Rand, _ map[string]any) Result {
			return Result{Summary: map[string]any{"discovered": rng.Float64() < 0.5}}
		},
	})

	// Boarding state lives outside the settlement core; these only record
	// the intent for surrounding layers.
	register(Action{
		Kind:       "embark",
		DelayTurns: 1,
		Experience: 1,
		Resolve: func(_ *rand.Rand, _ map[string]any) Result {
			return Result{Summary: map[string]any{"embarked": true}}
		},
	})
	register(Action{
		Kind:       "disembark",
		DelayTurns: 1,
		Experience: 1,
		Resolve: func(_ *rand.Rand, _ map[string]any) Result {
			return Result{Summary: map[string]any{"disembarked": true}}
		},
	})
}
