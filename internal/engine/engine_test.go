package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"tidewater/internal/config"
	"tidewater/internal/db"
	"tidewater/internal/domain"
	"tidewater/internal/engine"
	"tidewater/internal/migrate"
	"tidewater/internal/repo"
	"tidewater/internal/turn"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Turn   int64
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test-world")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	eng.Rand = rand.New(rand.NewSource(42))
	ctx := context.Background()
	if err := eng.SeedWorld(ctx); err != nil {
		t.Fatalf("seed world: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Turn: eng.CurrentTurn()}
}

func (env testEnv) createActor(t *testing.T, name string) domain.Actor {
	t.Helper()
	a, err := env.Engine.CreateActor(env.Ctx, name)
	if err != nil {
		t.Fatalf("create actor %s: %v", name, err)
	}
	return a
}

func (env testEnv) inventoryQty(t *testing.T, actorID, itemKey string) int {
	t.Helper()
	entries, err := env.Engine.Repo.ListInventory(env.Ctx, actorID)
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	for _, e := range entries {
		if e.ItemKey == itemKey {
			return e.Quantity
		}
	}
	return 0
}

func TestCreateActorStartingState(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")
	if a.MoneyShillings != 10 {
		t.Fatalf("starting purse = %d, want 10", a.MoneyShillings)
	}
	if a.Health != 5 || a.Hunger != 0 || a.Level != 1 {
		t.Fatalf("unexpected starting state: %+v", a)
	}
	if got := env.inventoryQty(t, a.ID, "chestnut"); got != 2 {
		t.Fatalf("starting chestnuts = %d, want 2", got)
	}
	if _, err := env.Engine.CreateActor(env.Ctx, "alice"); err == nil {
		t.Fatal("duplicate name accepted")
	}
}

func TestDebitNeverOverdraws(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")
	if _, err := env.Engine.Debit(env.Ctx, a.ID, 11); !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Fatalf("overdraft err = %v, want ErrInsufficientFunds", err)
	}
	got, err := env.Engine.Repo.GetActor(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MoneyShillings != 10 {
		t.Fatalf("balance changed on failed debit: %d", got.MoneyShillings)
	}
	got, err = env.Engine.Debit(env.Ctx, a.ID, 10)
	if err != nil || got.MoneyShillings != 0 {
		t.Fatalf("full debit: %v, balance %d", err, got.MoneyShillings)
	}
}

func TestConsumeRaisesHungerAndShrinksInventory(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")

	got, err := env.Engine.Consume(env.Ctx, a.ID, "chestnut", 1)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got.Hunger != 1 {
		t.Fatalf("hunger = %d, want 1", got.Hunger)
	}
	if q := env.inventoryQty(t, a.ID, "chestnut"); q != 1 {
		t.Fatalf("chestnuts = %d, want 1", q)
	}

	// Eating more than held fails and leaves the pantry alone.
	if _, err := env.Engine.Consume(env.Ctx, a.ID, "chestnut", 5); !errors.Is(err, engine.ErrInsufficientItems) {
		t.Fatalf("err = %v, want ErrInsufficientItems", err)
	}
	if q := env.inventoryQty(t, a.ID, "chestnut"); q != 1 {
		t.Fatalf("chestnuts after failed consume = %d, want 1", q)
	}

	// Hunger caps at max_hunger even for rich meals.
	if err := env.Engine.Grant(env.Ctx, a.ID, "mushroom", 3); err != nil {
		t.Fatal(err)
	}
	got, err = env.Engine.Consume(env.Ctx, a.ID, "mushroom", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hunger != got.MaxHunger {
		t.Fatalf("hunger = %d, want cap %d", got.Hunger, got.MaxHunger)
	}
}

func TestAwardExperienceLevels(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")

	got, err := env.Engine.AwardExperience(env.Ctx, a.ID, 250)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 2 || got.Experience != 150 || got.Intelligence != 1 {
		t.Fatalf("after 250xp: level %d exp %d int %d", got.Level, got.Experience, got.Intelligence)
	}

	got, err = env.Engine.AwardExperience(env.Ctx, a.ID, 50)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 3 || got.Experience != 0 || got.Intelligence != 2 {
		t.Fatalf("after 300xp total: level %d exp %d int %d", got.Level, got.Experience, got.Intelligence)
	}
}

func TestScheduleOneActionPerTurn(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")

	task, err := env.Engine.ScheduleAction(env.Ctx, a.ID, "gather_chestnuts", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if task.ResolveTurn != env.Turn+1 {
		t.Fatalf("resolve turn = %d, want %d", task.ResolveTurn, env.Turn+1)
	}
	if _, err := env.Engine.ScheduleAction(env.Ctx, a.ID, "work_for_king", nil); !errors.Is(err, engine.ErrAlreadyScheduled) {
		t.Fatalf("second schedule err = %v, want ErrAlreadyScheduled", err)
	}

	// Once the task settles the actor can queue again.
	if err := env.Engine.Settle(env.Ctx, env.Turn+1); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if _, err := env.Engine.ScheduleAction(env.Ctx, a.ID, "work_for_king", nil); err != nil {
		t.Fatalf("schedule after settle: %v", err)
	}
}

func TestScheduleBlockedWhilePlantingMatures(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")

	task, err := env.Engine.ScheduleAction(env.Ctx, a.ID, "plant_wheat", nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if task.ResolveTurn != env.Turn+4 {
		t.Fatalf("resolve turn = %d, want %d", task.ResolveTurn, env.Turn+4)
	}

	// A day later the wheat is still in the ground; the actor stays busy.
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC) }
	if got := env.Engine.CurrentTurn(); got != env.Turn+1 {
		t.Fatalf("current turn = %d, want %d", got, env.Turn+1)
	}
	if _, err := env.Engine.ScheduleAction(env.Ctx, a.ID, "gather_chestnuts", nil); !errors.Is(err, engine.ErrAlreadyScheduled) {
		t.Fatalf("schedule while planting err = %v, want ErrAlreadyScheduled", err)
	}
}

func TestScheduleUnknownActor(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ScheduleAction(env.Ctx, "nope", "gather_chestnuts", nil); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")

	// Hunger 0 is below the sustenance threshold, so the pass costs a health.
	if err := env.Engine.Settle(env.Ctx, env.Turn); err != nil {
		t.Fatalf("settle: %v", err)
	}
	got, err := env.Engine.Repo.GetActor(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Health != 4 {
		t.Fatalf("health after settle = %d, want 4", got.Health)
	}

	// Re-running the same turn, or an older one, changes nothing.
	if err := env.Engine.Settle(env.Ctx, env.Turn); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Settle(env.Ctx, env.Turn-5); err != nil {
		t.Fatal(err)
	}
	got, err = env.Engine.Repo.GetActor(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Health != 4 {
		t.Fatalf("health after repeat settles = %d, want 4", got.Health)
	}
}

func TestSettleAttritionThreshold(t *testing.T) {
	env := newTestEnv(t)
	fed := env.createActor(t, "fed")
	hungry := env.createActor(t, "hungry")

	// Two chestnuts reach the threshold; one does not.
	if _, err := env.Engine.Consume(env.Ctx, fed.ID, "chestnut", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Consume(env.Ctx, hungry.ID, "chestnut", 1); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Settle(env.Ctx, env.Turn); err != nil {
		t.Fatal(err)
	}

	gotFed, _ := env.Engine.Repo.GetActor(env.Ctx, fed.ID)
	gotHungry, _ := env.Engine.Repo.GetActor(env.Ctx, hungry.ID)
	if gotFed.Health != 5 {
		t.Fatalf("fed actor lost health: %d", gotFed.Health)
	}
	if gotHungry.Health != 4 {
		t.Fatalf("hungry actor health = %d, want 4", gotHungry.Health)
	}
	if gotFed.Hunger != 0 || gotHungry.Hunger != 0 {
		t.Fatal("hunger must reset to 0 after the pass")
	}
}

func TestSettleResolvesKingWork(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")

	task, err := env.Engine.ScheduleAction(env.Ctx, a.ID, "work_for_king", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Settle(env.Ctx, task.ResolveTurn); err != nil {
		t.Fatalf("settle: %v", err)
	}

	got, err := env.Engine.Repo.GetActor(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	earned := got.MoneyShillings - 10
	valid := map[int64]bool{160: true, 180: true, 200: true, 220: true, 240: true, 260: true, 280: true, 300: true}
	if !valid[earned] {
		t.Fatalf("king pay = %d shillings, not a multiple of the pay table", earned)
	}
	if got.Experience == 0 && got.Level == 1 {
		t.Fatal("no experience awarded for resolved work")
	}

	resolved, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !resolved.Resolved || resolved.ResultJSON == nil {
		t.Fatalf("task not marked resolved: %+v", resolved)
	}
}

func TestSettleSkipsFutureTasks(t *testing.T) {
	env := newTestEnv(t)
	a := env.createActor(t, "alice")

	// plant_wheat resolves four turns out; settling earlier leaves it pending.
	task, err := env.Engine.ScheduleAction(env.Ctx, a.ID, "plant_wheat", nil)
	if err != nil {
		t.Fatal(err)
	}
	if task.ResolveTurn != env.Turn+4 {
		t.Fatalf("resolve turn = %d, want %d", task.ResolveTurn, env.Turn+4)
	}
	if err := env.Engine.Settle(env.Ctx, env.Turn+1); err != nil {
		t.Fatal(err)
	}
	pending, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if pending.Resolved {
		t.Fatal("future task resolved early")
	}

	if err := env.Engine.Settle(env.Ctx, env.Turn+4); err != nil {
		t.Fatal(err)
	}
	done, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !done.Resolved {
		t.Fatal("due task not resolved")
	}
	if q := env.inventoryQty(t, a.ID, "bag_of_wheat"); q < 2 || q > 7 {
		t.Fatalf("wheat harvest = %d, want 2..7", q)
	}
}

func TestSettleEmitsTurnEvent(t *testing.T) {
	env := newTestEnv(t)
	env.createActor(t, "alice")
	if err := env.Engine.Settle(env.Ctx, env.Turn); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Events.Recent(env.Ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range evts {
		if e.Type == "turn.settled" && e.Turn == env.Turn {
			found = true
		}
	}
	if !found {
		t.Fatal("no turn.settled event in the feed")
	}
}

func TestVesselRescue(t *testing.T) {
	env := newTestEnv(t)
	// Force the stuck roll so the boat jams on its non-immune leg.
	env.Engine.Config.Vessels.StuckChance = 1.0
	if err := env.Engine.Settle(env.Ctx, env.Turn); err != nil {
		t.Fatal(err)
	}
	v, err := env.Engine.Repo.GetVessel(env.Ctx, "boat")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Stuck {
		t.Fatalf("boat should be stuck: %+v", v)
	}
	at := v.At()

	v, err = env.Engine.RescueVessel(env.Ctx, "boat")
	if err != nil {
		t.Fatal(err)
	}
	if v.Stuck || v.StuckTurns != 0 {
		t.Fatalf("rescue left boat stuck: %+v", v)
	}
	if v.At() != at {
		t.Fatal("rescue must not advance the vessel")
	}
}

func TestSettleMovesVesselOnTurnZero(t *testing.T) {
	env := newTestEnv(t)
	// An epoch on the test date puts the very first settlement at turn 0,
	// which must not read as "already moved" on a fresh vessel.
	env.Engine.Clock = turn.Clock{Epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Length: 24 * time.Hour}
	env.Engine.Config.Vessels.StuckChance = 0
	if got := env.Engine.CurrentTurn(); got != 0 {
		t.Fatalf("current turn = %d, want 0", got)
	}

	if err := env.Engine.Settle(env.Ctx, 0); err != nil {
		t.Fatalf("settle: %v", err)
	}
	v, err := env.Engine.Repo.GetVessel(env.Ctx, "boat")
	if err != nil {
		t.Fatal(err)
	}
	if v.At() != "temple_island" {
		t.Fatalf("vessel at %s after a turn-0 settle, want temple_island", v.At())
	}
	if v.LastMovedTurn != 0 {
		t.Fatalf("last moved turn = %d, want 0", v.LastMovedTurn)
	}
}

func TestMarketListingAndPurchase(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createActor(t, "seller")
	buyer := env.createActor(t, "buyer")

	l, err := env.Engine.CreateListing(env.Ctx, seller.ID, "chestnut", 2, 3)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	// Escrow: the goods leave the seller at listing time.
	if q := env.inventoryQty(t, seller.ID, "chestnut"); q != 0 {
		t.Fatalf("seller chestnuts = %d, want 0", q)
	}

	l, err = env.Engine.BuyListing(env.Ctx, buyer.ID, l.ID, 1)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if l.Quantity != 1 {
		t.Fatalf("listing quantity = %d, want 1", l.Quantity)
	}
	gotBuyer, _ := env.Engine.Repo.GetActor(env.Ctx, buyer.ID)
	gotSeller, _ := env.Engine.Repo.GetActor(env.Ctx, seller.ID)
	if gotBuyer.MoneyShillings != 7 {
		t.Fatalf("buyer purse = %d, want 7", gotBuyer.MoneyShillings)
	}
	if gotSeller.MoneyShillings != 13 {
		t.Fatalf("seller purse = %d, want 13", gotSeller.MoneyShillings)
	}
	if q := env.inventoryQty(t, buyer.ID, "chestnut"); q != 3 {
		t.Fatalf("buyer chestnuts = %d, want 3", q)
	}
}

func TestMarketRejectsBadTrades(t *testing.T) {
	env := newTestEnv(t)
	seller := env.createActor(t, "seller")
	buyer := env.createActor(t, "buyer")

	if _, err := env.Engine.CreateListing(env.Ctx, seller.ID, "chestnut", 5, 1); !errors.Is(err, engine.ErrInsufficientItems) {
		t.Fatalf("oversell err = %v, want ErrInsufficientItems", err)
	}

	l, err := env.Engine.CreateListing(env.Ctx, seller.ID, "chestnut", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.BuyListing(env.Ctx, buyer.ID, l.ID, 1); !errors.Is(err, engine.ErrInsufficientFunds) {
		t.Fatalf("broke buyer err = %v, want ErrInsufficientFunds", err)
	}
	if _, err := env.Engine.BuyListing(env.Ctx, buyer.ID, l.ID, 3); err == nil {
		t.Fatal("bought more units than listed")
	}
}

func TestSeedWorldIsRerunnable(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.SeedWorld(env.Ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	items, err := env.Engine.Repo.ListItems(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 16 {
		t.Fatalf("items = %d, want 16", len(items))
	}
	v, err := env.Engine.Repo.GetVessel(env.Ctx, "boat")
	if err != nil {
		t.Fatal(err)
	}
	if v.At() != "ocean_view" {
		t.Fatalf("boat starts at %s, want ocean_view", v.At())
	}
}
