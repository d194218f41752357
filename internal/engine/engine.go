package engine

import (
	"database/sql"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"tidewater/internal/config"
	"tidewater/internal/events"
	"tidewater/internal/repo"
	"tidewater/internal/turn"
)

// Ledger and scheduler errors surfaced to callers. None of them leave
// partial state behind.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientItems = errors.New("not enough items")
	ErrAlreadyScheduled  = errors.New("an action is already scheduled for this turn")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Clock  turn.Clock
	Now    func() time.Time
	// Rand drives every stochastic outcome; swap it for a seeded source in
	// tests.
	Rand   *rand.Rand
	Logger *log.Logger

	settleMu *sync.Mutex
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Clock:  turn.Clock{Epoch: cfg.TurnEpoch(), Length: cfg.TurnLength()},
		Now:    time.Now,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger: log.Default(),

		settleMu: &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) rng() *rand.Rand {
	if e.Rand != nil {
		return e.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

// CurrentTurn is the module's single source of turn truth.
func (e Engine) CurrentTurn() int64 {
	return e.Clock.Current(e.now())
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
