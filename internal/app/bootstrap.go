package app

import (
	"context"
	"database/sql"
	"fmt"

	"tidewater/internal/config"
	"tidewater/internal/db"
	"tidewater/internal/engine"
	"tidewater/internal/migrate"
)

// OpenEngine wires a ready-to-use engine for a workspace: load the config if
// present, open and migrate the database and seed the world catalog. Both the
// CLI and the server start here.
func OpenEngine(ctx context.Context, workspace string) (engine.Engine, *sql.DB, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	if err := eng.SeedWorld(ctx); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("seed world: %w", err)
	}
	return eng, conn, nil
}
