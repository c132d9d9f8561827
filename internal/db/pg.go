package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool configures a pgx connection pool and checks the server answers.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// schema creates the snapshot tables and the read models refreshed after each
// snapshot. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stats_snapshots (
		id         UUID PRIMARY KEY,
		server     TEXT,
		players    INTEGER NOT NULL,
		sorties    INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_player_stats (
		id                 UUID PRIMARY KEY,
		snapshot_id        UUID NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
		ucid               TEXT NOT NULL,
		name               TEXT NOT NULL,
		rank               INTEGER NOT NULL,
		kills              INTEGER NOT NULL,
		deaths             INTEGER NOT NULL,
		sorties            INTEGER NOT NULL,
		takeoffs           INTEGER NOT NULL,
		landings           INTEGER NOT NULL,
		crashes            INTEGER NOT NULL,
		ejections          INTEGER NOT NULL,
		flight_hours       DOUBLE PRECISION NOT NULL,
		flight_seconds     DOUBLE PRECISION NOT NULL DEFAULT 0,
		most_used_aircraft TEXT NOT NULL,
		traps              INTEGER NOT NULL,
		avg_trap_score     DOUBLE PRECISION NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		UNIQUE (snapshot_id, ucid)
	)`,
	`ALTER TABLE snapshot_player_stats ADD COLUMN IF NOT EXISTS flight_seconds DOUBLE PRECISION NOT NULL DEFAULT 0`,
	`CREATE TABLE IF NOT EXISTS snapshot_aircraft_usage (
		snapshot_id UUID NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
		ucid        TEXT NOT NULL,
		aircraft    TEXT NOT NULL,
		uses        INTEGER NOT NULL,
		PRIMARY KEY (snapshot_id, ucid, aircraft)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_trap_scores (
		snapshot_id UUID NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
		ucid        TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		score       DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (snapshot_id, ucid, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_server_stats (
		snapshot_id UUID NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		missions    INTEGER NOT NULL,
		kills       INTEGER NOT NULL,
		deaths      INTEGER NOT NULL,
		takeoffs    INTEGER NOT NULL,
		landings    INTEGER NOT NULL,
		crashes     INTEGER NOT NULL,
		ejections   INTEGER NOT NULL,
		players     INTEGER NOT NULL,
		first_event TIMESTAMPTZ NOT NULL,
		last_event  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (snapshot_id, name)
	)`,
	`CREATE MATERIALIZED VIEW IF NOT EXISTS mv_latest_leaderboard AS
		SELECT p.ucid, p.name, p.rank, p.kills, p.deaths, p.sorties, p.flight_hours,
		       p.most_used_aircraft, p.avg_trap_score, s.id AS snapshot_id, s.created_at
		FROM snapshot_player_stats p
		JOIN (
			SELECT id, created_at FROM stats_snapshots
			WHERE server IS NULL
			ORDER BY created_at DESC
			LIMIT 1
		) s ON s.id = p.snapshot_id`,
	`CREATE UNIQUE INDEX IF NOT EXISTS mv_latest_leaderboard_ucid ON mv_latest_leaderboard (ucid)`,
	`CREATE MATERIALIZED VIEW IF NOT EXISTS mv_server_history AS
		SELECT name, COUNT(*) AS snapshots, MAX(missions) AS missions,
		       MIN(first_event) AS first_event, MAX(last_event) AS last_event
		FROM snapshot_server_stats
		GROUP BY name`,
	`CREATE UNIQUE INDEX IF NOT EXISTS mv_server_history_name ON mv_server_history (name)`,
}

// EnsureSchema creates missing tables and views.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
