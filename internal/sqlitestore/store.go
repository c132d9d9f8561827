// Package sqlitestore keeps snapshots in a single SQLite file for deployments
// without Postgres.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/db"
)

// Store wraps a SQLite database holding snapshots.
type Store struct {
	conn *sql.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between concurrent workers.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := migrateSchema(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Same tables as the Postgres store. UUIDs and times are TEXT, times in
// fixed-width RFC 3339 so they sort lexically.
const schema = `
CREATE TABLE IF NOT EXISTS stats_snapshots (
	id         TEXT PRIMARY KEY,
	server     TEXT,
	players    INTEGER NOT NULL,
	sorties    INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_player_stats (
	id                 TEXT PRIMARY KEY,
	snapshot_id        TEXT NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
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
	flight_hours       REAL NOT NULL,
	flight_seconds     REAL NOT NULL DEFAULT 0,
	most_used_aircraft TEXT NOT NULL,
	traps              INTEGER NOT NULL,
	avg_trap_score     REAL NOT NULL,
	created_at         TEXT NOT NULL,
	UNIQUE (snapshot_id, ucid)
);

CREATE TABLE IF NOT EXISTS snapshot_aircraft_usage (
	snapshot_id TEXT NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
	ucid        TEXT NOT NULL,
	aircraft    TEXT NOT NULL,
	uses        INTEGER NOT NULL,
	PRIMARY KEY (snapshot_id, ucid, aircraft)
);

CREATE TABLE IF NOT EXISTS snapshot_trap_scores (
	snapshot_id TEXT NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
	ucid        TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	score       REAL NOT NULL,
	PRIMARY KEY (snapshot_id, ucid, seq)
);

CREATE TABLE IF NOT EXISTS snapshot_server_stats (
	snapshot_id TEXT NOT NULL REFERENCES stats_snapshots(id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	missions    INTEGER NOT NULL,
	kills       INTEGER NOT NULL,
	deaths      INTEGER NOT NULL,
	takeoffs    INTEGER NOT NULL,
	landings    INTEGER NOT NULL,
	crashes     INTEGER NOT NULL,
	ejections   INTEGER NOT NULL,
	players     INTEGER NOT NULL,
	first_event TEXT NOT NULL,
	last_event  TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, name)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_created ON stats_snapshots(created_at);
`

// migrateSchema adds columns missing from databases created by older builds.
func migrateSchema(conn *sql.DB) error {
	var count int
	err := conn.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('snapshot_player_stats') WHERE name='flight_seconds'`).Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		_, err = conn.Exec(`ALTER TABLE snapshot_player_stats ADD COLUMN flight_seconds REAL NOT NULL DEFAULT 0`)
	}
	return err
}

// WriteSnapshot stores a snapshot in one transaction, replacing an earlier
// write with the same id.
func (s *Store) WriteSnapshot(ctx context.Context, set *aggregate.SnapshotSet) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := set.Snapshot.ID.String()
	for _, t := range []db.Table{db.ServerStatsTable, db.TrapScoresTable, db.AircraftTable, db.PlayerStatsTable} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE snapshot_id = ?`, t.Name), id); err != nil {
			return fmt.Errorf("purge %s: %w", t.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stats_snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purge stats_snapshots: %w", err)
	}

	if err := insertRows(ctx, tx, db.SnapshotsTable, []aggregate.SnapshotRow{set.Snapshot}, db.SnapshotValues); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, db.PlayerStatsTable, set.Players, db.PlayerValues); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, db.AircraftTable, set.Aircraft, db.AircraftValues); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, db.TrapScoresTable, set.Traps, db.TrapValues); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, db.ServerStatsTable, set.Servers, db.ServerValues); err != nil {
		return err
	}

	return tx.Commit()
}

func insertRows[T any](ctx context.Context, tx *sql.Tx, t db.Table, rows []T, values func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, db.InsertSQL(t, func(int) string { return "?" }))
	if err != nil {
		return fmt.Errorf("prepare %s: %w", t.Name, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, sqliteArgs(values(r))...); err != nil {
			return fmt.Errorf("insert %s: %w", t.Name, err)
		}
	}
	return nil
}

// sqliteArgs turns UUIDs and times into their TEXT column form.
func sqliteArgs(args []any) []any {
	for i, a := range args {
		switch v := a.(type) {
		case uuid.UUID:
			args[i] = v.String()
		case time.Time:
			args[i] = formatTime(v)
		case *string:
			if v == nil {
				args[i] = nil
			} else {
				args[i] = *v
			}
		}
	}
	return args
}

// timeLayout is RFC 3339 with a fixed-width fraction.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// LatestSnapshot returns the newest snapshot header, or nil when none exists.
func (s *Store) LatestSnapshot(ctx context.Context) (*aggregate.SnapshotRow, error) {
	var (
		snap      aggregate.SnapshotRow
		id        string
		server    sql.NullString
		createdAt string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, server, players, sorties, created_at
		FROM stats_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&id, &server, &snap.Players, &snap.Sorties, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if snap.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("snapshot id %q: %w", id, err)
	}
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("snapshot %s created_at: %w", id, err)
	}
	if server.Valid {
		snap.Server = &server.String
	}
	return &snap, nil
}

var metricOrder = map[aggregate.Metric]string{
	aggregate.MetricKills:       "kills",
	aggregate.MetricDeaths:      "deaths",
	aggregate.MetricSorties:     "sorties",
	aggregate.MetricTakeoffs:    "takeoffs",
	aggregate.MetricLandings:    "landings",
	aggregate.MetricCrashes:     "crashes",
	aggregate.MetricEjections:   "ejections",
	aggregate.MetricFlightHours: "flight_seconds",
	aggregate.MetricKDR:         "CAST(kills AS REAL) / MAX(deaths, 1)",
}

// SnapshotLeaderboard ranks a stored snapshot by metric.
func (s *Store) SnapshotLeaderboard(ctx context.Context, id uuid.UUID, metric aggregate.Metric, limit int) ([]aggregate.LeaderboardRow, error) {
	order, ok := metricOrder[metric]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT name, kills, deaths, sorties, takeoffs, landings, crashes, ejections,
		       flight_hours, most_used_aircraft
		FROM snapshot_player_stats
		WHERE snapshot_id = ?
		ORDER BY %s DESC, rank ASC
		LIMIT ?
	`, order), id.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot leaderboard: %w", err)
	}
	defer rows.Close()

	out := []aggregate.LeaderboardRow{}
	for rows.Next() {
		row := aggregate.LeaderboardRow{Rank: len(out) + 1}
		if err := rows.Scan(&row.Name, &row.Kills, &row.Deaths, &row.Sorties, &row.Takeoffs,
			&row.Landings, &row.Crashes, &row.Ejections, &row.FlightHours, &row.MostUsedAircraft); err != nil {
			return nil, err
		}
		row.Name = html.EscapeString(row.Name)
		row.MostUsedAircraft = html.EscapeString(row.MostUsedAircraft)
		out = append(out, row)
	}
	return out, rows.Err()
}
