package db

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dcsstats/internal/aggregate"
)

// metricOrder maps a leaderboard metric to its ORDER BY expression over
// snapshot_player_stats.
var metricOrder = map[aggregate.Metric]string{
	aggregate.MetricKills:       "kills",
	aggregate.MetricDeaths:      "deaths",
	aggregate.MetricSorties:     "sorties",
	aggregate.MetricTakeoffs:    "takeoffs",
	aggregate.MetricLandings:    "landings",
	aggregate.MetricCrashes:     "crashes",
	aggregate.MetricEjections:   "ejections",
	aggregate.MetricFlightHours: "flight_seconds",
	aggregate.MetricKDR:         "kills::float8 / GREATEST(deaths, 1)",
}

// leaderboardQuery builds the ranked query for metric. Ties fall back to the
// kills rank stored with the snapshot.
func leaderboardQuery(metric aggregate.Metric) (string, error) {
	order, ok := metricOrder[metric]
	if !ok {
		return "", fmt.Errorf("unknown metric %q", metric)
	}
	return fmt.Sprintf(`
		SELECT name, kills, deaths, sorties, takeoffs, landings, crashes, ejections,
		       flight_hours, most_used_aircraft
		FROM snapshot_player_stats
		WHERE snapshot_id = $1
		ORDER BY %s DESC, rank ASC
		LIMIT $2
	`, order), nil
}

// SnapshotReader provides read-only access to stored snapshots.
type SnapshotReader struct {
	pool *pgxpool.Pool
}

// NewSnapshotReader creates a new snapshot reader.
func NewSnapshotReader(pool *pgxpool.Pool) *SnapshotReader {
	return &SnapshotReader{pool: pool}
}

// LatestSnapshot returns the newest snapshot header, or nil when none exists.
func (r *SnapshotReader) LatestSnapshot(ctx context.Context) (*aggregate.SnapshotRow, error) {
	var s aggregate.SnapshotRow
	err := r.pool.QueryRow(ctx, `
		SELECT id, server, players, sorties, created_at
		FROM stats_snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&s.ID, &s.Server, &s.Players, &s.Sorties, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return &s, nil
}

// SnapshotLeaderboard ranks a stored snapshot by metric. Strings are stored
// raw and escaped on the way out.
func (r *SnapshotReader) SnapshotLeaderboard(ctx context.Context, id uuid.UUID, metric aggregate.Metric, limit int) ([]aggregate.LeaderboardRow, error) {
	query, err := leaderboardQuery(metric)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, id, limit)
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
