package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dcsstats/internal/aggregate"
)

// globalWriteLockKey serializes snapshot writers across workers ("dcs_snap").
const globalWriteLockKey int64 = 0x6463735f736e6170

// Table is a snapshot table with its insert column order.
type Table struct {
	Name    string
	Columns []string
}

// Snapshot tables in FK order.
var (
	SnapshotsTable = Table{"stats_snapshots", []string{
		"id", "server", "players", "sorties", "created_at",
	}}
	PlayerStatsTable = Table{"snapshot_player_stats", []string{
		"id", "snapshot_id", "ucid", "name", "rank",
		"kills", "deaths", "sorties", "takeoffs", "landings", "crashes", "ejections",
		"flight_hours", "flight_seconds", "most_used_aircraft", "traps", "avg_trap_score", "created_at",
	}}
	AircraftTable = Table{"snapshot_aircraft_usage", []string{
		"snapshot_id", "ucid", "aircraft", "uses",
	}}
	TrapScoresTable = Table{"snapshot_trap_scores", []string{
		"snapshot_id", "ucid", "seq", "score",
	}}
	ServerStatsTable = Table{"snapshot_server_stats", []string{
		"snapshot_id", "name", "missions", "kills", "deaths", "takeoffs", "landings",
		"crashes", "ejections", "players", "first_event", "last_event",
	}}
)

// SnapshotValues returns the stats_snapshots row in column order.
func SnapshotValues(r aggregate.SnapshotRow) []any {
	return []any{r.ID, r.Server, r.Players, r.Sorties, r.CreatedAt}
}

// PlayerValues returns a snapshot_player_stats row in column order.
func PlayerValues(r aggregate.SnapshotPlayerRow) []any {
	return []any{
		r.ID, r.SnapshotID, r.UCID, r.Name, r.Rank,
		r.Kills, r.Deaths, r.Sorties, r.Takeoffs, r.Landings, r.Crashes, r.Ejections,
		r.FlightHours, r.FlightSeconds, r.MostUsedAircraft, r.Traps, r.AvgTrapScore, r.CreatedAt,
	}
}

// AircraftValues returns a snapshot_aircraft_usage row in column order.
func AircraftValues(r aggregate.SnapshotAircraftRow) []any {
	return []any{r.SnapshotID, r.UCID, r.Aircraft, r.Uses}
}

// TrapValues returns a snapshot_trap_scores row in column order.
func TrapValues(r aggregate.SnapshotTrapRow) []any {
	return []any{r.SnapshotID, r.UCID, r.Seq, r.Score}
}

// ServerValues returns a snapshot_server_stats row in column order.
func ServerValues(r aggregate.SnapshotServerRow) []any {
	return []any{
		r.SnapshotID, r.Name, r.Missions, r.Kills, r.Deaths, r.Takeoffs, r.Landings,
		r.Crashes, r.Ejections, r.Players, r.FirstEvent.Time, r.LastEvent.Time,
	}
}

// SnapshotWriter writes snapshots to Postgres.
type SnapshotWriter struct {
	pool *pgxpool.Pool
}

// NewSnapshotWriter creates a new snapshot writer.
func NewSnapshotWriter(pool *pgxpool.Pool) *SnapshotWriter {
	return &SnapshotWriter{pool: pool}
}

// WriteSnapshot inserts a snapshot within a single transaction. Rows of an
// earlier write with the same id are purged first, so retried jobs are
// idempotent.
func (w *SnapshotWriter) WriteSnapshot(ctx context.Context, set *aggregate.SnapshotSet) error {
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, globalWriteLockKey); err != nil {
		return fmt.Errorf("acquire global write lock: %w", err)
	}

	if err := purgeSnapshot(ctx, tx, set.Snapshot.ID); err != nil {
		return fmt.Errorf("purge snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx, insertSQL(SnapshotsTable), SnapshotValues(set.Snapshot)...); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if err := copyRows(ctx, tx, PlayerStatsTable, set.Players, PlayerValues); err != nil {
		return fmt.Errorf("insert player stats: %w", err)
	}
	if err := copyRows(ctx, tx, AircraftTable, set.Aircraft, AircraftValues); err != nil {
		return fmt.Errorf("insert aircraft usage: %w", err)
	}
	if err := copyRows(ctx, tx, TrapScoresTable, set.Traps, TrapValues); err != nil {
		return fmt.Errorf("insert trap scores: %w", err)
	}
	if err := copyRows(ctx, tx, ServerStatsTable, set.Servers, ServerValues); err != nil {
		return fmt.Errorf("insert server stats: %w", err)
	}

	return tx.Commit(ctx)
}

// purgeSnapshot deletes an earlier write of the snapshot, children first.
func purgeSnapshot(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tables := []Table{ServerStatsTable, TrapScoresTable, AircraftTable, PlayerStatsTable}
	for _, t := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE snapshot_id = $1`, t.Name), id); err != nil {
			return fmt.Errorf("purge %s: %w", t.Name, err)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM stats_snapshots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("purge stats_snapshots: %w", err)
	}
	return nil
}

// copyRows inserts rows using the COPY protocol.
func copyRows[T any](ctx context.Context, tx pgx.Tx, t Table, rows []T, values func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{t.Name},
		t.Columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return values(rows[i]), nil
		}),
	)
	return err
}

// insertSQL builds a single-row INSERT with $n placeholders.
func insertSQL(t Table) string {
	return InsertSQL(t, func(i int) string { return fmt.Sprintf("$%d", i) })
}

// InsertSQL builds a single-row INSERT for t; placeholder renders the i-th
// (1-based) bind parameter.
func InsertSQL(t Table, placeholder func(i int) string) string {
	params := make([]string, len(t.Columns))
	for i := range t.Columns {
		params[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(t.Columns, ", "), strings.Join(params, ", "))
}
