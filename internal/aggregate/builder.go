package aggregate

import (
	"iter"
	"time"

	"github.com/google/uuid"
)

// SnapshotData holds the log streams a snapshot is built from.
// This is defined in the aggregate package to avoid import cycles.
type SnapshotData struct {
	SnapshotID uuid.UUID
	Server     string // empty = all servers
	Players    iter.Seq[PlayerRecord]
	Events     iter.Seq[MissionEvent]
	Traps      iter.Seq[TrapRecord]
}

// SnapshotRow mirrors the stats_snapshots table.
type SnapshotRow struct {
	ID        uuid.UUID
	Server    *string
	Players   int
	Sorties   int
	CreatedAt time.Time
}

// SnapshotPlayerRow mirrors snapshot_player_stats.
type SnapshotPlayerRow struct {
	ID               uuid.UUID
	SnapshotID       uuid.UUID
	UCID             string
	Name             string
	Rank             int // by kills
	Kills            int
	Deaths           int
	Sorties          int
	Takeoffs         int
	Landings         int
	Crashes          int
	Ejections        int
	FlightHours      float64
	FlightSeconds    float64 // ranking key; hours are rounded
	MostUsedAircraft string
	Traps            int
	AvgTrapScore     float64
	CreatedAt        time.Time
}

// SnapshotAircraftRow mirrors snapshot_aircraft_usage.
type SnapshotAircraftRow struct {
	SnapshotID uuid.UUID
	UCID       string
	Aircraft   string
	Uses       int
}

// SnapshotTrapRow mirrors snapshot_trap_scores. Seq keeps the log order.
type SnapshotTrapRow struct {
	SnapshotID uuid.UUID
	UCID       string
	Seq        int
	Score      float64
}

// SnapshotServerRow mirrors snapshot_server_stats.
type SnapshotServerRow struct {
	SnapshotID uuid.UUID
	ServerSummary
}

// SnapshotSet is everything a snapshot writer persists.
type SnapshotSet struct {
	Snapshot SnapshotRow
	Players  []SnapshotPlayerRow
	Aircraft []SnapshotAircraftRow
	Traps    []SnapshotTrapRow
	Servers  []SnapshotServerRow
}

// BuildSnapshot computes every aggregate of a snapshot in one go.
func BuildSnapshot(data *SnapshotData) *SnapshotSet {
	now := time.Now().UTC()
	id := data.SnapshotID
	if id == uuid.Nil {
		id = uuid.New()
	}

	// Step 1: player names
	players := BuildPlayerIndex(data.Players)

	// Step 2: per-player counters and the kills ranking
	stats := ComputePlayerStats(data.Events, players, ServerFilter(data.Server))
	ranked := Rank(stats, MetricKills)

	// Step 3: carrier landings
	traps := ComputeAllTrapScores(data.Traps)

	// Step 4: per-server summaries
	var servers []ServerSummary
	if data.Server == "" {
		servers = ComputeServerStats(data.Events)
	} else {
		servers = ComputeServerStats(onlyServer(data.Events, data.Server))
	}

	set := &SnapshotSet{}
	var totalSorties int

	for _, r := range ranked {
		ts := traps[r.UCID]
		totalSorties += r.Sorties
		set.Players = append(set.Players, SnapshotPlayerRow{
			ID:               uuid.New(),
			SnapshotID:       id,
			UCID:             r.UCID,
			Name:             r.Name,
			Rank:             r.Rank,
			Kills:            r.Kills,
			Deaths:           r.Deaths,
			Sorties:          r.Sorties,
			Takeoffs:         r.Takeoffs,
			Landings:         r.Landings,
			Crashes:          r.Crashes,
			Ejections:        r.Ejections,
			FlightHours:      r.FlightHours,
			FlightSeconds:    r.FlightSeconds,
			MostUsedAircraft: r.MostUsedAircraft,
			Traps:            ts.Traps,
			AvgTrapScore:     ts.Average,
			CreatedAt:        now,
		})
		for _, a := range r.AircraftUsage {
			set.Aircraft = append(set.Aircraft, SnapshotAircraftRow{
				SnapshotID: id,
				UCID:       r.UCID,
				Aircraft:   a.Name,
				Uses:       a.Count,
			})
		}
		for i, score := range ts.Scores {
			set.Traps = append(set.Traps, SnapshotTrapRow{
				SnapshotID: id,
				UCID:       r.UCID,
				Seq:        i + 1,
				Score:      score,
			})
		}
	}

	for _, s := range servers {
		set.Servers = append(set.Servers, SnapshotServerRow{SnapshotID: id, ServerSummary: s})
	}

	var server *string
	if data.Server != "" {
		s := data.Server
		server = &s
	}
	set.Snapshot = SnapshotRow{
		ID:        id,
		Server:    server,
		Players:   len(set.Players),
		Sorties:   totalSorties,
		CreatedAt: now,
	}

	return set
}

func onlyServer(events iter.Seq[MissionEvent], server string) iter.Seq[MissionEvent] {
	return func(yield func(MissionEvent) bool) {
		for e := range events {
			if e.ServerName() != server {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}
