package stats

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/logging"
	"dcsstats/internal/ndjson"
)

// Log file names inside the data directory.
const (
	PlayersFile = "players.json"
	MissionFile = "missionstats.json"
	TrapsFile   = "traps.json"
)

// FileSource recomputes every answer from the logs in Dir. Nothing is cached
// between calls; concurrent calls only read the files.
type FileSource struct {
	Dir string
	log logging.Interface
}

// NewFileSource returns a source reading from dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir, log: logging.Logger()}
}

// logs bundles the three readers of one request.
type logs struct {
	players *ndjson.Reader
	events  *ndjson.Reader
	traps   *ndjson.Reader
}

// open prepares the readers of one request. maxEvents caps the mission log
// only; players and traps are always read in full so a capped snapshot keeps
// display names and landing scores.
func (s *FileSource) open(maxEvents int) logs {
	return logs{
		players: ndjson.Open(filepath.Join(s.Dir, PlayersFile), aggregate.PlayerFields...),
		events:  ndjson.Open(filepath.Join(s.Dir, MissionFile), aggregate.MissionFields...).WithMaxRecords(maxEvents),
		traps:   ndjson.Open(filepath.Join(s.Dir, TrapsFile), aggregate.TrapFields...),
	}
}

// err returns the first I/O error any reader hit during the last scan.
func (l logs) err() error {
	for _, r := range []*ndjson.Reader{l.players, l.events, l.traps} {
		if err := r.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (l logs) playerIndex() *aggregate.PlayerIndex {
	return aggregate.BuildPlayerIndex(ndjson.Decode[aggregate.PlayerRecord](l.players))
}

func (l logs) playerStats(idx *aggregate.PlayerIndex) *aggregate.PlayerStatsSet {
	return aggregate.ComputePlayerStats(ndjson.Decode[aggregate.MissionEvent](l.events), idx)
}

// Leaderboard ranks every player by q.Metric.
func (s *FileSource) Leaderboard(ctx context.Context, q LeaderboardQuery) ([]aggregate.LeaderboardRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.open(0)

	ranked := aggregate.Rank(l.playerStats(l.playerIndex()), q.Metric)
	if err := l.err(); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}

	page, _ := aggregate.Paginate(ranked, q.Page, q.Limit)
	return aggregate.LeaderboardRows(page), nil
}

// Player returns the detail of the player currently using name.
func (s *FileSource) Player(ctx context.Context, name string) (*aggregate.PlayerDetail, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.open(0)

	idx := l.playerIndex()
	if err := l.players.Err(); err != nil {
		return nil, fmt.Errorf("player index: %w", err)
	}
	ucid, ok := idx.Lookup(name)
	if !ok {
		return nil, ErrPlayerNotFound
	}

	set := l.playerStats(idx)
	traps := aggregate.ComputeTrapScores(ndjson.Decode[aggregate.TrapRecord](l.traps), ucid)
	if err := l.err(); err != nil {
		return nil, fmt.Errorf("player %s: %w", ucid, err)
	}

	p, _ := set.Get(ucid)
	d := aggregate.BuildPlayerDetail(ucid, idx.Name(ucid), p, traps)
	return &d, nil
}

// Servers summarises every server seen in the mission log.
func (s *FileSource) Servers(ctx context.Context) ([]aggregate.ServerSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.open(0)

	servers := aggregate.ComputeServerStats(ndjson.Decode[aggregate.MissionEvent](l.events))
	if err := l.events.Err(); err != nil {
		return nil, fmt.Errorf("servers: %w", err)
	}
	return aggregate.ServerRows(servers), nil
}

// SnapshotOptions drive a full export.
type SnapshotOptions struct {
	SnapshotID uuid.UUID
	Server     string
	MaxRecords int
}

// Snapshot computes every aggregate at once for the export worker.
func (s *FileSource) Snapshot(ctx context.Context, opts SnapshotOptions) (*aggregate.SnapshotSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.open(opts.MaxRecords)

	set := aggregate.BuildSnapshot(&aggregate.SnapshotData{
		SnapshotID: opts.SnapshotID,
		Server:     opts.Server,
		Players:    ndjson.Decode[aggregate.PlayerRecord](l.players),
		Events:     ndjson.Decode[aggregate.MissionEvent](l.events),
		Traps:      ndjson.Decode[aggregate.TrapRecord](l.traps),
	})
	if err := l.err(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", set.Snapshot.ID, err)
	}

	s.log.Debugf("snapshot %s: %d players, %d servers, events %+v",
		set.Snapshot.ID, len(set.Players), len(set.Servers), l.events.Stats())
	return set, nil
}
