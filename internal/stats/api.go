package stats

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/botapi"
	"dcsstats/internal/logging"
)

// BotClient is the subset of the bot API the source needs.
type BotClient interface {
	TopKills(ctx context.Context, limit int) ([]botapi.TopKill, error)
	TopKDR(ctx context.Context, limit int) ([]botapi.TopKill, error)
	GetUser(ctx context.Context, nick string) ([]botapi.User, error)
	PlayerInfo(ctx context.Context, ucid string) (botapi.PlayerInfo, error)
	Servers(ctx context.Context) ([]botapi.Server, error)
	Squadrons(ctx context.Context) ([]botapi.Squadron, error)
}

// APISource reshapes bot API responses into the same output the log files
// produce. List endpoints degrade to an empty result when the bot fails.
type APISource struct {
	client BotClient
	log    logging.Interface
}

// NewAPISource wraps client.
func NewAPISource(client BotClient) *APISource {
	return &APISource{client: client, log: logging.Logger()}
}

// Leaderboard supports the kills and kdr metrics, the only rankings the bot
// exposes.
func (s *APISource) Leaderboard(ctx context.Context, q LeaderboardQuery) ([]aggregate.LeaderboardRow, error) {
	var fetch func(context.Context, int) ([]botapi.TopKill, error)
	switch q.Metric {
	case aggregate.MetricKills, "":
		fetch = s.client.TopKills
	case aggregate.MetricKDR:
		fetch = s.client.TopKDR
	default:
		return nil, fmt.Errorf("%w: metric %q not available from the bot api", ErrInvalidInput, q.Metric)
	}

	page := max(q.Page, 1)
	limit := 0
	if q.Limit > 0 {
		limit = q.Limit * page
	}

	top, err := fetch(ctx, limit)
	if err != nil {
		s.log.Warnf("bot api leaderboard (%s): %v", q.Metric, err)
		return []aggregate.LeaderboardRow{}, nil
	}

	rows := make([]aggregate.LeaderboardRow, 0, len(top))
	for i, t := range top {
		rows = append(rows, aggregate.LeaderboardRow{
			Rank:             i + 1,
			Name:             html.EscapeString(t.FullNickname),
			Kills:            t.AAKills,
			Deaths:           t.Deaths,
			MostUsedAircraft: aggregate.UnknownAircraft,
		})
	}
	out, _ := aggregate.Paginate(rows, page, q.Limit)
	return out, nil
}

// Player resolves name through /getuser and reads /player_info. When several
// players used the name, the one listed last wins.
func (s *APISource) Player(ctx context.Context, name string) (*aggregate.PlayerDetail, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	users, err := s.client.GetUser(ctx, name)
	if err != nil {
		s.log.Warnf("bot api getuser: %v", err)
		return nil, ErrUpstream
	}
	ucid := ""
	for _, u := range users {
		if strings.EqualFold(strings.TrimSpace(u.Nick), strings.TrimSpace(name)) && u.UCID != "" {
			ucid = u.UCID
		}
	}
	if ucid == "" {
		return nil, ErrPlayerNotFound
	}

	info, err := s.client.PlayerInfo(ctx, ucid)
	if err != nil {
		var se *botapi.StatusError
		if errors.As(err, &se) && se.NotFound() {
			return nil, ErrPlayerNotFound
		}
		s.log.Warnf("bot api player_info %s: %v", ucid, err)
		return nil, ErrUpstream
	}

	p := playerSummary(ucid, info)
	d := aggregate.BuildPlayerDetail(ucid, p.Name, p, aggregate.TrapSummary{})
	return &d, nil
}

func playerSummary(ucid string, info botapi.PlayerInfo) *aggregate.PlayerStatSummary {
	p := &aggregate.PlayerStatSummary{
		UCID:             ucid,
		Name:             info.Name,
		Kills:            info.Kills,
		Deaths:           info.Deaths,
		Sorties:          info.Takeoffs,
		Takeoffs:         info.Takeoffs,
		Landings:         info.Landings,
		Crashes:          info.Crashes,
		Ejections:        info.Ejections,
		FlightSeconds:    info.Playtime,
		FlightHours:      aggregate.FlightHours(info.Playtime),
		MostUsedAircraft: aggregate.UnknownAircraft,
	}
	if p.Name == "" {
		p.Name = ucid
	}

	for _, m := range info.Modules {
		if m.Module == "" {
			continue
		}
		p.AircraftUsage = append(p.AircraftUsage, aggregate.AircraftCount{Name: m.Module, Count: m.Sorties})
	}
	sort.SliceStable(p.AircraftUsage, func(i, j int) bool {
		return p.AircraftUsage[i].Count > p.AircraftUsage[j].Count
	})
	if len(p.AircraftUsage) > 0 {
		p.MostUsedAircraft = p.AircraftUsage[0].Name
	}
	return p
}

// Servers lists the bot's servers. Only the name and the current player
// count are known.
func (s *APISource) Servers(ctx context.Context) ([]aggregate.ServerSummary, error) {
	servers, err := s.client.Servers(ctx)
	if err != nil {
		s.log.Warnf("bot api servers: %v", err)
		return []aggregate.ServerSummary{}, nil
	}

	out := make([]aggregate.ServerSummary, 0, len(servers))
	for _, srv := range servers {
		out = append(out, aggregate.ServerSummary{
			Name:    html.EscapeString(srv.Name),
			Players: srv.NumPlayers,
		})
	}
	return out, nil
}

// Squadrons lists the bot's squadrons.
func (s *APISource) Squadrons(ctx context.Context) ([]Squadron, error) {
	squadrons, err := s.client.Squadrons(ctx)
	if err != nil {
		s.log.Warnf("bot api squadrons: %v", err)
		return []Squadron{}, nil
	}

	out := make([]Squadron, 0, len(squadrons))
	for _, sq := range squadrons {
		out = append(out, escapeSquadron(Squadron{Name: sq.Name, Description: sq.Description, Members: sq.Members}))
	}
	return out, nil
}
