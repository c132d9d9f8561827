package aggregate

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// Metric is a leaderboard sort key.
type Metric string

// Supported leaderboard metrics.
const (
	MetricKills       Metric = "kills"
	MetricDeaths      Metric = "deaths"
	MetricSorties     Metric = "sorties"
	MetricTakeoffs    Metric = "takeoffs"
	MetricLandings    Metric = "landings"
	MetricCrashes     Metric = "crashes"
	MetricEjections   Metric = "ejections"
	MetricFlightHours Metric = "flight_hours"
	MetricKDR         Metric = "kdr"
)

var metricValues = map[Metric]func(*PlayerStatSummary) float64{
	MetricKills:       func(p *PlayerStatSummary) float64 { return float64(p.Kills) },
	MetricDeaths:      func(p *PlayerStatSummary) float64 { return float64(p.Deaths) },
	MetricSorties:     func(p *PlayerStatSummary) float64 { return float64(p.Sorties) },
	MetricTakeoffs:    func(p *PlayerStatSummary) float64 { return float64(p.Takeoffs) },
	MetricLandings:    func(p *PlayerStatSummary) float64 { return float64(p.Landings) },
	MetricCrashes:     func(p *PlayerStatSummary) float64 { return float64(p.Crashes) },
	MetricEjections:   func(p *PlayerStatSummary) float64 { return float64(p.Ejections) },
	MetricFlightHours: func(p *PlayerStatSummary) float64 { return p.FlightSeconds },
	MetricKDR:         kdr,
}

// kdr treats zero deaths as one so a clean record still ranks by kills.
func kdr(p *PlayerStatSummary) float64 {
	if p.Deaths == 0 {
		return float64(p.Kills)
	}
	return float64(p.Kills) / float64(p.Deaths)
}

// ParseMetric validates a metric name. An empty string selects kills.
func ParseMetric(s string) (Metric, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MetricKills, nil
	}
	m := Metric(s)
	if _, ok := metricValues[m]; !ok {
		return "", fmt.Errorf("unknown metric %q", s)
	}
	return m, nil
}

// Value returns the player's value for the metric.
func (m Metric) Value(p *PlayerStatSummary) float64 {
	fn, ok := metricValues[m]
	if !ok {
		fn = metricValues[MetricKills]
	}
	return fn(p)
}

// RankedPlayer is a summary with its leaderboard position.
type RankedPlayer struct {
	Rank int
	*PlayerStatSummary
}

// Rank orders players by metric, highest first. Ties keep first-sighting
// order and still receive consecutive ranks.
func Rank(set *PlayerStatsSet, metric Metric) []RankedPlayer {
	players := set.Ordered()
	sort.SliceStable(players, func(i, j int) bool {
		return metric.Value(players[i]) > metric.Value(players[j])
	})

	out := make([]RankedPlayer, len(players))
	for i, p := range players {
		out[i] = RankedPlayer{Rank: i + 1, PlayerStatSummary: p}
	}
	return out
}

// TopN returns the first n ranked players. n <= 0 returns all of them.
func TopN(ranked []RankedPlayer, n int) []RankedPlayer {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

// Paginate returns the 1-based page of items and the total item count.
// Out-of-range pages are empty.
func Paginate[T any](items []T, page, perPage int) ([]T, int) {
	total := len(items)
	if perPage <= 0 {
		return items, total
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= total {
		return []T{}, total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return items[start:end], total
}

// LeaderboardRow is one entry of a leaderboard response. Strings are
// HTML-escaped.
type LeaderboardRow struct {
	Rank             int     `json:"rank"`
	Name             string  `json:"name"`
	Kills            int     `json:"kills"`
	Deaths           int     `json:"deaths"`
	Sorties          int     `json:"sorties"`
	Takeoffs         int     `json:"takeoffs"`
	Landings         int     `json:"landings"`
	Crashes          int     `json:"crashes"`
	Ejections        int     `json:"ejections"`
	FlightHours      float64 `json:"flight_hours"`
	MostUsedAircraft string  `json:"most_used_aircraft"`
}

// LeaderboardRows formats ranked players for the HTTP response.
func LeaderboardRows(ranked []RankedPlayer) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, LeaderboardRow{
			Rank:             r.Rank,
			Name:             html.EscapeString(r.Name),
			Kills:            r.Kills,
			Deaths:           r.Deaths,
			Sorties:          r.Sorties,
			Takeoffs:         r.Takeoffs,
			Landings:         r.Landings,
			Crashes:          r.Crashes,
			Ejections:        r.Ejections,
			FlightHours:      r.FlightHours,
			MostUsedAircraft: html.EscapeString(r.MostUsedAircraft),
		})
	}
	return rows
}

// ServerRows formats server summaries for the HTTP response. Names come from
// the log and are HTML-escaped; snapshot rows keep them raw.
func ServerRows(servers []ServerSummary) []ServerSummary {
	out := make([]ServerSummary, 0, len(servers))
	for _, s := range servers {
		s.Name = html.EscapeString(s.Name)
		out = append(out, s)
	}
	return out
}

// PlayerDetail is the single-player response.
type PlayerDetail struct {
	Name             string          `json:"name"`
	UCID             string          `json:"ucid"`
	Kills            int             `json:"kills"`
	Deaths           int             `json:"deaths"`
	Sorties          int             `json:"sorties"`
	Takeoffs         int             `json:"takeoffs"`
	Landings         int             `json:"landings"`
	Crashes          int             `json:"crashes"`
	Ejections        int             `json:"ejections"`
	FlightHours      float64         `json:"flightHours"`
	Traps            int             `json:"traps"`
	AvgTrapScore     float64         `json:"avgTrapScore"`
	TrapScores       []float64       `json:"trapScores"`
	MostUsedAircraft string          `json:"mostUsedAircraft"`
	AircraftUsage    []AircraftCount `json:"aircraftUsage"`
}

// BuildPlayerDetail merges a player's summary and trap record. A nil summary
// (player known but never flew) yields zero counters.
func BuildPlayerDetail(ucid, name string, p *PlayerStatSummary, traps TrapSummary) PlayerDetail {
	d := PlayerDetail{
		Name:             html.EscapeString(name),
		UCID:             html.EscapeString(ucid),
		Traps:            traps.Traps,
		AvgTrapScore:     traps.Average,
		TrapScores:       traps.Scores,
		MostUsedAircraft: UnknownAircraft,
		AircraftUsage:    []AircraftCount{},
	}
	if d.TrapScores == nil {
		d.TrapScores = []float64{}
	}
	if p == nil {
		return d
	}

	d.Kills = p.Kills
	d.Deaths = p.Deaths
	d.Sorties = p.Sorties
	d.Takeoffs = p.Takeoffs
	d.Landings = p.Landings
	d.Crashes = p.Crashes
	d.Ejections = p.Ejections
	d.FlightHours = p.FlightHours
	d.MostUsedAircraft = html.EscapeString(p.MostUsedAircraft)
	for _, a := range p.AircraftUsage {
		d.AircraftUsage = append(d.AircraftUsage, AircraftCount{Name: html.EscapeString(a.Name), Count: a.Count})
	}
	return d
}
