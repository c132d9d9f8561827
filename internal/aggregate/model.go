package aggregate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EventKind is the "event" field of a missionstats line.
type EventKind string

// Mission event kinds written by the DCS server hook.
const (
	EventMissionStart EventKind = "MISSION_START"
	EventTakeoff      EventKind = "TAKEOFF"
	EventLand         EventKind = "LAND"
	EventCrash        EventKind = "CRASH"
	EventEjection     EventKind = "EJECTION"
	EventHit          EventKind = "HIT"
	EventDead         EventKind = "DEAD"
	EventMissionEnd   EventKind = "MISSION_END"
)

// NoPlayerID marks events that cannot be attributed to a player (AI units).
const NoPlayerID = "-1"

// UnknownAircraft is reported when a player has no recorded aircraft usage.
const UnknownAircraft = "Unknown"

// DefaultServer groups events that carry no server name.
const DefaultServer = "default"

// Required fields per log file. Lines missing any of them are skipped.
var (
	PlayerFields  = []string{"ucid", "name"}
	MissionFields = []string{"time", "event"}
	TrapFields    = []string{"player_ucid"}
)

// Timestamp is an event time. The logs carry either unix seconds (possibly
// fractional) or a formatted date string.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON accepts a JSON number, a numeric string, or a date string.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("timestamp: empty value")
	}
	if b[0] != '"' {
		var secs float64
		if err := json.Unmarshal(b, &secs); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = unixFloat(secs)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		t.Time = unixFloat(secs)
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON writes RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func unixFloat(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// At builds a Timestamp from unix seconds.
func At(secs float64) Timestamp {
	return Timestamp{Time: unixFloat(secs)}
}

// PlayerRecord is one line of players.json.
type PlayerRecord struct {
	UCID string `json:"ucid"`
	Name string `json:"name"`
}

// MissionEvent is one line of missionstats.json.
type MissionEvent struct {
	Time       Timestamp `json:"time"`
	Event      EventKind `json:"event"`
	InitID     *string   `json:"init_id"`
	InitType   string    `json:"init_type"`
	TargetID   *string   `json:"target_id,omitempty"`
	TargetType string    `json:"target_type,omitempty"`
	Weapon     string    `json:"weapon,omitempty"`
	Server     string    `json:"server,omitempty"`
}

// Player returns the attributable player ucid, or false for AI / missing ids.
func (e MissionEvent) Player() (string, bool) {
	if e.InitID == nil {
		return "", false
	}
	id := strings.TrimSpace(*e.InitID)
	if id == "" || id == NoPlayerID {
		return "", false
	}
	return id, true
}

// ServerName returns the server the event came from, or DefaultServer.
func (e MissionEvent) ServerName() string {
	if s := strings.TrimSpace(e.Server); s != "" {
		return s
	}
	return DefaultServer
}

// TrapRecord is one line of traps.json. Points take precedence over Grade.
type TrapRecord struct {
	PlayerUCID string   `json:"player_ucid"`
	Points     *float64 `json:"points,omitempty"`
	Grade      *string  `json:"grade,omitempty"`
	Wire       *int     `json:"wire,omitempty"`
}

// AircraftCount is one entry of a player's aircraft usage, in first-use order.
type AircraftCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PlayerStatSummary is the per-player aggregate rebuilt on every request.
type PlayerStatSummary struct {
	UCID             string
	Name             string
	Kills            int
	Deaths           int
	Sorties          int
	Takeoffs         int
	Landings         int
	Crashes          int
	Ejections        int
	FlightSeconds    float64
	FlightHours      float64
	MostUsedAircraft string
	AircraftUsage    []AircraftCount
}

// PlayerStatsSet holds player summaries keyed by ucid, remembering the order
// in which players were first seen in the event log.
type PlayerStatsSet struct {
	byUCID map[string]*PlayerStatSummary
	order  []string
}

func newPlayerStatsSet() *PlayerStatsSet {
	return &PlayerStatsSet{byUCID: make(map[string]*PlayerStatSummary)}
}

// Get returns the summary for ucid.
func (s *PlayerStatsSet) Get(ucid string) (*PlayerStatSummary, bool) {
	p, ok := s.byUCID[ucid]
	return p, ok
}

// Len returns the number of players with at least one event.
func (s *PlayerStatsSet) Len() int { return len(s.order) }

// Ordered returns summaries in first-sighting order.
func (s *PlayerStatsSet) Ordered() []*PlayerStatSummary {
	out := make([]*PlayerStatSummary, 0, len(s.order))
	for _, ucid := range s.order {
		out = append(out, s.byUCID[ucid])
	}
	return out
}

// ServerSummary aggregates one server's mission log.
type ServerSummary struct {
	Name       string    `json:"name"`
	Missions   int       `json:"missions"`
	Kills      int       `json:"kills"`
	Deaths     int       `json:"deaths"`
	Takeoffs   int       `json:"takeoffs"`
	Landings   int       `json:"landings"`
	Crashes    int       `json:"crashes"`
	Ejections  int       `json:"ejections"`
	Players    int       `json:"players"`
	FirstEvent Timestamp `json:"first_event"`
	LastEvent  Timestamp `json:"last_event"`
}

// TrapSummary is a player's carrier landing record.
type TrapSummary struct {
	Traps   int       `json:"traps"`
	Scores  []float64 `json:"scores"`
	Average float64   `json:"average"`
}

// FlightHours converts flight seconds to hours rounded to two decimals.
func FlightHours(seconds float64) float64 {
	return round2(seconds / 3600)
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
