// Package stats answers statistics queries either from the NDJSON logs in a
// data directory or from the DCSServerBot REST API. Both sources produce the
// same response shapes.
package stats

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"dcsstats/internal/aggregate"
)

var (
	// ErrPlayerNotFound is returned when a name resolves to no player.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrInvalidInput is returned for rejected caller input. The wrapped
	// reason is for logs only.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream is returned when the bot API could not answer a lookup.
	ErrUpstream = errors.New("upstream unavailable")
)

// LeaderboardQuery selects a page of a leaderboard. Limit <= 0 returns every
// player on a single page.
type LeaderboardQuery struct {
	Metric aggregate.Metric
	Limit  int
	Page   int
}

// Source serves the HTTP API.
type Source interface {
	Leaderboard(ctx context.Context, q LeaderboardQuery) ([]aggregate.LeaderboardRow, error)
	Player(ctx context.Context, name string) (*aggregate.PlayerDetail, error)
	Servers(ctx context.Context) ([]aggregate.ServerSummary, error)
}

// Squadron is one entry of the squadron list.
type Squadron struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     int    `json:"members"`
}

// SquadronLister is implemented by sources that know about squadrons.
type SquadronLister interface {
	Squadrons(ctx context.Context) ([]Squadron, error)
}

// Clan tags use most punctuation ("=JSW= Maverick", "{VFA-103} Ice"), so any
// printable rune is allowed. Lookups are map keys and output is escaped.
var playerNamePattern = regexp.MustCompile(`^[^\p{C}]{1,64}$`)

// ValidateName checks a player name taken from a request.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || !playerNamePattern.MatchString(name) {
		return fmt.Errorf("%w: player name %q", ErrInvalidInput, name)
	}
	return nil
}

func escapeSquadron(s Squadron) Squadron {
	s.Name = html.EscapeString(s.Name)
	s.Description = html.EscapeString(s.Description)
	return s
}
