// Package botapi is a thin client for the DCSServerBot REST API.
package botapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client calls the bot API under BaseURL. There are no retries; callers
// re-request.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client
}

// NewClient parses base and builds a client with the given request timeout.
func NewClient(base string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse bot api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("bot api url must be http or https, got %q", base)
	}
	return &Client{BaseURL: u, HTTP: &http.Client{Timeout: timeout}}, nil
}

// TopKill is one row of /topkills and /topkdr.
type TopKill struct {
	FullNickname string  `json:"fullNickname"`
	AAKills      int     `json:"AAkills"`
	Deaths       int     `json:"deaths"`
	AAKDR        float64 `json:"AAKDR"`
}

// User is one match of /getuser.
type User struct {
	Nick string `json:"nick"`
	UCID string `json:"ucid"`
	Date string `json:"date"`
}

// ModuleUsage is one aircraft entry of /player_info.
type ModuleUsage struct {
	Module  string `json:"module"`
	Sorties int    `json:"sorties"`
}

// PlayerInfo is the /player_info response.
type PlayerInfo struct {
	Name      string        `json:"name"`
	UCID      string        `json:"ucid"`
	Kills     int           `json:"kills"`
	Deaths    int           `json:"deaths"`
	Takeoffs  int           `json:"takeoffs"`
	Landings  int           `json:"landings"`
	Crashes   int           `json:"crashes"`
	Ejections int           `json:"ejections"`
	Playtime  float64       `json:"playtime"` // seconds
	Modules   []ModuleUsage `json:"modules"`
}

// Server is one entry of /servers.
type Server struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	NumPlayers int    `json:"num_players"`
	MaxPlayers int    `json:"max_players"`
	Mission    struct {
		Name    string `json:"name"`
		Theatre string `json:"theatre"`
	} `json:"mission"`
}

// Squadron is one entry of /squadrons.
type Squadron struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Members     int    `json:"members"`
}

// TopKills returns the best players by air-to-air kills.
func (c *Client) TopKills(ctx context.Context, limit int) ([]TopKill, error) {
	var out []TopKill
	err := c.get(ctx, "/topkills", limitQuery(limit), &out)
	return out, err
}

// TopKDR returns the best players by kill/death ratio.
func (c *Client) TopKDR(ctx context.Context, limit int) ([]TopKill, error) {
	var out []TopKill
	err := c.get(ctx, "/topkdr", limitQuery(limit), &out)
	return out, err
}

// GetUser resolves a nickname to the players that used it.
func (c *Client) GetUser(ctx context.Context, nick string) ([]User, error) {
	var out []User
	err := c.post(ctx, "/getuser", url.Values{"nick": {nick}}, &out)
	return out, err
}

// PlayerInfo returns the statistics of one player.
func (c *Client) PlayerInfo(ctx context.Context, ucid string) (PlayerInfo, error) {
	var out PlayerInfo
	err := c.post(ctx, "/player_info", url.Values{"ucid": {ucid}}, &out)
	return out, err
}

// Servers lists the servers managed by the bot.
func (c *Client) Servers(ctx context.Context) ([]Server, error) {
	var out []Server
	err := c.get(ctx, "/servers", nil, &out)
	return out, err
}

// Squadrons lists the squadrons known to the bot.
func (c *Client) Squadrons(ctx context.Context) ([]Squadron, error) {
	var out []Squadron
	err := c.get(ctx, "/squadrons", nil, &out)
	return out, err
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
	if err != nil {
		return err
	}
	return c.do(req, v)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: snippet(b)}
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %v; body: %s", req.URL.Path, err, snippet(b))
	}
	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// NotFound reports whether the bot answered 404.
func (e *StatusError) NotFound() bool { return e.Code == http.StatusNotFound }

func snippet(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
