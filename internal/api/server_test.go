package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/config"
	"dcsstats/internal/processor"
	"dcsstats/internal/stats"
)

type fakeEnqueuer struct {
	payloads [][]byte
	err      error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type errSource struct{ err error }

func (s errSource) Leaderboard(context.Context, stats.LeaderboardQuery) ([]aggregate.LeaderboardRow, error) {
	return nil, s.err
}

func (s errSource) Player(context.Context, string) (*aggregate.PlayerDetail, error) {
	return nil, s.err
}

func (s errSource) Servers(context.Context) ([]aggregate.ServerSummary, error) {
	return nil, s.err
}

func dataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		stats.PlayersFile: `{"ucid":"u1","name":"Maverick"}
{"ucid":"u2","name":"Goose"}
`,
		stats.MissionFile: `{"time":1000,"event":"TAKEOFF","init_id":"u1","init_type":"F-14B","server":"Top Gun"}
{"time":1100,"event":"LAND","init_id":"u1","init_type":"F-14B","server":"Top Gun"}
{"time":1200,"event":"HIT","init_id":"u2","init_type":"F-14B","server":"Top Gun"}
{"time":1300,"event":"HIT","init_id":"-1","init_type":"MiG-28","server":"Top Gun"}
`,
		stats.TrapsFile: `{"player_ucid":"u1","points":0,"wire":3}
`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestServer(t *testing.T, jobs Enqueuer, mutate func(*Config)) http.Handler {
	t.Helper()
	cfg := Config{Features: config.DefaultFeatures()}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := New(stats.NewFileSource(dataDir(t)), jobs, cfg)
	if srv.limiter != nil {
		t.Cleanup(srv.limiter.Stop)
	}
	return srv.Router()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp["error"]
}

func TestHealthEndpoint(t *testing.T) {
	rec := do(newTestServer(t, nil, nil), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestLeaderboard(t *testing.T) {
	h := newTestServer(t, nil, nil)

	rec := do(h, http.MethodGet, "/api/v1/leaderboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rows []aggregate.LeaderboardRow
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "Goose" || rows[0].Rank != 1 || rows[1].Rank != 2 {
		t.Fatalf("unexpected rows %+v", rows)
	}

	rec = do(h, http.MethodGet, "/api/v1/leaderboard?metric=flight_hours&limit=1", "")
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Maverick" || rows[0].FlightHours != 0.03 {
		t.Fatalf("unexpected flight hours rows %+v", rows)
	}
}

func TestLeaderboardValidation(t *testing.T) {
	h := newTestServer(t, nil, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"unknown metric", "/api/v1/leaderboard?metric=score", http.StatusBadRequest},
		{"zero limit", "/api/v1/leaderboard?limit=0", http.StatusBadRequest},
		{"bad page", "/api/v1/leaderboard?page=abc", http.StatusBadRequest},
		{"limit clamped", "/api/v1/leaderboard?limit=5000", http.StatusOK},
		{"page past the end", "/api/v1/leaderboard?page=9", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusBadRequest {
				if msg := decodeError(t, rec); msg != "invalid request" {
					t.Fatalf("error = %q", msg)
				}
			}
		})
	}
}

func TestPlayer(t *testing.T) {
	h := newTestServer(t, nil, nil)

	rec := do(h, http.MethodGet, "/api/v1/players/maverick", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var d map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"name", "ucid", "kills", "sorties", "takeoffs", "landings", "crashes", "ejections", "traps", "avgTrapScore", "trapScores", "mostUsedAircraft", "aircraftUsage"} {
		if _, ok := d[key]; !ok {
			t.Errorf("response is missing %q", key)
		}
	}
	if d["ucid"] != "u1" || d["avgTrapScore"] != 4.0 || d["mostUsedAircraft"] != "F-14B" {
		t.Fatalf("unexpected detail %v", d)
	}

	rec = do(h, http.MethodGet, "/api/v1/players/Iceman", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != "player not found" {
		t.Fatalf("expected 404 player not found, got %d", rec.Code)
	}

	rec = do(h, http.MethodGet, "/api/v1/players/bad%0Aname", "")
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "invalid request" {
		t.Fatalf("expected generic 400, got %d", rec.Code)
	}
}

func TestServers(t *testing.T) {
	rec := do(newTestServer(t, nil, nil), http.MethodGet, "/api/v1/servers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var servers []aggregate.ServerSummary
	if err := json.NewDecoder(rec.Body).Decode(&servers); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(servers) != 1 || servers[0].Name != "Top Gun" || servers[0].Players != 2 || servers[0].Kills != 1 {
		t.Fatalf("unexpected servers %+v", servers)
	}
}

func TestSquadronsNeedAPISource(t *testing.T) {
	rec := do(newTestServer(t, nil, nil), http.MethodGet, "/api/v1/squadrons", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("file source has no squadrons, got %d", rec.Code)
	}
}

func TestCreateSnapshot(t *testing.T) {
	jobs := &fakeEnqueuer{}
	h := newTestServer(t, jobs, nil)

	rec := do(h, http.MethodPost, "/api/v1/snapshots", `{"server":"Top Gun","max_records":100,"sheets":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, err := uuid.Parse(resp["snapshot_id"])
	if err != nil {
		t.Fatalf("snapshot_id is not a uuid: %v", err)
	}

	if len(jobs.payloads) != 1 {
		t.Fatalf("expected one queued job, got %d", len(jobs.payloads))
	}
	job, jobID, err := processor.ParsePayload(jobs.payloads[0])
	if err != nil {
		t.Fatalf("queued payload does not parse: %v", err)
	}
	if jobID != id || job.Server != "Top Gun" || job.MaxRecords != 100 || !job.Sheets {
		t.Fatalf("unexpected job %+v", job)
	}

	if rec := do(h, http.MethodPost, "/api/v1/snapshots", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("empty body should use defaults, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/snapshots", `{"max_records":-5}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative cap should be rejected, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/snapshots", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json should be rejected, got %d", rec.Code)
	}
}

func TestCreateSnapshotUnavailable(t *testing.T) {
	rec := do(newTestServer(t, nil, nil), http.MethodPost, "/api/v1/snapshots", `{}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a queue, got %d", rec.Code)
	}

	rec = do(newTestServer(t, &fakeEnqueuer{err: errors.New("redis down")}, nil), http.MethodPost, "/api/v1/snapshots", `{}`)
	if rec.Code != http.StatusServiceUnavailable || decodeError(t, rec) != "snapshots unavailable" {
		t.Fatalf("expected 503 on enqueue failure, got %d", rec.Code)
	}
}

func TestFeatureFlags(t *testing.T) {
	h := newTestServer(t, &fakeEnqueuer{}, func(c *Config) {
		c.Features.Leaderboard = false
		c.Features.Snapshots = false
	})

	if rec := do(h, http.MethodGet, "/api/v1/leaderboard", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled leaderboard should 404, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/snapshots", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled snapshots should 404, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/api/v1/servers", ""); rec.Code != http.StatusOK {
		t.Fatalf("servers should stay enabled, got %d", rec.Code)
	}
}

func TestMaintenanceMode(t *testing.T) {
	h := newTestServer(t, nil, func(c *Config) { c.Features.Maintenance = true })

	rec := do(h, http.MethodGet, "/api/v1/leaderboard", "")
	if rec.Code != http.StatusServiceUnavailable || decodeError(t, rec) != "maintenance" {
		t.Fatalf("expected 503 maintenance, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health must bypass maintenance, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, nil, func(c *Config) {
		c.RateLimitPerMin = 1
		c.RateLimitBurst = 2
	})

	for i := range 2 {
		if rec := do(h, http.MethodGet, "/api/v1/servers", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	rec := do(h, http.MethodGet, "/api/v1/servers", "")
	if rec.Code != http.StatusTooManyRequests || decodeError(t, rec) != "rate limit exceeded" {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	other := httptest.NewRecorder()
	h.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", other.Code)
	}
}

func TestSourceErrorsAreGeneric(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{errors.New("open /srv/data/missionstats.json: permission denied"), http.StatusInternalServerError, "internal error"},
		{stats.ErrUpstream, http.StatusBadGateway, "upstream unavailable"},
		{stats.ErrPlayerNotFound, http.StatusNotFound, "player not found"},
	}
	for _, tt := range tests {
		srv := New(errSource{err: tt.err}, nil, Config{Features: config.DefaultFeatures()})
		rec := do(srv.Router(), http.MethodGet, "/api/v1/players/Maverick", "")
		if rec.Code != tt.wantStatus {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.wantStatus, rec.Code)
		}
		if msg := decodeError(t, rec); msg != tt.wantMsg {
			t.Fatalf("%v: error = %q, want %q", tt.err, msg, tt.wantMsg)
		}
	}
}

type fakeSnapshots struct {
	latest *aggregate.SnapshotRow
	rows   []aggregate.LeaderboardRow

	gotMetric aggregate.Metric
	gotLimit  int
}

func (f *fakeSnapshots) LatestSnapshot(context.Context) (*aggregate.SnapshotRow, error) {
	return f.latest, nil
}

func (f *fakeSnapshots) SnapshotLeaderboard(_ context.Context, _ uuid.UUID, metric aggregate.Metric, limit int) ([]aggregate.LeaderboardRow, error) {
	f.gotMetric, f.gotLimit = metric, limit
	return f.rows, nil
}

func TestLatestSnapshot(t *testing.T) {
	cfg := Config{Features: config.DefaultFeatures()}
	src := stats.NewFileSource(dataDir(t))

	rec := do(New(src, nil, cfg).Router(), http.MethodGet, "/api/v1/snapshots/latest", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("without a store expected 404, got %d", rec.Code)
	}

	store := &fakeSnapshots{}
	h := New(src, nil, cfg).WithSnapshotReader(store).Router()
	rec = do(h, http.MethodGet, "/api/v1/snapshots/latest", "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec) != "no snapshot" {
		t.Fatalf("empty store: got %d", rec.Code)
	}

	id := uuid.New()
	store.latest = &aggregate.SnapshotRow{ID: id, Players: 2, Sorties: 3}
	store.rows = []aggregate.LeaderboardRow{{Rank: 1, Name: "Maverick", Sorties: 2}}
	rec = do(h, http.MethodGet, "/api/v1/snapshots/latest?metric=sorties&limit=500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got LatestSnapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != id.String() || got.Players != 2 || len(got.Leaderboard) != 1 || got.Metric != aggregate.MetricSorties {
		t.Fatalf("unexpected body %+v", got)
	}
	if store.gotMetric != aggregate.MetricSorties || store.gotLimit != maxLimit {
		t.Fatalf("store called with %q/%d", store.gotMetric, store.gotLimit)
	}

	rec = do(h, http.MethodGet, "/api/v1/snapshots/latest?metric=score", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad metric: expected 400, got %d", rec.Code)
	}
}
