package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"dcsstats/internal/aggregate"
	"dcsstats/internal/processor"
	"dcsstats/internal/stats"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metric, err := aggregate.ParseMetric(q.Get("metric"))
	if err != nil {
		s.log.Debugf("leaderboard: %v", err)
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	limit, ok := queryInt(q.Get("limit"), defaultLimit, 1, maxLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	page, ok := queryInt(q.Get("page"), 1, 1, 1<<20)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	rows, err := s.src.Leaderboard(r.Context(), stats.LeaderboardQuery{Metric: metric, Limit: limit, Page: page})
	if err != nil {
		s.sourceError(w, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}

	d, err := s.src.Player(r.Context(), name)
	if err != nil {
		s.sourceError(w, "player", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.src.Servers(r.Context())
	if err != nil {
		s.sourceError(w, "servers", err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleSquadrons(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.src.(stats.SquadronLister)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	squadrons, err := lister.Squadrons(r.Context())
	if err != nil {
		s.sourceError(w, "squadrons", err)
		return
	}
	writeJSON(w, http.StatusOK, squadrons)
}

// SnapshotRequest is the body of POST /api/v1/snapshots.
type SnapshotRequest struct {
	Server     string `json:"server"`
	MaxRecords int    `json:"max_records"`
	Sheets     bool   `json:"sheets"`
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots unavailable")
		return
	}

	var req SnapshotRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil {
			s.log.Debugf("snapshot request: %v", err)
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
	}
	if req.MaxRecords < 0 {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	job := processor.NewSnapshotPayload(req.Server, req.MaxRecords, req.Sheets)
	payload, err := json.Marshal(job)
	if err != nil {
		s.log.Errorf("marshal snapshot job: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.jobs.Enqueue(r.Context(), payload); err != nil {
		s.log.Errorf("enqueue snapshot %s: %v", job.SnapshotID, err)
		writeError(w, http.StatusServiceUnavailable, "snapshots unavailable")
		return
	}

	s.log.Infof("queued snapshot %s", job.SnapshotID)
	writeJSON(w, http.StatusAccepted, map[string]string{"snapshot_id": job.SnapshotID})
}

// LatestSnapshot is the body of GET /api/v1/snapshots/latest.
type LatestSnapshot struct {
	ID          string                     `json:"id"`
	Server      *string                    `json:"server"`
	Players     int                        `json:"players"`
	Sorties     int                        `json:"sorties"`
	CreatedAt   time.Time                  `json:"created_at"`
	Metric      aggregate.Metric           `json:"metric"`
	Leaderboard []aggregate.LeaderboardRow `json:"leaderboard"`
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	q := r.URL.Query()
	metric, err := aggregate.ParseMetric(q.Get("metric"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	limit, ok := queryInt(q.Get("limit"), defaultLimit, 1, maxLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	snap, err := s.store.LatestSnapshot(r.Context())
	if err != nil {
		s.log.Errorf("latest snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot")
		return
	}

	rows, err := s.store.SnapshotLeaderboard(r.Context(), snap.ID, metric, limit)
	if err != nil {
		s.log.Errorf("snapshot %s leaderboard: %v", snap.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, LatestSnapshot{
		ID:          snap.ID.String(),
		Server:      snap.Server,
		Players:     snap.Players,
		Sorties:     snap.Sorties,
		CreatedAt:   snap.CreatedAt,
		Metric:      metric,
		Leaderboard: rows,
	})
}

// sourceError maps source errors to generic client messages. Details only go
// to the log.
func (s *Server) sourceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, stats.ErrInvalidInput):
		s.log.Infof("%s: rejected input: %v", op, err)
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, stats.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, "player not found")
	case errors.Is(err, stats.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	default:
		s.log.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt parses an optional integer parameter. Values below lo are
// rejected, values above hi are clamped.
func queryInt(raw string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo {
		return 0, false
	}
	return min(v, hi), true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
