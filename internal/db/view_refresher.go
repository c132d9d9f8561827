package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dcsstats/internal/logging"
)

// materializedViews are refreshed after every snapshot write.
var materializedViews = []string{
	"mv_latest_leaderboard",
	"mv_server_history",
}

// ViewRefresher refreshes the snapshot read models.
type ViewRefresher struct {
	pool *pgxpool.Pool
}

// NewViewRefresher creates a new view refresher.
func NewViewRefresher(pool *pgxpool.Pool) *ViewRefresher {
	return &ViewRefresher{pool: pool}
}

// Refresh rebuilds every view concurrently with readers. A failing view is
// logged and skipped; the call fails only when none could be refreshed.
func (r *ViewRefresher) Refresh(ctx context.Context) error {
	logger := logging.Logger()
	startTime := time.Now()
	refreshed := 0

	for _, view := range materializedViews {
		if _, err := r.pool.Exec(ctx, refreshSQL(view)); err != nil {
			logger.Warnf("failed to refresh %s: %v", view, err)
			continue
		}
		refreshed++
	}

	logger.Infof("view refresh completed: %d/%d succeeded in %v", refreshed, len(materializedViews), time.Since(startTime))
	if refreshed == 0 {
		return fmt.Errorf("all view refreshes failed")
	}
	return nil
}

func refreshSQL(view string) string {
	return fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", view)
}
