package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"dcsstats/internal/config"
	"dcsstats/internal/db"
	"dcsstats/internal/export"
	"dcsstats/internal/logging"
	"dcsstats/internal/processor"
	"dcsstats/internal/queue"
	"dcsstats/internal/sqlitestore"
	"dcsstats/internal/stats"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Logger()

	cfg, err := config.LoadWorker()
	if err != nil {
		logger.Errorf("config load failed: %v", err)
		os.Exit(1)
	}
	logging.Configure(cfg.LogLevel)

	var (
		writer processor.SnapshotWriter
		opts   = []processor.Option{processor.WithMaxRecords(cfg.ExportMaxRecords)}
	)

	switch cfg.SnapshotStore {
	case config.StoreSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			logger.Errorf("sqlite open failed: %v", err)
			os.Exit(1)
		}
		defer store.Close()
		writer = store
	default:
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Errorf("db connection failed: %v", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		writer = db.NewSnapshotWriter(pool)
		opts = append(opts, processor.WithRefresher(db.NewViewRefresher(pool)))
	}

	if cfg.SheetsEnabled() {
		uploader, err := export.NewSheetsUploader(ctx, cfg.SheetsCredentialsFile, cfg.SheetsURL, cfg.SheetsName)
		if err != nil {
			logger.Errorf("sheets setup failed: %v", err)
			os.Exit(1)
		}
		opts = append(opts, processor.WithUploader(uploader))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Errorf("invalid redis url: %v", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	proc := processor.NewSnapshotProcessor(stats.NewFileSource(cfg.DataDir), writer, opts...)
	q := queue.NewRedisQueue(redisClient, cfg.RedisQueue)

	if cfg.WorkerCount > 1 {
		logger.Infof("starting concurrent consumption of %s with %d workers", q.Key(), cfg.WorkerCount)
		if err := q.ConsumeConcurrent(ctx, cfg.WorkerCount, cfg.JobBufferSize, proc.Handle); err != nil && ctx.Err() == nil {
			logger.Errorf("queue consumption ended: %v", err)
			os.Exit(1)
		}
	} else {
		logger.Infof("starting single-threaded consumption of %s", q.Key())
		if err := q.Consume(ctx, proc.Handle); err != nil && ctx.Err() == nil {
			logger.Errorf("queue consumption ended: %v", err)
			os.Exit(1)
		}
	}
}
