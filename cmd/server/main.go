package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"dcsstats/internal/api"
	"dcsstats/internal/botapi"
	"dcsstats/internal/config"
	"dcsstats/internal/db"
	"dcsstats/internal/logging"
	"dcsstats/internal/queue"
	"dcsstats/internal/sqlitestore"
	"dcsstats/internal/stats"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Logger()

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Errorf("config load failed: %v", err)
		os.Exit(1)
	}
	logging.Configure(cfg.LogLevel)

	features, err := config.LoadFeatures(cfg.FeaturesFile)
	if err != nil {
		logger.Errorf("features load failed: %v", err)
		os.Exit(1)
	}

	var src stats.Source
	switch cfg.StatsSource {
	case config.SourceAPI:
		client, err := botapi.NewClient(cfg.BotAPIURL, cfg.BotAPITimeout)
		if err != nil {
			logger.Errorf("bot api client: %v", err)
			os.Exit(1)
		}
		src = stats.NewAPISource(client)
	default:
		src = stats.NewFileSource(cfg.DataDir)
	}
	logger.Infof("serving stats from %s source", cfg.StatsSource)

	var jobs api.Enqueuer
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Errorf("invalid redis url: %v", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		jobs = queue.NewRedisQueue(redisClient, cfg.RedisQueue)
	}

	srv := api.New(src, jobs, api.Config{
		Addr:            cfg.HTTPAddr,
		RateLimitPerMin: cfg.RateLimitPerMin,
		RateLimitBurst:  cfg.RateLimitBurst,
		Features:        features,
	})

	switch {
	case cfg.SnapshotStore == config.StoreSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			logger.Errorf("sqlite open failed: %v", err)
			os.Exit(1)
		}
		defer store.Close()
		srv.WithSnapshotReader(store)
	case cfg.DBURL != "":
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Errorf("db connection failed: %v", err)
			os.Exit(1)
		}
		defer pool.Close()
		srv.WithSnapshotReader(db.NewSnapshotReader(pool))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
