package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Stats source modes.
const (
	SourceFiles = "files"
	SourceAPI   = "api"
)

// Snapshot stores.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds runtime configuration for the stats server and the snapshot worker.
type Config struct {
	DataDir  string
	HTTPAddr string
	LogLevel string

	StatsSource   string
	BotAPIURL     string
	BotAPITimeout time.Duration

	RedisURL      string
	RedisQueue    string
	WorkerCount   int
	JobBufferSize int

	SnapshotStore string
	DBURL         string
	SQLitePath    string

	SheetsCredentialsFile string
	SheetsURL             string
	SheetsName            string

	RateLimitPerMin int
	RateLimitBurst  int
	FeaturesFile    string

	ExportMaxRecords int
}

// LoadServer builds the HTTP server Config from environment variables.
func LoadServer() (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	switch cfg.StatsSource {
	case SourceFiles:
	case SourceAPI:
		if cfg.BotAPIURL == "" {
			return nil, fmt.Errorf("BOT_API_URL is required when STATS_SOURCE=api")
		}
	default:
		return nil, fmt.Errorf("STATS_SOURCE must be %q or %q, got %q", SourceFiles, SourceAPI, cfg.StatsSource)
	}

	return cfg, nil
}

// LoadWorker builds the snapshot worker Config from environment variables.
func LoadWorker() (*Config, error) {
	cfg, err := fromEnv()
	if err != nil {
		return nil, err
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	switch cfg.SnapshotStore {
	case StorePostgres:
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return nil, fmt.Errorf("SNAPSHOT_STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, cfg.SnapshotStore)
	}

	if (cfg.SheetsURL == "") != (cfg.SheetsCredentialsFile == "") {
		return nil, fmt.Errorf("SHEETS_URL and SHEETS_CREDENTIALS_FILE must be set together")
	}

	return cfg, nil
}

// SheetsEnabled reports whether leaderboard uploads to Google Sheets are configured.
func (c *Config) SheetsEnabled() bool {
	return c.SheetsURL != "" && c.SheetsCredentialsFile != ""
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		DataDir:               envString("DATA_DIR", "./data"),
		HTTPAddr:              envString("HTTP_ADDR", ":8080"),
		LogLevel:              envString("LOG_LEVEL", "info"),
		StatsSource:           strings.ToLower(envString("STATS_SOURCE", SourceFiles)),
		BotAPIURL:             os.Getenv("BOT_API_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		RedisQueue:            envString("REDIS_QUEUE", "dcs_snapshots"),
		SnapshotStore:         strings.ToLower(envString("SNAPSHOT_STORE", StorePostgres)),
		DBURL:                 os.Getenv("DB_URL"),
		SQLitePath:            envString("SQLITE_PATH", "./snapshots.db"),
		SheetsCredentialsFile: os.Getenv("SHEETS_CREDENTIALS_FILE"),
		SheetsURL:             os.Getenv("SHEETS_URL"),
		SheetsName:            envString("SHEETS_NAME", "Leaderboard"),
		FeaturesFile:          os.Getenv("FEATURES_FILE"),
	}

	var timeoutMS int
	ints := []struct {
		key string
		def int
		min int
		dst *int
	}{
		{"BOT_API_TIMEOUT_MS", 5000, 1, &timeoutMS},
		{"WORKER_COUNT", 1, 1, &cfg.WorkerCount},
		{"JOB_BUFFER_SIZE", 16, 1, &cfg.JobBufferSize},
		{"RATE_LIMIT_PER_MIN", 120, 0, &cfg.RateLimitPerMin},
		{"RATE_LIMIT_BURST", 20, 1, &cfg.RateLimitBurst},
		{"EXPORT_MAX_RECORDS", 0, 0, &cfg.ExportMaxRecords},
	}
	for _, it := range ints {
		v, err := envInt(it.key, it.def)
		if err != nil {
			return nil, err
		}
		if v < it.min {
			return nil, fmt.Errorf("%s must be >= %d, got %d", it.key, it.min, v)
		}
		*it.dst = v
	}
	cfg.BotAPITimeout = time.Duration(timeoutMS) * time.Millisecond

	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
