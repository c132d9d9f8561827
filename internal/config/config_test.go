package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	for _, k := range []string{"DATA_DIR", "HTTP_ADDR", "STATS_SOURCE", "BOT_API_URL", "BOT_API_TIMEOUT_MS", "RATE_LIMIT_PER_MIN"} {
		t.Setenv(k, "")
	}

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.StatsSource != SourceFiles {
		t.Errorf("StatsSource = %q", cfg.StatsSource)
	}
	if cfg.BotAPITimeout != 5*time.Second {
		t.Errorf("BotAPITimeout = %v", cfg.BotAPITimeout)
	}
	if cfg.RateLimitPerMin != 120 {
		t.Errorf("RateLimitPerMin = %d", cfg.RateLimitPerMin)
	}
}

func TestLoadServerAPISourceNeedsURL(t *testing.T) {
	t.Setenv("STATS_SOURCE", "api")
	t.Setenv("BOT_API_URL", "")
	if _, err := LoadServer(); err == nil {
		t.Fatal("expected error without BOT_API_URL")
	}

	t.Setenv("BOT_API_URL", "http://bot:9876")
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.StatsSource != SourceAPI {
		t.Errorf("StatsSource = %q", cfg.StatsSource)
	}
}

func TestLoadServerRejectsBadInt(t *testing.T) {
	t.Setenv("STATS_SOURCE", "")
	t.Setenv("RATE_LIMIT_BURST", "lots")
	if _, err := LoadServer(); err == nil {
		t.Fatal("expected error for non-numeric RATE_LIMIT_BURST")
	}
}

func TestLoadWorker(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name:    "missing redis",
			env:     map[string]string{"REDIS_URL": "", "DB_URL": "postgres://x"},
			wantErr: true,
		},
		{
			name:    "postgres without db url",
			env:     map[string]string{"REDIS_URL": "redis://localhost:6379", "DB_URL": "", "SNAPSHOT_STORE": "postgres"},
			wantErr: true,
		},
		{
			name: "sqlite store",
			env:  map[string]string{"REDIS_URL": "redis://localhost:6379", "DB_URL": "", "SNAPSHOT_STORE": "sqlite"},
		},
		{
			name:    "unknown store",
			env:     map[string]string{"REDIS_URL": "redis://localhost:6379", "SNAPSHOT_STORE": "mongo"},
			wantErr: true,
		},
		{
			name: "sheets half configured",
			env: map[string]string{
				"REDIS_URL": "redis://localhost:6379", "SNAPSHOT_STORE": "sqlite",
				"SHEETS_URL": "https://docs.google.com/spreadsheets/d/abc/edit", "SHEETS_CREDENTIALS_FILE": "",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"REDIS_URL", "DB_URL", "SNAPSHOT_STORE", "SHEETS_URL", "SHEETS_CREDENTIALS_FILE", "WORKER_COUNT"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadWorker()
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadWorker err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.WorkerCount != 1 {
				t.Errorf("WorkerCount = %d, want 1", cfg.WorkerCount)
			}
		})
	}
}

func TestLoadFeatures(t *testing.T) {
	f, err := LoadFeatures("")
	if err != nil {
		t.Fatalf("LoadFeatures(empty): %v", err)
	}
	if f != DefaultFeatures() {
		t.Fatalf("empty path should give defaults, got %#v", f)
	}

	path := filepath.Join(t.TempDir(), "features.json")
	if err := os.WriteFile(path, []byte(`{"servers":false,"maintenance":true,"unknown":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err = LoadFeatures(path)
	if err != nil {
		t.Fatalf("LoadFeatures: %v", err)
	}
	if f.Servers || !f.Maintenance || !f.Leaderboard || !f.Players {
		t.Fatalf("unexpected flags %#v", f)
	}

	if _, err := LoadFeatures(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
