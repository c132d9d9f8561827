package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Features are the site feature flags kept in a small JSON file next to the
// deployment. Omitted keys keep their defaults.
type Features struct {
	Leaderboard bool `json:"leaderboard"`
	Players     bool `json:"players"`
	Servers     bool `json:"servers"`
	Squadrons   bool `json:"squadrons"`
	Snapshots   bool `json:"snapshots"`
	// Maintenance makes every API route except /health answer 503.
	Maintenance bool `json:"maintenance"`
}

// DefaultFeatures enables every endpoint.
func DefaultFeatures() Features {
	return Features{
		Leaderboard: true,
		Players:     true,
		Servers:     true,
		Squadrons:   true,
		Snapshots:   true,
	}
}

// LoadFeatures reads the feature flag file. An empty path yields the defaults.
func LoadFeatures(path string) (Features, error) {
	f := DefaultFeatures()
	if path == "" {
		return f, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read features: %w", err)
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return DefaultFeatures(), fmt.Errorf("decode features: %w", err)
	}
	return f, nil
}
