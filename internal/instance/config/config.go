// Package config handles configuration for the instance agent,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for a local medsync instance.
//
// Fields:
//   - InstanceID: stable identifier of this installation (e.g. "clinic-riga-1").
//   - DatabaseDSN: SQLite DSN for the local database file.
//   - CentralEndpoint: base URL of the central authority ("https://host:port").
//   - APISecret: this instance's API secret, exchanged for access tokens.
//   - SyncInterval: how often the background syncer runs a round.
//   - SyncTimeout: bound on any single push/pull round trip.
//   - BatchSize: max outbox entries per push and entries per pull page.
//   - MaxRetries: transport retries before a round is declared unavailable.
type Config struct {
	InstanceID      string
	DatabaseDSN     string
	CentralEndpoint string
	APISecret       string
	SyncInterval    time.Duration
	SyncTimeout     time.Duration
	BatchSize       int
	MaxRetries      int
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.InstanceID = "instance-dev"
	c.DatabaseDSN = "medsync.db"
	c.CentralEndpoint = "http://127.0.0.1:8080"
	c.APISecret = "devsecret"
	c.SyncInterval = 30 * time.Second
	c.SyncTimeout = 15 * time.Second
	c.BatchSize = 100
	c.MaxRetries = 3
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
