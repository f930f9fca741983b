package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/klinikos/medsync/internal/flagx"
	"github.com/klinikos/medsync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, its fields are copied into the runtime Config
// struct which uses time.Duration.
type JsonConfig struct {
	InstanceID      string         `json:"instance_id"`
	DatabaseDSN     string         `json:"database_dsn"`
	CentralEndpoint string         `json:"central_endpoint"`
	APISecret       string         `json:"api_secret"`
	SyncInterval    timex.Duration `json:"sync_interval"`
	SyncTimeout     timex.Duration `json:"sync_timeout"`
	BatchSize       int            `json:"batch_size"`
	MaxRetries      int            `json:"max_retries"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path is taken from the -c or -config command-line flags.
// If neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.InstanceID = c.InstanceID
	config.DatabaseDSN = c.DatabaseDSN
	config.CentralEndpoint = c.CentralEndpoint
	config.APISecret = c.APISecret
	config.SyncInterval = time.Duration(c.SyncInterval.Duration)
	config.SyncTimeout = time.Duration(c.SyncTimeout.Duration)
	config.BatchSize = c.BatchSize
	config.MaxRetries = c.MaxRetries
}
