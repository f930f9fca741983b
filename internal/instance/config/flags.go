package config

import (
	"flag"
	"os"
	"time"

	"github.com/klinikos/medsync/internal/flagx"
)

// parseFlags populates selected instance Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-i string   instance identifier (e.g., "clinic-riga-1")
//	-d string   SQLite DSN of the local database
//	-a string   central authority base URL (e.g., "https://central:8080")
//	-s string   API secret for this instance
//	-n int      sync interval, seconds
//	-t int      sync timeout, seconds
//	-b int      batch size for push and pull
//	-r int      max transport retries per round
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in seconds and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-i", "-d", "-a", "-s", "-n", "-t", "-b", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.InstanceID, "i", config.InstanceID, "instance identifier")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CentralEndpoint, "a", config.CentralEndpoint, "central authority base URL")
	fs.StringVar(&config.APISecret, "s", config.APISecret, "API secret")

	syncInterval := fs.Int("n", int(config.SyncInterval.Seconds()), "sync_interval (in seconds)")
	syncTimeout := fs.Int("t", int(config.SyncTimeout.Seconds()), "sync_timeout (in seconds)")

	fs.IntVar(&config.BatchSize, "b", config.BatchSize, "batch size")
	fs.IntVar(&config.MaxRetries, "r", config.MaxRetries, "max retries")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SyncInterval = time.Duration(*syncInterval) * time.Second
	config.SyncTimeout = time.Duration(*syncTimeout) * time.Second
}
