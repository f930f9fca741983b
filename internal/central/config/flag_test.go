package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", ":9090", "-d", "postgres://central:central@db:5432/medsync",
			"-s", "secret", "-t", "30", "-w", "1440", "-j", "12",
			"-u", "minio", "-p", "minio123", "-b", "attachments", "-g", "eu-north-1",
			"-e", "http://127.0.0.1:9000/",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddr:          ":9090",
				DatabaseDSN:           "postgres://central:central@db:5432/medsync",
				SecretKey:             "secret",
				TokenValidityDuration: 30 * time.Minute,
				RetentionWindow:       1440 * time.Hour,
				GCInterval:            12 * time.Hour,
				S3RootUser:            "minio",
				S3RootPassword:        "minio123",
				S3Bucket:              "attachments",
				S3Region:              "eu-north-1",
				S3BaseEndpoint:        "http://127.0.0.1:9000/",
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {

				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
