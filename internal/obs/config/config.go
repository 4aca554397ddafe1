// Package config loads the kernel's environment configuration (spec
// §6: fixedDeltaSeconds, localNodeId, recording mode), using
// joho/godotenv to optionally load a .env file and joeshaw/envdecode to
// populate a typed struct from the process environment — the same two
// libraries the teacher pairs for config loading (infrastructure/config,
// pkg/config), adapted here from the teacher's many service-specific
// fields down to the kernel's three required values plus logging.
package config

import (
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/fdpkit/fdp/internal/obs/errkind"
)

// RecordingMode selects whether the host runs live or replays a
// recording (spec §6 CLI: `host <instanceId> <mode> [recordingPath]`).
type RecordingMode string

const (
	Live   RecordingMode = "live"
	Replay RecordingMode = "replay"
)

// Config is the kernel's required environment configuration.
type Config struct {
	FixedDeltaSeconds float64       `env:"FDP_FIXED_DELTA_SECONDS,default=0.016666667"`
	LocalNodeId       int32         `env:"FDP_LOCAL_NODE_ID,default=1"`
	RecordingMode     string        `env:"FDP_RECORDING_MODE,default=live"`
	RecordingPath     string        `env:"FDP_RECORDING_PATH"`
	LogLevel          string        `env:"FDP_LOG_LEVEL,default=info"`
	LogFormat         string        `env:"FDP_LOG_FORMAT,default=json"`
}

// Load reads a .env file if present (missing is not an error, matching
// godotenv's typical CI/production usage where env vars are set another
// way) then decodes the process environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errkind.Wrap(errkind.Invariant, "config: failed to load .env", err)
	}

	var c Config
	if err := envdecode.Decode(&c); err != nil {
		return nil, errkind.Wrap(errkind.Invariant, "config: failed to decode environment", err)
	}
	if c.RecordingMode != string(Live) && c.RecordingMode != string(Replay) {
		return nil, errkind.Misused("config: FDP_RECORDING_MODE must be live or replay")
	}
	if c.RecordingMode == string(Replay) && c.RecordingPath == "" {
		return nil, errkind.Misused("config: FDP_RECORDING_PATH is required in replay mode")
	}
	return &c, nil
}

// Mode returns c's RecordingMode as the typed enum.
func (c *Config) Mode() RecordingMode { return RecordingMode(c.RecordingMode) }
