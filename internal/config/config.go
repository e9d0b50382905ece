// Package config provides configuration loading from environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the downlink daemon.
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool
	APIKey         string

	// DataDir holds the SQLite database and per-download logs.
	DataDir string
	// OutputDir is the default destination for downloaded media.
	OutputDir string

	// YtDlpPath and FfmpegPath override binary resolution when set.
	YtDlpPath  string
	FfmpegPath string

	MaxConcurrent  int
	OutputTemplate string
	DefaultPreset  string

	// MetadataTimeout bounds the metadata-only yt-dlp invocation.
	MetadataTimeout time.Duration
	// KillWait bounds how long Stop/Cancel waits for the child to die after a kill.
	KillWait time.Duration
	// EventBuffer is the event bus queue size; events beyond it are dropped.
	EventBuffer int

	ShutdownDrainWait time.Duration
}

// Load reads daemon configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:              GetEnv("DOWNLINK_PORT", "8264"),
		MetricsPort:       GetEnv("DOWNLINK_METRICS_PORT", "9264"),
		MetricsEnabled:    GetBoolEnv("DOWNLINK_METRICS_ENABLED", true),
		APIKey:            GetEnv("DOWNLINK_API_KEY", ""),
		DataDir:           GetEnv("DOWNLINK_DATA_DIR", defaultDataDir()),
		OutputDir:         GetEnv("DOWNLINK_OUTPUT_DIR", defaultOutputDir()),
		YtDlpPath:         GetEnv("DOWNLINK_YTDLP_PATH", ""),
		FfmpegPath:        GetEnv("DOWNLINK_FFMPEG_PATH", ""),
		MaxConcurrent:     GetIntEnv("DOWNLINK_MAX_CONCURRENT", 2),
		OutputTemplate:    GetEnv("DOWNLINK_OUTPUT_TEMPLATE", "%(title)s [%(id)s].%(ext)s"),
		DefaultPreset:     GetEnv("DOWNLINK_DEFAULT_PRESET", "recommended_best"),
		MetadataTimeout:   GetDurationEnv("DOWNLINK_METADATA_TIMEOUT", 15*time.Second),
		KillWait:          GetDurationEnv("DOWNLINK_KILL_WAIT", 5*time.Second),
		EventBuffer:       GetIntEnv("DOWNLINK_EVENT_BUFFER", 1024),
		ShutdownDrainWait: GetDurationEnv("DOWNLINK_SHUTDOWN_DRAIN_WAIT", 0),
	}
}

// defaultDataDir follows the platform user-data convention the desktop app uses.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "downlink")
	}
	return "downlink-data"
}

func defaultOutputDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads")
	}
	return "."
}

// EnsureDirs creates the directories the daemon writes into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, filepath.Join(c.DataDir, "tmp"), c.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// DBPath returns the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "downlink.sqlite3")
}
