package startup

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"labelflow/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Config holds all application configuration.
type Config struct {
	// WorkDir is the directory of images and sidecars to operate on.
	WorkDir string

	// SavePath overrides where sidecars are written (empty = next to
	// each image).
	SavePath string

	// EnableBase64 controls embedding file bytes into sidecars for
	// recovery.
	EnableBase64 bool

	// MaxEmbedBytes caps the file size eligible for embedding
	// (0 = derive from system memory).
	MaxEmbedBytes int64

	// Compatibility enables the legacy V0.0.2 sidecar schema.
	Compatibility bool

	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string
}

// LoadConfig loads configuration from environment variables.
// CLI flags may override individual fields afterwards.
func LoadConfig() (*Config, error) {
	config := &Config{
		WorkDir:       os.Getenv("LABELFLOW_DIR"),
		SavePath:      os.Getenv("LABELFLOW_SAVE_PATH"),
		EnableBase64:  parseBool(os.Getenv("LABELFLOW_BASE64"), true),
		Compatibility: parseBool(os.Getenv("LABELFLOW_COMPAT"), false),
		MetricsAddr:   os.Getenv("LABELFLOW_METRICS_ADDR"),
	}

	if raw := os.Getenv("LABELFLOW_MAX_EMBED_MB"); raw != "" {
		mb, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || mb < 0 {
			return nil, fmt.Errorf("invalid LABELFLOW_MAX_EMBED_MB %q", raw)
		}
		config.MaxEmbedBytes = mb << 20
	}

	if config.SavePath != "" {
		if info, err := os.Stat(config.SavePath); err != nil || !info.IsDir() {
			logging.Warn("save path %s is not a directory, ignoring", config.SavePath)
			config.SavePath = ""
		}
	}

	return config, nil
}

// LogStartup logs the effective configuration at startup.
func LogStartup(config *Config, startTime time.Time) {
	logging.Info("labelflow %s (commit %s, built %s, %s)", Version, Commit, BuildTime, GoVersion)
	logging.Info("working directory: %s", config.WorkDir)
	if config.SavePath != "" {
		logging.Info("sidecar save path: %s", config.SavePath)
	}
	logging.Info("base64 embedding: %v, compatibility mode: %v", config.EnableBase64, config.Compatibility)
	if config.MetricsAddr != "" {
		logging.Info("metrics listening on %s", config.MetricsAddr)
	}
	logging.Debug("startup took %v", time.Since(startTime))
}

func parseBool(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
