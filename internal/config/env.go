// Package config provides configuration helpers for go-rover commands.
package config

import (
	"os"
	"time"
)

// Default command configuration.
const (
	DefaultHTTPPort     = "8090"
	DefaultScanDuration = 15 * time.Second
)

// HTTPPort returns the drive server port from ROVER_HTTP_PORT, or the default.
func HTTPPort() string {
	if port := os.Getenv("ROVER_HTTP_PORT"); port != "" {
		return port
	}
	return DefaultHTTPPort
}

// LogLevel returns the log level from ROVER_LOG_LEVEL, or "info".
func LogLevel() string {
	if lvl := os.Getenv("ROVER_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

// ConfigPath returns the config file path from ROVER_CONFIG.
// Empty means built-in defaults.
func ConfigPath() string {
	return os.Getenv("ROVER_CONFIG")
}

// ScanDuration returns the scan window from ROVER_SCAN_DURATION.
// Falls back to the default on parse failure.
func ScanDuration() time.Duration {
	if raw := os.Getenv("ROVER_SCAN_DURATION"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return DefaultScanDuration
}
