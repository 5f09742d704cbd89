// Package core provides shared constants, configuration, logging and time
// sources for the krushi CLI.
package core

import (
	"os"
	"path/filepath"
	"time"
)

// API configuration
const (
	DefaultAPIBaseURL = "https://sahaja-krushi-backend-h0t1.onrender.com"
	APIPath           = "/api/V1"
)

// Environment variables
const (
	EnvAPIBaseURL = "KRUSHI_API_BASE_URL"
	EnvToken      = "KRUSHI_TOKEN"
	EnvFarmerID   = "KRUSHI_FARMER_ID"
	EnvCacheDir   = "KRUSHI_CACHE_DIR"
	EnvLogLevel   = "KRUSHI_LOG_LEVEL"
	EnvConfigFile = "KRUSHI_CONFIG"
)

// Cache
const (
	// CacheTTL bounds how long a cached GET response is served as fresh.
	CacheTTL = 5 * time.Minute
)

// Request deadlines
const (
	DefaultTimeout = 15 * time.Second
	FarmerTimeout  = 12 * time.Second
	SummaryTimeout = 10 * time.Second
)

// EscalationDelay is the minimum age of a query before it may be escalated.
const EscalationDelay = 2 * time.Minute

// DetailFetchWorkers caps concurrent report fetches for list --details.
const DetailFetchWorkers = 4

// HomeDir returns the krushi state directory (~/.krushi).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".krushi")
}

// CacheRoot returns the default cache directory path.
func CacheRoot() string {
	return filepath.Join(HomeDir(), "cache")
}

// Version is the current CLI version.
const Version = "0.3.0"
