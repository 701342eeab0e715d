package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Addr         string
	FeedURL      string
	DataDir      string
	MirrorPath   string
	RecordDBPath string
	SystemDBPath string
	StaleAfter   time.Duration
	Debug        bool
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("CVETRACK_ADDR", ":8080")
	cfg.FeedURL = getEnv("CVETRACK_FEED_URL", "https://github.com/CVEProject/cvelistV5.git")
	cfg.DataDir = getEnv("CVETRACK_DATA_DIR", defaultDataDir())
	cfg.StaleAfter = getEnvDuration("CVETRACK_STALE_AFTER", 2*time.Minute)
	cfg.Debug = getEnvBool("CVETRACK_DEBUG", false)

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "Git URL of the CVE data feed")
	flag.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for databases and the feed mirror")
	flag.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "Heartbeat age after which a running job is presumed crashed")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	flag.Parse()

	cfg.MirrorPath = filepath.Join(cfg.DataDir, "feed-mirror")
	cfg.RecordDBPath = filepath.Join(cfg.DataDir, "records.db")
	cfg.SystemDBPath = filepath.Join(cfg.DataDir, "system.db")

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// defaultDataDir returns ~/.cvetrack, falling back to the working directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return ".cvetrack"
	}
	return filepath.Join(home, ".cvetrack")
}
