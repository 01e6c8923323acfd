// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the aggregator service.
type Config struct {
	Port                string
	DatabaseURL         string
	RedisURL            string
	ScrapeIntervalHours int      // how often the cron job fires
	ParallelFetch       bool     // run adapters concurrently instead of one by one
	RunTimeoutMinutes   int      // wall-clock bound on one full run; 0 disables
	SAMAPIKey           string   // api.sam.gov key; federal source is skipped when empty
	States              []string // 2-letter state allow-list; empty = all states
	Keywords            []string // overrides the built-in keyword allow-list when set
	ClassificationCodes []string // overrides the built-in category allow-list when set
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	interval := 24
	if s := os.Getenv("SCRAPE_INTERVAL_HOURS"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("SCRAPE_INTERVAL_HOURS must be a positive integer, got %q", s)
		}
		interval = v
	}

	runTimeout := 30
	if s := os.Getenv("RUN_TIMEOUT_MINUTES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("RUN_TIMEOUT_MINUTES must be a non-negative integer, got %q", s)
		}
		runTimeout = v
	}

	parallel := true
	if s := os.Getenv("PARALLEL_FETCH"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("PARALLEL_FETCH must be a boolean, got %q", s)
		}
		parallel = v
	}

	states, err := splitStates(os.Getenv("STATES"))
	if err != nil {
		return nil, err
	}

	port := os.Getenv("AGGREGATOR_PORT")
	if port == "" {
		port = "8083"
	}

	return &Config{
		Port:                port,
		DatabaseURL:         dbURL,
		RedisURL:            redisURL,
		ScrapeIntervalHours: interval,
		ParallelFetch:       parallel,
		RunTimeoutMinutes:   runTimeout,
		SAMAPIKey:           os.Getenv("SAM_API_KEY"),
		States:              states,
		Keywords:            splitList(os.Getenv("KEYWORDS")),
		ClassificationCodes: splitList(os.Getenv("CLASSIFICATION_CODES")),
	}, nil
}

// splitStates parses a comma-separated state list, upper-casing entries and
// rejecting anything that is not a 2-letter code.
func splitStates(raw string) ([]string, error) {
	parts := splitList(raw)
	states := make([]string, 0, len(parts))
	for _, p := range parts {
		code := strings.ToUpper(p)
		if len(code) != 2 {
			return nil, fmt.Errorf("STATES entries must be 2-letter codes, got %q", p)
		}
		states = append(states, code)
	}
	return states, nil
}

// splitList splits a comma-separated env value, trimming whitespace and
// dropping empty entries. Returns nil for an empty value.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
