// Package config handles configuration from environment variables.
// Command-line flags use these values as their defaults.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wallet-credit-lab/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string // "json" or "console"

	// Storage (all optional; in-memory stores are used when empty)
	PostgresDSN   string
	ClickhouseDSN string
	RedisURL      string

	// Scoring model
	Scoring Scoring

	// Server
	HTTPAddr        string
	RescoreInterval time.Duration
}

// Scoring holds the parameters that define a reproducible scoring run.
// Changing any of them changes every wallet's score.
type Scoring struct {
	// TrackedActions must include borrow and liquidation: the risk and
	// liquidation penalties read their ratios.
	TrackedActions      []domain.ActionKind
	Contamination       float64
	Seed                int64
	Trees               int
	MaxSamples          int
	DegenerateScore     int
	Workers             int
	CausalRepayMatching bool
}

// Defaults
const (
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultContamination   = 0.05
	DefaultSeed            = 42
	DefaultTrees           = 100
	DefaultMaxSamples      = 256
	DefaultDegenerateScore = 500
	DefaultWorkers         = 4
	DefaultHTTPAddr        = ":8080"
	DefaultRescoreInterval = time.Hour
)

// DefaultScoring returns the default model parameters.
func DefaultScoring() Scoring {
	tracked := make([]domain.ActionKind, len(domain.DefaultTrackedActions))
	copy(tracked, domain.DefaultTrackedActions)
	return Scoring{
		TrackedActions:  tracked,
		Contamination:   DefaultContamination,
		Seed:            DefaultSeed,
		Trees:           DefaultTrees,
		MaxSamples:      DefaultMaxSamples,
		DegenerateScore: DefaultDegenerateScore,
		Workers:         DefaultWorkers,
	}
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	// Missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	scoring := DefaultScoring()
	if v := os.Getenv("TRACKED_ACTIONS"); v != "" {
		kinds, err := domain.ParseTrackedActions(v)
		if err != nil {
			return nil, fmt.Errorf("TRACKED_ACTIONS: %w", err)
		}
		scoring.TrackedActions = kinds
	}

	var err error
	if scoring.Contamination, err = getEnvFloat("SCORE_CONTAMINATION", scoring.Contamination); err != nil {
		return nil, err
	}
	if scoring.Seed, err = getEnvInt64("SCORE_SEED", scoring.Seed); err != nil {
		return nil, err
	}
	trees, err := getEnvInt64("SCORE_TREES", int64(scoring.Trees))
	if err != nil {
		return nil, err
	}
	scoring.Trees = int(trees)
	maxSamples, err := getEnvInt64("SCORE_MAX_SAMPLES", int64(scoring.MaxSamples))
	if err != nil {
		return nil, err
	}
	scoring.MaxSamples = int(maxSamples)
	degenerate, err := getEnvInt64("SCORE_DEGENERATE", int64(scoring.DegenerateScore))
	if err != nil {
		return nil, err
	}
	scoring.DegenerateScore = int(degenerate)
	workers, err := getEnvInt64("SCORE_WORKERS", int64(scoring.Workers))
	if err != nil {
		return nil, err
	}
	scoring.Workers = int(workers)
	if scoring.CausalRepayMatching, err = getEnvBool("SCORE_CAUSAL_REPAY_MATCHING", false); err != nil {
		return nil, err
	}

	interval, err := getEnvDuration("RESCORE_INTERVAL", DefaultRescoreInterval)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:       getEnv("LOG_FORMAT", DefaultLogFormat),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:   os.Getenv("CLICKHOUSE_DSN"),
		RedisURL:        os.Getenv("REDIS_URL"),
		Scoring:         scoring,
		HTTPAddr:        getEnv("HTTP_ADDR", DefaultHTTPAddr),
		RescoreInterval: interval,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	if c.RescoreInterval <= 0 {
		return fmt.Errorf("RESCORE_INTERVAL must be positive")
	}
	return nil
}

// Validate checks the scoring parameters.
func (s Scoring) Validate() error {
	if len(s.TrackedActions) == 0 {
		return fmt.Errorf("at least one tracked action is required")
	}
	for _, kind := range s.TrackedActions {
		if kind == domain.ActionOther || domain.ParseAction(string(kind)) != kind {
			return fmt.Errorf("unknown tracked action %q", kind)
		}
	}
	for _, kind := range []domain.ActionKind{domain.ActionBorrow, domain.ActionLiquidation} {
		if !slices.Contains(s.TrackedActions, kind) {
			return fmt.Errorf("tracked actions must include %q: the score penalties read its ratio", kind)
		}
	}
	if s.Contamination <= 0 || s.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %v", s.Contamination)
	}
	if s.Trees < 1 {
		return fmt.Errorf("trees must be >= 1, got %d", s.Trees)
	}
	if s.MaxSamples < 2 {
		return fmt.Errorf("max samples must be >= 2, got %d", s.MaxSamples)
	}
	if s.DegenerateScore < 0 || s.DegenerateScore > 1000 {
		return fmt.Errorf("degenerate score must be in [0, 1000], got %d", s.DegenerateScore)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", s.Workers)
	}
	return nil
}

// TrackedActionsString renders the tracked action list for flags and metadata.
func (s Scoring) TrackedActionsString() string {
	parts := make([]string, len(s.TrackedActions))
	for i, k := range s.TrackedActions {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
