package config

import (
	"flag"

	"wallet-credit-lab/internal/domain"
)

// RegisterFlags binds command-line flags to c. The current values become the
// flag defaults, so call it after Load and validate again after parsing.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (json or console)")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "PostgreSQL connection string (events and scores)")
	fs.StringVar(&c.ClickhouseDSN, "clickhouse-dsn", c.ClickhouseDSN, "ClickHouse connection string (feature records)")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "Redis URL for the score lookup cache")
	c.Scoring.RegisterFlags(fs)
}

// RegisterFlags binds the model parameter flags to s.
func (s *Scoring) RegisterFlags(fs *flag.FlagSet) {
	fs.Func("tracked-actions", "Comma-separated action kinds that get a value ratio (default "+s.TrackedActionsString()+")", func(v string) error {
		kinds, err := domain.ParseTrackedActions(v)
		if err != nil {
			return err
		}
		s.TrackedActions = kinds
		return nil
	})
	fs.Float64Var(&s.Contamination, "contamination", s.Contamination, "Expected share of anomalous wallets")
	fs.Int64Var(&s.Seed, "seed", s.Seed, "Isolation forest random seed")
	fs.IntVar(&s.Trees, "trees", s.Trees, "Isolation forest tree count")
	fs.IntVar(&s.MaxSamples, "max-samples", s.MaxSamples, "Isolation forest subsample size cap")
	fs.IntVar(&s.DegenerateScore, "degenerate-score", s.DegenerateScore, "Score assigned to every wallet when base scores have zero variance")
	fs.IntVar(&s.Workers, "workers", s.Workers, "Parallel workers for aggregation and tree fitting")
	fs.BoolVar(&s.CausalRepayMatching, "causal-matching", s.CausalRepayMatching, "Only match repays at or after the borrow")
}
