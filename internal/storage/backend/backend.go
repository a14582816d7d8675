// Package backend opens the configured store implementations.
package backend

import (
	"context"
	"errors"
	"fmt"

	"wallet-credit-lab/internal/logging"
	"wallet-credit-lab/internal/storage"
	chstore "wallet-credit-lab/internal/storage/clickhouse"
	"wallet-credit-lab/internal/storage/memory"
	"wallet-credit-lab/internal/storage/migrations"
	pgstore "wallet-credit-lab/internal/storage/postgres"
	redisstore "wallet-credit-lab/internal/storage/redis"
)

// Options selects the backing services. Empty DSNs fall back to in-memory stores.
type Options struct {
	PostgresDSN   string
	ClickhouseDSN string
	RedisURL      string
	UseMemory     bool // ignore all DSNs
	Migrate       bool // apply embedded migrations on open
}

// Stores is the set of stores a command works with.
type Stores struct {
	Events   storage.EventStore
	Scores   storage.ScoreStore
	Features storage.FeatureStore

	// Persistent is true when events and scores live in Postgres.
	Persistent bool

	closers []func() error
}

// Close releases every connection opened by Open.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Memory returns a fresh set of in-memory stores.
func Memory() *Stores {
	return &Stores{
		Events:   memory.NewEventStore(),
		Scores:   memory.NewScoreStore(),
		Features: memory.NewFeatureStore(),
	}
}

// Open connects to the services named in opts.
// Postgres holds events and scores, ClickHouse holds feature records and
// Redis caches score lookups in front of whichever score store is in use.
func Open(ctx context.Context, opts Options) (*Stores, error) {
	s := Memory()
	if opts.UseMemory {
		return s, nil
	}
	log := logging.L(ctx)

	if opts.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		if opts.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				s.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		s.Events = pgstore.NewEventStore(pool)
		s.Scores = pgstore.NewScoreStore(pool)
		s.Persistent = true
		log.Info().Msg("using postgres for events and scores")
	}

	if opts.ClickhouseDSN != "" {
		var conn *chstore.Conn
		var err error
		if opts.Migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, opts.ClickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, opts.ClickhouseDSN)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		s.closers = append(s.closers, conn.Close)
		s.Features = chstore.NewFeatureStore(conn)
		log.Info().Msg("using clickhouse for feature records")
	}

	if opts.RedisURL != "" {
		client, err := redisstore.NewClient(ctx, opts.RedisURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		s.Scores = redisstore.NewScoreCache(client, s.Scores, redisstore.DefaultTTL)
		log.Info().Msg("caching score lookups in redis")
	}

	return s, nil
}
