// Package app assembles stores and services from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"bounty-qa/internal/config"
	"bounty-qa/internal/httpapi"
	"bounty-qa/internal/storage"
	chstore "bounty-qa/internal/storage/clickhouse"
	"bounty-qa/internal/storage/memory"
	pgstore "bounty-qa/internal/storage/postgres"
	redisstore "bounty-qa/internal/storage/redis"
)

const connectTimeout = 10 * time.Second

// Stores holds the configured storage backends.
type Stores struct {
	Questions storage.QuestionStore
	Answers   storage.AnswerStore
	Votes     storage.VoteStore
	// Archive is nil unless CLICKHOUSE_DSN is set.
	Archive storage.VoteArchive

	pg      *pgstore.Pool
	rdb     *goredis.Client
	ch      *chstore.Conn
	closers []func()
}

// OpenStores connects and migrates the backends selected by cfg.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	s := &Stores{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	needPG := cfg.StorageBackend == config.BackendPostgres || cfg.VoteBackend == config.BackendPostgres
	if needPG {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.pg = pool
		s.closers = append(s.closers, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("connected to postgres")
	}

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		s.Questions = pgstore.NewQuestionStore(s.pg)
		s.Answers = pgstore.NewAnswerStore(s.pg)
	default:
		s.Questions = memory.NewQuestionStore()
		s.Answers = memory.NewAnswerStore()
	}

	switch cfg.VoteBackend {
	case config.BackendPostgres:
		s.Votes = pgstore.NewVoteStore(s.pg)
	case config.BackendRedis:
		rdb, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.rdb = rdb
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		s.Votes = redisstore.NewVoteStore(rdb)
		logger.Info("connected to redis")
	default:
		s.Votes = memory.NewVoteStore()
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, err
		}
		s.ch = conn
		s.closers = append(s.closers, func() { _ = conn.Close() })
		if err := conn.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		s.Archive = chstore.NewVoteArchive(conn)
		logger.Info("connected to clickhouse")
	}

	logger.Info("stores ready",
		"storage_backend", cfg.StorageBackend,
		"vote_backend", cfg.VoteBackend,
		"archive", s.Archive != nil)
	ok = true
	return s, nil
}

// HealthChecks returns one probe per connected backend.
func (s *Stores) HealthChecks() []httpapi.HealthCheck {
	var checks []httpapi.HealthCheck
	if s.pg != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "postgres", Check: s.pg.Ping})
	}
	if s.rdb != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return s.rdb.Ping(ctx).Err()
		}})
	}
	if s.ch != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "clickhouse", Check: s.ch.Ping})
	}
	return checks
}

// Close releases every connection in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
