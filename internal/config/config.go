// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env struct tags.
// Validates backend selection and the settings each backend requires.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" default:":8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	StorageBackend string        `env:"STORAGE_BACKEND" default:"memory"`
	VoteBackend    string        `env:"VOTE_BACKEND" default:"memory"`
	PostgresDSN    string        `env:"POSTGRES_DSN"`
	RedisURL       string        `env:"REDIS_URL"`
	ClickhouseDSN  string        `env:"CLICKHOUSE_DSN"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" default:"5s"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" default:"bounty-qa.votes"`

	LedgerEndpoint        string        `env:"LEDGER_ENDPOINT"`
	LedgerTimeout         time.Duration `env:"LEDGER_TIMEOUT" default:"3s"`
	LedgerRateLimit       float64       `env:"LEDGER_RATE_LIMIT" default:"50"`
	LedgerRateBurst       int           `env:"LEDGER_RATE_BURST" default:"10"`
	LedgerRetryAttempts   int           `env:"LEDGER_RETRY_ATTEMPTS" default:"3"`
	LedgerRetryBackoff    time.Duration `env:"LEDGER_RETRY_BACKOFF" default:"100ms"`
	LedgerBreakerFailures int           `env:"LEDGER_BREAKER_FAILURES" default:"5"`
	LedgerBreakerCooldown time.Duration `env:"LEDGER_BREAKER_COOLDOWN" default:"30s"`
	SettleInterval        time.Duration `env:"SETTLE_INTERVAL" default:"1m"`

	DecayConstant  float64 `env:"DECAY_CONSTANT" default:"0.00005"`
	FinalizeQuorum int64   `env:"FINALIZE_QUORUM" default:"0"`

	StubMinStake     string        `env:"STUB_MIN_STAKE" default:"1000"`
	StubVotingWindow time.Duration `env:"STUB_VOTING_WINDOW" default:"1h"`

	WSMaxPerAnswer int `env:"WS_MAX_PER_ANSWER" default:"50"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// StubMinStakeAmount parses STUB_MIN_STAKE. Valid after Load.
func (c *Config) StubMinStakeAmount() *uint256.Int {
	v, err := uint256.FromDecimal(c.StubMinStake)
	if err != nil {
		return uint256.NewInt(0)
	}
	return v
}

func validate(cfg *Config) error {
	switch cfg.StorageBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %s or %s, got %q", BackendMemory, BackendPostgres, cfg.StorageBackend)
	}
	switch cfg.VoteBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("VOTE_BACKEND must be %s, %s or %s, got %q", BackendMemory, BackendPostgres, BackendRedis, cfg.VoteBackend)
	}

	if (cfg.StorageBackend == BackendPostgres || cfg.VoteBackend == BackendPostgres) && cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required for the postgres backend")
	}
	if cfg.VoteBackend == BackendRedis && cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required for the redis vote backend")
	}
	if cfg.KafkaBrokers != "" && cfg.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if math.IsNaN(cfg.DecayConstant) || math.IsInf(cfg.DecayConstant, 0) || cfg.DecayConstant < 0 {
		return fmt.Errorf("DECAY_CONSTANT must be a finite non-negative number, got %v", cfg.DecayConstant)
	}
	if cfg.FinalizeQuorum < 0 {
		return errors.New("FINALIZE_QUORUM must not be negative")
	}

	positive := map[string]time.Duration{
		"STORE_TIMEOUT":           cfg.StoreTimeout,
		"LEDGER_TIMEOUT":          cfg.LedgerTimeout,
		"LEDGER_BREAKER_COOLDOWN": cfg.LedgerBreakerCooldown,
		"SETTLE_INTERVAL":         cfg.SettleInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.LedgerRateLimit < 0 || cfg.LedgerRateBurst < 0 || cfg.LedgerRetryAttempts < 0 || cfg.LedgerBreakerFailures < 0 {
		return errors.New("ledger rate, burst, retry and breaker settings must not be negative")
	}
	if cfg.StubVotingWindow < 0 {
		return errors.New("STUB_VOTING_WINDOW must not be negative")
	}
	if _, err := uint256.FromDecimal(cfg.StubMinStake); err != nil {
		return fmt.Errorf("STUB_MIN_STAKE must be a decimal amount: %w", err)
	}

	return nil
}
