package app

import (
	"log/slog"

	"bounty-qa/internal/config"
	"bounty-qa/internal/ledger"
	"bounty-qa/internal/ledger/stub"
	"bounty-qa/internal/platform/retry"
)

// NewLedgerClient returns the JSON-RPC ledger client behind a circuit
// breaker, or an in-process stub when no endpoint is configured.
func NewLedgerClient(cfg *config.Config, logger *slog.Logger) ledger.Client {
	if cfg.LedgerEndpoint == "" {
		logger.Warn("LEDGER_ENDPOINT not set, using in-process stub ledger",
			"min_stake", cfg.StubMinStake, "voting_window", cfg.StubVotingWindow)
		return stub.NewLedger(cfg.StubMinStakeAmount(), cfg.StubVotingWindow)
	}

	rpc := ledger.NewHTTPClient(cfg.LedgerEndpoint,
		ledger.WithTimeout(cfg.LedgerTimeout),
		ledger.WithMaxRetries(cfg.LedgerRetryAttempts),
		ledger.WithRetryDelay(cfg.LedgerRetryBackoff),
		ledger.WithRateLimit(cfg.LedgerRateLimit, cfg.LedgerRateBurst),
	)
	return ledger.NewBreaker(rpc, ledger.BreakerSettings{
		Failures: uint32(cfg.LedgerBreakerFailures),
		Cooldown: cfg.LedgerBreakerCooldown,
		Logger:   logger,
	})
}

// RetryPolicy returns the retry policy for ledger reads and compensations.
func RetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:    cfg.LedgerRetryAttempts,
		InitialBackoff: cfg.LedgerRetryBackoff,
	}
}
