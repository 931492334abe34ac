package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"github.com/sony/gobreaker"

	"bounty-qa/internal/domain"
)

// BreakerSettings configures the circuit breaker around a Client.
type BreakerSettings struct {
	// Failures is the number of consecutive failures that opens the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration
	Logger   *slog.Logger
}

// Breaker wraps a Client with a circuit breaker. Business rejections
// (ErrRejected) count as successful calls; only transport and server faults
// trip the circuit. While open, calls fail fast with gobreaker.ErrOpenState.
type Breaker struct {
	next Client
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit-breaking Client.
func NewBreaker(next Client, s BreakerSettings) *Breaker {
	if s.Failures == 0 {
		s.Failures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: 1,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"component", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State returns the current circuit state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// GetValidator implements Client.
func (b *Breaker) GetValidator(ctx context.Context, account string) (*domain.Validator, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetValidator(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Validator), nil
}

// GetVotingWindow implements Client.
func (b *Breaker) GetVotingWindow(ctx context.Context) (time.Duration, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GetVotingWindow(ctx)
	})
	if err != nil {
		return 0, err
	}
	return res.(time.Duration), nil
}

// Approve implements Client.
func (b *Breaker) Approve(ctx context.Context, account string, amount *uint256.Int) error {
	return b.do(func() error { return b.next.Approve(ctx, account, amount) })
}

// RevokeApproval implements Client.
func (b *Breaker) RevokeApproval(ctx context.Context, account string) error {
	return b.do(func() error { return b.next.RevokeApproval(ctx, account) })
}

// Stake implements Client.
func (b *Breaker) Stake(ctx context.Context, account string, amount *uint256.Int) error {
	return b.do(func() error { return b.next.Stake(ctx, account, amount) })
}

// Unstake implements Client.
func (b *Breaker) Unstake(ctx context.Context, account string, amount *uint256.Int) error {
	return b.do(func() error { return b.next.Unstake(ctx, account, amount) })
}

// SettleAnswer implements Client.
func (b *Breaker) SettleAnswer(ctx context.Context, answerKey *uint256.Int, favorExpert bool) error {
	return b.do(func() error { return b.next.SettleAnswer(ctx, answerKey, favorExpert) })
}

// Verify interface compliance at compile time.
var _ Client = (*Breaker)(nil)
