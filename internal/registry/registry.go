// Package registry is the validator registry: a read-through view of
// validator membership held by the Ledger Service. It keeps no local copy of
// stake or eligibility; every query goes to the ledger.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/ledger"
	"bounty-qa/internal/platform/retry"
)

// Default configuration values.
const (
	DefaultCallTimeout = 3 * time.Second
	DefaultAttempts    = 3
	DefaultBackoff     = 100 * time.Millisecond
)

// ErrInvalidAmount is returned for zero stake or unstake amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Options configures a Registry.
type Options struct {
	Ledger ledger.Client
	// CallTimeout bounds each ledger call.
	CallTimeout time.Duration
	// Retry applies to reads and to the compensating revoke. Only timeouts
	// are retried.
	Retry  retry.Policy
	Logger *slog.Logger
}

// Registry implements validator queries and the staking saga.
type Registry struct {
	ledger      ledger.Client
	callTimeout time.Duration
	policy      retry.Policy
	logger      *slog.Logger
}

// New creates a Registry.
func New(opts Options) *Registry {
	r := &Registry{
		ledger:      opts.Ledger,
		callTimeout: opts.CallTimeout,
		policy:      opts.Retry,
		logger:      opts.Logger,
	}
	if r.callTimeout <= 0 {
		r.callTimeout = DefaultCallTimeout
	}
	if r.policy.MaxAttempts <= 0 {
		r.policy.MaxAttempts = DefaultAttempts
	}
	if r.policy.InitialBackoff <= 0 {
		r.policy.InitialBackoff = DefaultBackoff
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// GetValidator returns the account's current staking state.
func (r *Registry) GetValidator(ctx context.Context, account string) (*domain.Validator, error) {
	account, err := domain.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	return read(ctx, r, "get validator", func(ctx context.Context) (*domain.Validator, error) {
		return r.ledger.GetValidator(ctx, account)
	})
}

// IsEligibleVoter reports whether the account is currently a validator.
// Registry failures are returned as errors, never as false.
func (r *Registry) IsEligibleVoter(ctx context.Context, account string) (bool, error) {
	v, err := r.GetValidator(ctx, account)
	if err != nil {
		return false, err
	}
	return v.Eligible(), nil
}

// VotingWindow returns the global voting window duration.
func (r *Registry) VotingWindow(ctx context.Context) (time.Duration, error) {
	return read(ctx, r, "get voting window", r.ledger.GetVotingWindow)
}

// Stake approves and stakes amount for account, then returns the fresh
// validator state. Approve and stake are two ledger calls; if stake fails
// after the approval, the approval is revoked before the error is returned.
func (r *Registry) Stake(ctx context.Context, account string, amount *uint256.Int) (*domain.Validator, error) {
	account, err := domain.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	if err := r.write(ctx, "approve", func(ctx context.Context) error {
		return r.ledger.Approve(ctx, account, amount)
	}); err != nil {
		// A timed out approve may still have committed.
		if errors.Is(err, domain.ErrUpstreamTimeout) {
			return nil, r.compensate(ctx, account, err)
		}
		return nil, err
	}

	if err := r.write(ctx, "stake", func(ctx context.Context) error {
		return r.ledger.Stake(ctx, account, amount)
	}); err != nil {
		return nil, r.compensate(ctx, account, err)
	}

	r.logger.InfoContext(ctx, "stake committed", "account", account, "amount", amount.Dec())
	return r.GetValidator(ctx, account)
}

// Unstake returns amount of stake to account and returns the fresh
// validator state.
func (r *Registry) Unstake(ctx context.Context, account string, amount *uint256.Int) (*domain.Validator, error) {
	account, err := domain.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	if err := r.write(ctx, "unstake", func(ctx context.Context) error {
		return r.ledger.Unstake(ctx, account, amount)
	}); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "unstake committed", "account", account, "amount", amount.Dec())
	return r.GetValidator(ctx, account)
}

// compensate revokes the staking allowance after a failed stake. It runs
// detached from caller cancellation and retries timeouts.
func (r *Registry) compensate(ctx context.Context, account string, cause error) error {
	cctx := context.WithoutCancel(ctx)
	err := retry.DoVoid(cctx, r.policy, retry.Timeouts, func(ctx context.Context) error {
		return r.bounded(ctx, "revoke approval", func(ctx context.Context) error {
			return r.ledger.RevokeApproval(ctx, account)
		})
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "compensating revoke failed",
			"account", account, "cause", cause, "error", err)
		return errors.Join(cause, fmt.Errorf("revoke approval: %w", unwrapPermanent(err)))
	}
	r.logger.WarnContext(ctx, "stake rolled back", "account", account, "cause", cause)
	return cause
}

// write performs a single bounded ledger mutation. Mutations are never
// retried here.
func (r *Registry) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return r.bounded(ctx, op, fn)
}

func (r *Registry) bounded(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	if err := fn(cctx); err != nil {
		return r.classify(ctx, op, err)
	}
	return nil
}

// read runs a bounded, retried ledger query.
func read[T any](ctx context.Context, r *Registry, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	val, err := retry.Do(ctx, r.policy, retry.Timeouts, func(ctx context.Context) (T, error) {
		cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
		defer cancel()

		v, err := fn(cctx)
		if err != nil {
			var zero T
			return zero, r.classify(ctx, op, err)
		}
		return v, nil
	})
	return val, unwrapPermanent(err)
}

// classify maps a ledger failure onto the error taxonomy: deadlines become
// ErrUpstreamTimeout, business rejections pass through, and everything else
// is ErrRegistryUnavailable. Cancellation by the caller passes through.
func (r *Registry) classify(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		r.logger.WarnContext(ctx, "ledger call timed out", "op", op)
		return fmt.Errorf("%s: %w", op, domain.ErrUpstreamTimeout)
	case errors.Is(err, ledger.ErrRejected):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return err
	default:
		r.logger.WarnContext(ctx, "ledger call failed", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %v", op, domain.ErrRegistryUnavailable, err)
	}
}

func unwrapPermanent(err error) error {
	var perm *retry.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
