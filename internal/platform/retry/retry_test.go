package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/platform/retry"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
}

func TestDo_RetriesTimeouts(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, retry.Timeouts, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("get validator: %w", domain.ErrUpstreamTimeout)
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if val != 7 || calls != 3 {
		t.Fatalf("got val=%d calls=%d", val, calls)
	}
}

func TestDo_StopsOnOtherKinds(t *testing.T) {
	for _, kind := range []error{domain.ErrRegistryUnavailable, domain.ErrNotAValidator, domain.ErrAlreadyVoted} {
		calls := 0
		_, err := retry.Do(context.Background(), fastPolicy, retry.Timeouts, func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, kind
		})
		var perm *retry.PermanentError
		if !errors.As(err, &perm) {
			t.Errorf("%v: expected PermanentError, got %T", kind, err)
		}
		if !errors.Is(err, kind) {
			t.Errorf("%v: kind lost in %v", kind, err)
		}
		if calls != 1 {
			t.Errorf("%v: expected 1 call, got %d", kind, calls)
		}
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, retry.Timeouts, func(context.Context) error {
		calls++
		return domain.ErrUpstreamTimeout
	})
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{MaxAttempts: 5, InitialBackoff: time.Hour}

	var retried bool
	policy.OnRetry = func(int, error, time.Duration) {
		retried = true
		cancel()
	}

	_, err := retry.Do(ctx, policy, retry.Timeouts, func(context.Context) (int, error) {
		return 0, domain.ErrUpstreamTimeout
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !retried {
		t.Fatal("OnRetry not called")
	}
}
