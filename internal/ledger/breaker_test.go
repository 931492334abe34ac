package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bounty-qa/internal/ledger"
	"bounty-qa/internal/ledger/stub"
)

func TestBreaker_OpensOnFaults(t *testing.T) {
	backend := stub.NewLedger(uint256.NewInt(100), time.Hour)
	backend.FailWindow = func() error { return errors.New("connection refused") }

	b := ledger.NewBreaker(backend, ledger.BreakerSettings{Failures: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.GetVotingWindow(ctx)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.GetVotingWindow(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, backend.Calls, 3, "open circuit must not reach the backend")
}

func TestBreaker_RejectionsDoNotTrip(t *testing.T) {
	backend := stub.NewLedger(uint256.NewInt(100), time.Hour)
	b := ledger.NewBreaker(backend, ledger.BreakerSettings{Failures: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := b.Unstake(ctx, "0x1111111111111111111111111111111111111111", uint256.NewInt(1))
		require.ErrorIs(t, err, ledger.ErrRejected)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_PassesResults(t *testing.T) {
	backend := stub.NewLedger(uint256.NewInt(100), 90*time.Second)
	backend.SetStake("0xaa", uint256.NewInt(150))
	b := ledger.NewBreaker(backend, ledger.BreakerSettings{})
	ctx := context.Background()

	window, err := b.GetVotingWindow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, window)

	v, err := b.GetValidator(ctx, "0xaa")
	require.NoError(t, err)
	assert.True(t, v.IsValidator)
	assert.Equal(t, uint64(150), v.StakedAmount.Uint64())
}
