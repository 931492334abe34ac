// Package ledger is the client side of the external Ledger Service that
// holds balances, validator stakes and the voting window configuration.
// The core reads and calls through it but owns none of its state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"bounty-qa/internal/domain"
)

// Client defines the Ledger Service interface.
// Every call is atomic on the service side.
type Client interface {
	// GetValidator returns the current staking state of an account.
	// Accounts that never staked return a non-validator with zero stake.
	GetValidator(ctx context.Context, account string) (*domain.Validator, error)

	// GetVotingWindow returns the global voting window duration.
	GetVotingWindow(ctx context.Context) (time.Duration, error)

	// Approve allows the staking contract to pull amount from account.
	Approve(ctx context.Context, account string, amount *uint256.Int) error

	// RevokeApproval resets the account's staking allowance to zero.
	RevokeApproval(ctx context.Context, account string) error

	// Stake transfers amount from the account into its stake.
	Stake(ctx context.Context, account string, amount *uint256.Int) error

	// Unstake returns amount of stake to the account.
	Unstake(ctx context.Context, account string, amount *uint256.Int) error

	// SettleAnswer releases (favorExpert) or returns an answer's reward escrow.
	SettleAnswer(ctx context.Context, answerKey *uint256.Int, favorExpert bool) error
}

// ErrRejected matches every business-level refusal by the Ledger Service
// (insufficient balance, allowance or stake). Rejections are final and do not
// count as service failures.
var ErrRejected = errors.New("ledger rejected the request")

// Ledger error codes carried in JSON-RPC error objects.
const (
	CodeInsufficientBalance   = -32010
	CodeInsufficientAllowance = -32011
	CodeInsufficientStake     = -32012
	CodeAlreadySettled        = -32013
)

// RPCError is a JSON-RPC 2.0 error returned by the Ledger Service.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger error %d: %s", e.Code, e.Message)
}

// Is reports business rejections as ErrRejected.
func (e *RPCError) Is(target error) bool {
	return target == ErrRejected && e.Rejection()
}

// Rejection reports whether the code is a business refusal rather than a
// protocol or server fault.
func (e *RPCError) Rejection() bool {
	switch e.Code {
	case CodeInsufficientBalance, CodeInsufficientAllowance, CodeInsufficientStake, CodeAlreadySettled:
		return true
	}
	return false
}

// Rejected builds a business rejection error.
func Rejected(code int, msg string) *RPCError {
	return &RPCError{Code: code, Message: msg}
}
