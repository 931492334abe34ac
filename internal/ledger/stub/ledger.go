// Package stub provides an in-process Ledger Service for tests and local runs.
package stub

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/ledger"
)

// Ledger implements ledger.Client in memory. Every account starts with
// Balance tokens; an account becomes a validator once its stake reaches
// MinStake and stops being one when it drops below.
type Ledger struct {
	mu         sync.Mutex
	minStake   *uint256.Int
	window     time.Duration
	balances   map[string]*uint256.Int
	allowances map[string]*uint256.Int
	stakes     map[string]*uint256.Int
	settled    map[uint256.Int]bool

	// Balance is the starting balance of accounts never seen before.
	Balance *uint256.Int

	// Fault injection. Each hook, when set, runs before the named call and
	// its error is returned without applying the call.
	FailGetValidator func() error
	FailWindow       func() error
	FailStake        func() error
	FailApprove      func() error
	FailRevoke       func() error
	FailSettle       func() error

	// Calls records method names in call order.
	Calls []string
}

// NewLedger creates a stub ledger.
func NewLedger(minStake *uint256.Int, window time.Duration) *Ledger {
	if minStake == nil {
		minStake = new(uint256.Int)
	}
	return &Ledger{
		minStake:   minStake.Clone(),
		window:     window,
		balances:   make(map[string]*uint256.Int),
		allowances: make(map[string]*uint256.Int),
		stakes:     make(map[string]*uint256.Int),
		settled:    make(map[uint256.Int]bool),
		Balance:    uint256.NewInt(1_000_000),
	}
}

// SetWindow changes the voting window.
func (l *Ledger) SetWindow(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = d
}

// SetStake sets an account's stake directly.
func (l *Ledger) SetStake(account string, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stakes[account] = amount.Clone()
}

// Allowance returns the current allowance of an account.
func (l *Ledger) Allowance(account string) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return get(l.allowances, account)
}

// BalanceOf returns the free balance of an account.
func (l *Ledger) BalanceOf(account string) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(account)
}

// Settled reports whether an answer escrow was settled.
func (l *Ledger) Settled(answerKey *uint256.Int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settled[*answerKey]
}

// GetValidator implements ledger.Client.
func (l *Ledger) GetValidator(_ context.Context, account string) (*domain.Validator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, ledger.MethodGetValidator)
	if err := run(l.FailGetValidator); err != nil {
		return nil, err
	}

	staked := get(l.stakes, account)
	return &domain.Validator{
		Account:      account,
		IsValidator:  !staked.IsZero() && !staked.Lt(l.minStake),
		StakedAmount: staked,
	}, nil
}

// GetVotingWindow implements ledger.Client.
func (l *Ledger) GetVotingWindow(_ context.Context) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, ledger.MethodGetVotingWindow)
	if err := run(l.FailWindow); err != nil {
		return 0, err
	}
	return l.window, nil
}

// Approve implements ledger.Client.
func (l *Ledger) Approve(_ context.Context, account string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, ledger.MethodApprove)
	if err := run(l.FailApprove); err != nil {
		return err
	}
	l.allowances[account] = amount.Clone()
	return nil
}

// RevokeApproval implements ledger.Client.
func (l *Ledger) RevokeApproval(_ context.Context, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, ledger.MethodRevokeApproval)
	if err := run(l.FailRevoke); err != nil {
		return err
	}
	delete(l.allowances, account)
	return nil
}

// Stake implements ledger.Client. The transfer and the stake credit apply
// together or not at all.
func (l *Ledger) Stake(_ context.Context, account string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, ledger.MethodStake)
	if err := run(l.FailStake); err != nil {
		return err
	}

	allowance := get(l.allowances, account)
	if allowance.Lt(amount) {
		return ledger.Rejected(ledger.CodeInsufficientAllowance, "insufficient allowance")
	}
	balance := l.balance(account)
	if balance.Lt(amount) {
		return ledger.Rejected(ledger.CodeInsufficientBalance, "insufficient balance")
	}

	l.balances[account] = new(uint256.Int).Sub(balance, amount)
	l.allowances[account] = new(uint256.Int).Sub(allowance, amount)
	l.stakes[account] = new(uint256.Int).Add(get(l.stakes, account), amount)
	return nil
}

// Unstake implements ledger.Client.
func (l *Ledger) Unstake(_ context.Context, account string, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, ledger.MethodUnstake)

	staked := get(l.stakes, account)
	if staked.Lt(amount) {
		return ledger.Rejected(ledger.CodeInsufficientStake, "insufficient stake")
	}
	l.stakes[account] = new(uint256.Int).Sub(staked, amount)
	l.balances[account] = new(uint256.Int).Add(l.balance(account), amount)
	return nil
}

// SettleAnswer implements ledger.Client.
func (l *Ledger) SettleAnswer(_ context.Context, answerKey *uint256.Int, _ bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, ledger.MethodSettleAnswer)
	if err := run(l.FailSettle); err != nil {
		return err
	}
	if l.settled[*answerKey] {
		return ledger.Rejected(ledger.CodeAlreadySettled, "escrow already settled")
	}
	l.settled[*answerKey] = true
	return nil
}

func (l *Ledger) balance(account string) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b.Clone()
	}
	return l.Balance.Clone()
}

func get(m map[string]*uint256.Int, key string) *uint256.Int {
	if v, ok := m[key]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

func run(hook func() error) error {
	if hook == nil {
		return nil
	}
	return hook()
}

// Verify interface compliance at compile time.
var _ ledger.Client = (*Ledger)(nil)
