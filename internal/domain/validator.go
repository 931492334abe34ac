package domain

import "github.com/holiman/uint256"

// Validator is a read-only snapshot of an account's staking state,
// as reported by the ledger service. Never cached by the core.
type Validator struct {
	Account      string       // checksummed account address
	IsValidator  bool         // true once stake crossed the ledger threshold
	StakedAmount *uint256.Int // staked amount in base units (wei)
}

// Eligible reports whether the account may vote on answers.
func (v *Validator) Eligible() bool {
	return v != nil && v.IsValidator
}
