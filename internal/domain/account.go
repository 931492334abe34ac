package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAccount validates an account address and returns its EIP-55
// checksummed form. Addresses must be 0x-prefixed 20-byte hex.
func NormalizeAccount(account string) (string, error) {
	account = strings.TrimSpace(account)
	if !strings.HasPrefix(account, "0x") && !strings.HasPrefix(account, "0X") {
		return "", fmt.Errorf("%w: account %q missing 0x prefix", ErrInvalidIdentifier, account)
	}
	if !common.IsHexAddress(account) {
		return "", fmt.Errorf("%w: account %q", ErrInvalidIdentifier, account)
	}
	return common.HexToAddress(account).Hex(), nil
}
