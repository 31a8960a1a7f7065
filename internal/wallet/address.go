// Package wallet provides wallet-address helpers shared by the guard
// and liquidation layers.
package wallet

import (
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Normalize returns the canonical form of a wallet address used for
// whitelist and exclusion-list membership. Matching is case-insensitive.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsValid reports whether address decodes to a 32-byte ed25519 public key.
// Off-curve addresses (PDAs) are rejected; they cannot sign buys.
func IsValid(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil {
		return false
	}
	if len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}

// Short returns an abbreviated address for logs: first 6 and last 4 chars.
func Short(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
