package solana

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// IsOnCurve reports whether the base58 address decodes to a point on the
// ed25519 curve. Program-derived addresses are intentionally off-curve,
// so an off-curve fee payer is a program, not a user wallet.
func IsOnCurve(address string) bool {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
