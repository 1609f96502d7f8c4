// Package revocation maintains the blacklist of session tokens that must no
// longer be honored. Entries carry a TTL equal to the token's remaining
// lifetime at revocation time, so the store's own expiry is the only cleanup
// path; nothing ever needs a manual sweep.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Store records revoked token identities until their natural expiry.
//
// Add is idempotent: re-adding a present id leaves the same observable
// state. Implementations must make Contains safe for concurrent use from
// many request goroutines.
type Store interface {
	Add(ctx context.Context, tokenID, personID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

// Identity returns the stable revocation identity of a token: its embedded
// jti when present, otherwise a SHA-256 digest of the raw compact form.
func Identity(token, jti string) string {
	if jti = strings.TrimSpace(jti); jti != "" {
		return jti
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
