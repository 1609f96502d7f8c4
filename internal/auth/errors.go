package auth

import (
	"errors"
	"fmt"
)

// Verification failure kinds. Every verdict from Verify wraps exactly one of
// these; the HTTP layer collapses them all into a generic "unauthorized" so
// the distinction never reaches a production response body.
var (
	ErrTokenMalformed      = errors.New("auth: token malformed")
	ErrAlgorithmNotAllowed = errors.New("auth: token algorithm not allowed")
	ErrAlgorithmMismatch   = errors.New("auth: token algorithm mismatch")
	ErrSignatureInvalid    = errors.New("auth: token signature invalid")
	ErrMissingClaim        = errors.New("auth: required claim missing")
	ErrTokenExpired        = errors.New("auth: token expired")
	ErrInvalidIssuer       = errors.New("auth: invalid issuer")
	ErrInvalidAudience     = errors.New("auth: invalid audience")
	ErrTokenRevoked        = errors.New("auth: token revoked")
)

// MissingClaimError names the absent claim.
type MissingClaimError struct {
	Claim string
}

func (e *MissingClaimError) Error() string {
	return fmt.Sprintf("auth: required claim %q missing", e.Claim)
}

func (e *MissingClaimError) Unwrap() error { return ErrMissingClaim }

// FailureKind maps a verification error to a stable label used in metrics
// and audit detail. Internal logging keeps the full kind; external responses
// never do.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlgorithmNotAllowed):
		return "algorithm_not_allowed"
	case errors.Is(err, ErrAlgorithmMismatch):
		return "algorithm_mismatch"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, ErrInvalidAudience):
		return "invalid_audience"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	default:
		return "error"
	}
}
