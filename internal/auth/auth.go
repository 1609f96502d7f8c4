// Package auth verifies bearer session tokens and establishes the Principal
// a request acts as. Verification is a fixed-order pipeline; the order is a
// security property, not a style choice, and must not be rearranged.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kitahub.org/internal/config"
	"kitahub.org/internal/revocation"
)

// Principal is the verified identity produced by a successful validation.
type Principal struct {
	PersonID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

// sessionClaims is the payload of a session token. Pointer/zero values let
// the validator distinguish an absent claim from a present one.
type sessionClaims struct {
	Subject   string           `json:"sub,omitempty"`
	ExpiresAt *jwt.NumericDate `json:"exp,omitempty"`
	IssuedAt  *jwt.NumericDate `json:"iat,omitempty"`
	Issuer    string           `json:"iss,omitempty"`
	Audience  string           `json:"aud,omitempty"`
	TokenID   string           `json:"jti,omitempty"`
}

func (c *sessionClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c *sessionClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c *sessionClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c *sessionClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c *sessionClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c *sessionClaims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// Validator verifies presented tokens against the deployment's single
// configured algorithm, key, issuer and audience. It is stateless per call
// and safe for concurrent use.
type Validator struct {
	secret      []byte
	issuer      string
	audience    string
	method      jwt.SigningMethod
	parser      *jwt.Parser
	revocations revocation.Store
}

// NewValidator builds a Validator from process configuration.
func NewValidator(cfg config.Config, revocations revocation.Store) (*Validator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if revocations == nil {
		return nil, errors.New("auth: revocation store is required")
	}
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok || method == nil {
		return nil, fmt.Errorf("auth: unsupported algorithm %q", cfg.Algorithm)
	}
	return &Validator{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		method:   method,
		// Claim validation is done by hand below so the checks run in the
		// mandated order with distinct failure kinds.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		revocations: revocations,
	}, nil
}

// Verify runs the validation pipeline and returns the Principal, or an error
// wrapping exactly one failure kind from errors.go.
//
// The algorithm declared by the token is inspected before anything else and
// compared against the configured one; the token never chooses how it is
// verified. Claims are acted on only after the signature holds. A revocation
// store failure fails closed: the token is treated as revoked, never as
// valid.
func (v *Validator) Verify(ctx context.Context, token string, now time.Time) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	alg, err := headerAlgorithm(token)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if alg == "" || strings.EqualFold(alg, "none") {
		return Principal{}, fmt.Errorf("%w: alg %q", ErrAlgorithmNotAllowed, alg)
	}
	if alg != v.method.Alg() {
		return Principal{}, fmt.Errorf("%w: token declares %q, deployment requires %q", ErrAlgorithmMismatch, alg, v.method.Alg())
	}

	claims := &sessionClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Principal{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !parsed.Valid {
		return Principal{}, ErrSignatureInvalid
	}

	// Signature holds from here on; the claims can now be trusted.
	if err := requireClaims(claims); err != nil {
		return Principal{}, err
	}
	if !claims.ExpiresAt.Time.After(now) {
		return Principal{}, ErrTokenExpired
	}
	if claims.Issuer != v.issuer {
		return Principal{}, fmt.Errorf("%w: %q", ErrInvalidIssuer, claims.Issuer)
	}
	if claims.Audience != v.audience {
		return Principal{}, fmt.Errorf("%w: %q", ErrInvalidAudience, claims.Audience)
	}

	revoked, err := v.revocations.Contains(ctx, revocation.Identity(token, claims.TokenID))
	if err != nil {
		// Fail closed: an unreachable blacklist must never admit a token.
		return Principal{}, fmt.Errorf("%w: revocation lookup: %v", ErrTokenRevoked, err)
	}
	if revoked {
		return Principal{}, ErrTokenRevoked
	}

	return Principal{
		PersonID:  claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenID:   claims.TokenID,
	}, nil
}

func requireClaims(c *sessionClaims) error {
	if strings.TrimSpace(c.Subject) == "" {
		return &MissingClaimError{Claim: "sub"}
	}
	if c.ExpiresAt == nil {
		return &MissingClaimError{Claim: "exp"}
	}
	if c.IssuedAt == nil {
		return &MissingClaimError{Claim: "iat"}
	}
	if c.Issuer == "" {
		return &MissingClaimError{Claim: "iss"}
	}
	if c.Audience == "" {
		return &MissingClaimError{Claim: "aud"}
	}
	return nil
}

// headerAlgorithm decodes the token header without trusting the signature.
// Nothing read here is used for any decision except rejecting the token.
func headerAlgorithm(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("expected 3 segments, got %d", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode header: %v", err)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", fmt.Errorf("parse header: %v", err)
	}
	return header.Alg, nil
}

// Issuer mints session tokens from the same deployment configuration the
// Validator checks against. Issuance proper belongs to the session service;
// this exists for that service to embed, for tokenctl, and for tests.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	method   jwt.SigningMethod
	ttl      time.Duration
	now      func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer builds an Issuer from process configuration.
func NewIssuer(cfg config.Config, opts ...IssuerOption) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok || method == nil {
		return nil, fmt.Errorf("auth: unsupported algorithm %q", cfg.Algorithm)
	}
	iss := &Issuer{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		method:   method,
		ttl:      cfg.AccessTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Issue signs a token for personID with the configured TTL.
func (i *Issuer) Issue(personID string) (string, time.Time, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return "", time.Time{}, errors.New("auth: personID is required")
	}
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := &sessionClaims{
		Subject:   personID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    i.issuer,
		Audience:  i.audience,
		TokenID:   uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}
