package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// MinSecretLength is the shortest accepted HMAC secret in bytes
const MinSecretLength = 32

// TokenIssuer signs and verifies session tokens with a shared secret
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	signer jose.Signer
	leeway time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer for HS256 tokens
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	key := []byte(secret)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	return &TokenIssuer{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		signer: signer,
		leeway: 30 * time.Second,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Issue signs a token for claims, valid for the issuer's TTL
func (ti *TokenIssuer) Issue(claims Claims) (string, error) {
	if claims.UserID <= 0 {
		return "", errors.New("user_id is required")
	}

	now := ti.now()
	registered := jwt.Claims{
		Issuer:   ti.issuer,
		Subject:  strconv.FormatInt(claims.UserID, 10),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ti.ttl)),
	}

	token, err := jwt.Signed(ti.signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature, issuer and expiry of a token and returns
// its claims
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var registered jwt.Claims
	var claims Claims
	if err := parsed.Claims(ti.key, &registered, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	err = registered.ValidateWithLeeway(jwt.Expected{
		Issuer: ti.issuer,
		Time:   ti.now(),
	}, ti.leeway)
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if registered.Expiry == nil || claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing exp or user_id", ErrInvalidToken)
	}
	return &claims, nil
}
