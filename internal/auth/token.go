package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

// tokenName binds the signature to its use, so values signed for another
// purpose with the same secret do not verify.
const tokenName = "selfie_bearer"

var (
	ErrTokenMissing = errors.New("bearer token missing")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims is the payload carried by a bearer token.
type Claims struct {
	OwnerID string `json:"owner_id"`
}

// TokenManager issues and verifies signed, timestamped bearer tokens.
type TokenManager struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
}

// NewTokenManager creates a token manager signing with secret. Tokens older
// than maxAge are rejected.
func NewTokenManager(secret string, maxAge time.Duration) *TokenManager {
	codec := securecookie.New([]byte(secret), nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge / time.Second))
	// the default 4096 limit is meant for cookies; tokens are tiny
	codec.MaxLength(1024)

	return &TokenManager{
		codec:  codec,
		maxAge: maxAge,
	}
}

// Issue returns a token for ownerID.
func (tm *TokenManager) Issue(ownerID string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", fmt.Errorf("%w: owner id is required", ErrInvalidToken)
	}

	token, err := tm.codec.Encode(tokenName, &Claims{OwnerID: ownerID})
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks a token's signature and age and returns its claims.
func (tm *TokenManager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	var claims Claims
	if err := tm.codec.Decode(tokenName, token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.OwnerID == "" {
		return nil, fmt.Errorf("%w: no owner", ErrInvalidToken)
	}
	return &claims, nil
}

// MaxAge returns how long issued tokens stay valid.
func (tm *TokenManager) MaxAge() time.Duration {
	return tm.maxAge
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrTokenMissing
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenMissing
	}
	return token, nil
}
