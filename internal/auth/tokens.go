package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed indicates a token that failed parsing or signature
	// verification.
	ErrTokenMalformed = errors.New("token malformed or signature invalid")
)

// AccessClaims is the claim set embedded in access tokens. Refresh tokens
// carry only the registered subject.
type AccessClaims struct {
	Handle string `json:"handle,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies session tokens and generates the opaque
// single-use secrets used by the email-verification and reset flows.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	nowFunc func() time.Time
}

// NewTokenIssuer constructs an issuer with independent secrets and TTLs for
// the two session token classes.
func NewTokenIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		nowFunc:       func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTL reports the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// SignAccessToken creates a short-lived access token embedding the subject id
// plus the handle and email claims.
func (t *TokenIssuer) SignAccessToken(userID, handle, email string) (string, time.Time, error) {
	now := t.nowFunc()
	expiresAt := now.Add(t.accessTTL)
	claims := &AccessClaims{
		Handle: handle,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// SignRefreshToken creates a longer-lived refresh token carrying only the
// subject id.
func (t *TokenIssuer) SignRefreshToken(userID string) (string, time.Time, error) {
	now := t.nowFunc()
	expiresAt := now.Add(t.refreshTTL)
	claims := &jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken checks signature and expiry, returning the decoded claims.
// Expired tokens yield ErrTokenExpired so callers can instruct the client to
// refresh; anything else structurally wrong yields ErrTokenMalformed.
func (t *TokenIssuer) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.verify(tokenString, claims, t.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken checks signature and expiry and returns the subject id.
func (t *TokenIssuer) VerifyRefreshToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if err := t.verify(tokenString, claims, t.refreshSecret); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(t.nowFunc))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	if !token.Valid {
		return ErrTokenMalformed
	}
	return nil
}

// NewOpaqueSecret generates a high-entropy random hex token suitable for
// verification and reset links.
func NewOpaqueSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate opaque secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret returns the SHA-256 hex of an opaque secret. Entropy comes from
// the secure random source, so a fast lookup-safe transform is sufficient;
// secrets are never persisted in plaintext.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretHashEquals compares two secret hashes in constant time.
func SecretHashEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
