package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndVerifyAccessToken(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)

	signed, expiresAt, err := issuer.SignAccessToken("user-1", "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	claims, err := issuer.VerifyAccessToken(signed)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.Subject != "user-1" || claims.Handle != "alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyAccessTokenExpired(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)

	signed, _, err := issuer.SignAccessToken("user-1", "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("sign access token: %v", err)
	}

	issuer.nowFunc = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	if _, err := issuer.VerifyAccessToken(signed); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAccessAndRefreshSecretsAreIndependent(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)

	refresh, _, err := issuer.SignRefreshToken("user-1")
	if err != nil {
		t.Fatalf("sign refresh token: %v", err)
	}

	if _, err := issuer.VerifyAccessToken(refresh); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected refresh token to fail access verification, got %v", err)
	}

	subject, err := issuer.VerifyRefreshToken(refresh)
	if err != nil {
		t.Fatalf("verify refresh token: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("unexpected subject %q", subject)
	}
}

func TestVerifyRefreshTokenTampered(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	other := NewTokenIssuer("access-secret", "another-secret", time.Minute, time.Hour)

	refresh, _, err := other.SignRefreshToken("user-1")
	if err != nil {
		t.Fatalf("sign refresh token: %v", err)
	}

	if _, err := issuer.VerifyRefreshToken(refresh); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestOpaqueSecretHashing(t *testing.T) {
	secret, err := NewOpaqueSecret()
	if err != nil {
		t.Fatalf("generate opaque secret: %v", err)
	}
	if len(secret) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(secret))
	}

	other, err := NewOpaqueSecret()
	if err != nil {
		t.Fatalf("generate opaque secret: %v", err)
	}
	if secret == other {
		t.Fatal("expected distinct secrets")
	}

	hash := HashSecret(secret)
	if hash == secret {
		t.Fatal("hash must differ from the secret")
	}
	if !SecretHashEquals(hash, HashSecret(secret)) {
		t.Fatal("hashing the same secret twice must match")
	}
	if SecretHashEquals(hash, HashSecret(other)) {
		t.Fatal("different secrets must not collide")
	}
}
