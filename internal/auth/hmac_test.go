package auth

import (
	"strings"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	//1.- Sign a token and confirm the verifier recovers the claims.
	now := time.Unix(1_700_000_000, 0)
	token, err := Sign("topsecret", TokenClaims{
		UserID:    42,
		Alias:     "ada",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, err := NewHMACTokenVerifier("topsecret", 2*time.Second)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	verifier.now = func() time.Time { return now.Add(time.Minute) }
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 42 || claims.Alias != "ada" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := Sign("topsecret", TokenClaims{UserID: 7, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	//1.- Flip a payload character so the signature no longer matches.
	parts := strings.Split(token, ".")
	parts[1] = parts[1][:len(parts[1])-1] + "A"
	verifier, _ := NewHMACTokenVerifier("topsecret", 0)
	verifier.now = func() time.Time { return now }
	if _, err := verifier.Verify(strings.Join(parts, ".")); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := Sign("topsecret", TokenClaims{UserID: 7, ExpiresAt: now.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, _ := NewHMACTokenVerifier("topsecret", 2*time.Second)
	verifier.now = func() time.Time { return now }
	if _, err := verifier.Verify(token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecretAndShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := Sign("topsecret", TokenClaims{UserID: 7, ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verifier, _ := NewHMACTokenVerifier("othersecret", 0)
	verifier.now = func() time.Time { return now }
	if _, err := verifier.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
	if _, err := verifier.Verify("not.a-token"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for malformed token, got %v", err)
	}
}
