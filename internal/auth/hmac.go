package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
)

// TokenClaims captures the payload the coordinator needs from a WebSocket auth token.
type TokenClaims struct {
	UserID    int64
	Alias     string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HMACTokenVerifier validates compact JWT-style tokens signed with HS256.
type HMACTokenVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewHMACTokenVerifier constructs a verifier for the supplied shared secret and clock skew allowance.
func NewHMACTokenVerifier(secret string, leeway time.Duration) (*HMACTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &HMACTokenVerifier{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ,omitempty"`
}

type tokenPayload struct {
	Subject   string `json:"sub"`
	Alias     string `json:"alias,omitempty"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Verify parses the token, validates signature and expiry, and returns the embedded claims.
func (v *HMACTokenVerifier) Verify(token string) (*TokenClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	//1.- Check the signature before trusting any of the encoded segments.
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(parts[0] + "." + parts[1]))
	expected := mac.Sum(nil)
	signature, err := decodeSegment(parts[2])
	if err != nil || !hmac.Equal(signature, expected) {
		return nil, ErrInvalidToken
	}

	//2.- Decode the header and insist on the one algorithm we sign with.
	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header tokenHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil || !strings.EqualFold(header.Algorithm, "HS256") {
		return nil, ErrInvalidToken
	}

	//3.- Decode the payload and lift out the claims the coordinator understands.
	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload tokenPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(payload.Subject), 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidToken
	}
	claims := &TokenClaims{
		UserID:    userID,
		Alias:     payload.Alias,
		ExpiresAt: time.Unix(payload.ExpiresAt, 0),
		IssuedAt:  time.Unix(payload.IssuedAt, 0),
	}

	//4.- Reject tokens that expired beyond the configured clock skew allowance.
	if payload.ExpiresAt <= 0 || v.now().After(claims.ExpiresAt.Add(v.leeway)) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// Sign produces a compact HS256 token for the supplied claims. Used by tests and
// by the companion auth service's token issuer.
func Sign(secret string, claims TokenClaims) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("hmac secret must not be empty")
	}
	if claims.UserID <= 0 {
		return "", errors.New("user id must be positive")
	}
	headerBytes, err := json.Marshal(tokenHeader{Algorithm: "HS256", Type: "JWT"})
	if err != nil {
		return "", err
	}
	payloadBytes, err := json.Marshal(tokenPayload{
		Subject:   strconv.FormatInt(claims.UserID, 10),
		Alias:     claims.Alias,
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
	})
	if err != nil {
		return "", err
	}
	signing := encodeSegment(headerBytes) + "." + encodeSegment(payloadBytes)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signing))
	return signing + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimSpace(segment))
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
