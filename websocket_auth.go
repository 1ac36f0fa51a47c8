package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pongarena/coordinator/internal/auth"
)

type websocketAuthenticator interface {
	Authenticate(r *http.Request) (*auth.TokenClaims, error)
}

// queryAuthenticator trusts the identity the client claims in the query
// string. Only used when no shared secret is configured, i.e. local
// development against a frontend with its own session handling stripped.
type queryAuthenticator struct{}

func (queryAuthenticator) Authenticate(r *http.Request) (*auth.TokenClaims, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if raw == "" {
		return nil, errors.New("missing user_id")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return nil, errors.New("invalid user_id")
	}
	return &auth.TokenClaims{
		UserID: userID,
		Alias:  strings.TrimSpace(r.URL.Query().Get("alias")),
	}, nil
}

type hmacWebsocketAuthenticator struct {
	verifier *auth.HMACTokenVerifier
}

func newHMACWebsocketAuthenticator(secret string) (websocketAuthenticator, error) {
	verifier, err := auth.NewHMACTokenVerifier(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &hmacWebsocketAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the signed token and returns the embedded identity.
func (a *hmacWebsocketAuthenticator) Authenticate(r *http.Request) (*auth.TokenClaims, error) {
	if a == nil || a.verifier == nil {
		return nil, errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return nil, errors.New("missing auth token")
	}
	return a.verifier.Verify(token)
}
