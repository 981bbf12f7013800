// Package auth is the boundary to the identity collaborator. Wallet signature
// verification and session-token issuance happen in the auth service; the
// relay only checks that a presented token was minted by that service and
// extracts the stable wallet identity from it. Connections without a valid
// token are refused.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidToken is returned for missing, malformed, or forged tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier turns connection query parameters into a verified user identity.
type Verifier interface {
	// Verify returns the stable wallet identity for the connection attempt,
	// or an error if no verifiable identity is present.
	Verify(query url.Values) (string, error)
}

// TokenVerifier validates tokens of the form "<wallet>.<hex hmac>" signed
// with the secret shared with the auth service.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for the given shared secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Sign produces a token for a wallet identity. Exposed for operator tooling
// and tests; production tokens come from the auth service.
func (v *TokenVerifier) Sign(wallet string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(wallet))
	return wallet + "." + hex.EncodeToString(mac.Sum(nil))
}

// Verify implements Verifier.
func (v *TokenVerifier) Verify(query url.Values) (string, error) {
	token := query.Get("token")
	if token == "" {
		return "", ErrInvalidToken
	}

	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", ErrInvalidToken
	}
	wallet, sig := token[:i], token[i+1:]

	want, err := hex.DecodeString(sig)
	if err != nil {
		return "", ErrInvalidToken
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(wallet))
	if !hmac.Equal(mac.Sum(nil), want) {
		return "", ErrInvalidToken
	}

	return wallet, nil
}
