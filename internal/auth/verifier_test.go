package auth

import (
	"errors"
	"net/url"
	"testing"
)

func TestVerify_RoundTrip(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	wallet := "0xAbC123"

	query := url.Values{"token": {v.Sign(wallet)}}
	got, err := v.Verify(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != wallet {
		t.Errorf("expected identity %q, got %q", wallet, got)
	}
}

func TestVerify_WalletWithDots(t *testing.T) {
	// Only the last dot separates wallet from signature.
	v := NewTokenVerifier("test-secret")
	wallet := "chain.0xabc"

	got, err := v.Verify(url.Values{"token": {v.Sign(wallet)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != wallet {
		t.Errorf("expected identity %q, got %q", wallet, got)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := NewTokenVerifier("test-secret")
	good := v.Sign("0xabc")

	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"no separator", "0xabc"},
		{"empty wallet", good[len("0xabc"):]},
		{"empty signature", "0xabc."},
		{"non-hex signature", "0xabc.zzzz"},
		{"tampered wallet", "0xdef" + good[len("0xabc"):]},
		{"tampered signature", good + "00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(url.Values{"token": {tc.token}})
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	signer := NewTokenVerifier("secret-a")
	verifier := NewTokenVerifier("secret-b")

	_, err := verifier.Verify(url.Values{"token": {signer.Sign("0xabc")}})
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token minted with another secret must be refused, got %v", err)
	}
}
