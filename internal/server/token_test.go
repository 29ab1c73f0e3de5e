package server

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenSigner_MintVerifyRoundtrip(t *testing.T) {
	signer := NewTokenSigner("secret", time.Minute)

	token, expiresAt := signer.Mint("sess-1")
	if token == "" {
		t.Fatal("empty token")
	}
	if until := time.Until(expiresAt); until < 50*time.Second || until > 70*time.Second {
		t.Fatalf("expiry %v not ~1m out", until)
	}
	if err := signer.Verify(token, "sess-1"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestTokenSigner_RejectsOtherSession(t *testing.T) {
	signer := NewTokenSigner("secret", time.Minute)
	token, _ := signer.Mint("sess-1")

	if err := signer.Verify(token, "sess-2"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("want ErrTokenMismatch, got %v", err)
	}
}

func TestTokenSigner_RejectsExpired(t *testing.T) {
	signer := NewTokenSigner("secret", time.Minute)
	token, _ := signer.Mint("sess-1")

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := signer.Verify(token, "sess-1"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestTokenSigner_RejectsTamperedAndGarbage(t *testing.T) {
	signer := NewTokenSigner("secret", time.Minute)
	token, _ := signer.Mint("sess-1")

	cases := []string{
		"",
		"not-a-token",
		"a.b",
		token + "x",
		strings.Replace(token, ".", "x.", 1),
	}
	for _, tc := range cases {
		if err := signer.Verify(tc, "sess-1"); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q: want ErrTokenInvalid, got %v", tc, err)
		}
	}
}

func TestTokenSigner_DifferentSecretsDisagree(t *testing.T) {
	a := NewTokenSigner("secret-a", time.Minute)
	b := NewTokenSigner("secret-b", time.Minute)

	token, _ := a.Mint("sess-1")
	if err := b.Verify(token, "sess-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("cross-secret verify should fail, got %v", err)
	}
}

func TestTokenSigner_EmptySecretGetsRandomOne(t *testing.T) {
	signer := NewTokenSigner("", time.Minute)
	token, _ := signer.Mint("sess-1")
	if err := signer.Verify(token, "sess-1"); err != nil {
		t.Fatalf("Verify with generated secret: %v", err)
	}
}
