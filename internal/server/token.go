package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenScope is the only scope ingest tokens carry.
const TokenScope = "audio_ingest"

// DefaultTokenTTL is the lifetime of a minted ingest token.
const DefaultTokenTTL = 30 * time.Minute

var (
	ErrTokenInvalid  = errors.New("server: invalid ingest token")
	ErrTokenExpired  = errors.New("server: ingest token expired")
	ErrTokenMismatch = errors.New("server: ingest token bound to another session")
)

// TokenSigner mints and verifies HMAC-signed ingest tokens. A token is
// base64url(session_id|scope|exp_unix) + "." + base64url(hmac-sha256).
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner builds a signer. An empty secret generates a random
// per-process one: tokens then survive only as long as the process.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenSigner{secret: key, ttl: ttl, now: time.Now}
}

// Mint returns a signed token bound to sessionID and its expiry time.
func (s *TokenSigner) Mint(sessionID string) (string, time.Time) {
	expiresAt := s.now().Add(s.ttl)
	payload := fmt.Sprintf("%s|%s|%d", sessionID, TokenScope, expiresAt.Unix())
	return encodeToken(payload, s.sign(payload)), expiresAt
}

// Verify checks signature, scope, session binding and expiry.
func (s *TokenSigner) Verify(token, sessionID string) error {
	payload, sig, err := decodeToken(token)
	if err != nil {
		return ErrTokenInvalid
	}
	if !hmac.Equal(sig, s.sign(payload)) {
		return ErrTokenInvalid
	}

	parts := strings.Split(payload, "|")
	if len(parts) != 3 || parts[1] != TokenScope {
		return ErrTokenInvalid
	}
	if parts[0] != sessionID {
		return ErrTokenMismatch
	}
	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}
	if s.now().Unix() > exp {
		return ErrTokenExpired
	}
	return nil
}

func (s *TokenSigner) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func encodeToken(payload string, sig []byte) string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString([]byte(payload)) + "." + enc.EncodeToString(sig)
}

func decodeToken(token string) (string, []byte, error) {
	enc := base64.RawURLEncoding
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return "", nil, ErrTokenInvalid
	}
	payload, err := enc.DecodeString(token[:dot])
	if err != nil {
		return "", nil, ErrTokenInvalid
	}
	sig, err := enc.DecodeString(token[dot+1:])
	if err != nil {
		return "", nil, ErrTokenInvalid
	}
	return string(payload), sig, nil
}
