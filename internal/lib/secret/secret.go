// Package secret generates and hashes the opaque secrets the service
// hands out: refresh tokens, password reset tokens and email
// verification codes. Raw values are returned to the caller once and
// only their digests are ever stored.
package secret

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

const tokenBytes = 32

// Hasher computes keyed digests of raw secrets. The pepper is a
// server-held key kept out of the record store, so a stolen store
// alone cannot be used to check candidate tokens.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) Hasher {
	return Hasher{pepper: []byte(pepper)}
}

// Sum returns the HMAC-SHA256 digest of raw. Deterministic so records
// can be looked up by equality on the digest.
func (h Hasher) Sum(raw string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// NewToken generates a cryptographically random opaque token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("secret.NewToken: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewVerificationCode returns a uniformly random six digit code in
// [100000, 999999].
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("secret.NewVerificationCode: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
